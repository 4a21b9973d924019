package httpsvc

import (
	"context"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
)

// ErrorWriter renders a normalized error onto a response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err *apierr.Error)

// Proxy forwards a path subtree to an HTTP backend unchanged, except that
// non-2xx answers are replaced by the uniform error body with the
// backend's "detail" as message.
type Proxy struct {
	strip   string
	target  string
	timeout time.Duration
	rp      *httputil.ReverseProxy
}

// NewProxy forwards requests whose path starts with strip to
// client's base URL joined with target plus the remainder of the path.
func NewProxy(client *Client, strip, target string, timeout time.Duration, onError ErrorWriter) *Proxy {
	p := &Proxy{
		strip:   strip,
		target:  "/" + strings.Trim(target, "/"),
		timeout: timeout,
	}
	base := client.BaseURL()
	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			rest := strings.TrimPrefix(pr.In.URL.Path, p.strip)
			pr.SetURL(base)
			pr.Out.URL.Path = strings.TrimRight(base.Path, "/") + p.target + "/" + strings.TrimLeft(rest, "/")
			pr.Out.URL.RawPath = ""
			pr.Out.Header.Del("Authorization")
			pr.SetXForwarded()
		},
		Transport: client.httpClient.Transport,
		ModifyResponse: func(resp *http.Response) error {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
			_ = resp.Body.Close()
			return &StatusError{Service: client.Name(), StatusCode: resp.StatusCode, Body: body}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			onError(w, r, AsAPIError(err))
		},
	}
	return p
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.timeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
		defer cancel()
		r = r.WithContext(ctx)
	}
	p.rp.ServeHTTP(w, r)
}
