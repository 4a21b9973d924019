package httpsvc

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
)

func writeTestError(w http.ResponseWriter, _ *http.Request, err *apierr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	_ = json.NewEncoder(w).Encode(err.Body(time.Unix(0, 0)))
}

func TestProxy_Forwards(t *testing.T) {
	var gotPath, gotAuth, gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		_, _ = io.WriteString(w, "xlsx-bytes")
	}))

	p := NewProxy(c, "/api/v1/sales/route-validator", "route-validator", time.Second, writeTestError)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sales/route-validator/recorrido/7?limit=5", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "xlsx-bytes" {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
	if gotPath != "/route-validator/recorrido/7" || gotQuery != "limit=5" {
		t.Errorf("upstream saw %s?%s", gotPath, gotQuery)
	}
	if gotAuth != "" {
		t.Error("bearer credential forwarded to backend")
	}
}

func TestProxy_NormalizesErrors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Recorrido not found"}`)
	}))

	p := NewProxy(c, "/api/v1/sales/route-validator", "route-validator", time.Second, writeTestError)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/sales/route-validator/recorrido/9", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body apierr.Body
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.StatusCode != 404 || body.Message != "Recorrido not found" || string(body.Errors) != "null" {
		t.Errorf("body = %+v errors=%s", body, body.Errors)
	}
}

func TestProxy_Unreachable(t *testing.T) {
	c, _ := NewClient("sales", "http://127.0.0.1:1", time.Second)
	p := NewProxy(c, "/sales/route-validator", "route-validator", time.Second, writeTestError)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/route-validator/history", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}
