package http

import (
	"encoding/json"
	"net/http"

	"github.com/Sentinel-Gate/edgegate/internal/adapter/outbound/httpsvc"
	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
	"github.com/Sentinel-Gate/edgegate/internal/domain/command"
)

// Broker patterns of the backends.
var (
	patternRegister        = command.Cmd("register")
	patternLogin           = command.Cmd("login")
	patternGetUsers        = command.Cmd("get_users")
	patternUpdateUser      = command.Cmd("update")
	patternUploadExcel     = command.Cmd("upload_excel")
	patternImagePreview    = command.Cmd("process_image_preview")
	patternRerank          = command.Cmd("rerank_product_matches")
	patternManualSearch    = command.Cmd("manual_product_search")
	patternTriggerIndexing = command.Cmd("trigger_product_indexing")
	patternGescomData      = command.Cmd("get_data")
	patternProcessGescom   = command.Topic("process_gescom_data")
	patternPurchasesPing   = command.Topic("purchases.ping")
	patternGescomHealth    = command.Topic("health-check")
)

func (h *Handlers) register(r *http.Request) (any, error) {
	return forward(h.deps.Auth, patternRegister)(r)
}

func (h *Handlers) login(r *http.Request) (any, error) {
	return forward(h.deps.Auth, patternLogin)(r)
}

func (h *Handlers) getUsers(r *http.Request) (any, error) {
	return send(h.deps.Auth, patternGetUsers, queryPayload)(r)
}

// updateUser merges the path id into the JSON body.
func (h *Handlers) updateUser(r *http.Request) (any, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	body, err := readJSONObject(r)
	if err != nil {
		return nil, err
	}
	body["id"], _ = json.Marshal(id)
	return h.deps.Auth.Send(r.Context(), patternUpdateUser, body)
}

// profile returns the verified identity without another backend call.
func (h *Handlers) profile(r *http.Request) (any, error) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		return nil, apierr.Unauthorized("authentication token not provided")
	}
	return identity, nil
}

func (h *Handlers) uploadExcel(r *http.Request) (any, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, h.deps.Uploads.MaxFileSize+maxRequestBodySize)
	file, _, err := readInlineFile(r, "excel", "Excel file is required", h.deps.Uploads.MaxFileSize)
	if err != nil {
		return nil, err
	}
	LoggerFromContext(r.Context()).Info("forwarding excel upload", "file", file.OriginalName, "size", file.Size)
	return h.deps.RAGBackend.Send(r.Context(), patternUploadExcel, map[string]any{"file": file})
}

func (h *Handlers) processImagePreview(r *http.Request) (any, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, h.deps.Uploads.MaxFileSize+maxRequestBodySize)
	image, fields, err := readInlineFile(r, "image", "Image file is required", h.deps.Uploads.MaxFileSize)
	if err != nil {
		return nil, err
	}
	LoggerFromContext(r.Context()).Info("forwarding image preview", "file", image.OriginalName, "size", image.Size)
	return h.deps.RAGBackend.Send(r.Context(), patternImagePreview, map[string]any{"image": image, "body": fields})
}

func (h *Handlers) rerank(r *http.Request) (any, error) {
	return forward(h.deps.RAGBackend, patternRerank)(r)
}

// manualSearch forwards the query with the limit defaulted.
func (h *Handlers) manualSearch(r *http.Request) (any, error) {
	body, err := readJSONObject(r)
	if err != nil {
		return nil, err
	}
	limit := json.RawMessage(`5`) // default when unset
	if l, ok := body["limit"]; ok && apierr.Truthy(l) {
		limit = l
	}
	payload := map[string]json.RawMessage{
		"query": body["query"],
		"limit": limit,
	}
	if payload["query"] == nil {
		payload["query"] = json.RawMessage(`null`)
	}
	return h.deps.RAGBackend.Send(r.Context(), patternManualSearch, payload)
}

func (h *Handlers) triggerIndexing(r *http.Request) (any, error) {
	LoggerFromContext(r.Context()).Info("triggering product indexing")
	return send(h.deps.ETLIndexer, patternTriggerIndexing, emptyPayload)(r)
}

func (h *Handlers) priceComparatorStatus(*http.Request) (any, error) {
	return map[string]string{"status": "Price Comparator is running"}, nil
}

// syncGescomData fetches data from gescom and hands it to sales. The two
// calls are sequential; a failure of either is returned as is.
func (h *Handlers) syncGescomData(r *http.Request) (any, error) {
	ctx := r.Context()
	query := r.URL.Query().Get("query")
	logger := LoggerFromContext(ctx)

	logger.Info("fetching data from gescom")
	data, err := h.deps.Gescom.Send(ctx, patternGescomData, map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	logger.Info("sending gescom data to sales")
	salesResponse, err := h.deps.Sales.Send(ctx, patternProcessGescom, data)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":       true,
		"message":       "Data synced from Gescom to Sales",
		"salesResponse": salesResponse,
	}, nil
}

// salesHealth reports the sales service health with the gateway's own
// status added. Any failure is a 503.
func (h *Handlers) salesHealth(r *http.Request) (any, error) {
	doc, err := h.deps.SalesHTTP.GetJSON(r.Context(), "/health", nil)
	if err != nil {
		LoggerFromContext(r.Context()).Error("sales service health check failed", "error", err)
		return nil, apierr.ServiceUnavailable("Sales service unavailable")
	}
	out := map[string]json.RawMessage{}
	if err := json.Unmarshal(doc, &out); err != nil || out == nil {
		out = map[string]json.RawMessage{"service": doc}
	}
	out["gateway"] = json.RawMessage(`"ok"`)
	return out, nil
}

func (h *Handlers) purchasesPingRedis(r *http.Request) (any, error) {
	msg := r.URL.Query().Get("msg")
	if msg == "" {
		msg = "ping"
	}
	return h.deps.Purchases.Send(r.Context(), patternPurchasesPing, msg)
}

// purchasesPingHTTP answers 200 even when the service is down so the
// result of the ping is always in the body.
func (h *Handlers) purchasesPingHTTP(r *http.Request) (any, error) {
	doc, err := h.deps.PurchasesHTTP.GetJSON(r.Context(), "/", nil)
	if err != nil {
		return map[string]string{
			"error":   "Could not connect to purchases service via HTTP",
			"details": httpsvc.AsAPIError(err).Message,
		}, nil
	}
	return doc, nil
}

func (h *Handlers) gescomHealth(r *http.Request) (any, error) {
	return send(h.deps.Gescom, patternGescomHealth, emptyPayload)(r)
}
