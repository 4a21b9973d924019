package http

import (
	"net/http"

	"github.com/Sentinel-Gate/edgegate/internal/domain/auth"
)

// Route policies shared by several groups.
var (
	public        = auth.Policy{}
	authenticated = auth.Policy{RequiresAuth: true}
	staffOnly     = auth.Policy{RequiresAuth: true, Roles: []auth.Role{auth.RoleSeller, auth.RoleSupervisor, auth.RoleAdmin}}
	supervisors   = auth.Policy{Roles: []auth.Role{auth.RoleSupervisor, auth.RoleAdmin}}
	adminsOnly    = auth.Policy{Roles: []auth.Role{auth.RoleAdmin}}
)

// APIRoutes is the static route table of the gateway. Policies are
// resolved once, at registration; nothing is looked up per request.
func APIRoutes(h *Handlers) []Group {
	upgrader := newUpgrader(h.deps.AllowedOrigins)
	return []Group{
		{
			Prefix: "auth",
			Policy: public,
			Routes: []Route{
				{Method: http.MethodPost, Path: "register", Handler: Intercept(h.register), Target: "auth register"},
				{Method: http.MethodPost, Path: "login", Handler: Intercept(h.login), Target: "auth login"},
				{Method: http.MethodGet, Path: "get-users", Policy: supervisors, Handler: Intercept(h.getUsers), Target: "auth get_users"},
				{Method: http.MethodPatch, Path: "update/{id}", Policy: adminsOnly, Handler: Intercept(h.updateUser), Target: "auth update"},
				{Method: http.MethodGet, Path: "profile", Policy: authenticated, Handler: Intercept(h.profile), Target: "identity"},
			},
		},
		{
			Prefix: "rag-backend",
			Policy: staffOnly,
			Routes: []Route{
				{Method: http.MethodPost, Path: "upload-excel", Handler: Intercept(h.uploadExcel), Target: "rag_ia_backend upload_excel"},
				{Method: http.MethodPost, Path: "process-image-preview", Handler: Intercept(h.processImagePreview), Target: "rag_ia_backend process_image_preview"},
				{Method: http.MethodPost, Path: "process-re-ranking", Handler: Intercept(h.rerank), Target: "rag_ia_backend rerank_product_matches"},
				{Method: http.MethodPost, Path: "manual-product-search", Handler: Intercept(h.manualSearch), Target: "rag_ia_backend manual_product_search"},
			},
		},
		{
			Prefix: "rag-etl-indexer",
			Policy: adminsOnly,
			Routes: []Route{
				{Method: http.MethodPost, Path: "trigger-indexing", Handler: Intercept(h.triggerIndexing), Target: "rag_etl_indexer trigger_product_indexing"},
			},
		},
		{
			Prefix: "price-comparator",
			Policy: public,
			Routes: []Route{
				{Method: http.MethodGet, Path: "", Handler: Intercept(h.priceComparatorStatus), Target: "static"},
			},
		},
		{
			Prefix: "sales",
			Policy: public,
			Routes: []Route{
				{Method: http.MethodPost, Path: "sync-gescom-data", Policy: authenticated, Handler: Intercept(h.syncGescomData), Target: "gescom get_data -> sales process_gescom_data"},
				{Method: http.MethodGet, Path: "health", Handler: Intercept(h.salesHealth), Target: "sales GET /health"},
				{Path: "route-validator/", Policy: authenticated, Handler: h.deps.SalesProxy, Target: "sales /route-validator/*"},
			},
		},
		{
			Prefix: "purchases",
			Policy: public,
			Routes: []Route{
				{Method: http.MethodGet, Path: "ping-redis", Handler: Intercept(h.purchasesPingRedis), Target: "purchases purchases.ping"},
				{Method: http.MethodGet, Path: "ping-http", Handler: Intercept(h.purchasesPingHTTP), Target: "purchases GET /"},
			},
		},
		{
			Prefix: "gescom-data-access",
			Policy: public,
			Routes: []Route{
				{Method: http.MethodGet, Path: "health", Handler: Intercept(h.gescomHealth), Target: "gescom health-check"},
			},
		},
		{
			Prefix: "catalog",
			Policy: staffOnly,
			Routes: []Route{
				{Method: http.MethodPost, Path: "bulk-upload", Handler: Intercept(h.bulkUpload), Target: "processing POST /jobs, fallback broker emit"},
			},
		},
		{
			Prefix: "jobs",
			Policy: staffOnly,
			Routes: []Route{
				{Method: http.MethodGet, Path: "", Policy: adminsOnly, Handler: Intercept(h.recentJobs), Target: "job ledger"},
				{Method: http.MethodGet, Path: "{id}/status", Handler: Intercept(h.jobStatus), Target: "processing GET /jobs/{id}/status"},
				{Method: http.MethodGet, Path: "{id}/results", Handler: Intercept(h.jobResults), Target: "processing GET /jobs/{id}/results"},
				{Method: http.MethodGet, Path: "{id}/events", Handler: h.jobEvents(upgrader), Prepare: TokenQueryMiddleware, Target: "broker progress channel (websocket)"},
			},
		},
	}
}
