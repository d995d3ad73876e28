package routes

import (
	"net/http"

	"asset-orchestrator/api/rest/handlers"
	"asset-orchestrator/api/rest/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Handlers groups the endpoint handlers. Assets and Images may be nil when
// the corresponding backend is not configured.
type Handlers struct {
	Jobs   *handlers.JobHandler
	Images *handlers.ImageHandler
	Assets *handlers.AssetHandler
	Health *handlers.HealthHandler
}

// SetupRoutes configures all API routes. Each endpoint is also served under
// the path used by earlier clients.
func SetupRoutes(r *mux.Router, h Handlers) {
	api := r.PathPrefix("/v1").Subrouter()

	// Job endpoints
	route(r, api, "/jobs", "/create-3d-job", http.MethodPost, h.Jobs.SubmitJob)
	route(r, api, "/jobs/status", "/check-3d-job", http.MethodPost, h.Jobs.CheckJobStatus)

	if h.Images != nil {
		route(r, api, "/images", "/text-to-image", http.MethodPost, h.Images.GenerateImage)
	}
	if h.Assets != nil {
		route(r, api, "/assets", "/get-assets", http.MethodGet, h.Assets.ListAssets)
	}

	r.HandleFunc("/health", h.Health.Health).Methods(http.MethodGet)
}

func route(root, api *mux.Router, path, legacy, method string, fn http.HandlerFunc) {
	api.HandleFunc(path, fn).Methods(method)
	api.HandleFunc(path, handlers.Preflight).Methods(http.MethodOptions)
	root.HandleFunc(legacy, fn).Methods(method)
	root.HandleFunc(legacy, handlers.Preflight).Methods(http.MethodOptions)
}

// NewHandler builds the router with middleware and permissive CORS.
func NewHandler(h Handlers, logger zerolog.Logger) http.Handler {
	r := mux.NewRouter()
	SetupRoutes(r, h)

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer)

	c := cors.New(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:       []string{"*"},
		OptionsSuccessStatus: http.StatusOK,
	})
	return c.Handler(r)
}
