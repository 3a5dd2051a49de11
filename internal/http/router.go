package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// APIPrefix is the path prefix of every early-warning endpoint.
const APIPrefix = "/ews/api/v1"

// Router uses the standard http.ServeMux.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterEWSRoutes mounts patients and alerts under APIPrefix.
func (r *Router) RegisterEWSRoutes(h *EWSHandler) {
	r.HandleHandler(APIPrefix+"/patients", h)
	r.HandleHandler(APIPrefix+"/patients/", h)
	r.HandleHandler(APIPrefix+"/alerts", h)
	r.HandleHandler(APIPrefix+"/alerts/", h)
}

// RegisterHealthRoutes mounts /healthz. ping may be nil.
func (r *Router) RegisterHealthRoutes(ping func(ctx context.Context) error) {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if ping != nil {
			if err := ping(req.Context()); err != nil {
				r.logger.Warn("Health check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, Fail("database unavailable"))
				return
			}
		}
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}
