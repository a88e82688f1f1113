package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"SyncFM/metrics"
)

// NewRouter builds the route table. A nil auth leaves the admin API out.
func NewRouter(h *Handler, auth *AdminAuth) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
	router.PathPrefix("/music/").HandlerFunc(h.HandleMusic).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/api/state", h.HandleState).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	if auth != nil {
		admin := router.PathPrefix("/api/admin").Subrouter()
		admin.Use(auth.Middleware)
		admin.HandleFunc("/skip", h.HandleSkip).Methods(http.MethodPost)
		admin.HandleFunc("/pause", h.HandlePause).Methods(http.MethodPost)
		admin.HandleFunc("/resume", h.HandleResume).Methods(http.MethodPost)
	}
	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
