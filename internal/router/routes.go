package router

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/aagamb/granthsync/api/v1"
	"github.com/aagamb/granthsync/internal/auth"
)

// New sets up the application routes and required middleware.
func New(logger *slog.Logger, h *v1.Handler) *mux.Router {

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Error("write healthz response", "err", err)
		}
	}).Methods("GET")
	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ready")); err != nil {
			logger.Error("write readyz response", "err", err)
		}
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.Use(v1.RequestID)
	r.Use(h.Log)
	r.Use(auth.Middleware)

	api := r.PathPrefix("/v1").Subrouter()

	// GETs
	get := api.Methods("GET").Subrouter()
	get.HandleFunc("/books", h.GetBooks)
	get.HandleFunc("/books/{name}", h.GetBook)
	get.HandleFunc("/books/{name}/state", h.GetBookState)
	get.HandleFunc("/sync", h.GetSync)
	get.HandleFunc("/sync/events", h.Events)
	get.HandleFunc("/storage", h.GetStorage)
	get.HandleFunc("/sessions", h.GetSessions)

	// POSTs
	post := api.Methods("POST").Subrouter()
	post.HandleFunc("/sync", h.StartSync)
	post.HandleFunc("/sync/resume", h.ResumeSync)
	post.HandleFunc("/books/{name}/retry", h.RetryBook)

	// DELETEs
	del := api.Methods("DELETE").Subrouter()
	del.HandleFunc("/sync", h.CancelSync)
	del.HandleFunc("/storage", h.DeleteStorage)

	return r
}
