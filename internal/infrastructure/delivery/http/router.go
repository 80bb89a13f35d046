// Package httprouter exposes the job service over HTTP.
package httprouter

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"audiograb/internal/config"
	"audiograb/internal/infrastructure/delivery/http/middleware"
	"audiograb/internal/observability"
	"audiograb/internal/service"
)

// Router is a ServeMux with global and per-route middleware chains.
type Router struct {
	*http.ServeMux
	log         *slog.Logger
	cfg         *config.Config
	svc         service.Job
	metrics     *observability.Metrics
	ui          *ui
	prefix      string // path the router is mounted under, used for metric labels
	globalChain []func(http.Handler) http.Handler
	routeChain  []func(http.Handler) http.Handler
	isSubRouter bool
}

// New builds the router with every route registered. metrics may be nil.
func New(log *slog.Logger, cfg *config.Config, svc service.Job, metrics *observability.Metrics) *Router {
	r := &Router{
		ServeMux: http.NewServeMux(),
		log:      log.With(slog.String("package", "httprouter")),
		cfg:      cfg,
		svc:      svc,
		metrics:  metrics,
		ui:       newUI(cfg.Transcode),
	}

	r.SetGlobalMiddlewares()
	r.SetRoutes()

	return r
}

// Use appends middleware to the global chain, or to the route chain of a sub-router.
func (r *Router) Use(middleware ...func(http.Handler) http.Handler) {
	if r.isSubRouter {
		r.routeChain = append(r.routeChain, middleware...)
	} else {
		r.globalChain = append(r.globalChain, middleware...)
	}
}

// sub returns a router with its own mux, mounted under prefix.
func (r *Router) sub(prefix string) *Router {
	return &Router{
		ServeMux:    http.NewServeMux(),
		metrics:     r.metrics,
		prefix:      r.prefix + prefix,
		isSubRouter: true,
		routeChain:  slices.Clone(r.routeChain),
	}
}

// mount serves sub under prefix with the prefix stripped.
func (r *Router) mount(prefix string, sub *Router) {
	r.Handle(prefix+"/", http.StripPrefix(prefix, sub))
}

// HandleFunc registers an endpoint. Endpoints are measured under their pattern.
func (r *Router) HandleFunc(pattern string, h http.HandlerFunc) {
	r.Handle(pattern, middleware.Metrics(r.metrics, r.routeLabel(pattern))(h))
}

// Handle registers h behind the route chain.
func (r *Router) Handle(pattern string, h http.Handler) {
	for _, middleware := range slices.Backward(r.routeChain) {
		h = middleware(h)
	}

	r.ServeMux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var h http.Handler = r.ServeMux

	for _, middleware := range slices.Backward(r.globalChain) {
		h = middleware(h)
	}

	h.ServeHTTP(w, req)
}

// routeLabel turns "GET /{id}" registered under /v1/jobs into "/v1/jobs/{id}".
func (r *Router) routeLabel(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		pattern = path
	}

	pattern = strings.TrimSuffix(pattern, "{$}")

	return r.prefix + pattern
}

// download bounds a file transfer by HTTP.DownloadTimeout.
func (r *Router) download(h http.HandlerFunc) http.HandlerFunc {
	return middleware.Deadline(r.cfg.HTTP.DownloadTimeout)(h).ServeHTTP
}

// SetGlobalMiddlewares installs the middlewares every request passes.
func (r *Router) SetGlobalMiddlewares() {
	r.Use(
		middleware.Recoverer,
		middleware.RequestID,
		middleware.Logger,
	)
}

// SetRoutes registers every route.
func (r *Router) SetRoutes() {
	r.HandleFunc("GET /{$}", r.Index)
	r.Handle("GET /metrics", r.metrics.Handler())

	r.SetRoutesV1()
	r.SetRoutesJob()
	r.SetRoutesFiles()
}

// SetRoutesV1 registers readiness, preview and history.
func (r *Router) SetRoutesV1() {
	v1 := r.sub("/v1")
	v1.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	v1.HandleFunc("POST /preview", r.Preview)
	v1.HandleFunc("GET /history", r.History)

	r.mount("/v1", v1)
}

// SetRoutesJob registers the job endpoints.
func (r *Router) SetRoutesJob() {
	jobs := r.sub("/v1/jobs")
	jobs.HandleFunc("POST /enqueue", r.Enqueue)
	jobs.HandleFunc("GET /{$}", r.GetJobs)
	jobs.HandleFunc("GET /{id}", r.GetJob)
	jobs.HandleFunc("DELETE /{id}/cancel", r.CancelJob)
	jobs.HandleFunc("GET /{id}/archive", r.download(r.GetArchive))

	r.mount("/v1/jobs", jobs)
}

// SetRoutesFiles registers the file endpoints.
func (r *Router) SetRoutesFiles() {
	files := r.sub("/v1/files")
	files.HandleFunc("GET /{id}", r.download(r.GetFile))
	files.HandleFunc("GET /{id}/metadata", r.GetMetadata)

	r.mount("/v1/files", files)
}
