package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/events"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/reconcile"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/resourcecache"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
)

// RouterConfig holds every dependency needed to build the HTTP router. It is
// populated in main.go once all components are constructed and passed to
// NewRouter as a single struct, following the teacher's own RouterConfig
// idiom.
type RouterConfig struct {
	Store      *store.Store
	Reconciler *reconcile.Reconciler
	Events     *events.EventProcessor
	Resources  *resourcecache.Cache
	Logger     *zap.Logger
}

// NewRouter builds the fully configured Chi router for spec §6's inbound
// REST surface. Every path is POST, exactly as spec.md §6 preserves them —
// there are no path parameters; every input travels in the JSON body.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	hs := &hostSchemeHandler{store: cfg.Store, log: cfg.Logger.Named("api.host_scheme")}
	mon := &monitorHandler{store: cfg.Store, reconciler: cfg.Reconciler, log: cfg.Logger.Named("api.monitor")}
	ev := &eventHandler{store: cfg.Store, events: cfg.Events, log: cfg.Logger.Named("api.event")}
	res := &resourceHandler{store: cfg.Store, cache: cfg.Resources, log: cfg.Logger.Named("api.resource")}
	mult := &multipleHandler{store: cfg.Store, log: cfg.Logger.Named("api.multiple")}

	r.Post("/host_scheme/get", hs.Get)
	r.Post("/host_scheme/create", hs.Create)
	r.Post("/host_scheme/modify", hs.Modify)
	r.Post("/host_scheme/certificate", hs.Certificate)
	r.Post("/host_scheme/delete", hs.Delete)
	r.Post("/host_scheme/list", hs.List)

	r.Post("/monitor/get", mon.Get)
	r.Post("/monitor/delete", mon.Delete)
	r.Post("/monitor/list", mon.List)
	r.Post("/monitor/update", mon.Update)

	r.Post("/event/report", ev.Report)
	r.Post("/event/status", ev.Status)
	r.Post("/event/get", ev.Get)

	r.Post("/resource/available", res.Available)
	r.Post("/resource/create", res.Create)
	r.Post("/resource/list", res.List)
	r.Post("/resource/purge", res.Purge)
	r.Post("/resource/plot", res.Plot)

	r.Post("/multiple/list", mult.List)

	return r
}
