package control

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/machinekit/pkg/caller"
	"github.com/dmitrymomot/machinekit/pkg/definition"
	"github.com/dmitrymomot/machinekit/pkg/httpserver"
	"github.com/dmitrymomot/machinekit/pkg/logger"
	"github.com/dmitrymomot/machinekit/pkg/requestid"
)

// Dispatch modes accepted by the events endpoint.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
	ModeDefer = "defer"
)

// Handler exposes one caller over HTTP.
type Handler struct {
	caller   *caller.Caller[string]
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	checks   []func(context.Context) error

	mu       sync.Mutex
	deferred map[uuid.UUID]*caller.DeferredEvent
}

// New returns a Handler serving c.
func New(c *caller.Caller[string], opts ...Option) *Handler {
	h := &Handler{
		caller:   c,
		logger:   logger.Discard(),
		deferred: make(map[uuid.UUID]*caller.DeferredEvent),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("control"), logger.Machine(c.Name()))
	return h
}

// Router mounts the control endpoints:
//
//	GET    /state
//	POST   /events/{event}?mode=sync|async|defer&delay=1s
//	DELETE /deferred/{id}
//	GET    /metrics
//	GET    /healthz
//	GET    /readyz
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)

	r.Get("/state", h.state)
	r.Post("/events/{event}", h.event)
	r.Delete("/deferred/{id}", h.cancel)

	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/healthz", httpserver.HealthCheckHandler(h.logger))
	r.Get("/readyz", httpserver.HealthCheckHandler(h.logger, append([]func(context.Context) error{h.running}, h.checks...)...))

	return r
}

// running fails once the caller has stopped.
func (h *Handler) running(context.Context) error {
	select {
	case <-h.caller.Done():
		return caller.ErrCallerStopped
	default:
		return nil
	}
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

func (h *Handler) event(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "event")
	ev := definition.ParseEvent(name)

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = ModeSync
	}

	switch mode {
	case ModeSync:
		result, err := h.caller.SyncEvent(r.Context(), ev)
		if err != nil {
			h.fail(w, r, name, err)
			return
		}
		writeJSON(w, http.StatusOK, eventResponse{Event: name, Mode: mode, Result: result, Snapshot: h.snapshot()})

	case ModeAsync:
		if err := h.caller.AsyncEvent(ev); err != nil {
			h.fail(w, r, name, err)
			return
		}
		writeJSON(w, http.StatusAccepted, eventResponse{Event: name, Mode: mode, Snapshot: h.snapshot()})

	case ModeDefer:
		delay, err := time.ParseDuration(r.URL.Query().Get("delay"))
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrInvalidDelay)
			return
		}
		d, err := h.caller.DeferEvent(ev, delay)
		if err != nil {
			h.fail(w, r, name, err)
			return
		}
		h.track(d)
		writeJSON(w, http.StatusAccepted, eventResponse{Event: name, Mode: mode, DeferredID: d.ID().String(), Snapshot: h.snapshot()})

	default:
		writeError(w, http.StatusBadRequest, ErrInvalidMode)
	}
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidDeferredID)
		return
	}

	h.mu.Lock()
	d, ok := h.deferred[id]
	h.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, ErrDeferredNotFound)
		return
	}

	if !d.Cancel() {
		writeError(w, http.StatusConflict, ErrDeferredFinished)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// track keeps d addressable until it fires or is canceled.
func (h *Handler) track(d *caller.DeferredEvent) {
	h.mu.Lock()
	h.deferred[d.ID()] = d
	h.mu.Unlock()

	go func() {
		<-d.Done()
		h.mu.Lock()
		delete(h.deferred, d.ID())
		h.mu.Unlock()
	}()
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "control request failed", logger.Event(event), logger.Error(err))
	} else {
		h.logger.DebugContext(r.Context(), "control request rejected", logger.Event(event), logger.Error(err))
	}
	writeError(w, status, err)
}

func (h *Handler) snapshot() snapshot {
	return snapshot{
		Machine:         h.caller.Name(),
		State:           h.caller.State(),
		Settled:         h.caller.Settled(),
		Substate:        h.caller.Substate(),
		Pending:         h.caller.Pending(),
		PendingDeferred: h.caller.PendingDeferred(),
	}
}
