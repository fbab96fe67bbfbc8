package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"cdr.dev/slog/v3"
	filedelivery "github.com/bnema/presence-tracker/internal/adapters/delivery/file"
	"github.com/bnema/presence-tracker/internal/application"
	"github.com/bnema/presence-tracker/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the command surface served over HTTP.
type Engine interface {
	Subscribe(ctx context.Context, id domain.EntityID) (application.SubscribeResult, error)
	Unsubscribe(ctx context.Context, id domain.EntityID) (bool, error)
	StartWeeklyReport(ctx context.Context, dest domain.Destination) error
	StopWeeklyReport(ctx context.Context) error
	PreviewReport() application.Report
	GetAnalytics(ctx context.Context, id domain.EntityID) (application.Analytics, error)
	DeliverAnalytics(ctx context.Context, id domain.EntityID, dest domain.Destination) (int, error)
	Status() application.Status
}

type Response struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

type API struct {
	engine   Engine
	gatherer prometheus.Gatherer
	logger   slog.Logger
	fileRoot string
}

type Option func(*API)

// WithFileRoot accepts file:// destinations only inside root. Without it the
// API rejects every file destination.
func WithFileRoot(root string) Option {
	return func(a *API) {
		if root != "" {
			a.fileRoot = filepath.Clean(root)
		}
	}
}

// New builds the API. It has no authentication of its own and is meant to
// listen on loopback.
func New(engine Engine, gatherer prometheus.Gatherer, logger slog.Logger, opts ...Option) *API {
	a := &API{engine: engine, gatherer: gatherer, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, a.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		write(r.Context(), w, http.StatusOK, Response{Message: "ok"})
	})
	if a.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", a.status)
		r.Post("/subscriptions/{id}", a.subscribe)
		r.Delete("/subscriptions/{id}", a.unsubscribe)
		r.Post("/report", a.startReport)
		r.Delete("/report", a.stopReport)
		r.Get("/report/preview", a.previewReport)
		r.Get("/analytics/{id}", a.analytics)
		r.Post("/analytics/{id}/deliver", a.deliverAnalytics)
	})
	return r
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Debug(r.Context(), "http request",
			slog.F("method", r.Method),
			slog.F("path", r.URL.Path),
			slog.F("status", ww.Status()),
			slog.F("duration", time.Since(start).String()),
			slog.F("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type subscribeResponse struct {
	EntityID domain.EntityID             `json:"entity_id"`
	Result   application.SubscribeResult `json:"result"`
}

func (a *API) subscribe(w http.ResponseWriter, r *http.Request) {
	id := domain.EntityID(chi.URLParam(r, "id"))
	result, err := a.engine.Subscribe(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if result == application.SubscribeAdded {
		code = http.StatusCreated
	}
	write(r.Context(), w, code, subscribeResponse{EntityID: id.Normalize(), Result: result})
}

type unsubscribeResponse struct {
	EntityID domain.EntityID `json:"entity_id"`
	Removed  bool            `json:"removed"`
}

func (a *API) unsubscribe(w http.ResponseWriter, r *http.Request) {
	id := domain.EntityID(chi.URLParam(r, "id"))
	removed, err := a.engine.Unsubscribe(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	write(r.Context(), w, http.StatusOK, unsubscribeResponse{EntityID: id.Normalize(), Removed: removed})
}

type destinationRequest struct {
	Destination domain.Destination `json:"destination"`
}

func (a *API) startReport(w http.ResponseWriter, r *http.Request) {
	var req destinationRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := a.checkDestination(req.Destination); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.engine.StartWeeklyReport(r.Context(), req.Destination); err != nil {
		a.writeError(w, r, err)
		return
	}
	write(r.Context(), w, http.StatusAccepted, Response{Message: "Weekly report started."})
}

func (a *API) stopReport(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.StopWeeklyReport(r.Context()); err != nil {
		a.writeError(w, r, err)
		return
	}
	write(r.Context(), w, http.StatusOK, Response{Message: "Weekly report stopped."})
}

func (a *API) previewReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(a.engine.PreviewReport().Text()))
}

func (a *API) analytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := a.engine.GetAnalytics(r.Context(), domain.EntityID(chi.URLParam(r, "id")))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	write(r.Context(), w, http.StatusOK, NewAnalyticsResponse(analytics))
}

type deliverResponse struct {
	Delivered int `json:"delivered"`
}

func (a *API) deliverAnalytics(w http.ResponseWriter, r *http.Request) {
	var req destinationRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := a.checkDestination(req.Destination); err != nil {
		a.writeError(w, r, err)
		return
	}
	n, err := a.engine.DeliverAnalytics(r.Context(), domain.EntityID(chi.URLParam(r, "id")), req.Destination)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	write(r.Context(), w, http.StatusOK, deliverResponse{Delivered: n})
}

func (a *API) checkDestination(dest domain.Destination) error {
	parsed, err := url.Parse(strings.TrimSpace(string(dest)))
	if err != nil || parsed.Scheme != "file" {
		return nil
	}
	if a.fileRoot == "" {
		return fmt.Errorf("%w: file destinations are not accepted over HTTP", domain.ErrInvalidDestination)
	}
	dir, err := filedelivery.DirFromDestination(dest)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(a.fileRoot, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: file destination must be inside %s", domain.ErrInvalidDestination, a.fileRoot)
	}
	return nil
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	write(r.Context(), w, http.StatusOK, NewStatusResponse(a.engine.Status()))
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNoData):
		write(r.Context(), w, http.StatusNotFound, Response{Message: "No data available for analysis.", Code: "no_data"})
	case errors.Is(err, domain.ErrNoDestination), errors.Is(err, domain.ErrInvalidDestination):
		write(r.Context(), w, http.StatusBadRequest, Response{Message: "Invalid destination.", Code: "invalid_destination", Detail: err.Error()})
	case errors.Is(err, application.ErrEmptyEntityID):
		write(r.Context(), w, http.StatusBadRequest, Response{Message: "Entity id is required.", Code: "invalid_entity"})
	default:
		a.logger.Error(r.Context(), "request failed", slog.F("path", r.URL.Path), slog.Error(err))
		write(r.Context(), w, http.StatusInternalServerError, Response{Message: "Internal error.", Detail: err.Error()})
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		write(r.Context(), w, http.StatusBadRequest, Response{Message: "Request body is not valid JSON.", Code: "bad_request", Detail: err.Error()})
		return false
	}
	return true
}

func write(_ context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
}
