// internal/core/server/http.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/bigcats-cc/email-sieve/internal/core/auth"
	"github.com/bigcats-cc/email-sieve/internal/core/db"
	"github.com/bigcats-cc/email-sieve/internal/core/pipeline"
	"github.com/bigcats-cc/email-sieve/internal/types"
)

/*
 * Admin HTTP API.
 *
 *   GET  /healthz                 liveness
 *   GET  /metrics                 Prometheus exposition
 *   POST /v1/route?from=&to=      dry-run decision for the raw message in the body
 *   GET  /v1/decisions?limit=N    journal, newest first (default 50)
 *   GET  /v1/decisions/counts     journal totals per action
 *   GET  /v1/decisions/{id}       one journal entry
 *
 * The decision endpoints answer 503 when no journal is configured.
 * With an authenticator set, every /v1 endpoint requires an API key.
 * Errors are JSON objects with a single "error" field.
 */

// defaultDecisionLimit applies when /v1/decisions has no limit parameter.
const defaultDecisionLimit = 50

// DryRunner resolves decisions without side effects. *pipeline.Processor implements it.
type DryRunner interface {
	DryRun(in types.Inbound) (pipeline.Result, error)
}

// DecisionStore reads the decision journal. *db.Journal implements it.
type DecisionStore interface {
	Get(ctx context.Context, id types.DecisionID) (db.Decision, error)
	Recent(ctx context.Context, limit int) ([]db.Decision, error)
	CountByAction(ctx context.Context) ([]db.ActionCount, error)
}

// API serves the admin endpoints.
type API struct {
	router   DryRunner
	journal  DecisionStore
	maxBytes int64
	logger   logrus.FieldLogger
	auth     *auth.Authenticator
}

// NewAPI returns the admin API. journal may be nil.
func NewAPI(router DryRunner, journal DecisionStore, maxBytes int64, logger logrus.FieldLogger) *API {
	return &API{router: router, journal: journal, maxBytes: maxBytes, logger: logger}
}

// RequireKeys protects the /v1 endpoints with authn.
func (a *API) RequireKeys(authn *auth.Authenticator) *API {
	a.auth = authn
	return a
}

// Handler returns the chi router for the API.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if a.auth != nil {
			r.Use(a.auth.Middleware)
		}
		r.Post("/route", a.route)
		r.Get("/decisions", a.listDecisions)
		r.Get("/decisions/counts", a.countDecisions)
		r.Get("/decisions/{id}", a.getDecision)
	})
	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.WithFields(logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"bytes":     ww.BytesWritten(),
			"duration":  time.Since(start).String(),
			"requestId": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

func (a *API) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) route(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if to == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing to parameter"))
		return
	}

	body := io.Reader(r.Body)
	if a.maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, a.maxBytes)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, types.ErrMessageTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := a.router.DryRun(types.Inbound{From: from, To: to, Raw: raw})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrMalformedMessage) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) listDecisions(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("decision journal disabled"))
		return
	}

	limit := defaultDecisionLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", s))
			return
		}
		limit = n
	}

	decisions, err := a.journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, decisions)
}

func (a *API) countDecisions(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("decision journal disabled"))
		return
	}
	counts, err := a.journal.CountByAction(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (a *API) getDecision(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("decision journal disabled"))
		return
	}
	id, err := types.ParseDecisionID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid decision id: %w", err))
		return
	}

	d, err := a.journal.Get(r.Context(), id)
	if errors.Is(err, db.ErrDecisionNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// HTTPServer runs the admin API.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer binds handler to addr.
func NewHTTPServer(addr string, handler http.Handler) *HTTPServer {
	return &HTTPServer{server: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start listens and serves until Shutdown. Returns nil after Shutdown.
func (s *HTTPServer) Start(ctx context.Context) error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.server.Addr, err)
	}
	if err := s.server.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains open requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
