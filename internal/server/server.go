// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"certificate-service/internal/common/logger"
	"certificate-service/internal/common/metrics"
	"certificate-service/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lifecycle is the mutation surface the handlers need from the engine.
type Lifecycle interface {
	Submit(ctx context.Context, actor models.Actor, payload models.RequestPayload) (*models.Request, error)
	ApproveAndSign(ctx context.Context, actor models.Actor, requestID string) (*models.Request, error)
	Reject(ctx context.Context, actor models.Actor, requestID string) (*models.Request, error)
	DeleteOwn(ctx context.Context, actor models.Actor, requestID string) error
	SelectTemplate(ctx context.Context, actor models.Actor, fileName string) error
	ClearTemplate(ctx context.Context, actor models.Actor) error
}

// Queries is the read surface the handlers need.
type Queries interface {
	ListPending(ctx context.Context, actor models.Actor) ([]models.Request, error)
	ListForUser(ctx context.Context, actor models.Actor, userID string) ([]models.Request, error)
	ListRecentReviewed(ctx context.Context, actor models.Actor, limit int) ([]models.Request, error)
	GetRequest(ctx context.Context, actor models.Actor, requestID string) (*models.Request, error)
	GetAggregate(ctx context.Context, actor models.Actor, userID string) (*models.UserAggregate, error)
	ListAggregates(ctx context.Context, actor models.Actor) ([]models.UserAggregate, error)
	ListTemplates(ctx context.Context, actor models.Actor) ([]models.Template, error)
	GetSelectedTemplate(ctx context.Context, actor models.Actor) (string, error)
}

// Pinger reports backend liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the HTTP routes to the lifecycle engine and query service.
type Server struct {
	lifecycle Lifecycle
	queries   Queries
	db        Pinger
	logger    logger.Logger
}

func New(lc Lifecycle, q Queries, db Pinger, log logger.Logger) *Server {
	return &Server{lifecycle: lc, queries: q, db: db, logger: log}
}

// Routes builds the full request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/requests", s.handleSubmit)
	mux.HandleFunc("GET /api/requests/pending", s.handleListPending)
	mux.HandleFunc("GET /api/requests/reviewed", s.handleListReviewed)
	mux.HandleFunc("GET /api/requests/{id}", s.handleGetRequest)
	mux.HandleFunc("DELETE /api/requests/{id}", s.handleDeleteRequest)
	mux.HandleFunc("POST /api/requests/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/requests/{id}/reject", s.handleReject)

	mux.HandleFunc("GET /api/users/{id}/requests", s.handleListUserRequests)
	mux.HandleFunc("GET /api/users/{id}/aggregate", s.handleGetAggregate)
	mux.HandleFunc("GET /api/users", s.handleListAggregates)

	mux.HandleFunc("GET /api/templates", s.handleListTemplates)
	mux.HandleFunc("GET /api/templates/selected", s.handleGetSelectedTemplate)
	mux.HandleFunc("PUT /api/templates/selected", s.handleSelectTemplate)
	mux.HandleFunc("DELETE /api/templates/selected", s.handleClearTemplate)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.withObservability(mux)
}

// withObservability logs every request and records HTTP metrics.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		pattern := r.Pattern
		if pattern == "" {
			pattern = r.URL.Path
		}

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(duration.Seconds())

		s.logger.Info("http request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": duration.Milliseconds(),
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
