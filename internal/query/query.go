// internal/query/query.go
package query

import (
	"context"
	"database/sql"

	apperrors "certificate-service/internal/common/errors"
	"certificate-service/internal/common/logger"
	"certificate-service/internal/models"
	"certificate-service/internal/store"
)

// DefaultReviewedLimit caps the reviewed-requests listing when the caller
// does not ask for a specific size.
const DefaultReviewedLimit = 20

// Service answers read-only questions about requests, aggregates and
// templates. It never mutates state; every write goes through the
// lifecycle engine.
type Service struct {
	db         *sql.DB
	requests   *store.RequestStore
	aggregates *store.AggregateStore
	templates  *store.TemplateStore
	logger     logger.Logger
}

func NewService(
	db *sql.DB,
	requests *store.RequestStore,
	aggregates *store.AggregateStore,
	templates *store.TemplateStore,
	log logger.Logger,
) *Service {
	return &Service{
		db:         db,
		requests:   requests,
		aggregates: aggregates,
		templates:  templates,
		logger:     log,
	}
}

// ListPending returns the review queue, oldest submission first.
func (s *Service) ListPending(ctx context.Context, actor models.Actor) ([]models.Request, error) {
	if !actor.Admin {
		return nil, apperrors.NewPermissionError("only admins can list pending requests")
	}
	return s.requests.ListPending(ctx, s.db)
}

// ListForUser returns a user's own requests, newest first. Admins may read
// any user's list.
func (s *Service) ListForUser(ctx context.Context, actor models.Actor, userID string) ([]models.Request, error) {
	if userID == "" {
		userID = actor.UserID
	}
	if userID != actor.UserID && !actor.Admin {
		return nil, apperrors.NewPermissionError("cannot list another user's requests")
	}
	return s.requests.ListForUser(ctx, s.db, userID)
}

// ListRecentReviewed returns the latest requests that left the pending
// state, newest first.
func (s *Service) ListRecentReviewed(ctx context.Context, actor models.Actor, limit int) ([]models.Request, error) {
	if !actor.Admin {
		return nil, apperrors.NewPermissionError("only admins can list reviewed requests")
	}
	if limit <= 0 {
		limit = DefaultReviewedLimit
	}
	return s.requests.ListRecentReviewed(ctx, s.db, limit)
}

// GetRequest returns one request, visible to its owner and to admins.
func (s *Service) GetRequest(ctx context.Context, actor models.Actor, requestID string) (*models.Request, error) {
	req, err := s.requests.GetByID(ctx, s.db, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actor.UserID && !actor.Admin {
		return nil, apperrors.NewPermissionError("cannot read another user's request")
	}
	return req, nil
}

// GetAggregate returns a user's counters, visible to that user and admins.
func (s *Service) GetAggregate(ctx context.Context, actor models.Actor, userID string) (*models.UserAggregate, error) {
	if userID == "" {
		userID = actor.UserID
	}
	if userID != actor.UserID && !actor.Admin {
		return nil, apperrors.NewPermissionError("cannot read another user's counters")
	}
	return s.aggregates.Get(ctx, s.db, userID)
}

// ListAggregates returns the admin overview of every user's counters.
func (s *Service) ListAggregates(ctx context.Context, actor models.Actor) ([]models.UserAggregate, error) {
	if !actor.Admin {
		return nil, apperrors.NewPermissionError("only admins can list user counters")
	}
	return s.aggregates.List(ctx, s.db)
}

// ListTemplates returns the registered certificate templates.
func (s *Service) ListTemplates(ctx context.Context, actor models.Actor) ([]models.Template, error) {
	if !actor.Admin {
		return nil, apperrors.NewPermissionError("only admins can list templates")
	}
	return s.templates.ListTemplates(ctx, s.db)
}

// GetSelectedTemplate returns the template file used for approvals.
func (s *Service) GetSelectedTemplate(ctx context.Context, actor models.Actor) (string, error) {
	if !actor.Admin {
		return "", apperrors.NewPermissionError("only admins can read the selected template")
	}
	return s.templates.GetSelected(ctx, s.db)
}

// FilterByStatus keeps the requests matching status. "all" and the empty
// string return the input unchanged.
func FilterByStatus(requests []models.Request, status string) []models.Request {
	if status == "" || status == "all" {
		return requests
	}

	filtered := []models.Request{}
	for _, r := range requests {
		if string(r.Status) == status {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// CountByStatus tallies requests per status.
func CountByStatus(requests []models.Request) map[models.Status]int {
	counts := map[models.Status]int{}
	for _, r := range requests {
		counts[r.Status]++
	}
	return counts
}
