// internal/lifecycle/engine.go
package lifecycle

import (
	"context"
	"database/sql"
	"time"

	apperrors "certificate-service/internal/common/errors"
	"certificate-service/internal/common/logger"
	"certificate-service/internal/common/metrics"
	"certificate-service/internal/models"
	"certificate-service/internal/signing"
	"certificate-service/internal/store"

	"github.com/google/uuid"
)

// ==========================
// LIFECYCLE ENGINE
// ==========================

// Engine owns every state transition of a certificate request. Each
// transition flips the request status and adjusts the owner's counters in
// the same database transaction, so the aggregates can never drift from the
// requests they summarize.
type Engine struct {
	db         *sql.DB
	requests   *store.RequestStore
	aggregates *store.AggregateStore
	templates  *store.TemplateStore
	signer     signing.Signer
	logger     logger.Logger

	now   func() time.Time
	newID func() string
}

func NewEngine(
	db *sql.DB,
	requests *store.RequestStore,
	aggregates *store.AggregateStore,
	templates *store.TemplateStore,
	signer signing.Signer,
	log logger.Logger,
) *Engine {
	return &Engine{
		db:         db,
		requests:   requests,
		aggregates: aggregates,
		templates:  templates,
		signer:     signer,
		logger:     log,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Submit validates the payload and creates a pending request together with
// the owner's counter increment.
func (e *Engine) Submit(ctx context.Context, actor models.Actor, payload models.RequestPayload) (*models.Request, error) {
	start := time.Now()

	req, err := e.submit(ctx, actor, payload)
	e.record("submit", start, err)
	return req, err
}

func (e *Engine) submit(ctx context.Context, actor models.Actor, payload models.RequestPayload) (*models.Request, error) {
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}
	if err := ValidatePayload(&payload); err != nil {
		return nil, err
	}

	req := &models.Request{
		ID:             e.newID(),
		RequesterID:    actor.UserID,
		RequesterEmail: actor.Email,
		RequesterName:  actor.Name,
		Payload:        payload,
		Status:         models.StatusPending,
		CreatedAt:      e.now().UTC(),
	}

	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.requests.Create(ctx, tx, req); err != nil {
			return err
		}
		return e.aggregates.EnsureWithPending(ctx, tx, actor.UserID, actor.Email, actor.Name)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("request submitted", map[string]interface{}{
		"request_id": req.ID,
		"user_id":    actor.UserID,
		"purpose":    payload.PurposeCode,
	})

	return req, nil
}

// ApproveAndSign obtains a signed document from the signing service, then
// flips the request to signed and moves one unit from the owner's pending
// counter to the signed counter. The signing call happens strictly before
// any local write; a signing failure leaves the request untouched.
func (e *Engine) ApproveAndSign(ctx context.Context, actor models.Actor, requestID string) (*models.Request, error) {
	start := time.Now()

	req, err := e.approveAndSign(ctx, actor, requestID)
	e.record("approve", start, err)
	return req, err
}

func (e *Engine) approveAndSign(ctx context.Context, actor models.Actor, requestID string) (*models.Request, error) {
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}
	if !actor.Admin {
		return nil, apperrors.NewPermissionError("only admins can approve requests")
	}

	req, err := e.requests.GetByID(ctx, e.db, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusPending {
		return nil, apperrors.NewInvalidStateError(requestID, string(req.Status))
	}

	templateFile, err := e.templates.GetSelected(ctx, e.db)
	if err != nil {
		return nil, err
	}

	// No lock is held across this call. A concurrent transition is caught
	// by the conditional update below.
	result, err := e.signer.Sign(ctx, req, actor.Name, templateFile)
	if err != nil {
		return nil, err
	}

	signedAt := e.now().UTC()

	err = e.transition(ctx, requestID, func(tx *sql.Tx) (bool, error) {
		ok, err := e.requests.MarkSigned(ctx, tx, requestID, result.DocumentURL, actor.Name, signedAt)
		if err != nil || !ok {
			return ok, err
		}
		return true, e.aggregates.ApplyDelta(ctx, tx, req.RequesterID, -1, 1, 0)
	})
	if err != nil {
		return nil, err
	}

	req.Status = models.StatusSigned
	req.SignedDocumentURL = result.DocumentURL
	req.SignedAt = &signedAt
	req.SignedBy = actor.Name

	e.logger.Info("request approved and signed", map[string]interface{}{
		"request_id":   requestID,
		"signed_by":    actor.Name,
		"document_url": result.DocumentURL,
	})

	return req, nil
}

// Reject flips a pending request to rejected and moves one unit from the
// owner's pending counter to the rejected counter.
func (e *Engine) Reject(ctx context.Context, actor models.Actor, requestID string) (*models.Request, error) {
	start := time.Now()

	req, err := e.reject(ctx, actor, requestID)
	e.record("reject", start, err)
	return req, err
}

func (e *Engine) reject(ctx context.Context, actor models.Actor, requestID string) (*models.Request, error) {
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}
	if !actor.Admin {
		return nil, apperrors.NewPermissionError("only admins can reject requests")
	}

	req, err := e.requests.GetByID(ctx, e.db, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusPending {
		return nil, apperrors.NewInvalidStateError(requestID, string(req.Status))
	}

	err = e.transition(ctx, requestID, func(tx *sql.Tx) (bool, error) {
		ok, err := e.requests.MarkRejected(ctx, tx, requestID)
		if err != nil || !ok {
			return ok, err
		}
		return true, e.aggregates.ApplyDelta(ctx, tx, req.RequesterID, -1, 0, 1)
	})
	if err != nil {
		return nil, err
	}

	req.Status = models.StatusRejected

	e.logger.Info("request rejected", map[string]interface{}{
		"request_id": requestID,
		"user_id":    req.RequesterID,
	})

	return req, nil
}

// DeleteOwn removes a pending request belonging to the actor and decrements
// the owner's pending counter. Nobody else can delete it, admins included.
func (e *Engine) DeleteOwn(ctx context.Context, actor models.Actor, requestID string) error {
	start := time.Now()

	err := e.deleteOwn(ctx, actor, requestID)
	e.record("delete", start, err)
	return err
}

func (e *Engine) deleteOwn(ctx context.Context, actor models.Actor, requestID string) error {
	if err := ValidateActor(actor); err != nil {
		return err
	}

	req, err := e.requests.GetByID(ctx, e.db, requestID)
	if err != nil {
		return err
	}
	if req.RequesterID != actor.UserID {
		return apperrors.NewPermissionError("requests can only be deleted by their owner")
	}
	if req.Status != models.StatusPending {
		return apperrors.NewInvalidStateError(requestID, string(req.Status))
	}

	err = e.transition(ctx, requestID, func(tx *sql.Tx) (bool, error) {
		ok, err := e.requests.DeletePending(ctx, tx, requestID)
		if err != nil || !ok {
			return ok, err
		}
		return true, e.aggregates.ApplyDelta(ctx, tx, req.RequesterID, -1, 0, 0)
	})
	if err != nil {
		return err
	}

	e.logger.Info("request deleted", map[string]interface{}{
		"request_id": requestID,
		"user_id":    actor.UserID,
	})

	return nil
}

// SelectTemplate stores the template file used for subsequent approvals.
// The file must be present in the template registry.
func (e *Engine) SelectTemplate(ctx context.Context, actor models.Actor, fileName string) error {
	if err := ValidateActor(actor); err != nil {
		return err
	}
	if !actor.Admin {
		return apperrors.NewPermissionError("only admins can select templates")
	}

	registered, err := e.templates.ListTemplates(ctx, e.db)
	if err != nil {
		return err
	}

	known := false
	for _, t := range registered {
		if t.FileName == fileName {
			known = true
			break
		}
	}
	if !known {
		return apperrors.NewValidationError("unknown template: " + fileName)
	}

	if err := e.templates.SetSelected(ctx, e.db, fileName); err != nil {
		return err
	}

	e.logger.Info("template selected", map[string]interface{}{
		"template": fileName,
		"user_id":  actor.UserID,
	})

	return nil
}

// ClearTemplate drops the template selection; approvals fall back to the
// configured default.
func (e *Engine) ClearTemplate(ctx context.Context, actor models.Actor) error {
	if err := ValidateActor(actor); err != nil {
		return err
	}
	if !actor.Admin {
		return apperrors.NewPermissionError("only admins can clear the template selection")
	}

	if err := e.templates.ClearSelected(ctx, e.db); err != nil {
		return err
	}

	e.logger.Info("template selection cleared", map[string]interface{}{
		"user_id": actor.UserID,
	})

	return nil
}

// transition runs fn inside a transaction. fn returns false when the
// conditional update matched no row, meaning the request left the pending
// state between our read and the write. The request is re-read to learn the
// state it actually reached; a re-read that still shows pending means a
// transient conflict, retried exactly once before surfacing the error.
func (e *Engine) transition(ctx context.Context, requestID string, fn func(tx *sql.Tx) (bool, error)) error {
	for attempt := 0; ; attempt++ {
		var lostRace bool

		err := e.inTx(ctx, func(tx *sql.Tx) error {
			ok, err := fn(tx)
			if err != nil {
				return err
			}
			lostRace = !ok
			return nil
		})
		if err != nil {
			return err
		}
		if !lostRace {
			return nil
		}

		current, err := e.requests.GetByID(ctx, e.db, requestID)
		if err != nil {
			return err
		}
		if current.Status == models.StatusPending && attempt == 0 {
			continue
		}
		return apperrors.NewInvalidStateError(requestID, string(current.Status))
	}
}

func (e *Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("begin transaction", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("commit transaction", err)
	}

	return nil
}

func (e *Engine) record(operation string, start time.Time, err error) {
	metrics.TransitionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TransitionFailuresTotal.WithLabelValues(operation, string(apperrors.CodeOf(err))).Inc()
		return
	}
	metrics.TransitionsTotal.WithLabelValues(operation).Inc()
}
