// internal/store/requests.go
package store

import (
	"context"
	"database/sql"
	"time"

	apperrors "certificate-service/internal/common/errors"
	"certificate-service/internal/common/logger"
	"certificate-service/internal/models"
)

// requestColumns is the column list shared by every SELECT on requests.
const requestColumns = `id, requester_id, requester_email, requester_name,
	full_name, cnp, faculty, specialization, study_year, study_mode,
	funding, student_status, purpose_code, other_reason,
	status, signed_document_url, signed_at, signed_by, created_at`

// RequestStore persists certificate requests.
type RequestStore struct {
	logger logger.Logger
}

func NewRequestStore(log logger.Logger) *RequestStore {
	return &RequestStore{logger: log}
}

// Create inserts a new pending request.
func (s *RequestStore) Create(ctx context.Context, q Querier, req *models.Request) error {
	query := `
		INSERT INTO requests (
			id, requester_id, requester_email, requester_name,
			full_name, cnp, faculty, specialization, study_year, study_mode,
			funding, student_status, purpose_code, other_reason,
			status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := q.ExecContext(ctx, query,
		req.ID, req.RequesterID, req.RequesterEmail, req.RequesterName,
		req.Payload.FullName, req.Payload.CNP, req.Payload.Faculty,
		req.Payload.Specialization, req.Payload.StudyYear, req.Payload.StudyMode,
		req.Payload.Funding, req.Payload.StudentStatus, req.Payload.PurposeCode,
		req.Payload.OtherReason, req.Status, req.CreatedAt,
	)
	if err != nil {
		return apperrors.NewStorageError("insert request", err)
	}

	return nil
}

// GetByID fetches a single request by its identifier.
func (s *RequestStore) GetByID(ctx context.Context, q Querier, id string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`

	req, err := scanRequest(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("request", id)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("get request", err)
	}

	return req, nil
}

// MarkSigned flips a pending request to signed and records the signing
// outcome. Returns false when the request was no longer pending, which the
// caller treats as a lost race.
func (s *RequestStore) MarkSigned(ctx context.Context, q Querier, id, documentURL, signedBy string, signedAt time.Time) (bool, error) {
	query := `
		UPDATE requests
		SET status = $1, signed_document_url = $2, signed_by = $3, signed_at = $4
		WHERE id = $5 AND status = $6`

	res, err := q.ExecContext(ctx, query,
		models.StatusSigned, documentURL, signedBy, signedAt,
		id, models.StatusPending,
	)
	if err != nil {
		return false, apperrors.NewStorageError("mark request signed", err)
	}

	return oneRowAffected(res)
}

// MarkRejected flips a pending request to rejected. Returns false when the
// request was no longer pending.
func (s *RequestStore) MarkRejected(ctx context.Context, q Querier, id string) (bool, error) {
	query := `
		UPDATE requests
		SET status = $1
		WHERE id = $2 AND status = $3`

	res, err := q.ExecContext(ctx, query, models.StatusRejected, id, models.StatusPending)
	if err != nil {
		return false, apperrors.NewStorageError("mark request rejected", err)
	}

	return oneRowAffected(res)
}

// DeletePending removes a request that is still pending. Returns false when
// the request was no longer pending.
func (s *RequestStore) DeletePending(ctx context.Context, q Querier, id string) (bool, error) {
	query := `DELETE FROM requests WHERE id = $1 AND status = $2`

	res, err := q.ExecContext(ctx, query, id, models.StatusPending)
	if err != nil {
		return false, apperrors.NewStorageError("delete pending request", err)
	}

	return oneRowAffected(res)
}

// ListPending returns every pending request, oldest first.
func (s *RequestStore) ListPending(ctx context.Context, q Querier) ([]models.Request, error) {
	query := `SELECT ` + requestColumns + `
		FROM requests
		WHERE status = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, models.StatusPending)
	if err != nil {
		return nil, apperrors.NewStorageError("list pending requests", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// ListForUser returns every request owned by a user, newest first.
func (s *RequestStore) ListForUser(ctx context.Context, q Querier, userID string) ([]models.Request, error) {
	query := `SELECT ` + requestColumns + `
		FROM requests
		WHERE requester_id = $1
		ORDER BY created_at DESC, id ASC`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, apperrors.NewStorageError("list user requests", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// ListRecentReviewed returns the most recently created requests that have
// left the pending state, newest first, capped at limit.
func (s *RequestStore) ListRecentReviewed(ctx context.Context, q Querier, limit int) ([]models.Request, error) {
	query := `SELECT ` + requestColumns + `
		FROM requests
		WHERE status != $1
		ORDER BY created_at DESC, id ASC
		LIMIT $2`

	rows, err := q.QueryContext(ctx, query, models.StatusPending, limit)
	if err != nil {
		return nil, apperrors.NewStorageError("list reviewed requests", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		req         models.Request
		documentURL sql.NullString
		signedAt    sql.NullTime
		signedBy    sql.NullString
	)

	err := row.Scan(
		&req.ID, &req.RequesterID, &req.RequesterEmail, &req.RequesterName,
		&req.Payload.FullName, &req.Payload.CNP, &req.Payload.Faculty,
		&req.Payload.Specialization, &req.Payload.StudyYear, &req.Payload.StudyMode,
		&req.Payload.Funding, &req.Payload.StudentStatus, &req.Payload.PurposeCode,
		&req.Payload.OtherReason,
		&req.Status, &documentURL, &signedAt, &signedBy, &req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if documentURL.Valid {
		req.SignedDocumentURL = documentURL.String
	}
	if signedAt.Valid {
		t := signedAt.Time
		req.SignedAt = &t
	}
	if signedBy.Valid {
		req.SignedBy = signedBy.String
	}

	return &req, nil
}

func scanRequests(rows *sql.Rows) ([]models.Request, error) {
	requests := []models.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("scan request row", err)
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("iterate request rows", err)
	}
	return requests, nil
}

func oneRowAffected(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewStorageError("read rows affected", err)
	}
	return affected == 1, nil
}
