// internal/store/aggregates.go
package store

import (
	"context"
	"database/sql"

	apperrors "certificate-service/internal/common/errors"
	"certificate-service/internal/common/logger"
	"certificate-service/internal/models"
)

// AggregateStore persists the per-user counters. All mutations are SQL
// arithmetic against the stored value so concurrent transactions serialize
// on the row instead of overwriting each other.
type AggregateStore struct {
	logger logger.Logger
}

func NewAggregateStore(log logger.Logger) *AggregateStore {
	return &AggregateStore{logger: log}
}

// EnsureWithPending creates the aggregate row on first submission or, when
// it already exists, increments its pending counter in place.
func (s *AggregateStore) EnsureWithPending(ctx context.Context, q Querier, userID, email, displayName string) error {
	query := `
		INSERT INTO user_aggregates (user_id, email, display_name, pending_count, signed_count, rejected_count)
		VALUES ($1, $2, $3, 1, 0, 0)
		ON CONFLICT (user_id) DO UPDATE
		SET pending_count = user_aggregates.pending_count + 1`

	if _, err := q.ExecContext(ctx, query, userID, email, displayName); err != nil {
		return apperrors.NewStorageError("upsert user aggregate", err)
	}

	return nil
}

// ApplyDelta shifts the counters by the given amounts. A transition always
// moves exactly one unit between two counters, so the deltas sum to zero
// except on deletion where only the pending counter drops.
func (s *AggregateStore) ApplyDelta(ctx context.Context, q Querier, userID string, pending, signed, rejected int) error {
	query := `
		UPDATE user_aggregates
		SET pending_count = pending_count + $1,
		    signed_count = signed_count + $2,
		    rejected_count = rejected_count + $3
		WHERE user_id = $4`

	res, err := q.ExecContext(ctx, query, pending, signed, rejected, userID)
	if err != nil {
		return apperrors.NewStorageError("apply aggregate delta", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewStorageError("read rows affected", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("user_aggregate", userID)
	}

	return nil
}

// Get fetches one user's aggregate.
func (s *AggregateStore) Get(ctx context.Context, q Querier, userID string) (*models.UserAggregate, error) {
	query := `
		SELECT user_id, email, display_name, pending_count, signed_count, rejected_count, created_at
		FROM user_aggregates
		WHERE user_id = $1`

	var agg models.UserAggregate
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&agg.UserID, &agg.Email, &agg.DisplayName,
		&agg.PendingCount, &agg.SignedCount, &agg.RejectedCount,
		&agg.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("user_aggregate", userID)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("get user aggregate", err)
	}

	return &agg, nil
}

// List returns every user aggregate ordered by display name, used by the
// admin overview.
func (s *AggregateStore) List(ctx context.Context, q Querier) ([]models.UserAggregate, error) {
	query := `
		SELECT user_id, email, display_name, pending_count, signed_count, rejected_count, created_at
		FROM user_aggregates
		ORDER BY display_name ASC, user_id ASC`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.NewStorageError("list user aggregates", err)
	}
	defer rows.Close()

	aggregates := []models.UserAggregate{}
	for rows.Next() {
		var agg models.UserAggregate
		err := rows.Scan(
			&agg.UserID, &agg.Email, &agg.DisplayName,
			&agg.PendingCount, &agg.SignedCount, &agg.RejectedCount,
			&agg.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.NewStorageError("scan aggregate row", err)
		}
		aggregates = append(aggregates, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("iterate aggregate rows", err)
	}

	return aggregates, nil
}
