// internal/models/user.go
package models

import "time"

// UserAggregate holds the denormalized per-user counters mirroring the
// status distribution of that user's requests. Counters move only through
// atomic deltas applied by the lifecycle engine; the aggregate is never
// overwritten wholesale.
type UserAggregate struct {
	UserID        string    `json:"userId"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName"`
	PendingCount  int       `json:"pendingCount"`
	SignedCount   int       `json:"signedCount"`
	RejectedCount int       `json:"rejectedCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Total returns the counter sum, which must equal the number of requests
// the user owns once all in-flight transitions have completed.
func (a UserAggregate) Total() int {
	return a.PendingCount + a.SignedCount + a.RejectedCount
}
