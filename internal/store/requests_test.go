// internal/store/requests_test.go
package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	apperrors "certificate-service/internal/common/errors"
	"certificate-service/internal/common/logger"
	"certificate-service/internal/models"
)

func newTestRequest() *models.Request {
	return &models.Request{
		ID:             "req-1",
		RequesterID:    "user-1",
		RequesterEmail: "ana@example.com",
		RequesterName:  "Ana Pop",
		Payload: models.RequestPayload{
			FullName:       "Ana Pop",
			CNP:            "2980101123456",
			Faculty:        "Automatica si Calculatoare",
			Specialization: "Calculatoare",
			StudyYear:      "3",
			StudyMode:      "zi",
			Funding:        "buget",
			StudentStatus:  "activ",
			PurposeCode:    models.PurposeTransport,
		},
		Status:    models.StatusPending,
		CreatedAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func requestRows(reqs ...*models.Request) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "requester_id", "requester_email", "requester_name",
		"full_name", "cnp", "faculty", "specialization", "study_year", "study_mode",
		"funding", "student_status", "purpose_code", "other_reason",
		"status", "signed_document_url", "signed_at", "signed_by", "created_at",
	})
	for _, r := range reqs {
		rows.AddRow(
			r.ID, r.RequesterID, r.RequesterEmail, r.RequesterName,
			r.Payload.FullName, r.Payload.CNP, r.Payload.Faculty,
			r.Payload.Specialization, r.Payload.StudyYear, r.Payload.StudyMode,
			r.Payload.Funding, r.Payload.StudentStatus, r.Payload.PurposeCode,
			r.Payload.OtherReason,
			r.Status, r.SignedDocumentURL, r.SignedAt, r.SignedBy, r.CreatedAt,
		)
	}
	return rows
}

func TestRequestStoreCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	req := newTestRequest()

	mock.ExpectExec("INSERT INTO requests").
		WithArgs(
			req.ID, req.RequesterID, req.RequesterEmail, req.RequesterName,
			req.Payload.FullName, req.Payload.CNP, req.Payload.Faculty,
			req.Payload.Specialization, req.Payload.StudyYear, req.Payload.StudyMode,
			req.Payload.Funding, req.Payload.StudentStatus, req.Payload.PurposeCode,
			req.Payload.OtherReason, req.Status, req.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s := NewRequestStore(logger.NewNoOpLogger())
	err = s.Create(context.Background(), db, req)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	req := newTestRequest()

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs(req.ID).
		WillReturnRows(requestRows(req))

	s := NewRequestStore(logger.NewNoOpLogger())
	got, err := s.GetByID(context.Background(), db, req.ID)

	assert.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, req.Payload.CNP, got.Payload.CNP)
	assert.Nil(t, got.SignedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("missing").
		WillReturnRows(requestRows())

	s := NewRequestStore(logger.NewNoOpLogger())
	got, err := s.GetByID(context.Background(), db, "missing")

	assert.Nil(t, got)
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreMarkSigned(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	signedAt := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE requests").
		WithArgs(models.StatusSigned, "https://docs.example.com/req-1.pdf", "Prof. Ionescu", signedAt, "req-1", models.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewRequestStore(logger.NewNoOpLogger())
	ok, err := s.MarkSigned(context.Background(), db, "req-1", "https://docs.example.com/req-1.pdf", "Prof. Ionescu", signedAt)

	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreMarkSignedLostRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE requests").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := NewRequestStore(logger.NewNoOpLogger())
	ok, err := s.MarkSigned(context.Background(), db, "req-1", "url", "admin", time.Now())

	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreMarkRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE requests").
		WithArgs(models.StatusRejected, "req-1", models.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewRequestStore(logger.NewNoOpLogger())
	ok, err := s.MarkRejected(context.Background(), db, "req-1")

	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreDeletePending(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM requests").
		WithArgs("req-1", models.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewRequestStore(logger.NewNoOpLogger())
	ok, err := s.DeletePending(context.Background(), db, "req-1")

	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreListPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	first := newTestRequest()
	second := newTestRequest()
	second.ID = "req-2"
	second.CreatedAt = first.CreatedAt.Add(time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM requests").
		WithArgs(models.StatusPending).
		WillReturnRows(requestRows(first, second))

	s := NewRequestStore(logger.NewNoOpLogger())
	got, err := s.ListPending(context.Background(), db)

	assert.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "req-1", got[0].ID)
	assert.Equal(t, "req-2", got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestStoreListRecentReviewed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	signed := newTestRequest()
	signed.Status = models.StatusSigned
	signed.SignedDocumentURL = "https://docs.example.com/req-1.pdf"
	signedAt := signed.CreatedAt.Add(time.Hour)
	signed.SignedAt = &signedAt
	signed.SignedBy = "Prof. Ionescu"

	mock.ExpectQuery("SELECT (.+) FROM requests").
		WithArgs(models.StatusPending, 20).
		WillReturnRows(requestRows(signed))

	s := NewRequestStore(logger.NewNoOpLogger())
	got, err := s.ListRecentReviewed(context.Background(), db, 20)

	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, models.StatusSigned, got[0].Status)
	assert.Equal(t, "https://docs.example.com/req-1.pdf", got[0].SignedDocumentURL)
	assert.NotNil(t, got[0].SignedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
