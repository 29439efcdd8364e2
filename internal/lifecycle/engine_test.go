// internal/lifecycle/engine_test.go
package lifecycle

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"certificate-service/internal/common/config"
	apperrors "certificate-service/internal/common/errors"
	"certificate-service/internal/common/logger"
	"certificate-service/internal/models"
	"certificate-service/internal/signing"
	"certificate-service/internal/store"
)

type fakeSigner struct {
	result *signing.Result
	err    error

	calls        int
	gotSigner    string
	gotTemplate  string
	gotRequestID string
}

func (f *fakeSigner) Sign(ctx context.Context, req *models.Request, signerName, templateFile string) (*signing.Result, error) {
	f.calls++
	f.gotSigner = signerName
	f.gotTemplate = templateFile
	f.gotRequestID = req.ID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestEngine(t *testing.T, db *sql.DB, signer signing.Signer) *Engine {
	log := logger.NewNoOpLogger()
	tmplCfg := config.TemplateConfig{
		PathPrefix:   "templates/",
		DefaultPath:  "templates/adeverinta_template.docx",
		SettingsName: "default",
	}

	e := NewEngine(
		db,
		store.NewRequestStore(log),
		store.NewAggregateStore(log),
		store.NewTemplateStore(nil, tmplCfg, log),
		signer,
		log,
	)
	e.now = func() time.Time { return time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC) }
	e.newID = func() string { return "req-1" }
	return e
}

func validPayload() models.RequestPayload {
	return models.RequestPayload{
		FullName:       "Ana Pop",
		CNP:            "2980101123456",
		Faculty:        "Automatica si Calculatoare",
		Specialization: "Calculatoare",
		StudyYear:      "3",
		StudyMode:      "zi",
		Funding:        "buget",
		StudentStatus:  "activ",
		PurposeCode:    models.PurposeTransport,
	}
}

func memberActor() models.Actor {
	return models.Actor{UserID: "user-1", Email: "ana@example.com", Name: "Ana Pop"}
}

func adminActor() models.Actor {
	return models.Actor{UserID: "admin-1", Email: "admin@example.com", Name: "Prof. Ionescu", Admin: true}
}

func expectRequestRow(status models.Status, requesterID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "requester_id", "requester_email", "requester_name",
		"full_name", "cnp", "faculty", "specialization", "study_year", "study_mode",
		"funding", "student_status", "purpose_code", "other_reason",
		"status", "signed_document_url", "signed_at", "signed_by", "created_at",
	}).AddRow(
		"req-1", requesterID, "ana@example.com", "Ana Pop",
		"Ana Pop", "2980101123456", "Automatica si Calculatoare",
		"Calculatoare", "3", "zi",
		"buget", "activ", models.PurposeTransport, "",
		status, nil, nil, nil, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	)
}

// ==========================
// SUBMIT
// ==========================

func TestSubmitCreatesRequestAndIncrementsCounter(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO requests").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO user_aggregates").
		WithArgs("user-1", "ana@example.com", "Ana Pop").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	e := newTestEngine(t, db, &fakeSigner{})
	req, err := e.Submit(context.Background(), memberActor(), validPayload())

	assert.NoError(t, err)
	assert.Equal(t, "req-1", req.ID)
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, "user-1", req.RequesterID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRejectsIncompletePayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	payload := validPayload()
	payload.CNP = "   "

	e := newTestEngine(t, db, &fakeSigner{})
	req, err := e.Submit(context.Background(), memberActor(), payload)

	assert.Nil(t, req)
	assert.True(t, apperrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRollsBackWhenCounterUpdateFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO requests").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO user_aggregates").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	e := newTestEngine(t, db, &fakeSigner{})
	req, err := e.Submit(context.Background(), memberActor(), validPayload())

	assert.Nil(t, req)
	assert.True(t, apperrors.IsStorageError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// APPROVE AND SIGN
// ==========================

func TestApproveAndSignSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(expectRequestRow(models.StatusPending, "user-1"))
	mock.ExpectQuery("SELECT selected_template FROM template_settings").
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"selected_template"}).AddRow("adeverinta_sport.docx"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_aggregates").
		WithArgs(-1, 1, 0, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	signer := &fakeSigner{result: &signing.Result{DocumentURL: "https://docs.example.com/req-1.pdf"}}

	e := newTestEngine(t, db, signer)
	req, err := e.ApproveAndSign(context.Background(), adminActor(), "req-1")

	assert.NoError(t, err)
	assert.Equal(t, models.StatusSigned, req.Status)
	assert.Equal(t, "https://docs.example.com/req-1.pdf", req.SignedDocumentURL)
	assert.Equal(t, "Prof. Ionescu", req.SignedBy)
	assert.NotNil(t, req.SignedAt)

	assert.Equal(t, 1, signer.calls)
	assert.Equal(t, "adeverinta_sport.docx", signer.gotTemplate)
	assert.Equal(t, "Prof. Ionescu", signer.gotSigner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveAndSignRequiresAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	signer := &fakeSigner{}

	e := newTestEngine(t, db, signer)
	req, err := e.ApproveAndSign(context.Background(), memberActor(), "req-1")

	assert.Nil(t, req)
	assert.True(t, apperrors.IsPermission(err))
	assert.Zero(t, signer.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveAndSignAlreadySignedSkipsSigner(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(expectRequestRow(models.StatusSigned, "user-1"))

	signer := &fakeSigner{}

	e := newTestEngine(t, db, signer)
	req, err := e.ApproveAndSign(context.Background(), adminActor(), "req-1")

	assert.Nil(t, req)
	assert.True(t, apperrors.IsInvalidState(err))
	assert.Zero(t, signer.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveAndSignSigningFailureLeavesRequestUntouched(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(expectRequestRow(models.StatusPending, "user-1"))
	mock.ExpectQuery("SELECT selected_template FROM template_settings").
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"selected_template"}).AddRow("adeverinta_template.docx"))

	signer := &fakeSigner{err: apperrors.NewSigningServiceError(assert.AnError)}

	e := newTestEngine(t, db, signer)
	req, err := e.ApproveAndSign(context.Background(), adminActor(), "req-1")

	assert.Nil(t, req)
	assert.True(t, apperrors.IsSigningError(err))
	assert.Equal(t, 1, signer.calls)

	// No transaction was opened, so nothing local could have changed.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveAndSignLostRaceReportsCurrentState(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(expectRequestRow(models.StatusPending, "user-1"))
	mock.ExpectQuery("SELECT selected_template FROM template_settings").
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"selected_template"}).AddRow("adeverinta_template.docx"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(expectRequestRow(models.StatusRejected, "user-1"))

	signer := &fakeSigner{result: &signing.Result{DocumentURL: "https://docs.example.com/req-1.pdf"}}

	e := newTestEngine(t, db, signer)
	req, err := e.ApproveAndSign(context.Background(), adminActor(), "req-1")

	assert.Nil(t, req)
	assert.True(t, apperrors.IsInvalidState(err))
	assert.Contains(t, err.Error(), "rejected")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// REJECT
// ==========================

func TestRejectSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(expectRequestRow(models.StatusPending, "user-1"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests").
		WithArgs(models.StatusRejected, "req-1", models.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_aggregates").
		WithArgs(-1, 0, 1, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e := newTestEngine(t, db, &fakeSigner{})
	req, err := e.Reject(context.Background(), adminActor(), "req-1")

	assert.NoError(t, err)
	assert.Equal(t, models.StatusRejected, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectRequiresAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	e := newTestEngine(t, db, &fakeSigner{})
	req, err := e.Reject(context.Background(), memberActor(), "req-1")

	assert.Nil(t, req)
	assert.True(t, apperrors.IsPermission(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectSignedRequest(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(expectRequestRow(models.StatusSigned, "user-1"))

	e := newTestEngine(t, db, &fakeSigner{})
	req, err := e.Reject(context.Background(), adminActor(), "req-1")

	assert.Nil(t, req)
	assert.True(t, apperrors.IsInvalidState(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectRetriesOnceOnTransientConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(expectRequestRow(models.StatusPending, "user-1"))

	// First attempt matches no row, but the re-read still shows pending.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(expectRequestRow(models.StatusPending, "user-1"))

	// Second attempt succeeds.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE requests").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_aggregates").
		WithArgs(-1, 0, 1, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e := newTestEngine(t, db, &fakeSigner{})
	req, err := e.Reject(context.Background(), adminActor(), "req-1")

	assert.NoError(t, err)
	assert.Equal(t, models.StatusRejected, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// DELETE OWN
// ==========================

func TestDeleteOwnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(expectRequestRow(models.StatusPending, "user-1"))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM requests").
		WithArgs("req-1", models.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_aggregates").
		WithArgs(-1, 0, 0, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e := newTestEngine(t, db, &fakeSigner{})
	err = e.DeleteOwn(context.Background(), memberActor(), "req-1")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOwnRequiresOwnership(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(expectRequestRow(models.StatusPending, "someone-else"))

	e := newTestEngine(t, db, &fakeSigner{})
	err = e.DeleteOwn(context.Background(), memberActor(), "req-1")

	assert.True(t, apperrors.IsPermission(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOwnAdminCannotBypassOwnership(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(expectRequestRow(models.StatusPending, "user-1"))

	e := newTestEngine(t, db, &fakeSigner{})
	err = e.DeleteOwn(context.Background(), adminActor(), "req-1")

	assert.True(t, apperrors.IsPermission(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOwnSignedRequest(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(expectRequestRow(models.StatusSigned, "user-1"))

	e := newTestEngine(t, db, &fakeSigner{})
	err = e.DeleteOwn(context.Background(), memberActor(), "req-1")

	assert.True(t, apperrors.IsInvalidState(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// TEMPLATE SELECTION
// ==========================

func TestSelectTemplateUnknownFile(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "file_name", "display_name", "created_at"}).
		AddRow(1, "adeverinta_template.docx", "Standard", time.Now())
	mock.ExpectQuery("SELECT (.+) FROM templates").
		WillReturnRows(rows)

	e := newTestEngine(t, db, &fakeSigner{})
	err = e.SelectTemplate(context.Background(), adminActor(), "nope.docx")

	assert.True(t, apperrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectTemplateRequiresAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	e := newTestEngine(t, db, &fakeSigner{})
	err = e.SelectTemplate(context.Background(), memberActor(), "adeverinta_template.docx")

	assert.True(t, apperrors.IsPermission(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectTemplateSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "file_name", "display_name", "created_at"}).
		AddRow(1, "adeverinta_template.docx", "Standard", time.Now()).
		AddRow(2, "adeverinta_sport.docx", "Sport", time.Now())
	mock.ExpectQuery("SELECT (.+) FROM templates").
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO template_settings").
		WithArgs("default", "adeverinta_sport.docx", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	e := newTestEngine(t, db, &fakeSigner{})
	err = e.SelectTemplate(context.Background(), adminActor(), "adeverinta_sport.docx")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
