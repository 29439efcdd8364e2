// internal/lifecycle/validate.go
package lifecycle

import (
	"strings"

	apperrors "certificate-service/internal/common/errors"
	"certificate-service/internal/models"
)

var studyModes = map[string]bool{"zi": true, "id": true, "fr": true}
var fundingKinds = map[string]bool{"buget": true, "taxa": true}
var studentStatuses = map[string]bool{"activ": true, "suspendat": true, "absolvent": true}

var purposeCodes = func() map[string]bool {
	m := make(map[string]bool, len(models.PurposeCodes))
	for _, c := range models.PurposeCodes {
		m[c] = true
	}
	return m
}()

// ValidatePayload normalizes and checks a submission payload. String fields
// are trimmed in place before checking, so whitespace-only input fails the
// same way empty input does.
func ValidatePayload(p *models.RequestPayload) error {
	p.FullName = strings.TrimSpace(p.FullName)
	p.CNP = strings.TrimSpace(p.CNP)
	p.Faculty = strings.TrimSpace(p.Faculty)
	p.Specialization = strings.TrimSpace(p.Specialization)
	p.StudyYear = strings.TrimSpace(p.StudyYear)
	p.StudyMode = strings.TrimSpace(p.StudyMode)
	p.Funding = strings.TrimSpace(p.Funding)
	p.StudentStatus = strings.TrimSpace(p.StudentStatus)
	p.PurposeCode = strings.TrimSpace(p.PurposeCode)
	p.OtherReason = strings.TrimSpace(p.OtherReason)

	missing := []string{}
	appendMissing := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	appendMissing("fullName", p.FullName)
	appendMissing("cnp", p.CNP)
	appendMissing("faculty", p.Faculty)
	appendMissing("specialization", p.Specialization)
	appendMissing("studyYear", p.StudyYear)
	appendMissing("studyMode", p.StudyMode)
	appendMissing("funding", p.Funding)
	appendMissing("studentStatus", p.StudentStatus)
	appendMissing("purposeCode", p.PurposeCode)

	if len(missing) > 0 {
		return apperrors.NewValidationError("missing required fields: " + strings.Join(missing, ", "))
	}

	if !studyModes[p.StudyMode] {
		return apperrors.NewValidationError("studyMode must be one of: zi, id, fr")
	}
	if !fundingKinds[p.Funding] {
		return apperrors.NewValidationError("funding must be one of: buget, taxa")
	}
	if !studentStatuses[p.StudentStatus] {
		return apperrors.NewValidationError("studentStatus must be one of: activ, suspendat, absolvent")
	}
	if !purposeCodes[p.PurposeCode] {
		return apperrors.NewValidationError("unknown purposeCode: " + p.PurposeCode)
	}

	if p.PurposeCode == models.PurposeOther && p.OtherReason == "" {
		return apperrors.NewValidationError("otherReason is required when purposeCode is alt_motiv")
	}
	if p.PurposeCode != models.PurposeOther {
		// A stale reason from a previously selected purpose must not leak
		// into the stored payload.
		p.OtherReason = ""
	}

	return nil
}

// ValidateActor checks the identity fields every operation needs.
func ValidateActor(a models.Actor) error {
	if strings.TrimSpace(a.UserID) == "" {
		return apperrors.NewValidationError("actor userId is required")
	}
	return nil
}
