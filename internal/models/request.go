// internal/models/request.go
package models

import "time"

// Status is the lifecycle state of a certificate request.
// Pending is the only non-terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSigned   Status = "signed"
	StatusRejected Status = "rejected"
)

// IsTerminal reports whether no further transitions are permitted.
func (s Status) IsTerminal() bool {
	return s == StatusSigned || s == StatusRejected
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSigned, StatusRejected:
		return true
	}
	return false
}

// Purpose codes accepted on the submission form. PurposeOther requires a
// free-text reason.
const (
	PurposeTransport    = "transport"
	PurposeScholarship  = "bursa"
	PurposeEmployment   = "angajare"
	PurposeHousing      = "cazare"
	PurposeVisa         = "viza"
	PurposeInsurance    = "asigurare"
	PurposeTransfer     = "transfer"
	PurposeTaxExemption = "impozit"
	PurposeMedical      = "medical"
	PurposeInstitutions = "institutii"
	PurposeOther        = "alt_motiv"
)

// PurposeLabels maps each purpose code to the wording printed on the
// certificate. PurposeOther is resolved from the free-text reason instead.
var PurposeLabels = map[string]string{
	PurposeTransport:    "obtinerea reducerii la transport",
	PurposeScholarship:  "obtinerea unei burse",
	PurposeEmployment:   "angajare",
	PurposeHousing:      "obtinerea unui loc de cazare",
	PurposeVisa:         "obtinerea vizei",
	PurposeInsurance:    "asigurare de sanatate",
	PurposeTransfer:     "transfer universitar",
	PurposeTaxExemption: "scutire de impozit",
	PurposeMedical:      "motive medicale",
	PurposeInstitutions: "uz la alte institutii",
}

// Reason returns the wording to print on the certificate for this payload.
func (p RequestPayload) Reason() string {
	if p.PurposeCode == PurposeOther {
		return p.OtherReason
	}
	if label, ok := PurposeLabels[p.PurposeCode]; ok {
		return label
	}
	return p.PurposeCode
}

// PurposeCodes lists every accepted purpose code.
var PurposeCodes = []string{
	PurposeTransport,
	PurposeScholarship,
	PurposeEmployment,
	PurposeHousing,
	PurposeVisa,
	PurposeInsurance,
	PurposeTransfer,
	PurposeTaxExemption,
	PurposeMedical,
	PurposeInstitutions,
	PurposeOther,
}

// RequestPayload is the structured form data captured at submission time.
// Immutable after creation.
type RequestPayload struct {
	FullName       string `json:"fullName"`
	CNP            string `json:"cnp"`
	Faculty        string `json:"faculty"`
	Specialization string `json:"specialization"`
	StudyYear      string `json:"studyYear"`
	StudyMode      string `json:"studyMode"`     // zi | id | fr
	Funding        string `json:"funding"`       // buget | taxa
	StudentStatus  string `json:"studentStatus"` // activ | suspendat | absolvent
	PurposeCode    string `json:"purposeCode"`
	OtherReason    string `json:"otherReason,omitempty"` // required iff PurposeCode == alt_motiv
}

// Request is one submitted certificate application.
type Request struct {
	ID             string         `json:"id"`
	RequesterID    string         `json:"requesterId"`
	RequesterEmail string         `json:"requesterEmail"`
	RequesterName  string         `json:"requesterName"`
	Payload        RequestPayload `json:"payload"`
	Status         Status         `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`

	// Populated only on transition to signed.
	SignedDocumentURL string     `json:"signedDocumentUrl,omitempty"`
	SignedAt          *time.Time `json:"signedAt,omitempty"`
	SignedBy          string     `json:"signedBy,omitempty"`
}

// Actor identifies who is invoking a lifecycle operation. Passed explicitly
// into every engine call and checked as a precondition; never read from
// ambient state.
type Actor struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Admin  bool   `json:"admin"`
}
