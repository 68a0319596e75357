package models

import "time"

type CertificateStatus int

const (
	CertificatePending        CertificateStatus = 0
	CertificateFirstApproved  CertificateStatus = 1
	CertificateSecondApproved CertificateStatus = 2
	CertificateFinalApproved  CertificateStatus = 3
)

func (s CertificateStatus) String() string {
	switch s {
	case CertificatePending:
		return "pending"
	case CertificateFirstApproved:
		return "first_approved"
	case CertificateSecondApproved:
		return "second_approved"
	case CertificateFinalApproved:
		return "final_approved"
	default:
		return "unknown"
	}
}

func (s CertificateStatus) IsValid() bool {
	return s >= CertificatePending && s <= CertificateFinalApproved
}

// IsActive reports whether a request in this status still blocks a new one.
func (s CertificateStatus) IsActive() bool {
	return s >= CertificatePending && s < CertificateFinalApproved
}

type CertificateLanguage string

const (
	LanguageEnglish CertificateLanguage = "en"
	LanguageArabic  CertificateLanguage = "ar"
)

func IsValidLanguage(lang CertificateLanguage) bool {
	return lang == LanguageEnglish || lang == LanguageArabic
}

type Certificate struct {
	ID          string              `json:"id"`
	UserID      string              `json:"user_id"`
	OfficerID   string              `json:"officer_id"`
	Name        string              `json:"name"`
	Language    CertificateLanguage `json:"language"`
	Code        string              `json:"code"`
	Status      CertificateStatus   `json:"status"`
	Approver1ID *string             `json:"approver1_id,omitempty"`
	Approver2ID *string             `json:"approver2_id,omitempty"`
	Approver3ID *string             `json:"approver3_id,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// HasApprover reports whether userID already holds one of the approver slots.
func (c Certificate) HasApprover(userID string) bool {
	for _, slot := range []*string{c.Approver1ID, c.Approver2ID, c.Approver3ID} {
		if slot != nil && *slot == userID {
			return true
		}
	}
	return false
}

// StateReached marks that a certificate has newly entered Status.
type StateReached struct {
	EventID       string            `json:"event_id"`
	CertificateID string            `json:"certificate_id"`
	Status        CertificateStatus `json:"status"`
	ActorID       string            `json:"actor_id"`
}
