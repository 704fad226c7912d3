package results

import (
	"time"

	"github.com/google/uuid"
)

// Abnormal flags.
const (
	FlagNone         = ""
	FlagHigh         = "H"
	FlagLow          = "L"
	FlagCriticalHigh = "HH"
	FlagCriticalLow  = "LL"
)

// Result statuses.
const (
	StatusPreliminary = "preliminary"
	StatusFinal       = "final"
	StatusCorrected   = "corrected"
	StatusCancelled   = "cancelled"
)

// Source types.
const (
	SourceAttachment      = "attachment"
	SourceHL7             = "hl7"
	SourceFHIR            = "fhir"
	SourceAPI             = "api"
	SourceManual          = "manual"
	SourceProviderEntered = "provider_entered"
	SourcePatientReported = "patient_reported"
)

// Review statuses.
const (
	ReviewPending   = "pending"
	ReviewReviewed  = "reviewed"
	ReviewDismissed = "dismissed"
)

// Verification statuses. Structured exchanges (HL7, FHIR, partner API) and
// provider entry arrive pre-verified; extraction and patient-reported
// values do not.
const (
	VerificationVerified   = "verified"
	VerificationUnverified = "unverified"
)

// LabResult maps to the lab_result table: one reported value.
type LabResult struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	LabOrderID         *uuid.UUID `db:"lab_order_id" json:"lab_order_id,omitempty"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	LOINCCode          *string    `db:"loinc_code" json:"loinc_code,omitempty"`
	TestCode           *string    `db:"test_code" json:"test_code,omitempty"`
	TestName           string     `db:"test_name" json:"test_name"`
	ResultValue        string     `db:"result_value" json:"result_value"`
	ResultNumeric      *float64   `db:"result_numeric" json:"result_numeric,omitempty"`
	Units              *string    `db:"units" json:"units,omitempty"`
	ReferenceRange     *string    `db:"reference_range" json:"reference_range,omitempty"`
	AbnormalFlag       string     `db:"abnormal_flag" json:"abnormal_flag"`
	CriticalFlag       bool       `db:"critical_flag" json:"critical_flag"`
	ResultStatus       string     `db:"result_status" json:"result_status"`
	SourceType         string     `db:"source_type" json:"source_type"`
	SourceConfidence   float64    `db:"source_confidence" json:"source_confidence"`
	VerificationStatus string     `db:"verification_status" json:"verification_status"`
	NeedsReview        bool       `db:"needs_review" json:"needs_review"`
	ReviewStatus       string     `db:"review_status" json:"review_status"`
	Interpretation     *string    `db:"interpretation" json:"interpretation,omitempty"`
	PatientMessage     *string    `db:"patient_message" json:"patient_message,omitempty"`
	ResultedAt         *time.Time `db:"resulted_at" json:"resulted_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// IsAbnormal reports whether the result carries any abnormal flag.
func (r *LabResult) IsAbnormal() bool {
	return r.AbnormalFlag != FlagNone
}

// NormalizeConfidence maps a reported confidence onto [0,1]. Values in
// (5,100] are treated as percentages; values just above 1 are more likely
// off-by-rounding than percent-scaled, so they clamp to 1 instead of being
// divided down. Anything still out of range clamps to the nearest bound.
func NormalizeConfidence(v float64) float64 {
	if v > 5 && v <= 100 {
		v /= 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
