package ingestion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/labcore/labcore/internal/domain/results"
)

// Confidence assigned to manually entered values by who entered them.
// Provider entry is near-authoritative; patient-reported values carry
// substantially less weight and always require review.
const (
	ConfidenceProviderEntered = 0.95
	ConfidencePatientReported = 0.60
)

// ManualEntry is a single hand-entered result from the manual entry form.
type ManualEntry struct {
	PatientID      uuid.UUID  `json:"patient_id"`
	LabOrderID     *uuid.UUID `json:"lab_order_id"`
	TestCode       string     `json:"test_code"`
	LOINCCode      string     `json:"loinc_code"`
	TestName       string     `json:"test_name"`
	Value          string     `json:"value"`
	Units          string     `json:"units"`
	ReferenceRange string     `json:"reference_range"`
	EnteredBy      string     `json:"entered_by"` // "provider" or "patient"
	ResultedAt     *time.Time `json:"resulted_at"`
}

// ManualAdapter translates hand-entered results into candidate results.
type ManualAdapter struct{}

// NewManualAdapter constructs a manual entry adapter.
func NewManualAdapter() *ManualAdapter {
	return &ManualAdapter{}
}

// Translate converts one manual entry. Patient-reported entries are never
// verified and always require review; provider entries are verified but
// keep a small confidence discount for transcription slips.
func (a *ManualAdapter) Translate(entry *ManualEntry) (CandidateResult, error) {
	if entry.TestName == "" && entry.TestCode == "" && entry.LOINCCode == "" {
		return CandidateResult{}, fmt.Errorf("manual entry requires a test identifier")
	}
	if entry.Value == "" {
		return CandidateResult{}, fmt.Errorf("manual entry requires a value")
	}

	cand := CandidateResult{
		LabOrderID:     entry.LabOrderID,
		PatientID:      entry.PatientID,
		TestCode:       entry.TestCode,
		LOINCCode:      entry.LOINCCode,
		TestName:       entry.TestName,
		Value:          entry.Value,
		Units:          entry.Units,
		ReferenceRange: entry.ReferenceRange,
		ResultStatus:   results.StatusFinal,
		ResultedAt:     entry.ResultedAt,
	}

	switch entry.EnteredBy {
	case "provider":
		cand.SourceType = results.SourceProviderEntered
		cand.Confidence = ConfidenceProviderEntered
		cand.Verified = true
	case "patient":
		cand.SourceType = results.SourcePatientReported
		cand.Confidence = ConfidencePatientReported
		cand.NeedsReview = true
	default:
		return CandidateResult{}, fmt.Errorf("entered_by must be provider or patient, got %q", entry.EnteredBy)
	}

	if n, err := strconv.ParseFloat(strings.TrimSpace(entry.Value), 64); err == nil {
		cand.Numeric = &n
	}
	return cand, nil
}
