// Package ingestion normalizes laboratory data from heterogeneous sources
// (document extraction, HL7 v2, FHIR, partner APIs, manual entry) into the
// unified result model, validating against the test catalog and applying
// critical-value detection on the way.
package ingestion

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/labcore/labcore/internal/domain/results"
)

// CandidateResult is an unvalidated, source-specific extraction of a
// potential lab value, prior to catalog validation and critical-value
// detection.
type CandidateResult struct {
	LabOrderID     *uuid.UUID
	PatientID      uuid.UUID
	TestCode       string
	LOINCCode      string
	TestName       string
	Category       string
	Value          string
	Numeric        *float64
	Units          string
	ReferenceRange string
	AbnormalFlag   string
	CriticalFlag   bool
	ResultStatus   string
	SourceType     string
	Confidence     float64
	Verified       bool
	NeedsReview    bool
	ResultedAt     *time.Time
	Notes          []string
}

// AddNote appends a processing note to the candidate.
func (c *CandidateResult) AddNote(note string) {
	c.Notes = append(c.Notes, note)
}

// toLabResult converts the candidate into a persistable LabResult.
func (c *CandidateResult) toLabResult() *results.LabResult {
	r := &results.LabResult{
		LabOrderID:         c.LabOrderID,
		PatientID:          c.PatientID,
		TestName:           c.TestName,
		ResultValue:        c.Value,
		ResultNumeric:      c.Numeric,
		AbnormalFlag:       c.AbnormalFlag,
		CriticalFlag:       c.CriticalFlag,
		ResultStatus:       c.ResultStatus,
		SourceType:         c.SourceType,
		SourceConfidence:   c.Confidence,
		VerificationStatus: results.VerificationUnverified,
		NeedsReview:        c.NeedsReview,
		ResultedAt:         c.ResultedAt,
	}
	if c.Verified {
		r.VerificationStatus = results.VerificationVerified
	}
	if c.TestCode != "" {
		r.TestCode = &c.TestCode
	}
	if c.LOINCCode != "" {
		r.LOINCCode = &c.LOINCCode
	}
	if c.Units != "" {
		r.Units = &c.Units
	}
	if c.ReferenceRange != "" {
		r.ReferenceRange = &c.ReferenceRange
	}
	return r
}

// vitalSignNames are measurement names that belong to the vitals subsystem.
// Extraction candidates matching any of these are excluded from lab results.
var vitalSignNames = []string{
	"blood pressure",
	"heart rate",
	"pulse",
	"temperature",
	"respiratory rate",
	"spo2",
	"oxygen saturation",
	"o2 sat",
	"weight",
	"height",
	"bmi",
	"body mass index",
	"pain scale",
}

// isVitalSign reports whether the candidate names a vital sign rather than a
// laboratory test.
func isVitalSign(name, category string) bool {
	if strings.EqualFold(strings.TrimSpace(category), "vital signs") {
		return true
	}
	lower := strings.ToLower(name)
	for _, v := range vitalSignNames {
		if strings.Contains(lower, v) {
			return true
		}
	}
	return false
}
