package ingestion

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labcore/labcore/internal/domain/results"
)

// PartnerResult is the JSON shape partner laboratories push to the direct
// result endpoint.
type PartnerResult struct {
	TestCode       string   `json:"test_code"`
	LOINCCode      string   `json:"loinc_code"`
	TestName       string   `json:"test_name"`
	Value          string   `json:"value"`
	Units          string   `json:"units"`
	ReferenceRange string   `json:"reference_range"`
	Flag           string   `json:"flag"`
	Critical       bool     `json:"critical"`
	Status         string   `json:"status"`
	CollectedAt    *string  `json:"collected_at"`
	Numeric        *float64 `json:"numeric_value"`
}

// PartnerBatch is a partner push: one order's worth of results.
type PartnerBatch struct {
	PatientID       uuid.UUID       `json:"patient_id"`
	ExternalOrderID string          `json:"external_order_id"`
	Lab             string          `json:"lab"`
	Results         []PartnerResult `json:"results"`
}

// APIAdapter translates partner laboratory pushes into candidate results.
// Partners send their own test codes; the catalog resolves them to LOINC
// where the code is known.
type APIAdapter struct {
	catalog *Catalog
	logger  zerolog.Logger
}

// NewAPIAdapter constructs a partner API adapter over the catalog.
func NewAPIAdapter(catalog *Catalog, logger zerolog.Logger) *APIAdapter {
	return &APIAdapter{
		catalog: catalog,
		logger:  logger.With().Str("adapter", "api").Logger(),
	}
}

// Translate converts the batch. Results with neither a value nor a test
// identifier are skipped and logged.
func (a *APIAdapter) Translate(batch *PartnerBatch, orderID *uuid.UUID) []CandidateResult {
	out := make([]CandidateResult, 0, len(batch.Results))
	for i, pr := range batch.Results {
		if pr.Value == "" || (pr.TestCode == "" && pr.LOINCCode == "" && pr.TestName == "") {
			a.logger.Warn().Int("index", i).Str("lab", batch.Lab).Msg("skipping partner result without identifier or value")
			continue
		}
		cand := CandidateResult{
			LabOrderID:     orderID,
			PatientID:      batch.PatientID,
			TestCode:       pr.TestCode,
			LOINCCode:      pr.LOINCCode,
			TestName:       pr.TestName,
			Value:          pr.Value,
			Units:          pr.Units,
			ReferenceRange: pr.ReferenceRange,
			SourceType:     results.SourceAPI,
			Confidence:     1.0,
			Verified:       true,
			ResultStatus:   results.StatusFinal,
		}
		if pr.LOINCCode == "" {
			if entry := a.catalog.Lookup("", pr.TestCode, pr.TestName); entry != nil {
				cand.LOINCCode = entry.LOINCCode
			}
		}
		if pr.Numeric != nil {
			cand.Numeric = pr.Numeric
		} else if n, err := strconv.ParseFloat(strings.TrimSpace(pr.Value), 64); err == nil {
			cand.Numeric = &n
		}
		switch pr.Flag {
		case "HH":
			cand.AbnormalFlag = results.FlagCriticalHigh
			cand.CriticalFlag = true
		case "LL":
			cand.AbnormalFlag = results.FlagCriticalLow
			cand.CriticalFlag = true
		case "H", "L":
			cand.AbnormalFlag = pr.Flag
		}
		if pr.Critical {
			cand.CriticalFlag = true
		}
		switch pr.Status {
		case results.StatusPreliminary, results.StatusFinal, results.StatusCorrected, results.StatusCancelled:
			cand.ResultStatus = pr.Status
		}
		if pr.CollectedAt != nil {
			if t, err := time.Parse(time.RFC3339, *pr.CollectedAt); err == nil {
				cand.ResultedAt = &t
			}
		}
		out = append(out, cand)
	}
	return out
}
