package ingestion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labcore/labcore/internal/domain/results"
)

// FHIRAdapter translates a FHIR R4 DiagnosticReport into candidate results.
// Observations are read from result[], either inline or as local references
// into contained[]; reports that only bundle Observations in contained[] are
// accepted too.
type FHIRAdapter struct {
	logger zerolog.Logger
}

// NewFHIRAdapter constructs a FHIR adapter.
func NewFHIRAdapter(logger zerolog.Logger) *FHIRAdapter {
	return &FHIRAdapter{logger: logger.With().Str("adapter", "fhir").Logger()}
}

// fhirStatusMap maps Observation.status to the unified result vocabulary.
var fhirStatusMap = map[string]string{
	"final":       results.StatusFinal,
	"preliminary": results.StatusPreliminary,
	"corrected":   results.StatusCorrected,
	"amended":     results.StatusCorrected,
	"cancelled":   results.StatusCancelled,
	"registered":  results.StatusPreliminary,
}

// Translate walks the report's Observations. FHIR sources are structured
// exchanges from other systems, so candidates are verified with full
// confidence. Observations without a code or value are skipped. The patient
// is taken from the report's subject reference.
func (a *FHIRAdapter) Translate(report map[string]interface{}, orderID *uuid.UUID) ([]CandidateResult, uuid.UUID, error) {
	if rt, _ := report["resourceType"].(string); rt != "DiagnosticReport" {
		return nil, uuid.Nil, fmt.Errorf("expected DiagnosticReport, got %q", rt)
	}
	patientID, err := subjectPatientID(report)
	if err != nil {
		return nil, uuid.Nil, err
	}
	observations := reportObservations(report)
	if len(observations) == 0 {
		return nil, uuid.Nil, fmt.Errorf("DiagnosticReport has no observations")
	}

	var out []CandidateResult
	for i, obs := range observations {
		cand, ok := a.translateObservation(obs, patientID, orderID)
		if !ok {
			a.logger.Warn().Int("index", i).Msg("skipping observation without code or value")
			continue
		}
		out = append(out, cand)
	}
	return out, patientID, nil
}

// reportObservations collects the report's Observations. result[] entries
// are taken inline when they carry observation content and resolved against
// contained[] when they are "#id" references. A report with an empty
// result[] but bundled contained Observations yields those instead.
func reportObservations(report map[string]interface{}) []map[string]interface{} {
	contained, _ := report["contained"].([]interface{})
	byID := make(map[string]map[string]interface{})
	var bundled []map[string]interface{}
	for _, item := range contained {
		obs, ok := item.(map[string]interface{})
		if !ok || obs["resourceType"] != "Observation" {
			continue
		}
		bundled = append(bundled, obs)
		if id, _ := obs["id"].(string); id != "" {
			byID[id] = obs
		}
	}

	var out []map[string]interface{}
	resultList, _ := report["result"].([]interface{})
	for _, item := range resultList {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if ref, _ := entry["reference"].(string); ref != "" {
			if obs, ok := byID[strings.TrimPrefix(ref, "#")]; ok {
				out = append(out, obs)
			}
			continue
		}
		if rt, _ := entry["resourceType"].(string); rt == "" || rt == "Observation" {
			out = append(out, entry)
		}
	}
	if len(out) > 0 {
		return out
	}
	return bundled
}

// subjectPatientID resolves the report's subject reference
// ("Patient/<uuid>") to a patient id.
func subjectPatientID(report map[string]interface{}) (uuid.UUID, error) {
	subject, ok := report["subject"].(map[string]interface{})
	if !ok {
		return uuid.Nil, fmt.Errorf("DiagnosticReport has no subject")
	}
	ref, _ := subject["reference"].(string)
	if !strings.HasPrefix(ref, "Patient/") {
		return uuid.Nil, fmt.Errorf("subject reference %q is not a Patient", ref)
	}
	id, err := uuid.Parse(strings.TrimPrefix(ref, "Patient/"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("subject reference %q: %w", ref, err)
	}
	return id, nil
}

func (a *FHIRAdapter) translateObservation(obs map[string]interface{}, patientID uuid.UUID, orderID *uuid.UUID) (CandidateResult, bool) {
	loinc, name := codeableConcept(obs["code"])
	if loinc == "" && name == "" {
		return CandidateResult{}, false
	}

	cand := CandidateResult{
		LabOrderID:   orderID,
		PatientID:    patientID,
		LOINCCode:    loinc,
		TestName:     name,
		SourceType:   results.SourceFHIR,
		Confidence:   1.0,
		Verified:     true,
		ResultStatus: results.StatusFinal,
	}

	if vq, ok := obs["valueQuantity"].(map[string]interface{}); ok {
		switch v := vq["value"].(type) {
		case float64:
			cand.Numeric = &v
			cand.Value = strconv.FormatFloat(v, 'f', -1, 64)
		case string:
			cand.Value = v
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				cand.Numeric = &n
			}
		}
		if u, ok := vq["unit"].(string); ok {
			cand.Units = u
		} else if u, ok := vq["code"].(string); ok {
			cand.Units = u
		}
	} else if vs, ok := obs["valueString"].(string); ok {
		cand.Value = vs
	}
	if cand.Value == "" {
		return CandidateResult{}, false
	}

	if status, ok := obs["status"].(string); ok {
		if mapped, ok := fhirStatusMap[status]; ok {
			cand.ResultStatus = mapped
		}
	}

	if interps, ok := obs["interpretation"].([]interface{}); ok && len(interps) > 0 {
		code, _ := codeableConcept(interps[0])
		switch code {
		case "HH":
			cand.AbnormalFlag = results.FlagCriticalHigh
			cand.CriticalFlag = true
		case "LL":
			cand.AbnormalFlag = results.FlagCriticalLow
			cand.CriticalFlag = true
		case "H":
			cand.AbnormalFlag = results.FlagHigh
		case "L":
			cand.AbnormalFlag = results.FlagLow
		case "A":
			cand.NeedsReview = true
			cand.AddNote("abnormal interpretation without direction")
		}
	}

	if rr, ok := obs["referenceRange"].([]interface{}); ok && len(rr) > 0 {
		cand.ReferenceRange = referenceRangeText(rr[0])
	}

	if ts, ok := obs["effectiveDateTime"].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			cand.ResultedAt = &t
		}
	}

	return cand, true
}

// codeableConcept pulls the first coding's code and display from a FHIR
// CodeableConcept, falling back to the concept text for the name.
func codeableConcept(v interface{}) (code, display string) {
	cc, ok := v.(map[string]interface{})
	if !ok {
		return "", ""
	}
	if codings, ok := cc["coding"].([]interface{}); ok && len(codings) > 0 {
		if c, ok := codings[0].(map[string]interface{}); ok {
			code, _ = c["code"].(string)
			display, _ = c["display"].(string)
		}
	}
	if display == "" {
		display, _ = cc["text"].(string)
	}
	return code, display
}

func referenceRangeText(v interface{}) string {
	rr, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	if text, ok := rr["text"].(string); ok && text != "" {
		return text
	}
	var lo, hi string
	if q, ok := rr["low"].(map[string]interface{}); ok {
		if n, ok := q["value"].(float64); ok {
			lo = strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
	if q, ok := rr["high"].(map[string]interface{}); ok {
		if n, ok := q["value"].(float64); ok {
			hi = strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
	if lo == "" && hi == "" {
		return ""
	}
	return strings.TrimSpace(lo + "-" + hi)
}
