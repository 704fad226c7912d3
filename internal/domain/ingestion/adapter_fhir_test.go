package ingestion

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labcore/labcore/internal/domain/results"
)

func diagnosticReport(t *testing.T, patientID uuid.UUID, observations ...string) map[string]interface{} {
	t.Helper()
	raw := `{
		"resourceType": "DiagnosticReport",
		"status": "final",
		"subject": {"reference": "Patient/` + patientID.String() + `"},
		"result": [` + joinJSON(observations) + `]
	}`
	var report map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return report
}

func joinJSON(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func TestFHIRTranslate(t *testing.T) {
	patientID := uuid.New()
	report := diagnosticReport(t, patientID,
		`{
			"resourceType": "Observation",
			"status": "final",
			"code": {"coding": [{"code": "2345-7", "display": "Glucose"}]},
			"valueQuantity": {"value": 95, "unit": "mg/dL"},
			"referenceRange": [{"text": "70-99"}]
		}`,
		`{
			"resourceType": "Observation",
			"status": "preliminary",
			"code": {"coding": [{"code": "2823-3", "display": "Potassium"}]},
			"valueQuantity": {"value": 6.5, "unit": "mmol/L"},
			"interpretation": [{"coding": [{"code": "HH"}]}]
		}`,
	)

	cands, gotPatient, err := NewFHIRAdapter(zerolog.Nop()).Translate(report, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if gotPatient != patientID {
		t.Errorf("patient = %s, want %s", gotPatient, patientID)
	}
	if len(cands) != 2 {
		t.Fatalf("candidates = %d, want 2", len(cands))
	}

	glu := cands[0]
	if glu.LOINCCode != "2345-7" || glu.Numeric == nil || *glu.Numeric != 95 {
		t.Errorf("glucose not translated: %+v", glu)
	}
	if glu.ReferenceRange != "70-99" {
		t.Errorf("ReferenceRange = %q", glu.ReferenceRange)
	}
	if glu.Confidence != 1.0 || !glu.Verified {
		t.Error("fhir candidate not verified with full confidence")
	}

	k := cands[1]
	if !k.CriticalFlag || k.AbnormalFlag != results.FlagCriticalHigh {
		t.Error("HH interpretation not translated as critical")
	}
	if k.ResultStatus != results.StatusPreliminary {
		t.Errorf("status = %q, want preliminary", k.ResultStatus)
	}
}

func TestFHIRTranslateResolvesResultReferences(t *testing.T) {
	patientID := uuid.New()
	raw := `{
		"resourceType": "DiagnosticReport",
		"status": "final",
		"subject": {"reference": "Patient/` + patientID.String() + `"},
		"contained": [{
			"resourceType": "Observation",
			"id": "obs1",
			"status": "final",
			"code": {"coding": [{"code": "2345-7", "display": "Glucose"}]},
			"valueQuantity": {"value": 95, "unit": "mg/dL"},
			"interpretation": [{"coding": [{"code": "H"}]}]
		}],
		"result": [{"reference": "#obs1"}, {"reference": "#missing"}]
	}`
	var report map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}

	cands, _, err := NewFHIRAdapter(zerolog.Nop()).Translate(report, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("candidates = %d, want 1", len(cands))
	}
	if cands[0].LOINCCode != "2345-7" || cands[0].AbnormalFlag != results.FlagHigh {
		t.Errorf("referenced observation not translated: %+v", cands[0])
	}
}

func TestFHIRTranslateFallsBackToContained(t *testing.T) {
	patientID := uuid.New()
	raw := `{
		"resourceType": "DiagnosticReport",
		"status": "final",
		"subject": {"reference": "Patient/` + patientID.String() + `"},
		"contained": [{
			"resourceType": "Observation",
			"status": "final",
			"code": {"coding": [{"code": "2823-3", "display": "Potassium"}]},
			"valueQuantity": {"value": 4.2, "unit": "mmol/L"}
		}]
	}`
	var report map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}

	cands, _, err := NewFHIRAdapter(zerolog.Nop()).Translate(report, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(cands) != 1 || cands[0].LOINCCode != "2823-3" {
		t.Fatalf("contained-only report not translated: %+v", cands)
	}
}

func TestFHIRTranslateRequiresObservations(t *testing.T) {
	patientID := uuid.New()
	report := diagnosticReport(t, patientID)
	if _, _, err := NewFHIRAdapter(zerolog.Nop()).Translate(report, nil); err == nil {
		t.Error("report without observations accepted")
	}
}

func TestFHIRTranslateRejectsWrongResourceType(t *testing.T) {
	report := map[string]interface{}{"resourceType": "Observation"}
	if _, _, err := NewFHIRAdapter(zerolog.Nop()).Translate(report, nil); err == nil {
		t.Error("non-DiagnosticReport accepted")
	}
}

func TestFHIRTranslateRequiresSubject(t *testing.T) {
	report := map[string]interface{}{
		"resourceType": "DiagnosticReport",
		"contained":    []interface{}{},
	}
	if _, _, err := NewFHIRAdapter(zerolog.Nop()).Translate(report, nil); err == nil {
		t.Error("report without subject accepted")
	}
}

func TestFHIRTranslateSkipsValuelessObservation(t *testing.T) {
	patientID := uuid.New()
	report := diagnosticReport(t, patientID,
		`{
			"resourceType": "Observation",
			"status": "final",
			"code": {"coding": [{"code": "2345-7", "display": "Glucose"}]}
		}`,
		`{
			"resourceType": "Observation",
			"status": "final",
			"code": {"coding": [{"code": "2951-2", "display": "Sodium"}]},
			"valueString": "hemolyzed, recollect"
		}`,
	)
	cands, _, err := NewFHIRAdapter(zerolog.Nop()).Translate(report, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("candidates = %d, want 1", len(cands))
	}
	if cands[0].Value != "hemolyzed, recollect" {
		t.Errorf("valueString not carried: %q", cands[0].Value)
	}
}
