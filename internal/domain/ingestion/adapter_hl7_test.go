package ingestion

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labcore/labcore/internal/domain/results"
	"github.com/labcore/labcore/internal/platform/hl7v2"
)

func parseORU(t *testing.T, segments ...string) *hl7v2.Message {
	t.Helper()
	msg, err := hl7v2.Parse([]byte(strings.Join(segments, "\r")))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return msg
}

func TestHL7TranslateOBX(t *testing.T) {
	msg := parseORU(t,
		"MSH|^~\\&|LAB|QUEST|EHR|CLINIC|20260115083000||ORU^R01|MSG001|P|2.5.1",
		"PID|1||MRN12345^^^HOSP^MR||DOE^JANE",
		"ORC|RE|QST-1737000000-4821",
		"OBR|1|QST-1737000000-4821||24323-8^Comprehensive Metabolic Panel",
		"OBX|1|NM|2345-7^Glucose|1|95|mg/dL|70-99||||F|||20260115082000",
		"OBX|2|NM|2823-3^Potassium|1|6.5|mmol/L|3.5-5.1|HH|||F",
		"OBX|3|ST|2951-2^Sodium|1|see note|mmol/L|136-145|||P|P",
	)

	patientID := uuid.New()
	cands := NewHL7Adapter(zerolog.Nop()).Translate(msg, patientID, nil)
	if len(cands) != 3 {
		t.Fatalf("candidates = %d, want 3", len(cands))
	}

	glu := cands[0]
	if glu.LOINCCode != "2345-7" || glu.TestName != "Glucose" {
		t.Errorf("OBX-3 parse wrong: %q %q", glu.LOINCCode, glu.TestName)
	}
	if glu.Numeric == nil || *glu.Numeric != 95 {
		t.Error("NM value not parsed numeric")
	}
	if glu.Confidence != 1.0 || !glu.Verified {
		t.Error("hl7 candidate not verified with full confidence")
	}
	if glu.PatientID != patientID {
		t.Error("patient id not carried")
	}
	if glu.ResultedAt == nil {
		t.Error("OBX-14 timestamp not parsed")
	}
	if glu.NeedsReview {
		t.Error("normal value marked for review")
	}

	k := cands[1]
	if !k.CriticalFlag || k.AbnormalFlag != results.FlagCriticalHigh {
		t.Errorf("HH flag not translated: critical=%v flag=%q", k.CriticalFlag, k.AbnormalFlag)
	}
	if !k.NeedsReview {
		t.Error("abnormal hl7 value not marked for review")
	}

	na := cands[2]
	if na.Numeric != nil {
		t.Error("ST value parsed as numeric")
	}
	if na.ResultStatus != results.StatusPreliminary {
		t.Errorf("OBX-11 P mapped to %q", na.ResultStatus)
	}
}

func TestHL7TranslateSkipsMalformedOBX(t *testing.T) {
	msg := parseORU(t,
		"MSH|^~\\&|LAB|LC|EHR|CLINIC|20260115083000||ORU^R01|MSG002|P|2.5.1",
		"PID|1||MRN99^^^HOSP^MR||SMITH^PAT",
		"OBX|1|NM||1|95|mg/dL",
		"OBX|2|NM|718-7^Hemoglobin|1||g/dL",
		"OBX|3|NM|718-7^Hemoglobin|1|13.1|g/dL|12.0-17.5|||F",
	)
	cands := NewHL7Adapter(zerolog.Nop()).Translate(msg, uuid.New(), nil)
	if len(cands) != 1 {
		t.Fatalf("candidates = %d, want 1 (malformed OBX skipped)", len(cands))
	}
	if cands[0].TestName != "Hemoglobin" {
		t.Errorf("wrong survivor: %q", cands[0].TestName)
	}
}

func TestHL7TranslateNonNumericNM(t *testing.T) {
	msg := parseORU(t,
		"MSH|^~\\&|LAB|LC|EHR|CLINIC|20260115083000||ORU^R01|MSG003|P|2.5.1",
		"PID|1||MRN99^^^HOSP^MR||SMITH^PAT",
		"OBX|1|NM|2345-7^Glucose|1|pending|mg/dL||||F",
	)
	cands := NewHL7Adapter(zerolog.Nop()).Translate(msg, uuid.New(), nil)
	if len(cands) != 1 {
		t.Fatalf("candidates = %d, want 1", len(cands))
	}
	if !cands[0].NeedsReview {
		t.Error("unparseable NM value not marked for review")
	}
	if cands[0].Numeric != nil {
		t.Error("unparseable NM produced a numeric")
	}
}

func TestHL7H_GreaterAndL_LessAreCritical(t *testing.T) {
	msg := parseORU(t,
		"MSH|^~\\&|LAB|LC|EHR|CLINIC|20260115083000||ORU^R01|MSG004|P|2.5.1",
		"PID|1||MRN99^^^HOSP^MR||SMITH^PAT",
		"OBX|1|NM|2823-3^Potassium|1|7.1|mmol/L|3.5-5.1|H>|||F",
		"OBX|2|NM|2345-7^Glucose|1|38|mg/dL|70-99|L<|||F",
	)
	cands := NewHL7Adapter(zerolog.Nop()).Translate(msg, uuid.New(), nil)
	if len(cands) != 2 {
		t.Fatalf("candidates = %d, want 2", len(cands))
	}
	if !cands[0].CriticalFlag || cands[0].AbnormalFlag != results.FlagCriticalHigh {
		t.Error("H> not treated as critical high")
	}
	if !cands[1].CriticalFlag || cands[1].AbnormalFlag != results.FlagCriticalLow {
		t.Error("L< not treated as critical low")
	}
}
