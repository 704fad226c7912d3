package ingestion

import (
	"testing"

	"github.com/labcore/labcore/internal/domain/results"
)

func num(v float64) *float64 { return &v }

func TestDetectCriticalLowGlucose(t *testing.T) {
	cand := CandidateResult{TestName: "Glucose", Numeric: num(42)}
	DetectCritical(&cand)
	if !cand.CriticalFlag {
		t.Fatal("glucose 42 not flagged critical")
	}
	if cand.AbnormalFlag != results.FlagCriticalLow {
		t.Errorf("AbnormalFlag = %q, want LL", cand.AbnormalFlag)
	}
	if !cand.NeedsReview {
		t.Error("critical value did not require review")
	}
}

func TestDetectCriticalHigh(t *testing.T) {
	cand := CandidateResult{TestName: "Potassium", LOINCCode: "2823-3", Numeric: num(6.8)}
	DetectCritical(&cand)
	if !cand.CriticalFlag || cand.AbnormalFlag != results.FlagCriticalHigh {
		t.Errorf("potassium 6.8: critical=%v flag=%q, want critical HH", cand.CriticalFlag, cand.AbnormalFlag)
	}
}

func TestDetectCriticalInRange(t *testing.T) {
	cand := CandidateResult{TestName: "Glucose", Numeric: num(95)}
	DetectCritical(&cand)
	if cand.CriticalFlag || cand.AbnormalFlag != results.FlagNone {
		t.Errorf("in-range glucose flagged: critical=%v flag=%q", cand.CriticalFlag, cand.AbnormalFlag)
	}
}

func TestDetectCriticalUnknownTest(t *testing.T) {
	cand := CandidateResult{TestName: "Obscure Analyte", Numeric: num(9999)}
	DetectCritical(&cand)
	if cand.CriticalFlag {
		t.Error("unmatched test flagged critical")
	}
}

func TestDetectCriticalNonNumeric(t *testing.T) {
	cand := CandidateResult{TestName: "Glucose", Value: "moderate"}
	DetectCritical(&cand)
	if cand.CriticalFlag {
		t.Error("non-numeric value flagged critical")
	}
}

func TestDetectCriticalNeverClearsUpstreamFlag(t *testing.T) {
	// The sending lab flagged it; an in-range local check must not undo that.
	cand := CandidateResult{
		TestName:     "Glucose",
		Numeric:      num(95),
		CriticalFlag: true,
		AbnormalFlag: results.FlagCriticalHigh,
	}
	DetectCritical(&cand)
	if !cand.CriticalFlag || cand.AbnormalFlag != results.FlagCriticalHigh {
		t.Error("upstream critical flag cleared by local detection")
	}
}

func TestDetectCriticalMatchesByName(t *testing.T) {
	cand := CandidateResult{TestName: "Serum Glucose, Fasting", Numeric: num(500)}
	DetectCritical(&cand)
	if !cand.CriticalFlag || cand.AbnormalFlag != results.FlagCriticalHigh {
		t.Error("substring name match failed for glucose variant")
	}
}
