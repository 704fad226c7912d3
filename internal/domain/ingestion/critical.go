package ingestion

import (
	"strings"

	"github.com/labcore/labcore/internal/domain/results"
)

// criticalThreshold defines the panic-value bounds for one analyte. A
// numeric result at or beyond either bound requires immediate provider
// notification.
type criticalThreshold struct {
	match string // lowercase substring matched against the test name
	loinc string
	low   *float64
	high  *float64
}

func f(v float64) *float64 { return &v }

// criticalThresholds is the panic-value table. Bounds follow the common
// published critical ranges for adult patients.
var criticalThresholds = []criticalThreshold{
	{match: "glucose", loinc: "2345-7", low: f(50), high: f(450)},
	{match: "potassium", loinc: "2823-3", low: f(2.8), high: f(6.2)},
	{match: "sodium", loinc: "2951-2", low: f(120), high: f(160)},
	{match: "calcium", loinc: "17861-6", low: f(6.5), high: f(13.0)},
	{match: "hemoglobin", loinc: "718-7", low: f(7.0), high: f(20.0)},
	{match: "platelet", loinc: "777-3", low: f(40), high: f(1000)},
	{match: "white blood cell", loinc: "6690-2", low: f(2.0), high: f(30.0)},
	{match: "creatinine", loinc: "2160-0", high: f(7.4)},
	{match: "inr", loinc: "6301-6", high: f(5.0)},
	{match: "troponin", loinc: "10839-9", high: f(0.5)},
	{match: "lactate", loinc: "2524-7", high: f(4.0)},
	{match: "bilirubin", loinc: "1975-2", high: f(15.0)},
	{match: "magnesium", loinc: "19123-9", low: f(1.0), high: f(4.9)},
	{match: "phosphorus", loinc: "2777-1", low: f(1.0), high: f(8.9)},
	{match: "co2", loinc: "2028-9", low: f(10), high: f(40)},
}

// lookupThreshold returns the threshold for the candidate, matching by
// LOINC first and falling back to a name substring.
func lookupThreshold(name, loinc string) *criticalThreshold {
	for i := range criticalThresholds {
		if loinc != "" && criticalThresholds[i].loinc == loinc {
			return &criticalThresholds[i]
		}
	}
	lower := strings.ToLower(name)
	for i := range criticalThresholds {
		if strings.Contains(lower, criticalThresholds[i].match) {
			return &criticalThresholds[i]
		}
	}
	return nil
}

// DetectCritical evaluates the candidate's numeric value against the
// panic-value table and marks it critical when out of bounds. Detection is
// additive only: a flag already set upstream (for example by the sending
// lab) is never cleared, even when the local table has no entry or the
// value parses clean.
func DetectCritical(cand *CandidateResult) {
	if cand.Numeric == nil {
		return
	}
	th := lookupThreshold(cand.TestName, cand.LOINCCode)
	if th == nil {
		return
	}
	v := *cand.Numeric
	switch {
	case th.low != nil && v <= *th.low:
		cand.CriticalFlag = true
		cand.AbnormalFlag = results.FlagCriticalLow
		cand.NeedsReview = true
	case th.high != nil && v >= *th.high:
		cand.CriticalFlag = true
		cand.AbnormalFlag = results.FlagCriticalHigh
		cand.NeedsReview = true
	}
}
