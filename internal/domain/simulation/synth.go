package simulation

import (
	"math"
	"math/rand"
	"strconv"

	"github.com/labcore/labcore/internal/domain/orders"
	"github.com/labcore/labcore/internal/domain/results"
)

// analyte is one synthesizable panel component with its normal range.
type analyte struct {
	loinc    string
	code     string
	name     string
	units    string
	low      float64
	high     float64
	decimals int
}

// panels maps order test codes to their component analytes.
var panels = map[string][]analyte{
	"CBC": {
		{loinc: "6690-2", code: "WBC", name: "White Blood Cell Count", units: "10*3/uL", low: 4.5, high: 11.0, decimals: 1},
		{loinc: "789-8", code: "RBC", name: "Red Blood Cell Count", units: "10*6/uL", low: 4.2, high: 5.9, decimals: 2},
		{loinc: "718-7", code: "HGB", name: "Hemoglobin", units: "g/dL", low: 12.0, high: 17.5, decimals: 1},
		{loinc: "4544-3", code: "HCT", name: "Hematocrit", units: "%", low: 36, high: 50, decimals: 1},
		{loinc: "777-3", code: "PLT", name: "Platelet Count", units: "10*3/uL", low: 150, high: 400, decimals: 0},
	},
	"CMP": {
		{loinc: "2345-7", code: "GLU", name: "Glucose", units: "mg/dL", low: 70, high: 99, decimals: 0},
		{loinc: "3094-0", code: "BUN", name: "Blood Urea Nitrogen", units: "mg/dL", low: 7, high: 20, decimals: 0},
		{loinc: "2160-0", code: "CREAT", name: "Creatinine", units: "mg/dL", low: 0.6, high: 1.2, decimals: 2},
		{loinc: "2951-2", code: "NA", name: "Sodium", units: "mmol/L", low: 136, high: 145, decimals: 0},
		{loinc: "2823-3", code: "K", name: "Potassium", units: "mmol/L", low: 3.5, high: 5.1, decimals: 1},
		{loinc: "2075-0", code: "CL", name: "Chloride", units: "mmol/L", low: 98, high: 107, decimals: 0},
		{loinc: "2028-9", code: "CO2", name: "Carbon Dioxide", units: "mmol/L", low: 21, high: 31, decimals: 0},
		{loinc: "1751-7", code: "ALB", name: "Albumin", units: "g/dL", low: 3.5, high: 5.0, decimals: 1},
	},
	"LIPID": {
		{loinc: "2093-3", code: "CHOL", name: "Total Cholesterol", units: "mg/dL", low: 125, high: 200, decimals: 0},
		{loinc: "2571-8", code: "TRIG", name: "Triglycerides", units: "mg/dL", low: 50, high: 150, decimals: 0},
		{loinc: "2085-9", code: "HDL", name: "HDL Cholesterol", units: "mg/dL", low: 40, high: 90, decimals: 0},
		{loinc: "13457-7", code: "LDL", name: "LDL Cholesterol", units: "mg/dL", low: 50, high: 130, decimals: 0},
	},
	"TSH": {
		{loinc: "3016-3", code: "TSH", name: "Thyroid Stimulating Hormone", units: "mIU/L", low: 0.4, high: 4.0, decimals: 2},
	},
}

// Outcome mix for synthesized values.
const (
	normalFraction = 0.80
	mildFraction   = 0.15
	// remaining 5% critical
)

// synthesizePanel generates one result per panel analyte for the completed
// order. Orders whose test code is not a known panel get a single analyte
// named after the order itself with a generic range.
func synthesizePanel(o *orders.LabOrder, rng *rand.Rand) []*results.LabResult {
	components, ok := panels[o.TestCode]
	if !ok {
		components = []analyte{{
			loinc: derefOr(o.LOINCCode, ""), code: o.TestCode, name: o.TestName,
			units: "", low: 10, high: 100, decimals: 1,
		}}
	}

	out := make([]*results.LabResult, 0, len(components))
	for i := range components {
		out = append(out, synthesizeOne(o, &components[i], rng))
	}
	return out
}

func synthesizeOne(o *orders.LabOrder, a *analyte, rng *rand.Rand) *results.LabResult {
	span := a.high - a.low
	var value float64
	var flag string
	critical := false

	switch roll := rng.Float64(); {
	case roll < normalFraction:
		value = a.low + rng.Float64()*span
	case roll < normalFraction+mildFraction:
		// Up to 30% of the range outside a bound, flagged H or L.
		off := rng.Float64() * 0.30 * span
		if rng.Intn(2) == 0 {
			value = a.high + off
			flag = results.FlagHigh
		} else {
			value = a.low - off
			flag = results.FlagLow
		}
	default:
		// Well outside the range, critical.
		off := (0.30 + rng.Float64()*0.30) * span
		critical = true
		if rng.Intn(2) == 0 {
			value = a.high + off
			flag = results.FlagCriticalHigh
		} else {
			value = a.low - off
			flag = results.FlagCriticalLow
		}
	}
	if value < 0 {
		value = 0
	}
	value = roundTo(value, a.decimals)

	num := value
	r := &results.LabResult{
		LabOrderID:         &o.ID,
		PatientID:          o.PatientID,
		TestName:           a.name,
		ResultValue:        strconv.FormatFloat(value, 'f', a.decimals, 64),
		ResultNumeric:      &num,
		AbnormalFlag:       flag,
		CriticalFlag:       critical,
		ResultStatus:       results.StatusFinal,
		SourceType:         results.SourceAPI,
		SourceConfidence:   1.0,
		VerificationStatus: results.VerificationVerified,
		NeedsReview:        critical,
	}
	if a.loinc != "" {
		loinc := a.loinc
		r.LOINCCode = &loinc
	}
	if a.code != "" {
		code := a.code
		r.TestCode = &code
	}
	if a.units != "" {
		units := a.units
		r.Units = &units
	}
	rr := strconv.FormatFloat(a.low, 'f', -1, 64) + "-" + strconv.FormatFloat(a.high, 'f', -1, 64)
	r.ReferenceRange = &rr
	return r
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

func derefOr(s *string, def string) string {
	if s != nil {
		return *s
	}
	return def
}
