package ingestion

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labcore/labcore/internal/domain/results"
	"github.com/labcore/labcore/internal/platform/hl7v2"
)

// HL7Adapter translates ORU^R01 observation segments into candidate
// results. HL7 feeds come from performing labs, so values are treated as
// verified with full confidence.
type HL7Adapter struct {
	logger zerolog.Logger
}

// NewHL7Adapter constructs an HL7 adapter.
func NewHL7Adapter(logger zerolog.Logger) *HL7Adapter {
	return &HL7Adapter{logger: logger.With().Str("adapter", "hl7").Logger()}
}

// obxStatusMap maps OBX-11 result status codes to the unified vocabulary.
var obxStatusMap = map[string]string{
	"F": results.StatusFinal,
	"P": results.StatusPreliminary,
	"C": results.StatusCorrected,
	"X": results.StatusCancelled,
}

// Translate converts each OBX segment of a validated ORU message into a
// candidate result for the given patient. Malformed OBX segments are
// skipped and logged rather than failing the whole message.
func (a *HL7Adapter) Translate(msg *hl7v2.Message, patientID uuid.UUID, orderID *uuid.UUID) []CandidateResult {
	var out []CandidateResult
	for i, obx := range msg.AllSegments("OBX") {
		cand, ok := a.translateOBX(&obx, patientID, orderID)
		if !ok {
			a.logger.Warn().Int("obx_index", i).Msg("skipping malformed OBX segment")
			continue
		}
		out = append(out, cand)
	}
	return out
}

func (a *HL7Adapter) translateOBX(obx *hl7v2.Segment, patientID uuid.UUID, orderID *uuid.UUID) (CandidateResult, bool) {
	loinc := obx.GetComponent(3, 1)
	name := obx.GetComponent(3, 2)
	value := obx.GetField(5)
	if loinc == "" && name == "" {
		return CandidateResult{}, false
	}
	if value == "" {
		return CandidateResult{}, false
	}

	cand := CandidateResult{
		LabOrderID:     orderID,
		PatientID:      patientID,
		LOINCCode:      loinc,
		TestName:       name,
		Value:          value,
		Units:          obx.GetComponent(6, 1),
		ReferenceRange: obx.GetField(7),
		SourceType:     results.SourceHL7,
		Confidence:     1.0,
		Verified:       true,
		ResultStatus:   results.StatusFinal,
	}

	if obx.GetField(2) == "NM" {
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			a.logger.Warn().Str("loinc", loinc).Str("value", value).Msg("OBX declares NM but value is not numeric")
			cand.NeedsReview = true
			cand.AddNote("value type NM but value not parseable as a number")
		} else {
			cand.Numeric = &n
		}
	}

	switch flag := obx.GetField(8); flag {
	case "HH", "H>":
		cand.AbnormalFlag = results.FlagCriticalHigh
		cand.CriticalFlag = true
	case "LL", "L<":
		cand.AbnormalFlag = results.FlagCriticalLow
		cand.CriticalFlag = true
	case "H":
		cand.AbnormalFlag = results.FlagHigh
	case "L":
		cand.AbnormalFlag = results.FlagLow
	}

	if status, ok := obxStatusMap[obx.GetField(11)]; ok {
		cand.ResultStatus = status
	}
	if cand.AbnormalFlag != results.FlagNone {
		cand.NeedsReview = true
	}

	if ts := obx.GetField(14); ts != "" {
		if t, err := parseHL7Time(ts); err == nil {
			cand.ResultedAt = &t
		}
	}

	return cand, true
}

func parseHL7Time(s string) (time.Time, error) {
	for _, layout := range []string{"20060102150405", "200601021504", "20060102"} {
		if len(s) == len(layout) {
			return time.Parse(layout, s)
		}
	}
	return time.Parse("20060102150405", s)
}
