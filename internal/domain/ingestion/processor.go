package ingestion

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/labcore/labcore/internal/domain/results"
)

// Processor runs the unified validation pipeline over candidate results
// from any source adapter and hands the survivors to the results service.
//
// The pipeline order is fixed: catalog validation first so later stages
// see backfilled identifiers and ranges, then range-based flag derivation,
// then critical detection. Critical detection runs on every candidate, not
// just unflagged ones, so a sending system's missed panic value is still
// caught locally.
type Processor struct {
	catalog *Catalog
	results *results.Service
	logger  zerolog.Logger
}

// NewProcessor constructs the pipeline.
func NewProcessor(catalog *Catalog, resultSvc *results.Service, logger zerolog.Logger) *Processor {
	return &Processor{
		catalog: catalog,
		results: resultSvc,
		logger:  logger.With().Str("component", "processor").Logger(),
	}
}

// Options selects the optional pipeline stages. Critical detection is not
// an option; it always runs.
type Options struct {
	ValidateWithCatalog    bool
	GenerateInterpretation bool
	GeneratePatientMessage bool
}

// DefaultOptions enables every optional stage.
var DefaultOptions = Options{
	ValidateWithCatalog:    true,
	GenerateInterpretation: true,
	GeneratePatientMessage: true,
}

// Process validates and enriches candidates in place and returns the
// persistable results.
func (p *Processor) Process(cands []CandidateResult, opts Options) []*results.LabResult {
	out := make([]*results.LabResult, 0, len(cands))
	for i := range cands {
		cand := &cands[i]
		if opts.ValidateWithCatalog {
			p.catalog.Validate(cand)
		}
		deriveFlagFromRange(cand)
		DetectCritical(cand)
		if cand.CriticalFlag {
			cand.NeedsReview = true
		}
		r := cand.toLabResult()
		annotate(r, cand, opts)
		out = append(out, r)
	}
	return out
}

// ProcessAndSave runs the pipeline and persists the batch best-effort.
func (p *Processor) ProcessAndSave(ctx context.Context, cands []CandidateResult, opts Options) results.BatchOutcome {
	batch := p.Process(cands, opts)
	outcome := p.results.SaveBatch(ctx, batch)
	p.logger.Info().
		Int("candidates", len(cands)).
		Int("saved", outcome.Saved).
		Int("failed", outcome.Failed).
		Msg("ingestion batch processed")
	return outcome
}

// deriveFlagFromRange sets H or L on an unflagged numeric candidate whose
// value falls outside a parseable "low-high" reference range. Flags set by
// the source are left alone.
func deriveFlagFromRange(cand *CandidateResult) {
	if cand.AbnormalFlag != results.FlagNone || cand.Numeric == nil || cand.ReferenceRange == "" {
		return
	}
	low, high, ok := parseRange(cand.ReferenceRange)
	if !ok {
		return
	}
	switch {
	case low != nil && *cand.Numeric < *low:
		cand.AbnormalFlag = results.FlagLow
	case high != nil && *cand.Numeric > *high:
		cand.AbnormalFlag = results.FlagHigh
	}
}

// parseRange understands "3.5-5.1", "<200", and ">40" style ranges. A
// range it cannot parse is simply not used for flag derivation.
func parseRange(s string) (low, high *float64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil, false
	}
	if strings.HasPrefix(s, "<") {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s[1:]), 64); err == nil {
			return nil, &n, true
		}
		return nil, nil, false
	}
	if strings.HasPrefix(s, ">") {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s[1:]), 64); err == nil {
			return &n, nil, true
		}
		return nil, nil, false
	}
	// Split on the last hyphen so "0.6-1.2" parses and negative lows do
	// not confuse the split.
	idx := strings.LastIndex(s, "-")
	if idx <= 0 || idx == len(s)-1 {
		return nil, nil, false
	}
	lo, err1 := strconv.ParseFloat(strings.TrimSpace(s[:idx]), 64)
	hi, err2 := strconv.ParseFloat(strings.TrimSpace(s[idx+1:]), 64)
	if err1 != nil || err2 != nil {
		return nil, nil, false
	}
	return &lo, &hi, true
}

// annotate attaches the clinical interpretation and patient-facing message
// for flagged results, plus any processing notes accumulated upstream.
func annotate(r *results.LabResult, cand *CandidateResult, opts Options) {
	var interp string
	if opts.GenerateInterpretation {
		switch r.AbnormalFlag {
		case results.FlagCriticalHigh:
			interp = fmt.Sprintf("%s is critically high at %s. Immediate provider notification required.", r.TestName, r.ResultValue)
		case results.FlagCriticalLow:
			interp = fmt.Sprintf("%s is critically low at %s. Immediate provider notification required.", r.TestName, r.ResultValue)
		case results.FlagHigh:
			interp = fmt.Sprintf("%s is above the reference range.", r.TestName)
		case results.FlagLow:
			interp = fmt.Sprintf("%s is below the reference range.", r.TestName)
		}
	}
	if len(cand.Notes) > 0 {
		note := strings.Join(cand.Notes, "; ")
		if interp != "" {
			interp += " " + note
		} else {
			interp = note
		}
	}
	if interp != "" {
		r.Interpretation = &interp
	}

	if opts.GeneratePatientMessage && r.IsAbnormal() {
		var msg string
		if r.CriticalFlag {
			msg = fmt.Sprintf("Your %s result needs prompt attention. Your care team has been notified and will contact you.", r.TestName)
		} else {
			msg = fmt.Sprintf("Your %s result is outside the typical range. Your care team will review it and follow up if needed.", r.TestName)
		}
		r.PatientMessage = &msg
	}
}
