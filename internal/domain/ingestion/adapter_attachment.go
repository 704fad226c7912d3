package ingestion

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labcore/labcore/internal/domain/results"
	"github.com/labcore/labcore/internal/platform/extraction"
)

// AttachmentAdapter turns document-extraction candidates into candidate
// results. Extracted values are never trusted blindly; every candidate it
// emits requires human review regardless of extractor confidence.
type AttachmentAdapter struct {
	extractor extraction.Extractor
	logger    zerolog.Logger
}

// NewAttachmentAdapter constructs an attachment adapter over the given
// extraction backend.
func NewAttachmentAdapter(extractor extraction.Extractor, logger zerolog.Logger) *AttachmentAdapter {
	return &AttachmentAdapter{
		extractor: extractor,
		logger:    logger.With().Str("adapter", "attachment").Logger(),
	}
}

// Translate runs text extraction on the document body and converts the
// lab-relevant candidates. Vital-sign measurements are dropped since they
// belong to the vitals subsystem, not lab results.
func (a *AttachmentAdapter) Translate(ctx context.Context, patientID uuid.UUID, text string) ([]CandidateResult, error) {
	raw, err := a.extractor.ExtractText(ctx, text)
	if err != nil {
		return nil, err
	}

	out := make([]CandidateResult, 0, len(raw))
	for _, rc := range raw {
		if isVitalSign(rc.Field, rc.Category) {
			a.logger.Debug().Str("field", rc.Field).Msg("dropping vital sign candidate")
			continue
		}
		cand := CandidateResult{
			PatientID:    patientID,
			TestName:     rc.Field,
			Value:        rc.Value,
			Units:        rc.Units,
			Category:     rc.Category,
			SourceType:   results.SourceAttachment,
			Confidence:   results.NormalizeConfidence(rc.Confidence),
			ResultStatus: results.StatusFinal,
			NeedsReview:  true,
		}
		if n, err := strconv.ParseFloat(strings.TrimSpace(rc.Value), 64); err == nil {
			cand.Numeric = &n
		}
		out = append(out, cand)
	}
	return out, nil
}
