package ingestion

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labcore/labcore/internal/domain/results"
	"github.com/labcore/labcore/internal/platform/extraction"
)

type fakeExtractor struct {
	candidates []extraction.Candidate
	err        error
}

func (f *fakeExtractor) ExtractText(_ context.Context, _ string) ([]extraction.Candidate, error) {
	return f.candidates, f.err
}

func TestAttachmentDropsVitalSigns(t *testing.T) {
	ex := &fakeExtractor{candidates: []extraction.Candidate{
		{Field: "Glucose", Value: "95", Units: "mg/dL", Confidence: 0.92},
		{Field: "Blood Pressure", Value: "120/80", Units: "mmHg", Confidence: 0.97},
		{Field: "Heart Rate", Value: "72", Units: "bpm", Confidence: 0.95},
		{Field: "Hemoglobin A1c", Value: "5.4", Units: "%", Confidence: 0.88},
		{Field: "Respirations", Value: "16", Category: "Vital Signs", Confidence: 0.9},
	}}
	adapter := NewAttachmentAdapter(ex, zerolog.Nop())

	cands, err := adapter.Translate(context.Background(), uuid.New(), "scanned report")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("candidates = %d, want 2 (vitals dropped)", len(cands))
	}
	if cands[0].TestName != "Glucose" || cands[1].TestName != "Hemoglobin A1c" {
		t.Errorf("wrong survivors: %q, %q", cands[0].TestName, cands[1].TestName)
	}
}

func TestAttachmentAlwaysNeedsReview(t *testing.T) {
	ex := &fakeExtractor{candidates: []extraction.Candidate{
		{Field: "Glucose", Value: "95", Units: "mg/dL", Confidence: 0.99},
	}}
	cands, err := NewAttachmentAdapter(ex, zerolog.Nop()).Translate(context.Background(), uuid.New(), "doc")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !cands[0].NeedsReview {
		t.Error("extracted candidate not marked for review")
	}
	if cands[0].SourceType != results.SourceAttachment {
		t.Errorf("SourceType = %q", cands[0].SourceType)
	}
	if cands[0].Verified {
		t.Error("extracted candidate marked verified")
	}
}

func TestAttachmentNormalizesPercentConfidence(t *testing.T) {
	ex := &fakeExtractor{candidates: []extraction.Candidate{
		{Field: "Glucose", Value: "95", Confidence: 92},
		{Field: "Sodium", Value: "140", Confidence: 150},
	}}
	cands, err := NewAttachmentAdapter(ex, zerolog.Nop()).Translate(context.Background(), uuid.New(), "doc")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if cands[0].Confidence != 0.92 {
		t.Errorf("confidence 92 normalized to %v, want 0.92", cands[0].Confidence)
	}
	if cands[1].Confidence != 1.0 {
		t.Errorf("confidence 150 normalized to %v, want 1.0", cands[1].Confidence)
	}
}

func TestAttachmentExtractorFailure(t *testing.T) {
	ex := &fakeExtractor{err: fmt.Errorf("service unavailable")}
	if _, err := NewAttachmentAdapter(ex, zerolog.Nop()).Translate(context.Background(), uuid.New(), "doc"); err == nil {
		t.Error("extractor failure swallowed")
	}
}
