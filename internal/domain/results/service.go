package results

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "results").Logger(),
	}
}

var validResultStatuses = map[string]bool{
	StatusPreliminary: true, StatusFinal: true, StatusCorrected: true, StatusCancelled: true,
}

var validSourceTypes = map[string]bool{
	SourceAttachment: true, SourceHL7: true, SourceFHIR: true, SourceAPI: true,
	SourceManual: true, SourceProviderEntered: true, SourcePatientReported: true,
}

// Create validates and persists one result. The critical-implies-review
// invariant and the confidence bound are enforced here, last, so no upstream
// path can undo them.
func (s *Service) Create(ctx context.Context, r *LabResult) error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if r.TestName == "" {
		return fmt.Errorf("test_name is required")
	}
	if r.ResultValue == "" {
		return fmt.Errorf("result_value is required")
	}
	if r.ResultStatus == "" {
		r.ResultStatus = StatusFinal
	}
	if !validResultStatuses[r.ResultStatus] {
		return fmt.Errorf("invalid result_status: %s", r.ResultStatus)
	}
	if !validSourceTypes[r.SourceType] {
		return fmt.Errorf("invalid source_type: %s", r.SourceType)
	}
	if r.ReviewStatus == "" {
		r.ReviewStatus = ReviewPending
	}
	if r.VerificationStatus == "" {
		r.VerificationStatus = VerificationUnverified
	}

	r.SourceConfidence = NormalizeConfidence(r.SourceConfidence)
	if r.CriticalFlag {
		r.NeedsReview = true
	}

	return s.repo.Create(ctx, r)
}

// BatchOutcome reports a best-effort batch save. Partial success is the
// norm, not an error: 7 of 8 panel components saved is reported as such.
type BatchOutcome struct {
	Saved  int      `json:"saved"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
	IDs    []string `json:"ids,omitempty"`
}

// SaveBatch persists each result independently. A failed row is logged and
// counted; it never aborts the rest of the batch.
func (s *Service) SaveBatch(ctx context.Context, batch []*LabResult) BatchOutcome {
	var out BatchOutcome
	for i, r := range batch {
		if err := s.Create(ctx, r); err != nil {
			out.Failed++
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", r.TestName, err))
			s.logger.Error().
				Err(err).
				Int("index", i).
				Str("test_name", r.TestName).
				Str("source_type", r.SourceType).
				Msg("failed to save result, continuing batch")
			continue
		}
		out.Saved++
		out.IDs = append(out.IDs, r.ID.String())
	}
	return out
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabResult, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*LabResult, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

var validReviewStatuses = map[string]bool{
	ReviewPending: true, ReviewReviewed: true, ReviewDismissed: true,
}

func (s *Service) Review(ctx context.Context, id uuid.UUID, reviewStatus string) error {
	if !validReviewStatuses[reviewStatus] {
		return fmt.Errorf("invalid review_status: %s", reviewStatus)
	}
	return s.repo.UpdateReviewStatus(ctx, id, reviewStatus)
}
