package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo     Repository
	patients PatientRepository
	logger   zerolog.Logger
}

func NewService(repo Repository, patients PatientRepository, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		logger:   logger.With().Str("component", "orders").Logger(),
	}
}

var validPriorities = map[string]bool{
	PriorityStat: true, PriorityUrgent: true, PriorityRoutine: true,
}

func (s *Service) Create(ctx context.Context, o *LabOrder) error {
	if o.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if o.TestCode == "" {
		return fmt.Errorf("test_code is required")
	}
	if o.TestName == "" {
		return fmt.Errorf("test_name is required")
	}
	if o.Priority == "" {
		o.Priority = PriorityRoutine
	}
	if !validPriorities[o.Priority] {
		return fmt.Errorf("invalid priority: %s", o.Priority)
	}
	if o.OrderStatus == "" {
		o.OrderStatus = StatusDraft
	}
	return s.repo.Create(ctx, o)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*LabOrder, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return s.patients.GetByMRN(ctx, mrn)
}

func (s *Service) GetByExternalOrderID(ctx context.Context, externalID string) (*LabOrder, error) {
	return s.repo.GetByExternalOrderID(ctx, externalID)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabOrder, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Sign moves a draft order to signed. Signing itself (signatures, PINs) is a
// collaborator concern; this only advances the lifecycle.
func (s *Service) Sign(ctx context.Context, id uuid.UUID) (*LabOrder, error) {
	return s.UpdateStatus(ctx, id, StatusSigned)
}

// UpdateStatus advances the order through the validated lifecycle and stamps
// the milestone timestamp for the new status.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to string) (*LabOrder, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	if o.OrderStatus == to {
		return o, nil
	}
	if err := ValidateTransition(o.OrderStatus, to); err != nil {
		return nil, err
	}

	from := o.OrderStatus
	o.OrderStatus = to
	now := time.Now()
	switch to {
	case StatusTransmitted:
		o.TransmittedAt = &now
	case StatusAcknowledged:
		o.AcknowledgedAt = &now
	case StatusCollected:
		o.CollectedAt = &now
	case StatusCompleted:
		o.CompletedAt = &now
	}

	if err := s.repo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("update order %s: %w", id, err)
	}
	s.logger.Info().
		Str("order_id", id.String()).
		Str("from", from).
		Str("to", to).
		Msg("order status changed")
	return o, nil
}

// AppendCustody appends one immutable chain-of-custody entry to the order's
// metadata log.
func (s *Service) AppendCustody(ctx context.Context, id uuid.UUID, entry CustodyEntry) (*LabOrder, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	o.Metadata.ChainOfCustody = append(o.Metadata.ChainOfCustody, entry)
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("append custody entry: %w", err)
	}
	s.logger.Info().
		Str("order_id", id.String()).
		Str("action", entry.Action).
		Str("location", entry.Location).
		Msg("custody entry appended")
	return o, nil
}

// AppendStepLog records a human-readable lifecycle step message on the order.
func (s *Service) AppendStepLog(ctx context.Context, id uuid.UUID, step, message string) error {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load order %s: %w", id, err)
	}
	o.Metadata.StepLog = append(o.Metadata.StepLog, StepLogEntry{
		Timestamp: time.Now(),
		Step:      step,
		Message:   message,
	})
	return s.repo.Update(ctx, o)
}

// SetStorage records who collected the specimen and how it is stored.
func (s *Service) SetStorage(ctx context.Context, id uuid.UUID, collectedBy, storageTemp string) error {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load order %s: %w", id, err)
	}
	if collectedBy != "" {
		o.Metadata.CollectedBy = collectedBy
	}
	if storageTemp != "" {
		o.Metadata.StorageTemp = storageTemp
	}
	return s.repo.Update(ctx, o)
}

// SetRouting records the routing decision made at transmission time.
func (s *Service) SetRouting(ctx context.Context, id uuid.UUID, targetLab, externalOrderID string) (*LabOrder, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	o.TargetLab = &targetLab
	o.ExternalOrderID = &externalOrderID
	if err := s.repo.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("set routing: %w", err)
	}
	return o, nil
}
