package results

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *LabResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabResult, int, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*LabResult, error)
	UpdateReviewStatus(ctx context.Context, id uuid.UUID, reviewStatus string) error
}
