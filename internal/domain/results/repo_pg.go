package results

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const resultCols = `id, lab_order_id, patient_id, loinc_code, test_code, test_name,
	result_value, result_numeric, units, reference_range,
	abnormal_flag, critical_flag, result_status,
	source_type, source_confidence, verification_status, needs_review, review_status,
	interpretation, patient_message, resulted_at, created_at`

func (r *repoPG) scan(row pgx.Row) (*LabResult, error) {
	var lr LabResult
	err := row.Scan(&lr.ID, &lr.LabOrderID, &lr.PatientID, &lr.LOINCCode, &lr.TestCode, &lr.TestName,
		&lr.ResultValue, &lr.ResultNumeric, &lr.Units, &lr.ReferenceRange,
		&lr.AbnormalFlag, &lr.CriticalFlag, &lr.ResultStatus,
		&lr.SourceType, &lr.SourceConfidence, &lr.VerificationStatus, &lr.NeedsReview, &lr.ReviewStatus,
		&lr.Interpretation, &lr.PatientMessage, &lr.ResultedAt, &lr.CreatedAt)
	return &lr, err
}

func (r *repoPG) Create(ctx context.Context, lr *LabResult) error {
	lr.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lab_result (id, lab_order_id, patient_id, loinc_code, test_code, test_name,
			result_value, result_numeric, units, reference_range,
			abnormal_flag, critical_flag, result_status,
			source_type, source_confidence, verification_status, needs_review, review_status,
			interpretation, patient_message, resulted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		lr.ID, lr.LabOrderID, lr.PatientID, lr.LOINCCode, lr.TestCode, lr.TestName,
		lr.ResultValue, lr.ResultNumeric, lr.Units, lr.ReferenceRange,
		lr.AbnormalFlag, lr.CriticalFlag, lr.ResultStatus,
		lr.SourceType, lr.SourceConfidence, lr.VerificationStatus, lr.NeedsReview, lr.ReviewStatus,
		lr.Interpretation, lr.PatientMessage, lr.ResultedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+resultCols+` FROM lab_result WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabResult, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM lab_result WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+resultCols+` FROM lab_result WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*LabResult
	for rows.Next() {
		lr, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, lr)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*LabResult, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+resultCols+` FROM lab_result WHERE lab_order_id = $1
		ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*LabResult
	for rows.Next() {
		lr, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, lr)
	}
	return items, rows.Err()
}

func (r *repoPG) UpdateReviewStatus(ctx context.Context, id uuid.UUID, reviewStatus string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE lab_result SET review_status = $2, needs_review = ($2 = 'pending') WHERE id = $1`,
		id, reviewStatus)
	return err
}
