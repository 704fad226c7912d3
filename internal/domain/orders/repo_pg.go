package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const orderCols = `id, accession_no, patient_id, encounter_id, test_code, test_name, loinc_code,
	priority, specimen_type, container_type, volume_ml, fasting_required,
	order_status, target_lab, external_order_id,
	transmitted_at, acknowledged_at, collected_at, completed_at,
	metadata, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*LabOrder, error) {
	var o LabOrder
	var meta []byte
	err := row.Scan(&o.ID, &o.AccessionNo, &o.PatientID, &o.EncounterID, &o.TestCode, &o.TestName, &o.LOINCCode,
		&o.Priority, &o.SpecimenType, &o.ContainerType, &o.VolumeML, &o.FastingRequired,
		&o.OrderStatus, &o.TargetLab, &o.ExternalOrderID,
		&o.TransmittedAt, &o.AcknowledgedAt, &o.CollectedAt, &o.CompletedAt,
		&meta, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &o.Metadata); err != nil {
			return nil, fmt.Errorf("decode order metadata: %w", err)
		}
	}
	return &o, nil
}

func (r *repoPG) Create(ctx context.Context, o *LabOrder) error {
	o.ID = uuid.New()
	meta, err := json.Marshal(o.Metadata)
	if err != nil {
		return fmt.Errorf("encode order metadata: %w", err)
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO lab_order (id, patient_id, encounter_id, test_code, test_name, loinc_code,
			priority, specimen_type, container_type, volume_ml, fasting_required,
			order_status, target_lab, external_order_id, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING accession_no, created_at, updated_at`,
		o.ID, o.PatientID, o.EncounterID, o.TestCode, o.TestName, o.LOINCCode,
		o.Priority, o.SpecimenType, o.ContainerType, o.VolumeML, o.FastingRequired,
		o.OrderStatus, o.TargetLab, o.ExternalOrderID, meta).
		Scan(&o.AccessionNo, &o.CreatedAt, &o.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabOrder, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+orderCols+` FROM lab_order WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, o *LabOrder) error {
	meta, err := json.Marshal(o.Metadata)
	if err != nil {
		return fmt.Errorf("encode order metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE lab_order SET order_status=$2, target_lab=$3, external_order_id=$4,
			transmitted_at=$5, acknowledged_at=$6, collected_at=$7, completed_at=$8,
			metadata=$9, updated_at=NOW()
		WHERE id = $1`,
		o.ID, o.OrderStatus, o.TargetLab, o.ExternalOrderID,
		o.TransmittedAt, o.AcknowledgedAt, o.CollectedAt, o.CompletedAt, meta)
	return err
}

func (r *repoPG) GetByExternalOrderID(ctx context.Context, externalID string) (*LabOrder, error) {
	return r.scan(r.pool.QueryRow(ctx,
		`SELECT `+orderCols+` FROM lab_order WHERE external_order_id = $1`, externalID))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*LabOrder, int, error) {
	return r.list(ctx, `patient_id = $1`, patientID, limit, offset)
}

func (r *repoPG) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*LabOrder, int, error) {
	return r.list(ctx, `order_status = $1`, status, limit, offset)
}

func (r *repoPG) list(ctx context.Context, where string, arg interface{}, limit, offset int) ([]*LabOrder, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM lab_order WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderCols+` FROM lab_order WHERE `+where+
		` ORDER BY created_at DESC LIMIT $2 OFFSET $3`, arg, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*LabOrder
	for rows.Next() {
		o, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.pool.QueryRow(ctx,
		`SELECT id, mrn, family_name, given_name, date_of_birth FROM patient WHERE id = $1`, id).
		Scan(&p.ID, &p.MRN, &p.FamilyName, &p.GivenName, &p.DateOfBirth)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	var p Patient
	err := r.pool.QueryRow(ctx,
		`SELECT id, mrn, family_name, given_name, date_of_birth FROM patient WHERE mrn = $1`, mrn).
		Scan(&p.ID, &p.MRN, &p.FamilyName, &p.GivenName, &p.DateOfBirth)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
