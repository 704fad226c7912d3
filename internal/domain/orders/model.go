package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Order statuses, in lifecycle order. Cancelled and rejected are terminal
// and reachable from any non-completed state.
const (
	StatusDraft        = "draft"
	StatusSigned       = "signed"
	StatusTransmitted  = "transmitted"
	StatusAcknowledged = "acknowledged"
	StatusCollected    = "collected"
	StatusProcessing   = "processing"
	StatusCompleted    = "completed"
	StatusCancelled    = "cancelled"
	StatusRejected     = "rejected"
)

// statusSequence assigns each forward status its position in the lifecycle.
var statusSequence = map[string]int{
	StatusDraft:        0,
	StatusSigned:       1,
	StatusTransmitted:  2,
	StatusAcknowledged: 3,
	StatusCollected:    4,
	StatusProcessing:   5,
	StatusCompleted:    6,
}

// ErrInvalidTransition is returned when a status change would move the order
// backward or out of a terminal state.
var ErrInvalidTransition = fmt.Errorf("invalid order status transition")

// ValidateTransition checks that moving from one status to another respects
// the forward lifecycle ordering. Cancelled and rejected are allowed from any
// non-completed, non-terminal state.
func ValidateTransition(from, to string) error {
	if from == StatusCancelled || from == StatusRejected {
		return fmt.Errorf("%w: order is %s", ErrInvalidTransition, from)
	}
	if to == StatusCancelled || to == StatusRejected {
		if from == StatusCompleted {
			return fmt.Errorf("%w: cannot %s a completed order", ErrInvalidTransition, to)
		}
		return nil
	}

	fromSeq, ok := statusSequence[from]
	if !ok {
		return fmt.Errorf("%w: unknown from-status %q", ErrInvalidTransition, from)
	}
	toSeq, ok := statusSequence[to]
	if !ok {
		return fmt.Errorf("%w: unknown to-status %q", ErrInvalidTransition, to)
	}
	if toSeq < fromSeq {
		return fmt.Errorf("%w: %s -> %s moves backward", ErrInvalidTransition, from, to)
	}
	return nil
}

// Priorities.
const (
	PriorityStat    = "stat"
	PriorityUrgent  = "urgent"
	PriorityRoutine = "routine"
)

// CustodyEntry is one append-only chain-of-custody record, stored in the
// order's metadata. Entries are never mutated or removed once appended.
type CustodyEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	Action          string    `json:"action"`
	PerformedBy     string    `json:"performedBy"`
	PerformedByName string    `json:"performedByName,omitempty"`
	Location        string    `json:"location,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	Temperature     string    `json:"temperature,omitempty"`
}

// StepLogEntry is one human-readable lifecycle log line written by the
// simulator into the order's metadata.
type StepLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step"`
	Message   string    `json:"message"`
}

// Metadata is the LabOrder metadata bag: the custody log plus simulator
// bookkeeping.
type Metadata struct {
	ChainOfCustody []CustodyEntry `json:"chainOfCustody,omitempty"`
	StepLog        []StepLogEntry `json:"stepLog,omitempty"`
	CollectedBy    string         `json:"collectedBy,omitempty"`
	StorageTemp    string         `json:"storageTemp,omitempty"`
}

// LabOrder maps to the lab_order table: one ordered test for one patient.
type LabOrder struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	AccessionNo     int64      `db:"accession_no" json:"accession_no"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	EncounterID     *uuid.UUID `db:"encounter_id" json:"encounter_id,omitempty"`
	TestCode        string     `db:"test_code" json:"test_code"`
	TestName        string     `db:"test_name" json:"test_name"`
	LOINCCode       *string    `db:"loinc_code" json:"loinc_code,omitempty"`
	Priority        string     `db:"priority" json:"priority"`
	SpecimenType    *string    `db:"specimen_type" json:"specimen_type,omitempty"`
	ContainerType   *string    `db:"container_type" json:"container_type,omitempty"`
	VolumeML        *float64   `db:"volume_ml" json:"volume_ml,omitempty"`
	FastingRequired bool       `db:"fasting_required" json:"fasting_required"`
	OrderStatus     string     `db:"order_status" json:"order_status"`
	TargetLab       *string    `db:"target_lab" json:"target_lab,omitempty"`
	ExternalOrderID *string    `db:"external_order_id" json:"external_order_id,omitempty"`
	TransmittedAt   *time.Time `db:"transmitted_at" json:"transmitted_at,omitempty"`
	AcknowledgedAt  *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	CollectedAt     *time.Time `db:"collected_at" json:"collected_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Metadata        Metadata   `db:"metadata" json:"metadata"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Patient is the minimal read model needed for labels and HL7 lookups.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	MRN         string     `db:"mrn" json:"mrn"`
	FamilyName  string     `db:"family_name" json:"family_name"`
	GivenName   string     `db:"given_name" json:"given_name"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
}
