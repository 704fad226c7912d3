package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mock repositories --

type mockRepo struct {
	orders map[uuid.UUID]*LabOrder
	nextAcc int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{orders: make(map[uuid.UUID]*LabOrder)}
}

func (m *mockRepo) Create(_ context.Context, o *LabOrder) error {
	o.ID = uuid.New()
	m.nextAcc++
	o.AccessionNo = m.nextAcc
	o.CreatedAt = time.Now()
	o.UpdatedAt = time.Now()
	m.orders[o.ID] = o
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*LabOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, o *LabOrder) error {
	if _, ok := m.orders[o.ID]; !ok {
		return fmt.Errorf("not found")
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockRepo) GetByExternalOrderID(_ context.Context, externalID string) (*LabOrder, error) {
	for _, o := range m.orders {
		if o.ExternalOrderID != nil && *o.ExternalOrderID == externalID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*LabOrder, int, error) {
	var out []*LabOrder
	for _, o := range m.orders {
		if o.PatientID == patientID {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByStatus(_ context.Context, status string, limit, offset int) ([]*LabOrder, int, error) {
	var out []*LabOrder
	for _, o := range m.orders {
		if o.OrderStatus == status {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

type mockPatients struct{ patients map[uuid.UUID]*Patient }

func (m *mockPatients) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockPatients) GetByMRN(_ context.Context, mrn string) (*Patient, error) {
	for _, p := range m.patients {
		if p.MRN == mrn {
			return p, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, &mockPatients{patients: map[uuid.UUID]*Patient{}}, zerolog.Nop()), repo
}

// -- Tests --

func TestValidateTransitionForwardOnly(t *testing.T) {
	forward := []string{
		StatusDraft, StatusSigned, StatusTransmitted, StatusAcknowledged,
		StatusCollected, StatusProcessing, StatusCompleted,
	}
	for i := 0; i < len(forward)-1; i++ {
		if err := ValidateTransition(forward[i], forward[i+1]); err != nil {
			t.Errorf("ValidateTransition(%s, %s) = %v", forward[i], forward[i+1], err)
		}
	}
	// Skipping ahead is forward, therefore allowed.
	if err := ValidateTransition(StatusSigned, StatusCollected); err != nil {
		t.Errorf("forward skip rejected: %v", err)
	}
	// Backward transitions are rejected.
	if err := ValidateTransition(StatusProcessing, StatusCollected); err == nil {
		t.Error("backward transition allowed")
	}
	if err := ValidateTransition(StatusCompleted, StatusDraft); err == nil {
		t.Error("completed -> draft allowed")
	}
}

func TestValidateTransitionTerminalStates(t *testing.T) {
	for _, from := range []string{StatusDraft, StatusSigned, StatusTransmitted, StatusProcessing} {
		if err := ValidateTransition(from, StatusCancelled); err != nil {
			t.Errorf("cancel from %s rejected: %v", from, err)
		}
		if err := ValidateTransition(from, StatusRejected); err != nil {
			t.Errorf("reject from %s rejected: %v", from, err)
		}
	}
	if err := ValidateTransition(StatusCompleted, StatusCancelled); err == nil {
		t.Error("cancelling a completed order allowed")
	}
	if err := ValidateTransition(StatusCancelled, StatusProcessing); err == nil {
		t.Error("leaving a terminal state allowed")
	}
}

func TestCreateDefaults(t *testing.T) {
	svc, _ := newTestService()
	o := &LabOrder{PatientID: uuid.New(), TestCode: "CBC", TestName: "Complete Blood Count"}
	if err := svc.Create(context.Background(), o); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if o.OrderStatus != StatusDraft {
		t.Errorf("OrderStatus = %s, want draft", o.OrderStatus)
	}
	if o.Priority != PriorityRoutine {
		t.Errorf("Priority = %s, want routine", o.Priority)
	}
	if o.AccessionNo == 0 {
		t.Error("AccessionNo not assigned")
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.Create(context.Background(), &LabOrder{TestCode: "CBC", TestName: "CBC"}); err == nil {
		t.Error("missing patient_id accepted")
	}
	if err := svc.Create(context.Background(), &LabOrder{PatientID: uuid.New(), TestName: "CBC"}); err == nil {
		t.Error("missing test_code accepted")
	}
	o := &LabOrder{PatientID: uuid.New(), TestCode: "CBC", TestName: "CBC", Priority: "asap"}
	if err := svc.Create(context.Background(), o); err == nil {
		t.Error("invalid priority accepted")
	}
}

func TestUpdateStatusStampsMilestones(t *testing.T) {
	svc, _ := newTestService()
	o := &LabOrder{PatientID: uuid.New(), TestCode: "TSH", TestName: "Thyroid Stimulating Hormone"}
	if err := svc.Create(context.Background(), o); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, status := range []string{StatusSigned, StatusTransmitted, StatusAcknowledged, StatusCollected, StatusProcessing, StatusCompleted} {
		var err error
		o, err = svc.UpdateStatus(context.Background(), o.ID, status)
		if err != nil {
			t.Fatalf("UpdateStatus(%s): %v", status, err)
		}
	}
	if o.TransmittedAt == nil || o.AcknowledgedAt == nil || o.CollectedAt == nil || o.CompletedAt == nil {
		t.Error("milestone timestamps not all stamped")
	}
}

func TestUpdateStatusRejectsBackward(t *testing.T) {
	svc, _ := newTestService()
	o := &LabOrder{PatientID: uuid.New(), TestCode: "CBC", TestName: "CBC", OrderStatus: StatusProcessing}
	if err := svc.Create(context.Background(), o); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), o.ID, StatusSigned); err == nil {
		t.Fatal("backward status change accepted")
	}
}

func TestAppendCustodyIsAppendOnly(t *testing.T) {
	svc, repo := newTestService()
	o := &LabOrder{PatientID: uuid.New(), TestCode: "CBC", TestName: "CBC"}
	if err := svc.Create(context.Background(), o); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first := CustodyEntry{Action: "collected", PerformedBy: "u1", Location: "Room 3"}
	if _, err := svc.AppendCustody(context.Background(), o.ID, first); err != nil {
		t.Fatalf("AppendCustody: %v", err)
	}
	second := CustodyEntry{Action: "received", PerformedBy: "u2", Location: "Lab intake"}
	updated, err := svc.AppendCustody(context.Background(), o.ID, second)
	if err != nil {
		t.Fatalf("AppendCustody: %v", err)
	}

	log := updated.Metadata.ChainOfCustody
	if len(log) != 2 {
		t.Fatalf("custody log length = %d, want 2", len(log))
	}
	if log[0].Action != "collected" || log[1].Action != "received" {
		t.Errorf("custody order wrong: %+v", log)
	}
	if log[0].Timestamp.IsZero() {
		t.Error("timestamp not defaulted")
	}

	stored, _ := repo.GetByID(context.Background(), o.ID)
	if len(stored.Metadata.ChainOfCustody) != 2 {
		t.Error("custody log not persisted")
	}
}
