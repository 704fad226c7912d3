package custody

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labcore/labcore/internal/domain/orders"
)

// -- Mocks --

type memOrderRepo struct {
	orders map[uuid.UUID]*orders.LabOrder
}

func (m *memOrderRepo) Create(_ context.Context, o *orders.LabOrder) error {
	o.ID = uuid.New()
	o.AccessionNo = int64(len(m.orders) + 1)
	m.orders[o.ID] = o
	return nil
}

func (m *memOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*orders.LabOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) Update(_ context.Context, o *orders.LabOrder) error {
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrderRepo) GetByExternalOrderID(_ context.Context, _ string) (*orders.LabOrder, error) {
	return nil, fmt.Errorf("not found")
}

func (m *memOrderRepo) ListByPatient(_ context.Context, _ uuid.UUID, _, _ int) ([]*orders.LabOrder, int, error) {
	return nil, 0, nil
}

func (m *memOrderRepo) ListByStatus(_ context.Context, _ string, _, _ int) ([]*orders.LabOrder, int, error) {
	return nil, 0, nil
}

type memPatientRepo struct{ patient *orders.Patient }

func (m *memPatientRepo) GetByID(_ context.Context, _ uuid.UUID) (*orders.Patient, error) {
	return m.patient, nil
}

func (m *memPatientRepo) GetByMRN(_ context.Context, _ string) (*orders.Patient, error) {
	return m.patient, nil
}

func strptr(s string) *string    { return &s }
func f64ptr(v float64) *float64  { return &v }

func newTestService(t *testing.T) (*Service, *memOrderRepo) {
	t.Helper()
	repo := &memOrderRepo{orders: make(map[uuid.UUID]*orders.LabOrder)}
	dob := time.Date(1984, 3, 12, 0, 0, 0, 0, time.UTC)
	patients := &memPatientRepo{patient: &orders.Patient{
		ID: uuid.New(), MRN: "MRN0012345", GivenName: "Jane", FamilyName: "Doe", DateOfBirth: &dob,
	}}
	orderSvc := orders.NewService(repo, patients, zerolog.Nop())
	return NewService(orderSvc, zerolog.Nop()), repo
}

func fastingGlucoseOrder(repo *memOrderRepo) *orders.LabOrder {
	o := &orders.LabOrder{
		PatientID:       uuid.New(),
		TestCode:        "GLU",
		TestName:        "Glucose",
		Priority:        orders.PriorityRoutine,
		SpecimenType:    strptr("serum"),
		ContainerType:   strptr("gold top"),
		VolumeML:        f64ptr(5.0),
		FastingRequired: true,
		OrderStatus:     orders.StatusAcknowledged,
	}
	_ = repo.Create(context.Background(), o)
	return o
}

// -- Tests --

var barcodePattern = regexp.MustCompile(`^LAB-\d{6}-\d{6}-[0-9A-Z]+$`)

func TestGenerateLabel(t *testing.T) {
	svc, repo := newTestService(t)
	o := fastingGlucoseOrder(repo)

	label, err := svc.GenerateLabel(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("GenerateLabel: %v", err)
	}
	if !barcodePattern.MatchString(label.Barcode) {
		t.Errorf("barcode %q does not match LAB-xxxxxx-xxxxxx-ts", label.Barcode)
	}
	if label.PatientName != "Jane Doe" || label.MRN != "MRN0012345" {
		t.Errorf("patient fields wrong: %q %q", label.PatientName, label.MRN)
	}
	if label.TestName != "Glucose" || label.SpecimenType != "serum" || !label.FastingRequired {
		t.Errorf("order fields wrong: %+v", label)
	}
	img, err := base64.StdEncoding.DecodeString(label.ImagePNG)
	if err != nil {
		t.Fatalf("image not base64: %v", err)
	}
	if len(img) < 8 || string(img[1:4]) != "PNG" {
		t.Error("image is not a PNG")
	}
}

func TestGenerateLabelBarcodesDifferOnlyInTimestamp(t *testing.T) {
	svc, repo := newTestService(t)
	o := fastingGlucoseOrder(repo)

	base := time.Now()
	svc.now = func() time.Time { return base }
	first, err := svc.GenerateLabel(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("GenerateLabel: %v", err)
	}
	svc.now = func() time.Time { return base.Add(5 * time.Millisecond) }
	second, err := svc.GenerateLabel(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("GenerateLabel: %v", err)
	}

	if first.Barcode == second.Barcode {
		t.Error("repeated labels produced identical barcodes")
	}
	// Accession and MRN segments are stable.
	if first.Barcode[:len("LAB-000001-012345")] != second.Barcode[:len("LAB-000001-012345")] {
		t.Errorf("stable segments differ: %q vs %q", first.Barcode, second.Barcode)
	}
	if first.PatientName != second.PatientName || first.TestName != second.TestName {
		t.Error("label fields differ between calls")
	}
}

func TestGenerateLabelBarcodesDistinctWithinSameMillisecond(t *testing.T) {
	svc, repo := newTestService(t)
	o := fastingGlucoseOrder(repo)

	frozen := time.Now()
	svc.now = func() time.Time { return frozen }
	first, err := svc.GenerateLabel(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("GenerateLabel: %v", err)
	}
	second, err := svc.GenerateLabel(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("GenerateLabel: %v", err)
	}
	if first.Barcode == second.Barcode {
		t.Errorf("labels within the same millisecond share barcode %q", first.Barcode)
	}
}

func TestValidateCollectionSpecimenMismatchIsError(t *testing.T) {
	svc, repo := newTestService(t)
	o := fastingGlucoseOrder(repo)

	check, err := svc.ValidateCollection(context.Background(), o.ID, CollectionData{
		SpecimenType:     "urine",
		ContainerType:    "gold top",
		FastingConfirmed: true,
	})
	if err != nil {
		t.Fatalf("ValidateCollection: %v", err)
	}
	if check.IsValid {
		t.Error("specimen mismatch passed validation")
	}
	if len(check.Errors) != 1 {
		t.Errorf("errors = %v", check.Errors)
	}
}

func TestValidateCollectionContainerMismatchIsWarning(t *testing.T) {
	svc, repo := newTestService(t)
	o := fastingGlucoseOrder(repo)

	check, err := svc.ValidateCollection(context.Background(), o.ID, CollectionData{
		SpecimenType:     "serum",
		ContainerType:    "lavender top",
		FastingConfirmed: true,
	})
	if err != nil {
		t.Fatalf("ValidateCollection: %v", err)
	}
	if !check.IsValid {
		t.Errorf("container mismatch treated as error: %v", check.Errors)
	}
	if len(check.Warnings) != 1 {
		t.Errorf("warnings = %v", check.Warnings)
	}
}

func TestValidateCollectionFastingNotConfirmed(t *testing.T) {
	svc, repo := newTestService(t)
	o := fastingGlucoseOrder(repo)

	check, err := svc.ValidateCollection(context.Background(), o.ID, CollectionData{
		SpecimenType:  "serum",
		ContainerType: "gold top",
	})
	if err != nil {
		t.Fatalf("ValidateCollection: %v", err)
	}
	if check.IsValid {
		t.Error("unconfirmed fasting passed validation")
	}
}

func TestValidateCollectionLowVolumeAndTimingWarn(t *testing.T) {
	svc, repo := newTestService(t)
	o := fastingGlucoseOrder(repo)

	check, err := svc.ValidateCollection(context.Background(), o.ID, CollectionData{
		SpecimenType:     "serum",
		ContainerType:    "gold top",
		VolumeML:         f64ptr(3.0), // required 5.0, under 80%
		FastingConfirmed: true,
		Timing:           "trough",
	})
	if err != nil {
		t.Fatalf("ValidateCollection: %v", err)
	}
	if !check.IsValid {
		t.Errorf("warnings blocked validation: %v", check.Errors)
	}
	if len(check.Warnings) != 2 {
		t.Errorf("warnings = %v, want volume + timing", check.Warnings)
	}

	// Volume at 80% or above does not warn.
	check, _ = svc.ValidateCollection(context.Background(), o.ID, CollectionData{
		SpecimenType: "serum", ContainerType: "gold top", VolumeML: f64ptr(4.0), FastingConfirmed: true,
	})
	if len(check.Warnings) != 0 {
		t.Errorf("80%% volume warned: %v", check.Warnings)
	}
}

func TestUpdateSpecimenStatusMapsToOrderLifecycle(t *testing.T) {
	svc, repo := newTestService(t)
	o := fastingGlucoseOrder(repo)

	updated, err := svc.UpdateSpecimenStatus(context.Background(), o.ID, "collected", StatusDetails{
		PerformedBy: "u-77", Location: "Draw station 2", Temperature: "refrigerated",
	})
	if err != nil {
		t.Fatalf("UpdateSpecimenStatus: %v", err)
	}
	if updated.OrderStatus != orders.StatusCollected {
		t.Errorf("order status = %s, want collected", updated.OrderStatus)
	}
	if len(updated.Metadata.ChainOfCustody) != 1 {
		t.Fatalf("custody entries = %d, want 1", len(updated.Metadata.ChainOfCustody))
	}
	if updated.Metadata.StorageTemp != "refrigerated" || updated.Metadata.CollectedBy != "u-77" {
		t.Errorf("storage info not recorded: %+v", updated.Metadata)
	}

	updated, err = svc.UpdateSpecimenStatus(context.Background(), o.ID, "received", StatusDetails{PerformedBy: "u-80"})
	if err != nil {
		t.Fatalf("UpdateSpecimenStatus received: %v", err)
	}
	if updated.OrderStatus != orders.StatusProcessing {
		t.Errorf("received mapped to %s, want processing", updated.OrderStatus)
	}
	if len(updated.Metadata.ChainOfCustody) != 2 {
		t.Error("custody log not append-only")
	}
}

func TestUpdateSpecimenStatusRejectedCancelsOrder(t *testing.T) {
	svc, repo := newTestService(t)
	o := fastingGlucoseOrder(repo)

	updated, err := svc.UpdateSpecimenStatus(context.Background(), o.ID, "rejected", StatusDetails{
		PerformedBy: "u-90", Notes: "hemolyzed",
	})
	if err != nil {
		t.Fatalf("UpdateSpecimenStatus: %v", err)
	}
	if updated.OrderStatus != orders.StatusCancelled {
		t.Errorf("rejected mapped to %s, want cancelled", updated.OrderStatus)
	}
}

func TestUpdateSpecimenStatusUnknown(t *testing.T) {
	svc, repo := newTestService(t)
	o := fastingGlucoseOrder(repo)
	if _, err := svc.UpdateSpecimenStatus(context.Background(), o.ID, "teleported", StatusDetails{}); err == nil {
		t.Error("unknown specimen status accepted")
	}
}

func TestCheckSpecimenStability(t *testing.T) {
	svc, repo := newTestService(t)
	o := fastingGlucoseOrder(repo)

	base := time.Now()
	svc.now = func() time.Time { return base }
	if _, err := svc.UpdateSpecimenStatus(context.Background(), o.ID, "collected", StatusDetails{PerformedBy: "u-1"}); err != nil {
		t.Fatalf("UpdateSpecimenStatus: %v", err)
	}

	// Serum at room temperature is stable for 4 hours.
	svc.now = func() time.Time { return base.Add(3 * time.Hour) }
	check, err := svc.CheckSpecimenStability(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("CheckSpecimenStability: %v", err)
	}
	if !check.Stable {
		t.Errorf("3h room serum unstable: %+v", check)
	}

	svc.now = func() time.Time { return base.Add(5 * time.Hour) }
	check, err = svc.CheckSpecimenStability(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("CheckSpecimenStability: %v", err)
	}
	if check.Stable {
		t.Error("5h room serum still stable")
	}
	if check.Warning == "" {
		t.Error("unstable specimen missing warning")
	}
}

func TestCheckSpecimenStabilityRefrigerated(t *testing.T) {
	svc, repo := newTestService(t)
	o := fastingGlucoseOrder(repo)

	base := time.Now()
	svc.now = func() time.Time { return base }
	if _, err := svc.UpdateSpecimenStatus(context.Background(), o.ID, "collected", StatusDetails{
		PerformedBy: "u-1", Temperature: "refrigerated",
	}); err != nil {
		t.Fatalf("UpdateSpecimenStatus: %v", err)
	}

	svc.now = func() time.Time { return base.Add(24 * time.Hour) }
	check, err := svc.CheckSpecimenStability(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("CheckSpecimenStability: %v", err)
	}
	if !check.Stable || check.LimitHours != 48 {
		t.Errorf("refrigerated check wrong: %+v", check)
	}
}

func TestCheckSpecimenStabilityNoCollection(t *testing.T) {
	svc, repo := newTestService(t)
	o := fastingGlucoseOrder(repo)
	if _, err := svc.CheckSpecimenStability(context.Background(), o.ID); err == nil {
		t.Error("stability check without collection accepted")
	}
}
