// Package custody covers specimen handling: label generation, collection
// validation, the chain-of-custody log, and stability checks.
package custody

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labcore/labcore/internal/domain/orders"
	"github.com/labcore/labcore/internal/platform/barcode"
)

// Specimen statuses accepted by UpdateSpecimenStatus, with the order status
// each one advances the order to.
var specimenStatusMap = map[string]string{
	"collected": orders.StatusCollected,
	"received":  orders.StatusProcessing,
	"completed": orders.StatusCompleted,
	"rejected":  orders.StatusCancelled,
}

// Service implements specimen tracking on top of the order lifecycle.
type Service struct {
	orders *orders.Service
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	lastStamp int64
}

func NewService(orderSvc *orders.Service, logger zerolog.Logger) *Service {
	return &Service{
		orders: orderSvc,
		logger: logger.With().Str("component", "custody").Logger(),
		now:    time.Now,
	}
}

// Label is a printable specimen label. ImagePNG is the base64-encoded
// Code 128 rendering of Barcode.
type Label struct {
	Barcode         string     `json:"barcode"`
	ImagePNG        string     `json:"image_png"`
	PatientName     string     `json:"patient_name"`
	MRN             string     `json:"mrn"`
	DateOfBirth     *time.Time `json:"date_of_birth,omitempty"`
	TestName        string     `json:"test_name"`
	SpecimenType    string     `json:"specimen_type,omitempty"`
	ContainerType   string     `json:"container_type,omitempty"`
	FastingRequired bool       `json:"fasting_required"`
	Priority        string     `json:"priority"`
	GeneratedAt     time.Time  `json:"generated_at"`
}

// GenerateLabel builds a specimen label for the order. The barcode embeds
// the accession number, the patient MRN, and a millisecond timestamp, so
// repeated calls for the same order produce distinct barcodes.
func (s *Service) GenerateLabel(ctx context.Context, orderID uuid.UUID) (*Label, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	p, err := s.orders.GetPatient(ctx, o.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient %s: %w", o.PatientID, err)
	}

	now := s.now()
	value := barcodeValue(o.AccessionNo, p.MRN, s.stamp())
	img, err := barcode.EncodePNG(value, 300, 80)
	if err != nil {
		return nil, err
	}

	label := &Label{
		Barcode:         value,
		ImagePNG:        base64.StdEncoding.EncodeToString(img),
		PatientName:     p.GivenName + " " + p.FamilyName,
		MRN:             p.MRN,
		DateOfBirth:     p.DateOfBirth,
		TestName:        o.TestName,
		FastingRequired: o.FastingRequired,
		Priority:        o.Priority,
		GeneratedAt:     now,
	}
	if o.SpecimenType != nil {
		label.SpecimenType = *o.SpecimenType
	}
	if o.ContainerType != nil {
		label.ContainerType = *o.ContainerType
	}
	return label, nil
}

// stamp returns the current millisecond timestamp, bumped past the previous
// stamp when two labels are generated within the same millisecond.
func (s *Service) stamp() int64 {
	ms := s.now().UnixMilli()
	s.mu.Lock()
	if ms <= s.lastStamp {
		ms = s.lastStamp + 1
	}
	s.lastStamp = ms
	s.mu.Unlock()
	return ms
}

// barcodeValue builds LAB-{accession}-{mrn}-{ts}: both numeric components
// reduced mod 1e6 and zero-padded, the timestamp in base36 milliseconds.
func barcodeValue(accessionNo int64, mrn string, stamp int64) string {
	return fmt.Sprintf("LAB-%06d-%06d-%s",
		accessionNo%1000000,
		mrnNumber(mrn)%1000000,
		strings.ToUpper(strconv.FormatInt(stamp, 36)))
}

// mrnNumber extracts the numeric part of an MRN such as "MRN0012345".
func mrnNumber(mrn string) int64 {
	var digits strings.Builder
	for _, r := range mrn {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		// Numeric overflow on an absurdly long MRN; fold it down.
		n, _ = strconv.ParseInt(digits.String()[digits.Len()-6:], 10, 64)
	}
	return n
}

// CollectionData is what the phlebotomist reports at draw time.
type CollectionData struct {
	SpecimenType     string     `json:"specimen_type"`
	ContainerType    string     `json:"container_type"`
	VolumeML         *float64   `json:"volume_ml,omitempty"`
	FastingConfirmed bool       `json:"fasting_confirmed"`
	CollectedAt      *time.Time `json:"collected_at,omitempty"`
	Timing           string     `json:"timing,omitempty"` // trough, peak, fasting
	CollectedBy      string     `json:"collected_by,omitempty"`
}

// CollectionCheck is the validation verdict. Errors block collection;
// warnings accompany an otherwise valid draw.
type CollectionCheck struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateCollection checks reported collection details against the order.
// Wrong specimen type and unconfirmed fasting are hard failures; container
// and volume discrepancies are recoverable and only warn.
func (s *Service) ValidateCollection(ctx context.Context, orderID uuid.UUID, data CollectionData) (*CollectionCheck, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}

	check := &CollectionCheck{}
	if o.SpecimenType != nil && data.SpecimenType != "" && !strings.EqualFold(*o.SpecimenType, data.SpecimenType) {
		check.Errors = append(check.Errors, fmt.Sprintf(
			"specimen type mismatch: order requires %s, got %s", *o.SpecimenType, data.SpecimenType))
	}
	if o.ContainerType != nil && data.ContainerType != "" && !strings.EqualFold(*o.ContainerType, data.ContainerType) {
		check.Warnings = append(check.Warnings, fmt.Sprintf(
			"container mismatch: order specifies %s, got %s", *o.ContainerType, data.ContainerType))
	}
	if o.FastingRequired && !data.FastingConfirmed {
		check.Errors = append(check.Errors, "fasting required but not confirmed")
	}
	if o.VolumeML != nil && data.VolumeML != nil && *data.VolumeML < *o.VolumeML*0.8 {
		check.Warnings = append(check.Warnings, fmt.Sprintf(
			"volume %.1f mL is under the required %.1f mL", *data.VolumeML, *o.VolumeML))
	}
	switch strings.ToLower(data.Timing) {
	case "":
	case "trough":
		check.Warnings = append(check.Warnings, "trough draw: confirm timing relative to last dose")
	case "peak":
		check.Warnings = append(check.Warnings, "peak draw: confirm timing relative to last dose")
	case "fasting":
		check.Warnings = append(check.Warnings, "fasting draw: confirm fasting duration with patient")
	default:
		check.Warnings = append(check.Warnings, fmt.Sprintf("unrecognized timing instruction %q", data.Timing))
	}

	check.IsValid = len(check.Errors) == 0
	if check.IsValid {
		s.logger.Info().Str("order_id", orderID.String()).Int("warnings", len(check.Warnings)).Msg("collection validated")
	} else {
		s.logger.Warn().Str("order_id", orderID.String()).Strs("errors", check.Errors).Msg("collection rejected")
	}
	return check, nil
}

// StatusDetails accompanies a specimen status update.
type StatusDetails struct {
	PerformedBy     string `json:"performed_by"`
	PerformedByName string `json:"performed_by_name,omitempty"`
	Location        string `json:"location,omitempty"`
	Notes           string `json:"notes,omitempty"`
	Temperature     string `json:"temperature,omitempty"` // room, refrigerated, frozen
}

// UpdateSpecimenStatus appends one immutable custody entry and advances the
// order through the matching lifecycle transition.
func (s *Service) UpdateSpecimenStatus(ctx context.Context, orderID uuid.UUID, status string, details StatusDetails) (*orders.LabOrder, error) {
	orderStatus, ok := specimenStatusMap[status]
	if !ok {
		return nil, fmt.Errorf("unknown specimen status %q", status)
	}

	if _, err := s.orders.AppendCustody(ctx, orderID, orders.CustodyEntry{
		Timestamp:       s.now(),
		Action:          status,
		PerformedBy:     details.PerformedBy,
		PerformedByName: details.PerformedByName,
		Location:        details.Location,
		Notes:           details.Notes,
		Temperature:     details.Temperature,
	}); err != nil {
		return nil, err
	}

	if status == "collected" {
		if err := s.orders.SetStorage(ctx, orderID, details.PerformedBy, details.Temperature); err != nil {
			return nil, err
		}
	}

	return s.orders.UpdateStatus(ctx, orderID, orderStatus)
}

// Stability limits in hours, keyed by storage temperature. Room limits
// vary by specimen type; the others are uniform.
var (
	roomLimits = map[string]float64{
		"whole blood": 8,
		"serum":       4,
		"plasma":      4,
		"urine":       2,
	}
	roomDefaultHours  = 4.0
	refrigeratedHours = 48.0
	frozenHours       = 720.0
)

// StabilityCheck reports whether a collected specimen is still viable.
type StabilityCheck struct {
	CollectedAt  time.Time `json:"collected_at"`
	ElapsedHours float64   `json:"elapsed_hours"`
	LimitHours   float64   `json:"limit_hours"`
	Temperature  string    `json:"temperature"`
	Stable       bool      `json:"stable"`
	Warning      string    `json:"warning,omitempty"`
}

// CheckSpecimenStability compares time since collection against the
// stability limit for the recorded storage temperature.
func (s *Service) CheckSpecimenStability(ctx context.Context, orderID uuid.UUID) (*StabilityCheck, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}

	collectedAt := collectionTime(o)
	if collectedAt == nil {
		return nil, fmt.Errorf("order %s has no recorded collection", orderID)
	}

	temp := o.Metadata.StorageTemp
	if temp == "" {
		temp = "room"
	}
	var limit float64
	switch temp {
	case "refrigerated":
		limit = refrigeratedHours
	case "frozen":
		limit = frozenHours
	default:
		limit = roomDefaultHours
		if o.SpecimenType != nil {
			if l, ok := roomLimits[strings.ToLower(*o.SpecimenType)]; ok {
				limit = l
			}
		}
	}

	elapsed := s.now().Sub(*collectedAt).Hours()
	check := &StabilityCheck{
		CollectedAt:  *collectedAt,
		ElapsedHours: elapsed,
		LimitHours:   limit,
		Temperature:  temp,
		Stable:       elapsed <= limit,
	}
	if !check.Stable {
		check.Warning = fmt.Sprintf("specimen exceeded %s stability limit of %.0f hours; recollection may be required", temp, limit)
	}
	return check, nil
}

// collectionTime prefers the custody log's collected entry, falling back to
// the order milestone.
func collectionTime(o *orders.LabOrder) *time.Time {
	for i := range o.Metadata.ChainOfCustody {
		if o.Metadata.ChainOfCustody[i].Action == "collected" {
			return &o.Metadata.ChainOfCustody[i].Timestamp
		}
	}
	return o.CollectedAt
}
