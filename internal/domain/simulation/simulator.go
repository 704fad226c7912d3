package simulation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labcore/labcore/internal/domain/orders"
	"github.com/labcore/labcore/internal/domain/results"
)

// Step is one scheduled lifecycle event. Status is empty for informational
// steps that only log, such as lab intake.
type Step struct {
	Name    string        `json:"name"`
	Status  string        `json:"status,omitempty"`
	Message string        `json:"message"`
	At      time.Duration `json:"at"` // cumulative wall-clock offset from start
}

// Simulation is the in-flight state for one order.
type Simulation struct {
	OrderID         uuid.UUID `json:"order_id"`
	Lab             string    `json:"lab"`
	ExternalOrderID string    `json:"external_order_id"`
	Steps           []Step    `json:"steps"`
	StartedAt       time.Time `json:"started_at"`
	CompletedSteps  int       `json:"completed_steps"`
}

// Service runs order lifecycle simulations. State is held in memory only;
// a restart forgets in-flight simulations, which is acceptable for the
// development tool this is.
type Service struct {
	orders    *orders.Service
	results   *results.Service
	stepScale time.Duration
	logger    zerolog.Logger

	mu     sync.RWMutex
	active map[uuid.UUID]*Simulation
	rng    *rand.Rand

	// schedule is swapped out by tests that drive steps manually.
	schedule func(d time.Duration, f func())
}

// NewService constructs the simulator. stepScale is the wall-clock duration
// of one simulated minute.
func NewService(orderSvc *orders.Service, resultSvc *results.Service, stepScale time.Duration, logger zerolog.Logger) *Service {
	if stepScale <= 0 {
		stepScale = time.Second
	}
	return &Service{
		orders:    orderSvc,
		results:   resultSvc,
		stepScale: stepScale,
		logger:    logger.With().Str("component", "simulation").Logger(),
		active:    make(map[uuid.UUID]*Simulation),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		schedule:  func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// buildSteps lays out the lifecycle with cumulative offsets in simulated
// minutes, then scales them to wall-clock durations.
func buildSteps(r route, stepScale time.Duration) []Step {
	type stage struct {
		name, status, message string
		afterMins             int
	}
	stages := []stage{
		{"transmitted", orders.StatusTransmitted, "Order transmitted to " + r.lab, 0},
		{"acknowledged", orders.StatusAcknowledged, "Order acknowledged by " + r.lab, 2},
		{"collected", orders.StatusCollected, "Specimen collected", 15},
	}
	if intake := intakeStep(r.lab); intake != "" {
		stages = append(stages, stage{"intake", "", intake, 10})
	}
	stages = append(stages,
		stage{"processing", orders.StatusProcessing, "Specimen processing started", 5},
		stage{"completed", orders.StatusCompleted, "Results finalized", r.processingMins},
	)

	steps := make([]Step, 0, len(stages))
	cumulative := 0
	for _, st := range stages {
		cumulative += st.afterMins
		steps = append(steps, Step{
			Name:    st.name,
			Status:  st.status,
			Message: st.message,
			At:      time.Duration(cumulative) * stepScale,
		})
	}
	return steps
}

// Start begins simulating the order. The order must be signed; anything
// earlier has not been authorized and anything later is already in flight.
func (s *Service) Start(ctx context.Context, orderID uuid.UUID) (*Simulation, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if o.OrderStatus != orders.StatusSigned {
		return nil, fmt.Errorf("order %s is %s, only signed orders can be simulated", orderID, o.OrderStatus)
	}

	s.mu.Lock()
	if _, exists := s.active[orderID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("order %s already has a running simulation", orderID)
	}
	r := resolveRoute(o.TestCode)
	extID := externalOrderID(r.lab, time.Now(), s.rng)
	sim := &Simulation{
		OrderID:         orderID,
		Lab:             r.lab,
		ExternalOrderID: extID,
		Steps:           buildSteps(r, s.stepScale),
		StartedAt:       time.Now(),
	}
	s.active[orderID] = sim
	s.mu.Unlock()

	if _, err := s.orders.SetRouting(ctx, orderID, r.lab, extID); err != nil {
		s.mu.Lock()
		delete(s.active, orderID)
		s.mu.Unlock()
		return nil, err
	}

	// Every step is scheduled up front. Cancellation works by removing the
	// map entry; a fired timer that finds no entry does nothing.
	for i := range sim.Steps {
		idx := i
		s.schedule(sim.Steps[idx].At, func() { s.fireStep(orderID, idx) })
	}

	s.logger.Info().
		Str("order_id", orderID.String()).
		Str("lab", r.lab).
		Str("external_order_id", extID).
		Int("steps", len(sim.Steps)).
		Msg("simulation started")
	snapshot := *sim
	return &snapshot, nil
}

func (s *Service) fireStep(orderID uuid.UUID, idx int) {
	s.mu.Lock()
	sim, ok := s.active[orderID]
	if !ok {
		s.mu.Unlock()
		return
	}
	step := sim.Steps[idx]
	sim.CompletedSteps = idx + 1
	final := idx == len(sim.Steps)-1
	if final {
		delete(s.active, orderID)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if step.Status != "" {
		if _, err := s.orders.UpdateStatus(ctx, orderID, step.Status); err != nil {
			s.logger.Error().Err(err).
				Str("order_id", orderID.String()).
				Str("step", step.Name).
				Msg("simulation step could not advance order")
			return
		}
	}
	if err := s.orders.AppendStepLog(ctx, orderID, step.Name, step.Message); err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("could not append step log")
	}

	if final {
		s.deliverResults(ctx, orderID)
	}
}

// deliverResults synthesizes the completed order's panel and persists it
// through the same path real lab data takes.
func (s *Service) deliverResults(ctx context.Context, orderID uuid.UUID) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("cannot load order for result delivery")
		return
	}

	s.mu.Lock()
	batch := synthesizePanel(o, s.rng)
	s.mu.Unlock()

	outcome := s.results.SaveBatch(ctx, batch)
	s.logger.Info().
		Str("order_id", orderID.String()).
		Int("saved", outcome.Saved).
		Int("failed", outcome.Failed).
		Msg("simulated results delivered")
}

// Status returns a snapshot of the running simulation, if any.
func (s *Service) Status(orderID uuid.UUID) (*Simulation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sim, ok := s.active[orderID]
	if !ok {
		return nil, false
	}
	snapshot := *sim
	return &snapshot, true
}

// ActiveSimulations lists snapshots of every running simulation.
func (s *Service) ActiveSimulations() []*Simulation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Simulation, 0, len(s.active))
	for _, sim := range s.active {
		snapshot := *sim
		out = append(out, &snapshot)
	}
	return out
}

// Cancel stops a running simulation. Timers already scheduled still fire
// but find no state and do nothing; the order stays wherever it got to.
func (s *Service) Cancel(orderID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[orderID]; !ok {
		return false
	}
	delete(s.active, orderID)
	return true
}
