package bmu

import (
	"context"
	"fmt"
	"time"
)

// Report describes one heartbeat emission.
type Report struct {
	Reason   EmitReason
	Status   SafetyStatus
	Payload  [HeartbeatLength]byte
	Snapshot Snapshot
	State    SequencerState

	ContactorRequest bool
	SolarEnable      bool
	IgnitionRejected bool
	// TransportFault is set when any frame of this emission was not confirmed.
	TransportFault bool
	SendFailures   uint64
}

// ReportListener is called from the control loop after every emission and
// must not block.
type ReportListener func(Report)

// Deps are the external collaborators of a Controller.
type Deps struct {
	Publisher Publisher
	Relays    Relays
	Clock     Clock
	Logger    Logger
}

// Controller owns all mutable BMU state. Only the control loop calls into
// it, except for the store and the reporter tick which are safe for
// concurrent use.
type Controller struct {
	cfg   Config
	log   Logger
	clock Clock

	store     *TelemetryStore
	ingestor  *Ingestor
	evaluator *Evaluator
	latch     IgnitionLatch
	sequencer *Sequencer
	reporter  *Reporter
	tx        *Transmitter
	relays    Relays

	status    SafetyStatus
	fans      [4]uint8
	solar     bool
	listeners []ReportListener
}

func NewController(cfg Config, deps Deps) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Publisher == nil || deps.Relays == nil {
		return nil, fmt.Errorf("publisher and relays are required")
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}

	store := NewTelemetryStore(len(cfg.Transducers), deps.Clock)

	return &Controller{
		cfg:       cfg,
		log:       deps.Logger,
		clock:     deps.Clock,
		store:     store,
		ingestor:  NewIngestor(store, cfg.Transducers, deps.Logger),
		evaluator: NewEvaluator(cfg, deps.Logger),
		sequencer: NewSequencer(cfg.Timing, deps.Relays, deps.Clock, deps.Logger),
		reporter:  NewReporter(),
		tx:        NewTransmitter(deps.Publisher, cfg.Timing.SendTimeout(), deps.Logger),
		relays:    deps.Relays,
	}, nil
}

// Ingestor returns the frame handler to subscribe on the bus.
func (c *Controller) Ingestor() *Ingestor {
	return c.ingestor
}

// Reporter returns the heartbeat scheduler.
func (c *Controller) Reporter() *Reporter {
	return c.reporter
}

// OnReport registers a listener for emissions. Not safe once Run started.
func (c *Controller) OnReport(fn ReportListener) {
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) Status() SafetyStatus {
	return c.status
}

func (c *Controller) State() SequencerState {
	return c.sequencer.State()
}

func (c *Controller) SendFailures() uint64 {
	return c.tx.Failures()
}

// Run executes the control loop until ctx is done, then disengages.
func (c *Controller) Run(ctx context.Context) error {
	cycle := time.NewTicker(c.cfg.Timing.Cycle())
	defer cycle.Stop()

	heartbeat := time.NewTicker(c.cfg.Timing.Heartbeat())
	defer heartbeat.Stop()

	c.log.Info("Control loop started (cycle %v, heartbeat %v)", c.cfg.Timing.Cycle(), c.cfg.Timing.Heartbeat())

	for {
		select {
		case <-ctx.Done():
			c.Shutdown()
			return ctx.Err()
		case <-heartbeat.C:
			c.reporter.Tick()
		case <-cycle.C:
			c.Cycle(ctx)
		}
	}
}

// Cycle runs one evaluation pass and, when an emission is due, sends the
// heartbeat and drives the contactor sequencer.
func (c *Controller) Cycle(ctx context.Context) {
	if c.store.TakeReconfigureRequest() {
		c.configureTransducers(ctx)
	}

	snap := c.store.Snapshot()
	if !snap.Command.IgnitionDemand {
		c.sequencer.ClearPrechargeFault()
	}

	eval := c.evaluator.Evaluate(snap)
	eval.Faults.PrechargeFailed = c.sequencer.PrechargeFailed()

	status := Aggregate(eval, c.sequencer, c.fans)
	if c.status.SafeToDrive && !status.SafeToDrive {
		c.log.Warn("Safe to drive cleared: %+v", status.Faults)
	} else if !c.status.SafeToDrive && status.SafeToDrive {
		c.log.Info("Safe to drive")
	}

	if c.latch.Observe(snap.Command, status.SafeToDrive) {
		c.log.Warn("Ignition demand rejected: not safe to drive, re-assert ignition to retry")
	}
	c.status = status

	payload := EncodeStatus(status)
	reason := c.reporter.Due(payload)
	if reason == EmitNone {
		return
	}

	c.beat(ctx, reason, snap, status, payload)
}

func (c *Controller) beat(ctx context.Context, reason EmitReason, snap Snapshot, status SafetyStatus, payload [HeartbeatLength]byte) {
	c.logStatus(reason, status)

	transportFault := false

	if err := c.tx.Send(HeartbeatFrame(payload)); err != nil {
		c.log.Warn("Failed to send heartbeat: %v", err)
		transportFault = true
	}

	engage := c.latch.Demand() && status.SafeToDrive
	if engage {
		c.log.Debug("Contactors are engaged")
	} else {
		c.log.Debug("Contactors are disengaged")
	}

	if err := c.tx.Send(ContactorRequestFrame(engage)); err != nil {
		c.log.Warn("Failed to send contactor request: %v", err)
		transportFault = true
	}

	if err := c.sequencer.Update(ctx, engage); err != nil {
		c.log.Error("Contactor sequence failed: %v", err)
	}

	c.solar = snap.Command.SolarDemand && status.SafeToDrive
	if c.cfg.SolarOutput {
		if err := c.relays.SetSolar(c.solar); err != nil {
			c.log.Error("Failed to set solar relay: %v", err)
		}
	}

	report := Report{
		Reason:           reason,
		Status:           status,
		Payload:          payload,
		Snapshot:         snap,
		State:            c.sequencer.State(),
		ContactorRequest: engage,
		SolarEnable:      c.solar,
		IgnitionRejected: c.latch.Rejected(),
		TransportFault:   transportFault,
		SendFailures:     c.tx.Failures(),
	}
	for _, fn := range c.listeners {
		fn(report)
	}
}

// configureTransducers sends the configuration sequence to all transducers
// sharing the configuration identifier.
func (c *Controller) configureTransducers(ctx context.Context) {
	c.log.Info("Transducer reports auxiliary voltage channels, reconfiguring")

	for _, frame := range TransducerConfigFrames() {
		if err := c.tx.Send(frame); err != nil {
			c.log.Warn("Failed to send transducer config: %v", err)
		}
		if err := c.clock.Sleep(ctx, c.cfg.Timing.ConfigFrameGap()); err != nil {
			return
		}
	}
}

// Shutdown requests disengagement and runs the discharge procedure.
func (c *Controller) Shutdown() {
	c.log.Info("Disengaging contactors for shutdown")

	if err := c.tx.Send(ContactorRequestFrame(false)); err != nil {
		c.log.Warn("Failed to send contactor request: %v", err)
	}
	if err := c.sequencer.Update(context.Background(), false); err != nil {
		c.log.Error("Shutdown discharge failed: %v", err)
	}
	if c.cfg.SolarOutput {
		if err := c.relays.SetSolar(false); err != nil {
			c.log.Error("Failed to set solar relay: %v", err)
		}
	}
}

func (c *Controller) logStatus(reason EmitReason, s SafetyStatus) {
	c.log.Debug("BMU status (%s): over_current=%v under_voltage=%v over_voltage=%v "+
		"under_temperature=%v over_temperature=%v stale=%v precharge_timeout=%v "+
		"safe_to_drive=%v charging=%v precharge=%v discharge=%v contactor=%v state=%s",
		reason,
		s.Faults.OverCurrent, s.Faults.UnderVoltage, s.Faults.OverVoltage,
		s.Faults.UnderTemperature, s.Faults.OverTemperature, s.Faults.TelemetryStale,
		s.Faults.PrechargeFailed, s.SafeToDrive, s.Charging, s.PrechargeEngaged,
		s.DischargeEngaged, s.ContactorClosed, c.sequencer.State())
}
