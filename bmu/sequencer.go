package bmu

import (
	"context"
	"errors"
	"fmt"
)

// ErrPrechargeTimeout is returned when the precharge detect input does not
// assert within the configured bound.
var ErrPrechargeTimeout = errors.New("precharge detect timeout")

// Relays drives the high-voltage relay outputs and reads the precharge
// detect input. All methods are expected to complete promptly.
type Relays interface {
	// SetPrecharge closes (true) or opens the precharge relay.
	SetPrecharge(closed bool) error
	// SetDischarge closes (true) or opens the discharge relay.
	SetDischarge(closed bool) error
	// SetContactor closes (true) or opens the main HV contactor.
	SetContactor(closed bool) error
	// SetSolar enables the solar relay.
	SetSolar(enabled bool) error
	// PrechargeDetected reports whether the DC bus reached source voltage.
	PrechargeDetected() (bool, error)
}

// Sequencer owns the contactor state machine. Both procedures run to
// completion once started; faults are only re-examined on the next run.
type Sequencer struct {
	timing TimingConfig
	relays Relays
	clock  Clock
	log    Logger

	state            SequencerState
	prechargeEngaged bool
	dischargeEngaged bool
	contactorClosed  bool
	prechargeFailed bool
}

func NewSequencer(timing TimingConfig, relays Relays, clock Clock, logger Logger) *Sequencer {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Sequencer{
		timing: timing,
		relays: relays,
		clock:  clock,
		log:    logger,
		state:  StateDischarged,
	}
}

func (s *Sequencer) State() SequencerState {
	return s.state
}

func (s *Sequencer) PrechargeEngaged() bool {
	return s.prechargeEngaged
}

func (s *Sequencer) DischargeEngaged() bool {
	return s.dischargeEngaged
}

func (s *Sequencer) ContactorClosed() bool {
	return s.contactorClosed
}

// PrechargeFailed reports whether the last precharge was aborted, either
// because the detect input never asserted or a relay could not be driven.
// It stays set until ClearPrechargeFault.
func (s *Sequencer) PrechargeFailed() bool {
	return s.prechargeFailed
}

// ClearPrechargeFault drops the precharge fault; called once the driver has
// released the ignition demand.
func (s *Sequencer) ClearPrechargeFault() {
	if s.prechargeFailed {
		s.log.Info("Precharge fault cleared")
	}
	s.prechargeFailed = false
}

// Update drives the relays towards engaged (true) or disengaged. It is a
// no-op when the requested end state was already reached.
func (s *Sequencer) Update(ctx context.Context, engage bool) error {
	if engage {
		if s.prechargeEngaged {
			return nil
		}
		s.log.Info("Start precharge sequence")
		return s.precharge(ctx)
	}

	if s.dischargeEngaged {
		return nil
	}
	s.log.Info("Start discharge")
	return s.discharge(context.WithoutCancel(ctx))
}

func (s *Sequencer) precharge(ctx context.Context) error {
	s.dischargeEngaged = false
	s.state = StatePrecharging

	if err := s.relays.SetDischarge(false); err != nil {
		return s.abortPrecharge(ctx, fmt.Errorf("failed to open discharge relay: %w", err))
	}
	if err := s.relays.SetPrecharge(true); err != nil {
		return s.abortPrecharge(ctx, fmt.Errorf("failed to close precharge relay: %w", err))
	}
	s.log.Info("Precharge relay closed")

	if err := s.clock.Sleep(ctx, s.timing.PrechargeSettle()); err != nil {
		return s.abortPrecharge(ctx, err)
	}

	if err := s.waitPrechargeDetect(ctx); err != nil {
		return s.abortPrecharge(ctx, err)
	}

	if err := s.relays.SetContactor(true); err != nil {
		return s.abortPrecharge(ctx, fmt.Errorf("failed to close HV contactor: %w", err))
	}
	s.contactorClosed = true
	s.log.Info("HVDC contactor closed")

	if err := s.clock.Sleep(ctx, s.timing.ContactorDwell()); err != nil {
		return s.abortPrecharge(ctx, err)
	}

	if err := s.relays.SetPrecharge(false); err != nil {
		return s.abortPrecharge(ctx, fmt.Errorf("failed to open precharge relay: %w", err))
	}
	s.log.Info("Precharge relay opened")

	s.prechargeEngaged = true
	s.state = StateDriving
	return nil
}

// waitPrechargeDetect polls the detect input. Without a configured timeout
// it blocks until the input asserts or ctx is done.
func (s *Sequencer) waitPrechargeDetect(ctx context.Context) error {
	timeout := s.timing.PrechargeTimeout()
	start := s.clock.Now()

	for {
		detected, err := s.relays.PrechargeDetected()
		if err != nil {
			return fmt.Errorf("failed to read precharge detect: %w", err)
		}
		if detected {
			return nil
		}
		if timeout > 0 && s.clock.Now().Sub(start) >= timeout {
			return fmt.Errorf("%w after %v", ErrPrechargeTimeout, timeout)
		}
		if err := s.clock.Sleep(ctx, s.timing.PrechargePoll()); err != nil {
			return err
		}
	}
}

// abortPrecharge falls back to the discharge path and latches the precharge
// fault, so a new attempt needs the ignition demand released and re-asserted.
func (s *Sequencer) abortPrecharge(ctx context.Context, cause error) error {
	s.log.Error("Precharge aborted: %v", cause)
	s.prechargeFailed = true
	if err := s.discharge(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// discharge must be given a context that is never cancelled: the contactor
// dwell is mandatory.
func (s *Sequencer) discharge(ctx context.Context) error {
	s.prechargeEngaged = false
	s.state = StateDischarging

	var errs []error

	if err := s.relays.SetPrecharge(false); err != nil {
		errs = append(errs, fmt.Errorf("failed to open precharge relay: %w", err))
	}
	// The contactor opens even if the precharge relay write failed.
	if err := s.relays.SetContactor(false); err != nil {
		errs = append(errs, fmt.Errorf("failed to open HV contactor: %w", err))
	} else {
		s.contactorClosed = false
		s.log.Info("HVDC contactor opened")
	}

	if err := s.clock.Sleep(ctx, s.timing.ContactorDwell()); err != nil {
		errs = append(errs, err)
	}

	if err := s.relays.SetDischarge(true); err != nil {
		errs = append(errs, fmt.Errorf("failed to close discharge relay: %w", err))
	}

	if len(errs) > 0 {
		// Leave dischargeEngaged false so the next run retries.
		return errors.Join(errs...)
	}

	s.log.Info("Discharge relay closed")
	s.dischargeEngaged = true
	s.state = StateDischarged
	return nil
}
