package bmu

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/brutella/can"
)

// ErrSendTimeout is returned when a frame is not confirmed in time.
var ErrSendTimeout = errors.New("send timeout")

// Publisher is satisfied by *can.Bus.
type Publisher interface {
	Publish(frame can.Frame) error
}

// Transmitter sends frames with a bounded wait for confirmation. Failures are
// counted and returned but never retried. At most one publish is in flight:
// while a timed-out publish is still blocked in the bus, further sends fail
// immediately.
type Transmitter struct {
	pub      Publisher
	timeout  time.Duration
	log      Logger
	failures atomic.Uint64
	pending  atomic.Bool
}

func NewTransmitter(pub Publisher, timeout time.Duration, logger Logger) *Transmitter {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Transmitter{
		pub:     pub,
		timeout: timeout,
		log:     logger,
	}
}

// Send publishes frame and waits at most the configured timeout.
func (t *Transmitter) Send(frame can.Frame) error {
	DebugCANFrame(t.log, "TX", frame.ID, frame.Data, frame.Length)

	if !t.pending.CompareAndSwap(false, true) {
		t.failures.Add(1)
		return fmt.Errorf("failed to send frame 0x%03X: %w, previous frame still pending", frame.ID, ErrSendTimeout)
	}

	done := make(chan error, 1)
	go func() {
		err := t.pub.Publish(frame)
		t.pending.Store(false)
		done <- err
	}()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.failures.Add(1)
			return fmt.Errorf("failed to send frame 0x%03X: %w", frame.ID, err)
		}
		return nil
	case <-timer.C:
		t.failures.Add(1)
		return fmt.Errorf("failed to send frame 0x%03X: %w after %v", frame.ID, ErrSendTimeout, t.timeout)
	}
}

// Failures returns the number of sends that failed or timed out.
func (t *Transmitter) Failures() uint64 {
	return t.failures.Load()
}
