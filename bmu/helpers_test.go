package bmu

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brutella/can"
)

// testLogger implements Logger for testing
type testLogger struct{}

func (l *testLogger) Printf(format string, v ...interface{}) {}
func (l *testLogger) Debug(format string, v ...interface{})  {}
func (l *testLogger) Info(format string, v ...interface{})   {}
func (l *testLogger) Warn(format string, v ...interface{})   {}
func (l *testLogger) Error(format string, v ...interface{})  {}
func (l *testLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {
}

// fakeClock advances only when something sleeps on it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeRelays records every output write in order.
type fakeRelays struct {
	actions []string

	precharge bool
	discharge bool
	contactor bool
	solar     bool

	// detectAfter is the number of polls that read false before the
	// detect input asserts; negative never asserts.
	detectAfter int
	polls       int

	contactorErr error
	detectErr    error
	onAction     func()
}

func (r *fakeRelays) record(name string, closed bool) {
	state := "open"
	if closed {
		state = "close"
	}
	r.actions = append(r.actions, name+":"+state)
	if r.onAction != nil {
		r.onAction()
	}
}

func (r *fakeRelays) SetPrecharge(closed bool) error {
	r.precharge = closed
	r.record("precharge", closed)
	return nil
}

func (r *fakeRelays) SetDischarge(closed bool) error {
	r.discharge = closed
	r.record("discharge", closed)
	return nil
}

func (r *fakeRelays) SetContactor(closed bool) error {
	if r.contactorErr != nil {
		return r.contactorErr
	}
	r.contactor = closed
	r.record("contactor", closed)
	return nil
}

func (r *fakeRelays) SetSolar(enabled bool) error {
	r.solar = enabled
	r.record("solar", enabled)
	return nil
}

func (r *fakeRelays) PrechargeDetected() (bool, error) {
	r.polls++
	if r.detectErr != nil {
		return false, r.detectErr
	}
	if r.detectAfter < 0 {
		return false, nil
	}
	return r.polls > r.detectAfter, nil
}

func (r *fakeRelays) reset() {
	r.actions = nil
	r.polls = 0
}

// recordingPublisher captures published frames.
type recordingPublisher struct {
	mu     sync.Mutex
	frames []can.Frame
	err    error
	block  chan struct{}
	calls  atomic.Int32
}

func (p *recordingPublisher) Publish(frame can.Frame) error {
	p.calls.Add(1)
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.frames = append(p.frames, frame)
	return nil
}

func (p *recordingPublisher) byID(id uint32) []can.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []can.Frame
	for _, f := range p.frames {
		if f.ID == id {
			out = append(out, f)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}

func makeCANFrame(id uint32, data []byte) can.Frame {
	f := can.Frame{
		ID:     id,
		Length: uint8(len(data)),
	}
	copy(f.Data[:], data)
	return f
}

// transducerFrame builds a result message: mux id, counter, BE int32 value.
func transducerFrame(id uint32, value int32) can.Frame {
	data := make([]byte, 8)
	data[0] = byte(id & 0xFF)
	binary.BigEndian.PutUint32(data[2:6], uint32(value))
	return makeCANFrame(id, data)
}

// healthy is a reading inside every default limit.
var healthy = TransducerReading{
	Current:     5000,
	VoltageMain: 60000,
	Temperature: 250,
}

func snapshotOf(readings ...TransducerReading) Snapshot {
	return Snapshot{
		Transducers:        readings,
		CurrentSeen:        true,
		SinceCurrentUpdate: 10 * time.Millisecond,
	}
}
