package bmu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TelemetryStore holds the latest known value of every inbound field.
// Setters are constant-time and never block on anything but the store lock,
// so they are safe to call from the CAN receive path.
type TelemetryStore struct {
	mu          sync.RWMutex
	clock       Clock
	readings    []TransducerReading
	cells       CellArray
	command     Command
	lastCurrent time.Time

	reconfigure atomic.Bool
}

// NewTelemetryStore creates a store for sources transducers.
func NewTelemetryStore(sources int, clock Clock) *TelemetryStore {
	if clock == nil {
		clock = SystemClock()
	}
	return &TelemetryStore{
		clock:    clock,
		readings: make([]TransducerReading, sources),
	}
}

// SetField overwrites one scalar of one transducer. Current updates arm the
// staleness timer.
func (s *TelemetryStore) SetField(source int, field Field, value int32) error {
	if source < 0 || source >= len(s.readings) {
		return fmt.Errorf("invalid transducer index: %d (num transducers: %d)", source, len(s.readings))
	}
	if field >= FieldCount {
		return fmt.Errorf("invalid field: %d", field)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.readings[source].set(field, value)
	if field == FieldCurrent {
		s.lastCurrent = s.clock.Now()
	}
	return nil
}

// SetCellVoltages writes consecutive cell voltages starting at position first.
func (s *TelemetryStore) SetCellVoltages(first int, voltages []uint16) error {
	if first < 0 || first+len(voltages) > CellVoltageCount {
		return fmt.Errorf("cell voltages %d..%d out of range", first, first+len(voltages)-1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.cells.Voltages[first:], voltages)
	return nil
}

// SetCellTemperatures overwrites one temperature group.
func (s *TelemetryStore) SetCellTemperatures(group int, temperatures []uint8) error {
	if group < 0 || group >= CellTemperatureGroups {
		return fmt.Errorf("invalid cell temperature group: %d", group)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.cells.Temperatures[group][:], temperatures)
	return nil
}

// SetCommand records the driver's demands and counts ignition rising edges.
func (s *TelemetryStore) SetCommand(ignition, solar bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ignition && !s.command.IgnitionDemand {
		s.command.IgnitionEdges++
	}
	s.command.IgnitionDemand = ignition
	s.command.SolarDemand = solar
}

// RequestReconfigure flags that a transducer reported a channel it should
// not, so the control loop must resend its configuration.
func (s *TelemetryStore) RequestReconfigure() {
	s.reconfigure.Store(true)
}

// TakeReconfigureRequest returns and clears the reconfigure flag.
func (s *TelemetryStore) TakeReconfigureRequest() bool {
	return s.reconfigure.Swap(false)
}

// TimeSinceLastCurrentUpdate returns the age of the newest current sample
// from any source. ok is false if no current sample arrived yet.
func (s *TelemetryStore) TimeSinceLastCurrentUpdate() (d time.Duration, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastCurrent.IsZero() {
		return 0, false
	}
	return s.clock.Now().Sub(s.lastCurrent), true
}

// Snapshot copies the store under one lock acquisition.
func (s *TelemetryStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Transducers: make([]TransducerReading, len(s.readings)),
		Cells:       s.cells,
		Command:     s.command,
	}
	copy(snap.Transducers, s.readings)

	if !s.lastCurrent.IsZero() {
		snap.CurrentSeen = true
		snap.SinceCurrentUpdate = s.clock.Now().Sub(s.lastCurrent)
	}
	return snap
}
