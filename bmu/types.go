package bmu

import "time"

// Field identifies one scalar reported by a current/voltage/temperature
// transducer. The order matches the identifier offset of the transducer's
// result messages.
type Field uint8

const (
	FieldCurrent Field = iota
	FieldVoltageMain
	FieldVoltageAux1
	FieldVoltageAux2
	FieldTemperature
	FieldPower
	FieldCharge
	FieldEnergy

	FieldCount
)

func (f Field) String() string {
	switch f {
	case FieldCurrent:
		return "current"
	case FieldVoltageMain:
		return "voltage"
	case FieldVoltageAux1:
		return "voltage-aux1"
	case FieldVoltageAux2:
		return "voltage-aux2"
	case FieldTemperature:
		return "temperature"
	case FieldPower:
		return "power"
	case FieldCharge:
		return "charge"
	case FieldEnergy:
		return "energy"
	default:
		return "unknown"
	}
}

// TransducerReading is the latest sample of one pack transducer.
// Current in mA (negative = charging), voltages in mV, temperature in 0.1 °C.
// Power, charge and energy are accumulators and informational only.
type TransducerReading struct {
	Current     int32
	VoltageMain int32
	VoltageAux1 int32
	VoltageAux2 int32
	Temperature int32
	Power       int32
	Charge      int32
	Energy      int32
}

// Get returns the value stored for field.
func (r *TransducerReading) Get(field Field) int32 {
	switch field {
	case FieldCurrent:
		return r.Current
	case FieldVoltageMain:
		return r.VoltageMain
	case FieldVoltageAux1:
		return r.VoltageAux1
	case FieldVoltageAux2:
		return r.VoltageAux2
	case FieldTemperature:
		return r.Temperature
	case FieldPower:
		return r.Power
	case FieldCharge:
		return r.Charge
	case FieldEnergy:
		return r.Energy
	}
	return 0
}

func (r *TransducerReading) set(field Field, value int32) {
	switch field {
	case FieldCurrent:
		r.Current = value
	case FieldVoltageMain:
		r.VoltageMain = value
	case FieldVoltageAux1:
		r.VoltageAux1 = value
	case FieldVoltageAux2:
		r.VoltageAux2 = value
	case FieldTemperature:
		r.Temperature = value
	case FieldPower:
		r.Power = value
	case FieldCharge:
		r.Charge = value
	case FieldEnergy:
		r.Energy = value
	}
}

const (
	CellVoltageCount      = 32
	CellsPerVoltageBlock  = 4
	CellTemperatureGroups = 2
	CellsPerTemperature   = 8
)

// CellArray holds per-cell voltages (0.1 mV, as reported by the pack
// controller) and per-cell-group temperatures (°C), indexed by position.
type CellArray struct {
	Voltages     [CellVoltageCount]uint16
	Temperatures [CellTemperatureGroups][CellsPerTemperature]uint8
}

// Command is the latest driver/vehicle command state.
type Command struct {
	IgnitionDemand bool
	SolarDemand    bool
	// IgnitionEdges counts false->true transitions of IgnitionDemand.
	IgnitionEdges uint32
}

// Snapshot is a consistent copy of the telemetry store taken once per cycle.
type Snapshot struct {
	Transducers []TransducerReading
	Cells       CellArray
	Command     Command

	// CurrentSeen is false until the first current sample from any source.
	CurrentSeen        bool
	SinceCurrentUpdate time.Duration
}

// FaultSet is recomputed every cycle.
type FaultSet struct {
	OverCurrent      bool
	UnderVoltage     bool
	OverVoltage      bool
	UnderTemperature bool
	OverTemperature  bool
	TelemetryStale   bool
	PrechargeFailed  bool
}

// Any reports whether at least one flag is raised.
func (f FaultSet) Any() bool {
	return f.OverCurrent || f.UnderVoltage || f.OverVoltage ||
		f.UnderTemperature || f.OverTemperature ||
		f.TelemetryStale || f.PrechargeFailed
}

// SafetyStatus is the derived record reported in the heartbeat.
type SafetyStatus struct {
	Faults           FaultSet
	SafeToDrive      bool
	Charging         bool
	PrechargeEngaged bool
	DischargeEngaged bool
	ContactorClosed  bool

	// Fan duty placeholders; never computed, passed through.
	FanDuty [4]uint8
}

// SequencerState is the contactor sequencer's position.
type SequencerState int

const (
	StateDischarged SequencerState = iota
	StatePrecharging
	StateDriving
	StateDischarging
)

func (s SequencerState) String() string {
	switch s {
	case StateDischarged:
		return "discharged"
	case StatePrecharging:
		return "precharging"
	case StateDriving:
		return "driving"
	case StateDischarging:
		return "discharging"
	default:
		return "unknown"
	}
}
