package bmu

import "math"

// band is a Schmitt trigger over a min/max pair. While a direction's flag is
// raised, that direction's limit moves inward by the hysteresis margin, so
// the flag only clears once the signal is back past limit -/+ hysteresis.
type band struct {
	limits Limits
	over   bool
	under  bool
}

func (b *band) maxLimit() int32 {
	if b.over {
		return b.limits.Max - b.limits.Hysteresis
	}
	return b.limits.Max
}

func (b *band) minLimit() int32 {
	if b.under {
		return b.limits.Min + b.limits.Hysteresis
	}
	return b.limits.Min
}

// check evaluates every value against the limits in effect for this cycle
// and OR-combines the result. An empty input clears both flags. A raised
// flag holds at the relaxed limit and clears only strictly past it.
func (b *band) check(values []int32) (over, under bool) {
	hi, lo := b.maxLimit(), b.minLimit()
	for _, v := range values {
		if v > hi || (b.over && v == hi) {
			over = true
		}
		if v < lo || (b.under && v == lo) {
			under = true
		}
	}
	b.over, b.under = over, under
	return over, under
}

func scaled(l Limits, factor int32) Limits {
	return Limits{Min: l.Min * factor, Max: l.Max * factor, Hysteresis: l.Hysteresis * factor}
}

// Evaluation is the output of one evaluator pass.
type Evaluation struct {
	Faults   FaultSet
	Charging bool
}

// Evaluator applies the hysteretic threshold checks to a telemetry snapshot.
// Its only state across cycles is the per-direction trigger memory.
type Evaluator struct {
	cfg Config
	log Logger

	discharge bool
	charge    bool

	packVoltage     band
	packTemperature band
	cellVoltage     band
	cellTemperature band
}

func NewEvaluator(cfg Config, logger Logger) *Evaluator {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Evaluator{
		cfg:         cfg,
		log:         logger,
		packVoltage: band{limits: cfg.PackVoltage},
		// Transducer temperatures arrive in 0.1 °C.
		packTemperature: band{limits: scaled(cfg.PackTemperature, 10)},
		cellVoltage:     band{limits: cfg.Cells.Voltage},
		cellTemperature: band{limits: cfg.Cells.Temperature},
	}
}

// Evaluate computes the fault set for snap. It must be called once per cycle.
func (e *Evaluator) Evaluate(snap Snapshot) Evaluation {
	var out Evaluation

	maxCurrent, minCurrent := foldField(snap.Transducers, FieldCurrent)
	out.Charging = len(snap.Transducers) > 0 && maxCurrent < 0
	out.Faults.OverCurrent = e.checkCurrent(maxCurrent, minCurrent, len(snap.Transducers) > 0)

	voltages := fieldValues(snap.Transducers, FieldVoltageMain)
	out.Faults.OverVoltage, out.Faults.UnderVoltage = e.packVoltage.check(voltages)

	temperatures := fieldValues(snap.Transducers, FieldTemperature)
	out.Faults.OverTemperature, out.Faults.UnderTemperature = e.packTemperature.check(temperatures)

	if e.cfg.Cells.Monitoring == CellMonitoringEnabled {
		over, under := e.cellVoltage.check(e.cellVoltages(snap.Cells))
		out.Faults.OverVoltage = out.Faults.OverVoltage || over
		out.Faults.UnderVoltage = out.Faults.UnderVoltage || under

		over, under = e.cellTemperature.check(e.cellTemperatures(snap.Cells))
		out.Faults.OverTemperature = out.Faults.OverTemperature || over
		out.Faults.UnderTemperature = out.Faults.UnderTemperature || under
	}

	out.Faults.TelemetryStale = !snap.CurrentSeen ||
		snap.SinceCurrentUpdate > e.cfg.Timing.TelemetryTimeout()

	if out.Faults.OverCurrent {
		e.log.Debug("Over current: max=%d mA min=%d mA", maxCurrent, minCurrent)
	}
	if out.Faults.OverVoltage || out.Faults.UnderVoltage {
		e.log.Debug("Pack voltage out of range: %v mV", voltages)
	}
	if out.Faults.OverTemperature || out.Faults.UnderTemperature {
		e.log.Debug("Pack temperature out of range: %v (0.1 C)", temperatures)
	}

	return out
}

func (e *Evaluator) checkCurrent(maxCurrent, minCurrent int32, present bool) bool {
	if !present {
		e.discharge, e.charge = false, false
		return false
	}

	dischargeLimit := e.cfg.Current.MaxDischarge
	if e.discharge {
		dischargeLimit -= e.cfg.Current.Hysteresis
	}
	chargeLimit := e.cfg.Current.MaxCharge
	if e.charge {
		chargeLimit += e.cfg.Current.Hysteresis
	}

	e.discharge = maxCurrent >= dischargeLimit
	e.charge = minCurrent < chargeLimit || (e.charge && minCurrent == chargeLimit)
	return e.discharge || e.charge
}

func (e *Evaluator) cellVoltages(cells CellArray) []int32 {
	values := make([]int32, 0, e.cfg.Cells.MonitoredCells)
	for _, v := range cells.Voltages[:e.cfg.Cells.MonitoredCells] {
		values = append(values, int32(v))
	}
	return values
}

func (e *Evaluator) cellTemperatures(cells CellArray) []int32 {
	values := make([]int32, 0, e.cfg.Cells.MonitoredTemperatures)
	for _, group := range cells.Temperatures {
		for _, t := range group {
			if len(values) == e.cfg.Cells.MonitoredTemperatures {
				return values
			}
			values = append(values, int32(t))
		}
	}
	return values
}

func fieldValues(readings []TransducerReading, field Field) []int32 {
	values := make([]int32, len(readings))
	for i := range readings {
		values[i] = readings[i].Get(field)
	}
	return values
}

// foldField returns the max and min of field across all sources.
func foldField(readings []TransducerReading, field Field) (hi, lo int32) {
	hi, lo = math.MinInt32, math.MaxInt32
	for i := range readings {
		v := readings[i].Get(field)
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}
	return hi, lo
}
