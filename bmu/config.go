package bmu

import (
	"fmt"
	"time"
)

// CellMonitoring gates the cell-level voltage/temperature checks. The data
// path is always populated; only fault derivation is switched.
type CellMonitoring string

const (
	CellMonitoringDisabled CellMonitoring = "disabled"
	CellMonitoringEnabled  CellMonitoring = "enabled"
)

// Config holds the threshold constants and timings. It is loaded once at
// startup and must not be mutated afterwards.
type Config struct {
	Transducers     []TransducerConfig `yaml:"transducers"`
	Current         CurrentLimits      `yaml:"current"`
	PackVoltage     Limits             `yaml:"pack_voltage"`
	PackTemperature Limits             `yaml:"pack_temperature"`
	Cells           CellConfig         `yaml:"cells"`
	Timing          TimingConfig       `yaml:"timing"`

	// SolarOutput lets the sequencer drive the solar relay. Off in the
	// reference build; the enable value is still computed and reported.
	SolarOutput bool `yaml:"solar_output"`
}

// TransducerConfig names one current/voltage/temperature source. BaseID is
// the identifier of its current message; the other fields follow at
// BaseID+Field.
type TransducerConfig struct {
	Name   string `yaml:"name"`
	BaseID uint32 `yaml:"base_id"`
}

// CurrentLimits are in mA. MaxCharge is negative.
type CurrentLimits struct {
	MaxDischarge int32 `yaml:"max_discharge_ma"`
	MaxCharge    int32 `yaml:"max_charge_ma"`
	Hysteresis   int32 `yaml:"hysteresis_ma"`
}

// Limits is a min/max band with a hysteresis margin, in the unit of the
// quantity it bounds.
type Limits struct {
	Min        int32 `yaml:"min"`
	Max        int32 `yaml:"max"`
	Hysteresis int32 `yaml:"hysteresis"`
}

type CellConfig struct {
	Monitoring CellMonitoring `yaml:"monitoring"`
	// MonitoredCells limits the voltage check to the first N positions.
	MonitoredCells int `yaml:"monitored_cells"`
	// MonitoredTemperatures limits the temperature check to the first N
	// positions, counted across groups.
	MonitoredTemperatures int `yaml:"monitored_temperatures"`
	// Voltage is in 0.1 mV, Temperature in °C.
	Voltage     Limits `yaml:"voltage"`
	Temperature Limits `yaml:"temperature"`
}

type TimingConfig struct {
	TelemetryTimeoutMs int `yaml:"telemetry_timeout_ms"`
	SendTimeoutMs      int `yaml:"send_timeout_ms"`
	HeartbeatMs        int `yaml:"heartbeat_ms"`
	CycleMs            int `yaml:"cycle_ms"`
	PrechargeSettleMs  int `yaml:"precharge_settle_ms"`
	ContactorDwellMs   int `yaml:"contactor_dwell_ms"`
	// PrechargeTimeoutMs bounds the wait for the precharge detect input.
	// 0 waits forever.
	PrechargeTimeoutMs int `yaml:"precharge_timeout_ms"`
	PrechargePollMs    int `yaml:"precharge_poll_ms"`
	ConfigFrameGapUs   int `yaml:"config_frame_gap_us"`
}

func (t TimingConfig) TelemetryTimeout() time.Duration {
	return time.Duration(t.TelemetryTimeoutMs) * time.Millisecond
}

func (t TimingConfig) SendTimeout() time.Duration {
	return time.Duration(t.SendTimeoutMs) * time.Millisecond
}

func (t TimingConfig) Heartbeat() time.Duration {
	return time.Duration(t.HeartbeatMs) * time.Millisecond
}

func (t TimingConfig) Cycle() time.Duration {
	return time.Duration(t.CycleMs) * time.Millisecond
}

func (t TimingConfig) PrechargeSettle() time.Duration {
	return time.Duration(t.PrechargeSettleMs) * time.Millisecond
}

func (t TimingConfig) ContactorDwell() time.Duration {
	return time.Duration(t.ContactorDwellMs) * time.Millisecond
}

func (t TimingConfig) PrechargeTimeout() time.Duration {
	return time.Duration(t.PrechargeTimeoutMs) * time.Millisecond
}

func (t TimingConfig) PrechargePoll() time.Duration {
	return time.Duration(t.PrechargePollMs) * time.Millisecond
}

func (t TimingConfig) ConfigFrameGap() time.Duration {
	return time.Duration(t.ConfigFrameGapUs) * time.Microsecond
}

// DefaultConfig returns the limits of the 16S48P front/rear pack build.
func DefaultConfig() Config {
	return Config{
		Transducers: []TransducerConfig{
			{Name: "front", BaseID: FrontTransducerBaseID},
			{Name: "rear", BaseID: RearTransducerBaseID},
		},
		Current: CurrentLimits{
			MaxDischarge: 100000,
			MaxCharge:    -100000,
			Hysteresis:   1000,
		},
		// 4.19 V * 16 = 67.04 V, 3.00 V * 16 = 48 V
		PackVoltage: Limits{
			Min:        48000,
			Max:        67040,
			Hysteresis: 160,
		},
		PackTemperature: Limits{
			Min:        2,
			Max:        75,
			Hysteresis: 1,
		},
		Cells: CellConfig{
			Monitoring:            CellMonitoringDisabled,
			MonitoredCells:        16,
			MonitoredTemperatures: CellTemperatureGroups * CellsPerTemperature,
			Voltage: Limits{
				Min:        30000,
				Max:        42000,
				Hysteresis: 100,
			},
			Temperature: Limits{
				Min:        1,
				Max:        60,
				Hysteresis: 2,
			},
		},
		Timing: TimingConfig{
			TelemetryTimeoutMs: 1000,
			SendTimeoutMs:      100,
			HeartbeatMs:        1000,
			CycleMs:            10,
			PrechargeSettleMs:  500,
			ContactorDwellMs:   100,
			PrechargeTimeoutMs: 0,
			PrechargePollMs:    1,
			ConfigFrameGapUs:   50,
		},
	}
}

// Validate checks configuration correctness. It does not mutate cfg.
func (cfg *Config) Validate() error {
	if len(cfg.Transducers) == 0 {
		return fmt.Errorf("transducers: at least one source is required")
	}

	names := make(map[string]bool)
	for i, t := range cfg.Transducers {
		if t.Name == "" {
			return fmt.Errorf("transducers[%d]: name is required", i)
		}
		if names[t.Name] {
			return fmt.Errorf("transducers[%d]: duplicate name %q", i, t.Name)
		}
		names[t.Name] = true

		for j, o := range cfg.Transducers[:i] {
			if t.BaseID < o.BaseID+uint32(FieldCount) && o.BaseID < t.BaseID+uint32(FieldCount) {
				return fmt.Errorf(
					"transducers[%d]: id range 0x%03X-0x%03X overlaps %q (transducers[%d])",
					i, t.BaseID, t.BaseID+uint32(FieldCount)-1, o.Name, j,
				)
			}
		}
	}

	if cfg.Current.MaxDischarge <= 0 {
		return fmt.Errorf("current: max_discharge_ma must be positive, got %d", cfg.Current.MaxDischarge)
	}
	if cfg.Current.MaxCharge >= 0 {
		return fmt.Errorf("current: max_charge_ma must be negative, got %d", cfg.Current.MaxCharge)
	}
	if cfg.Current.Hysteresis < 0 || cfg.Current.Hysteresis >= cfg.Current.MaxDischarge ||
		cfg.Current.Hysteresis >= -cfg.Current.MaxCharge {
		return fmt.Errorf("current: hysteresis_ma %d out of range", cfg.Current.Hysteresis)
	}

	if err := cfg.PackVoltage.validate("pack_voltage"); err != nil {
		return err
	}
	if err := cfg.PackTemperature.validate("pack_temperature"); err != nil {
		return err
	}

	switch cfg.Cells.Monitoring {
	case CellMonitoringEnabled, CellMonitoringDisabled:
	default:
		return fmt.Errorf("cells: monitoring must be %q or %q, got %q",
			CellMonitoringEnabled, CellMonitoringDisabled, cfg.Cells.Monitoring)
	}
	if cfg.Cells.MonitoredCells < 0 || cfg.Cells.MonitoredCells > CellVoltageCount {
		return fmt.Errorf("cells: monitored_cells must be within 0..%d, got %d",
			CellVoltageCount, cfg.Cells.MonitoredCells)
	}
	maxTemps := CellTemperatureGroups * CellsPerTemperature
	if cfg.Cells.MonitoredTemperatures < 0 || cfg.Cells.MonitoredTemperatures > maxTemps {
		return fmt.Errorf("cells: monitored_temperatures must be within 0..%d, got %d",
			maxTemps, cfg.Cells.MonitoredTemperatures)
	}
	if err := cfg.Cells.Voltage.validate("cells.voltage"); err != nil {
		return err
	}
	if err := cfg.Cells.Temperature.validate("cells.temperature"); err != nil {
		return err
	}

	t := cfg.Timing
	positive := []struct {
		name  string
		value int
	}{
		{"telemetry_timeout_ms", t.TelemetryTimeoutMs},
		{"send_timeout_ms", t.SendTimeoutMs},
		{"heartbeat_ms", t.HeartbeatMs},
		{"cycle_ms", t.CycleMs},
		{"precharge_poll_ms", t.PrechargePollMs},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("timing: %s must be positive, got %d", p.name, p.value)
		}
	}
	nonNegative := []struct {
		name  string
		value int
	}{
		{"precharge_settle_ms", t.PrechargeSettleMs},
		{"contactor_dwell_ms", t.ContactorDwellMs},
		{"precharge_timeout_ms", t.PrechargeTimeoutMs},
		{"config_frame_gap_us", t.ConfigFrameGapUs},
	}
	for _, p := range nonNegative {
		if p.value < 0 {
			return fmt.Errorf("timing: %s must not be negative, got %d", p.name, p.value)
		}
	}

	return nil
}

func (l Limits) validate(name string) error {
	if l.Min >= l.Max {
		return fmt.Errorf("%s: min %d must be below max %d", name, l.Min, l.Max)
	}
	if l.Hysteresis < 0 {
		return fmt.Errorf("%s: hysteresis must not be negative, got %d", name, l.Hysteresis)
	}
	// Both relaxed limits must stay inside the band.
	if 2*l.Hysteresis >= l.Max-l.Min {
		return fmt.Errorf("%s: hysteresis %d too wide for band %d..%d", name, l.Hysteresis, l.Min, l.Max)
	}
	return nil
}
