package bmu

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no transducers",
			mutate:  func(c *Config) { c.Transducers = nil },
			wantErr: "at least one source",
		},
		{
			name:    "unnamed transducer",
			mutate:  func(c *Config) { c.Transducers[1].Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "duplicate name",
			mutate:  func(c *Config) { c.Transducers[1].Name = "front" },
			wantErr: "duplicate name",
		},
		{
			name:    "overlapping ids",
			mutate:  func(c *Config) { c.Transducers[1].BaseID = FrontTransducerBaseID + 4 },
			wantErr: "overlaps",
		},
		{
			name:    "positive charge limit",
			mutate:  func(c *Config) { c.Current.MaxCharge = 1000 },
			wantErr: "max_charge_ma",
		},
		{
			name:    "zero discharge limit",
			mutate:  func(c *Config) { c.Current.MaxDischarge = 0 },
			wantErr: "max_discharge_ma",
		},
		{
			name:    "current hysteresis too wide",
			mutate:  func(c *Config) { c.Current.Hysteresis = 200000 },
			wantErr: "hysteresis_ma",
		},
		{
			name:    "inverted voltage band",
			mutate:  func(c *Config) { c.PackVoltage.Min, c.PackVoltage.Max = 67040, 48000 },
			wantErr: "pack_voltage",
		},
		{
			name:    "negative hysteresis",
			mutate:  func(c *Config) { c.PackTemperature.Hysteresis = -1 },
			wantErr: "pack_temperature",
		},
		{
			name:    "hysteresis swallows band",
			mutate:  func(c *Config) { c.Cells.Temperature.Hysteresis = 40 },
			wantErr: "cells.temperature",
		},
		{
			name:    "unknown monitoring mode",
			mutate:  func(c *Config) { c.Cells.Monitoring = "sometimes" },
			wantErr: "monitoring",
		},
		{
			name:    "too many monitored cells",
			mutate:  func(c *Config) { c.Cells.MonitoredCells = CellVoltageCount + 1 },
			wantErr: "monitored_cells",
		},
		{
			name:    "too many monitored temperatures",
			mutate:  func(c *Config) { c.Cells.MonitoredTemperatures = 17 },
			wantErr: "monitored_temperatures",
		},
		{
			name:    "zero cycle",
			mutate:  func(c *Config) { c.Timing.CycleMs = 0 },
			wantErr: "cycle_ms",
		},
		{
			name:    "negative precharge timeout",
			mutate:  func(c *Config) { c.Timing.PrechargeTimeoutMs = -1 },
			wantErr: "precharge_timeout_ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_AdjacentTransducersAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transducers[1].BaseID = FrontTransducerBaseID + uint32(FieldCount)
	if err := cfg.Validate(); err != nil {
		t.Errorf("adjacent id ranges should validate: %v", err)
	}
}

func TestTimingConfig_Durations(t *testing.T) {
	timing := DefaultConfig().Timing

	if timing.TelemetryTimeout() != time.Second {
		t.Errorf("telemetry timeout: got %v", timing.TelemetryTimeout())
	}
	if timing.PrechargeSettle() != 500*time.Millisecond {
		t.Errorf("precharge settle: got %v", timing.PrechargeSettle())
	}
	if timing.ConfigFrameGap() != 50*time.Microsecond {
		t.Errorf("config frame gap: got %v", timing.ConfigFrameGap())
	}
	if timing.PrechargeTimeout() != 0 {
		t.Errorf("precharge wait should be unbounded by default, got %v", timing.PrechargeTimeout())
	}
}
