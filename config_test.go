package main

import (
	"os"
	"path/filepath"
	"testing"

	"bmu-service/bmu"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bmu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultServiceConfig(), cfg)
}

func TestLoadConfig_PartialOverride(t *testing.T) {
	path := writeConfig(t, `
current:
  max_discharge_ma: 80000
cells:
  monitoring: enabled
  monitored_cells: 14
timing:
  precharge_timeout_ms: 3000
solar_output: true
gpio:
  contactor: 21
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int32(80000), cfg.Current.MaxDischarge)
	assert.Equal(t, int32(-100000), cfg.Current.MaxCharge, "unset fields keep defaults")
	assert.Equal(t, bmu.CellMonitoringEnabled, cfg.Cells.Monitoring)
	assert.Equal(t, 14, cfg.Cells.MonitoredCells)
	assert.Equal(t, 3000, cfg.Timing.PrechargeTimeoutMs)
	assert.Equal(t, 1000, cfg.Timing.TelemetryTimeoutMs)
	assert.True(t, cfg.SolarOutput)
	assert.Equal(t, 21, cfg.GPIO.Contactor)
	assert.Equal(t, 7, cfg.GPIO.Precharge)
	assert.Len(t, cfg.Transducers, 2)
}

func TestLoadConfig_Transducers(t *testing.T) {
	path := writeConfig(t, `
transducers:
  - name: main
    base_id: 0x521
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Transducers, 1)
	assert.Equal(t, "main", cfg.Transducers[0].Name)
	assert.Equal(t, uint32(0x521), cfg.Transducers[0].BaseID)
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultServiceConfig(), cfg)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", "current:\n  max_dischrage_ma: 1\n"},
		{"invalid limits", "pack_voltage:\n  min: 70000\n"},
		{"bad monitoring mode", "cells:\n  monitoring: maybe\n"},
		{"shared gpio line", "gpio:\n  solar: 7\n"},
		{"negative gpio line", "gpio:\n  precharge_detect: -1\n"},
		{"not yaml", "current: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
