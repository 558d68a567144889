package bmu

type Fault uint32

const (
	FaultNone Fault = iota
	FaultOverCurrent
	FaultUnderVoltage
	FaultOverVoltage
	FaultUnderTemperature
	FaultOverTemperature
	FaultTelemetryStale
	FaultPrechargeFailed
	FaultTransport

	FaultLast = FaultTransport
)

type FaultSeverity int

const (
	SeverityWarning FaultSeverity = iota
	SeverityCritical
)

func (s FaultSeverity) String() string {
	if s == SeverityCritical {
		return "critical"
	}
	return "warning"
}

type FaultConfig struct {
	Code        Fault
	Description string
	Severity    FaultSeverity
}

var faultConfigs = map[Fault]FaultConfig{
	FaultOverCurrent:      {FaultOverCurrent, "Pack over-current", SeverityCritical},
	FaultUnderVoltage:     {FaultUnderVoltage, "Pack under-voltage", SeverityCritical},
	FaultOverVoltage:      {FaultOverVoltage, "Pack over-voltage", SeverityCritical},
	FaultUnderTemperature: {FaultUnderTemperature, "Pack under-temperature", SeverityCritical},
	FaultOverTemperature:  {FaultOverTemperature, "Pack over-temperature", SeverityCritical},
	FaultTelemetryStale:   {FaultTelemetryStale, "Transducer telemetry stale", SeverityCritical},
	FaultPrechargeFailed: {FaultPrechargeFailed, "Precharge did not complete", SeverityCritical},
	// Send failures are observable only; they do not affect safe-to-drive.
	FaultTransport: {FaultTransport, "CAN transmit not confirmed", SeverityWarning},
}

func GetFaultConfig(fault Fault) (FaultConfig, bool) {
	config, ok := faultConfigs[fault]
	return config, ok
}

// Active maps the fault set onto fault codes.
func (f FaultSet) Active() map[Fault]bool {
	return map[Fault]bool{
		FaultOverCurrent:      f.OverCurrent,
		FaultUnderVoltage:     f.UnderVoltage,
		FaultOverVoltage:      f.OverVoltage,
		FaultUnderTemperature: f.UnderTemperature,
		FaultOverTemperature:  f.OverTemperature,
		FaultTelemetryStale:   f.TelemetryStale,
		FaultPrechargeFailed: f.PrechargeFailed,
	}
}
