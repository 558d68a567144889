package main

// Redis message types for BMU status updates
type RedisStatus struct {
	State            string
	SafeToDrive      bool
	Charging         bool
	PrechargeEngaged bool
	DischargeEngaged bool
	ContactorClosed  bool
	ContactorRequest bool
	SolarEnable      bool
	IgnitionRejected bool
	SendFailures     uint64
}

// RedisTransducer is one pack transducer; current in mA, voltage in mV,
// temperature in 0.1 °C
type RedisTransducer struct {
	Name        string
	Current     int32
	Voltage     int32
	Temperature int32
	Charge      int32
	Energy      int32
}
