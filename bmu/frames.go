package bmu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/brutella/can"
)

const (
	// Outbound
	HeartbeatFrameID        = 0x400
	ContactorRequestFrameID = 0x34F
	TransducerConfigFrameID = 0x411

	// Inbound
	DriverControlsFrameID = 0x500
	CellVoltageBaseID     = 0x360
	CellVoltageBlocks     = CellVoltageCount / CellsPerVoltageBlock
	FrontTransducerBaseID = 0x520
	RearTransducerBaseID  = 0x530

	HeartbeatLength = 6

	driverIgnitionBit = 0x01
	driverSolarBit    = 0x08
)

// CellTemperatureFrameIDs maps each cell temperature group to its identifier.
var CellTemperatureFrameIDs = [CellTemperatureGroups]uint32{0x550, 0x562}

// ErrShortFrame is returned for a known identifier with too little payload.
var ErrShortFrame = errors.New("short frame")

type fieldRef struct {
	source int
	field  Field
}

// Ingestor decodes inbound frames into the telemetry store. It only ever
// calls store setters, so it is safe on the receive path.
type Ingestor struct {
	store  *TelemetryStore
	log    Logger
	fields map[uint32]fieldRef
}

func NewIngestor(store *TelemetryStore, transducers []TransducerConfig, logger Logger) *Ingestor {
	if logger == nil {
		logger = nopLogger{}
	}
	in := &Ingestor{
		store:  store,
		log:    logger,
		fields: make(map[uint32]fieldRef),
	}
	for i, t := range transducers {
		for f := Field(0); f < FieldCount; f++ {
			in.fields[t.BaseID+uint32(f)] = fieldRef{source: i, field: f}
		}
	}
	return in
}

// Handle implements can.Handler.
func (in *Ingestor) Handle(frame can.Frame) {
	DebugCANFrame(in.log, "RX", frame.ID, frame.Data, frame.Length)
	if err := in.HandleFrame(frame); err != nil {
		in.log.Debug("Error handling CAN frame: %v", err)
	}
}

// HandleFrame processes one inbound frame. Unknown identifiers are ignored.
func (in *Ingestor) HandleFrame(frame can.Frame) error {
	id := frame.ID

	if ref, ok := in.fields[id]; ok {
		return in.handleTransducerFrame(frame, ref)
	}

	switch {
	case id >= CellVoltageBaseID && id < CellVoltageBaseID+CellVoltageBlocks:
		return in.handleCellVoltageFrame(frame)
	case id == DriverControlsFrameID:
		return in.handleDriverControlsFrame(frame)
	case id == CellTemperatureFrameIDs[0]:
		return in.handleCellTemperatureFrame(frame, 0)
	case id == CellTemperatureFrameIDs[1]:
		return in.handleCellTemperatureFrame(frame, 1)
	}

	return nil
}

// Transducer results carry a big-endian int32 in bytes 2..5; bytes 0 and 1
// are the mux id and message counter.
func (in *Ingestor) handleTransducerFrame(frame can.Frame, ref fieldRef) error {
	if frame.Length < 6 {
		return fmt.Errorf("%w: id=0x%03X len=%d", ErrShortFrame, frame.ID, frame.Length)
	}

	value := int32(binary.BigEndian.Uint32(frame.Data[2:6]))

	// The auxiliary voltage channels are never wanted; a transducer sending
	// them has come up with factory settings.
	if ref.field == FieldVoltageAux1 || ref.field == FieldVoltageAux2 {
		in.store.RequestReconfigure()
	}

	return in.store.SetField(ref.source, ref.field, value)
}

func (in *Ingestor) handleCellVoltageFrame(frame can.Frame) error {
	if frame.Length < 8 {
		return fmt.Errorf("%w: id=0x%03X len=%d", ErrShortFrame, frame.ID, frame.Length)
	}

	var voltages [CellsPerVoltageBlock]uint16
	for i := range voltages {
		voltages[i] = binary.LittleEndian.Uint16(frame.Data[i*2 : i*2+2])
	}

	first := int(frame.ID-CellVoltageBaseID) * CellsPerVoltageBlock
	return in.store.SetCellVoltages(first, voltages[:])
}

func (in *Ingestor) handleDriverControlsFrame(frame can.Frame) error {
	if frame.Length < 1 {
		return fmt.Errorf("%w: id=0x%03X len=%d", ErrShortFrame, frame.ID, frame.Length)
	}

	in.store.SetCommand(
		frame.Data[0]&driverIgnitionBit != 0,
		frame.Data[0]&driverSolarBit != 0,
	)
	return nil
}

func (in *Ingestor) handleCellTemperatureFrame(frame can.Frame, group int) error {
	if frame.Length < CellsPerTemperature {
		return fmt.Errorf("%w: id=0x%03X len=%d", ErrShortFrame, frame.ID, frame.Length)
	}
	return in.store.SetCellTemperatures(group, frame.Data[:CellsPerTemperature])
}

// EncodeStatus serializes a status record into the heartbeat payload.
//
//	byte 0: bit0 over-current, bit1 under-voltage, bit2 over-voltage,
//	        bit3 under-temperature, bit4 over-temperature, bit5 safe-to-drive,
//	        bit6 precharge failed
//	byte 1: bit0 charging, bit1 precharge engaged, bit2 discharge engaged
//	byte 2-5: fan duty
func EncodeStatus(s SafetyStatus) [HeartbeatLength]byte {
	var p [HeartbeatLength]byte

	p[0] = boolToByte(s.Faults.OverCurrent) |
		boolToByte(s.Faults.UnderVoltage)<<1 |
		boolToByte(s.Faults.OverVoltage)<<2 |
		boolToByte(s.Faults.UnderTemperature)<<3 |
		boolToByte(s.Faults.OverTemperature)<<4 |
		boolToByte(s.SafeToDrive)<<5 |
		boolToByte(s.Faults.PrechargeFailed)<<6

	p[1] = boolToByte(s.Charging) |
		boolToByte(s.PrechargeEngaged)<<1 |
		boolToByte(s.DischargeEngaged)<<2

	copy(p[2:], s.FanDuty[:])
	return p
}

// HeartbeatFrame builds the status message.
func HeartbeatFrame(payload [HeartbeatLength]byte) can.Frame {
	return packFrame(HeartbeatFrameID, payload[:])
}

// ContactorRequestFrame builds the authoritative contactor request for the
// pack controller.
func ContactorRequestFrame(engage bool) can.Frame {
	return packFrame(ContactorRequestFrameID, []byte{boolToByte(engage)})
}

// TransducerConfigFrames returns the configuration sequence: stop mode,
// one setup frame per result channel, start mode. The auxiliary voltage
// channels are switched off, every other channel reports cyclically.
func TransducerConfigFrames() []can.Frame {
	payloads := [][]byte{
		{0x34, 0x00, 0x00, 0x00, 0x00}, // stop
		{0x20, 0x02, 0x00, 0x19},       // current, 25 ms
		{0x21, 0x02, 0x03, 0xE8},       // voltage 1
		{0x22, 0x00, 0x03, 0xE8},       // voltage 2 off
		{0x23, 0x00, 0x03, 0xE8},       // voltage 3 off
		{0x24, 0x02, 0x03, 0xE8},       // temperature
		{0x25, 0x02, 0x03, 0xE8},       // charge
		{0x26, 0x02, 0x03, 0xE8},       // power
		{0x27, 0x02, 0x03, 0xE8},       // energy
		{0x34, 0x01, 0x01, 0x00, 0x00}, // start
	}

	frames := make([]can.Frame, len(payloads))
	for i, p := range payloads {
		frames[i] = packFrame(TransducerConfigFrameID, p)
	}
	return frames
}

// packFrame creates a CAN frame with the given ID and data
func packFrame(id uint32, data []byte) can.Frame {
	var frameData [8]byte
	copy(frameData[:], data)
	return can.Frame{
		ID:     id,
		Length: uint8(len(data)),
		Flags:  0,
		Data:   frameData,
	}
}

func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
