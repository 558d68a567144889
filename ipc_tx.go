package main

import (
	"context"
	"fmt"
	"sync"

	"bmu-service/bmu"

	"github.com/go-redis/redis/v8"
)

const (
	ipcHashKey = "bmu"
	ipcChannel = "bmu"
)

type IPCTx struct {
	log         *LeveledLogger
	redis       *redis.Client
	transducers []bmu.TransducerConfig
	mu          sync.Mutex
	ctx         context.Context
}

func NewIPCTx(logger *LeveledLogger, redis *redis.Client, transducers []bmu.TransducerConfig) *IPCTx {
	return &IPCTx{
		log:         logger,
		redis:       redis,
		transducers: transducers,
		ctx:         context.Background(),
	}
}

func (tx *IPCTx) Destroy() {}

func onOff(b bool) string {
	return map[bool]string{true: "on", false: "off"}[b]
}

func yesNo(b bool) string {
	return map[bool]string{true: "yes", false: "no"}[b]
}

// SendStatus writes the status fields and, when publish is set, notifies
// subscribers with the name of the changed field group.
func (tx *IPCTx) SendStatus(data RedisStatus, publish bool) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	pipe := tx.redis.Pipeline()

	pipe.HSet(tx.ctx, ipcHashKey, map[string]interface{}{
		"state":             data.State,
		"safe-to-drive":     yesNo(data.SafeToDrive),
		"charging":          yesNo(data.Charging),
		"precharge":         onOff(data.PrechargeEngaged),
		"discharge":         onOff(data.DischargeEngaged),
		"contactor":         onOff(data.ContactorClosed),
		"contactor-request": onOff(data.ContactorRequest),
		"solar":             onOff(data.SolarEnable),
		"ignition-rejected": yesNo(data.IgnitionRejected),
		"send-failures":     data.SendFailures,
	})

	if publish {
		pipe.Publish(tx.ctx, ipcChannel, "status")
	}

	if _, err := pipe.Exec(tx.ctx); err != nil {
		return fmt.Errorf("failed to send status: %w", err)
	}
	return nil
}

// SendTransducers writes one "<name>:<field>" group per transducer. It is
// not published; readers poll it.
func (tx *IPCTx) SendTransducers(readings []RedisTransducer) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	fields := make(map[string]interface{}, len(readings)*5)
	for _, r := range readings {
		fields[r.Name+":current"] = r.Current
		fields[r.Name+":voltage"] = r.Voltage
		fields[r.Name+":temperature"] = r.Temperature
		fields[r.Name+":charge"] = r.Charge
		fields[r.Name+":energy"] = r.Energy
	}
	if len(fields) == 0 {
		return nil
	}

	if err := tx.redis.HSet(tx.ctx, ipcHashKey, fields).Err(); err != nil {
		return fmt.Errorf("failed to send transducers: %w", err)
	}
	return nil
}

// SendReport mirrors one heartbeat emission into redis. Status changes are
// published, periodic ticks only refresh the hash.
func (tx *IPCTx) SendReport(r bmu.Report) error {
	status := RedisStatus{
		State:            r.State.String(),
		SafeToDrive:      r.Status.SafeToDrive,
		Charging:         r.Status.Charging,
		PrechargeEngaged: r.Status.PrechargeEngaged,
		DischargeEngaged: r.Status.DischargeEngaged,
		ContactorClosed:  r.Status.ContactorClosed,
		ContactorRequest: r.ContactorRequest,
		SolarEnable:      r.SolarEnable,
		IgnitionRejected: r.IgnitionRejected,
		SendFailures:     r.SendFailures,
	}
	if err := tx.SendStatus(status, r.Reason == bmu.EmitChange); err != nil {
		return err
	}

	readings := make([]RedisTransducer, 0, len(r.Snapshot.Transducers))
	for i, t := range r.Snapshot.Transducers {
		if i >= len(tx.transducers) {
			break
		}
		readings = append(readings, RedisTransducer{
			Name:        tx.transducers[i].Name,
			Current:     t.Current,
			Voltage:     t.VoltageMain,
			Temperature: t.Temperature,
			Charge:      t.Charge,
			Energy:      t.Energy,
		})
	}
	return tx.SendTransducers(readings)
}
