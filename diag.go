package main

import (
	"context"
	"sync"

	"bmu-service/bmu"

	"github.com/go-redis/redis/v8"
)

const (
	diagGroupName           = "bmu"
	diagFaultSetKey         = "bmu:fault"
	diagEventStream         = "events:faults"
	diagEventStreamMaxLen   = 1000
	diagNotificationChannel = "bmu"
)

// Diag mirrors fault edges into the fault set and the shared fault stream.
type Diag struct {
	log         *LeveledLogger
	redis       *redis.Client
	mu          sync.Mutex
	faultStates map[bmu.Fault]bool
	ctx         context.Context
}

func NewDiag(logger *LeveledLogger, redis *redis.Client) *Diag {
	return &Diag{
		log:         logger,
		redis:       redis,
		faultStates: make(map[bmu.Fault]bool),
		ctx:         context.Background(),
	}
}

func (d *Diag) Destroy() {}

// reportFaults lists every fault code for one emission, including the
// transport warning which is not part of the safety fault set.
func reportFaults(r bmu.Report) map[bmu.Fault]bool {
	faults := r.Status.Faults.Active()
	faults[bmu.FaultTransport] = r.TransportFault
	return faults
}

// SetFaults reports every fault whose presence changed since the last call.
func (d *Diag) SetFaults(faults map[bmu.Fault]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for fault := bmu.FaultNone + 1; fault <= bmu.FaultLast; fault++ {
		present := faults[fault]
		if present == d.faultStates[fault] {
			continue
		}
		d.faultStates[fault] = present

		config, ok := bmu.GetFaultConfig(fault)
		if !ok {
			d.log.Warn("Unknown fault code: %d", fault)
			continue
		}

		if present {
			d.log.Warn("Fault set: code=%d, severity=%s, description=%s", fault, config.Severity, config.Description)
			d.reportFaultPresent(fault, config)
		} else {
			d.log.Info("Fault cleared: code=%d, description=%s", fault, config.Description)
			d.reportFaultAbsent(fault)
		}
	}
}

// Active returns the faults currently reported as present.
func (d *Diag) Active() []bmu.Fault {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []bmu.Fault
	for fault := bmu.FaultNone + 1; fault <= bmu.FaultLast; fault++ {
		if d.faultStates[fault] {
			out = append(out, fault)
		}
	}
	return out
}

func (d *Diag) reportFaultPresent(fault bmu.Fault, config bmu.FaultConfig) {
	pipe := d.redis.Pipeline()

	pipe.SAdd(d.ctx, diagFaultSetKey, uint32(fault))

	pipe.XAdd(d.ctx, &redis.XAddArgs{
		Stream: diagEventStream,
		MaxLen: diagEventStreamMaxLen,
		Values: map[string]interface{}{
			"group":       diagGroupName,
			"code":        uint32(fault),
			"severity":    config.Severity.String(),
			"description": config.Description,
		},
	})

	pipe.Publish(d.ctx, diagNotificationChannel, "fault")

	if _, err := pipe.Exec(d.ctx); err != nil {
		d.log.Error("Failed to report fault present: %v", err)
	}
}

func (d *Diag) reportFaultAbsent(fault bmu.Fault) {
	pipe := d.redis.Pipeline()

	pipe.SRem(d.ctx, diagFaultSetKey, uint32(fault))

	pipe.XAdd(d.ctx, &redis.XAddArgs{
		Stream: diagEventStream,
		MaxLen: diagEventStreamMaxLen,
		Values: map[string]interface{}{
			"group": diagGroupName,
			"code":  -int32(fault),
		},
	})

	pipe.Publish(d.ctx, diagNotificationChannel, "fault")

	if _, err := pipe.Exec(d.ctx); err != nil {
		d.log.Error("Failed to report fault absent: %v", err)
	}
}
