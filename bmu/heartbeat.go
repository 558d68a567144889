package bmu

import "sync/atomic"

// EmitReason says why the reporter asked for an emission.
type EmitReason int

const (
	EmitNone EmitReason = iota
	EmitTick
	EmitChange
)

func (r EmitReason) String() string {
	switch r {
	case EmitTick:
		return "tick"
	case EmitChange:
		return "change"
	default:
		return "none"
	}
}

// Reporter schedules heartbeat emissions: one per tick, plus one immediately
// whenever the payload differs from the last emitted one.
type Reporter struct {
	tick    atomic.Bool
	last    [HeartbeatLength]byte
	emitted bool
}

func NewReporter() *Reporter {
	return &Reporter{}
}

// Tick marks the periodic heartbeat as due. Safe to call from any goroutine.
func (r *Reporter) Tick() {
	r.tick.Store(true)
}

// Due consumes a pending tick and decides whether payload must be emitted.
// A change takes precedence over a tick in the returned reason.
func (r *Reporter) Due(payload [HeartbeatLength]byte) EmitReason {
	ticked := r.tick.Swap(false)
	changed := !r.emitted || payload != r.last

	switch {
	case changed:
		r.last = payload
		r.emitted = true
		return EmitChange
	case ticked:
		return EmitTick
	default:
		return EmitNone
	}
}
