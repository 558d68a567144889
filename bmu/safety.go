package bmu

// SequencerView is the part of the sequencer the aggregator reports on.
type SequencerView interface {
	PrechargeEngaged() bool
	DischargeEngaged() bool
	ContactorClosed() bool
}

// Aggregate folds an evaluation and the sequencer outputs into the status
// record. SafeToDrive is derived here and nowhere else.
func Aggregate(eval Evaluation, seq SequencerView, fans [4]uint8) SafetyStatus {
	return SafetyStatus{
		Faults:           eval.Faults,
		SafeToDrive:      !eval.Faults.Any(),
		Charging:         eval.Charging,
		PrechargeEngaged: seq.PrechargeEngaged(),
		DischargeEngaged: seq.DischargeEngaged(),
		ContactorClosed:  seq.ContactorClosed(),
		FanDuty:          fans,
	}
}

// IgnitionLatch turns the driver's ignition level into an accepted drive
// request. A request needs a rising edge seen while safe; any unsafe cycle
// drops the request and consumes pending edges, so a demand held through a
// fault never resumes on its own.
type IgnitionLatch struct {
	consumed uint32
	active   bool
	rejected bool
}

// Observe updates the latch for one cycle. It returns true when this cycle
// vetoed an active or pending request.
func (l *IgnitionLatch) Observe(cmd Command, safe bool) (vetoed bool) {
	pending := cmd.IgnitionEdges != l.consumed
	l.consumed = cmd.IgnitionEdges

	switch {
	case !cmd.IgnitionDemand:
		l.active = false
		l.rejected = false
	case !safe:
		if l.active || pending {
			vetoed = true
			l.rejected = true
		}
		l.active = false
	case pending:
		l.active = true
		l.rejected = false
	}
	return vetoed
}

// Demand reports whether the driver's request to drive is accepted.
func (l *IgnitionLatch) Demand() bool {
	return l.active
}

// Rejected reports whether the current ignition demand was vetoed by a
// fault and is waiting for a fresh rising edge.
func (l *IgnitionLatch) Rejected() bool {
	return l.rejected
}
