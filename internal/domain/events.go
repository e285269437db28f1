package domain

import "time"

// PlanEvent is the payload common to all replacement observability
// events: plan identity, a timestamp, and progress counts.
type PlanEvent struct {
	PlanID        PlanID
	Time          time.Time
	DesiredCount  int
	ReplacedCount int
}

// EventSink receives replacement progress events. Implementations must
// not block the engine; emitting an event is fire-and-forget.
type EventSink interface {
	// CheckpointReached fires when replaced count reaches a checkpoint
	// percentage, before any bake delay.
	CheckpointReached(ev PlanEvent, percentage int)

	// BatchReplaced fires after a batch of new instances is in service
	// and the matching old instances are terminated.
	BatchReplaced(ev PlanEvent, batchSize int)

	// PlanTerminal fires exactly once per plan, with its final status.
	PlanTerminal(ev PlanEvent, status PlanStatus, reason string)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) CheckpointReached(PlanEvent, int)           {}
func (NopSink) BatchReplaced(PlanEvent, int)               {}
func (NopSink) PlanTerminal(PlanEvent, PlanStatus, string) {}
