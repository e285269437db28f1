// Package logevents implements [domain.EventSink] on structured logs.
package logevents

import (
	"github.com/rs/zerolog"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// Sink logs every replacement progress event through zerolog.
type Sink struct {
	Log zerolog.Logger
}

func (s *Sink) CheckpointReached(ev domain.PlanEvent, percentage int) {
	s.plan(ev).Int("checkpoint_pct", percentage).Msg("checkpoint reached")
}

func (s *Sink) BatchReplaced(ev domain.PlanEvent, batchSize int) {
	s.plan(ev).Int("batch_size", batchSize).Msg("batch replaced")
}

func (s *Sink) PlanTerminal(ev domain.PlanEvent, status domain.PlanStatus, reason string) {
	e := s.plan(ev).Str("status", string(status))
	if reason != "" {
		e = e.Str("reason", reason)
	}
	e.Msg("plan finished")
}

func (s *Sink) plan(ev domain.PlanEvent) *zerolog.Event {
	return s.Log.Info().
		Str("plan", string(ev.PlanID)).
		Time("at", ev.Time).
		Int("desired", ev.DesiredCount).
		Int("replaced", ev.ReplacedCount)
}
