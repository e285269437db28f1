// Package memfleet implements [domain.FleetStore] in memory. It backs
// engine tests and the server's simulation mode; the SQLite store is the
// durable implementation.
package memfleet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// Store holds the fleet under a single mutex, so Snapshot is trivially
// consistent with concurrent mutations.
type Store struct {
	// Now is injectable for tests; nil means real time.
	Now func() time.Time

	mu        sync.Mutex
	instances map[domain.InstanceID]domain.Instance
	order     int
}

// New returns an empty store.
func New() *Store {
	return &Store{instances: make(map[domain.InstanceID]domain.Instance)}
}

// Seed adds in-service healthy instances on the given version; it is the
// starting fleet for tests and simulations.
func (s *Store) Seed(version domain.TemplateVersionID, count int) []domain.InstanceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]domain.InstanceID, count)
	for i := range ids {
		id := domain.InstanceID(uuid.NewString())
		s.instances[id] = domain.Instance{
			ID:         id,
			Version:    version,
			State:      domain.LifecycleInService,
			Health:     domain.HealthHealthy,
			LaunchTime: s.tick(),
		}
		ids[i] = id
	}
	return ids
}

func (s *Store) Launch(_ context.Context, version domain.TemplateVersionID, count int) ([]domain.InstanceID, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: launch count must be positive, got %d", domain.ErrInvalidArgument, count)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]domain.InstanceID, count)
	for i := range ids {
		id := domain.InstanceID(uuid.NewString())
		s.instances[id] = domain.Instance{
			ID:         id,
			Version:    version,
			State:      domain.LifecyclePending,
			Health:     domain.HealthUnknown,
			LaunchTime: s.tick(),
		}
		ids[i] = id
	}
	return ids, nil
}

func (s *Store) MarkInService(_ context.Context, ids []domain.InstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		inst, ok := s.instances[id]
		if !ok {
			return fmt.Errorf("instance %s: %w", id, domain.ErrNotFound)
		}
		inst.State = domain.LifecycleInService
		inst.Health = domain.HealthHealthy
		s.instances[id] = inst
	}
	return nil
}

func (s *Store) Terminate(_ context.Context, ids []domain.InstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.instances[id]; !ok {
			return fmt.Errorf("instance %s: %w", id, domain.ErrNotFound)
		}
		// Draining is instantaneous here; terminated instances leave
		// the snapshot immediately.
		delete(s.instances, id)
	}
	return nil
}

func (s *Store) Snapshot(_ context.Context) ([]domain.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make([]domain.Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		snap = append(snap, inst)
	}
	sort.Slice(snap, func(i, j int) bool {
		if !snap[i].LaunchTime.Equal(snap[j].LaunchTime) {
			return snap[i].LaunchTime.Before(snap[j].LaunchTime)
		}
		return snap[i].ID < snap[j].ID
	})
	return snap, nil
}

// tick returns the current time, nudged forward on ties so launch times
// order instances deterministically under an injected clock.
func (s *Store) tick() time.Time {
	s.order++
	if s.Now != nil {
		return s.Now().Add(time.Duration(s.order) * time.Nanosecond)
	}
	return time.Now()
}
