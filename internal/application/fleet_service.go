package application

import (
	"context"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// FleetService exposes read-only fleet queries. All mutation goes
// through the replacement engine.
type FleetService struct {
	Fleet domain.FleetStore
}

// Snapshot returns the current fleet state.
func (s *FleetService) Snapshot(ctx context.Context) ([]domain.Instance, error) {
	return s.Fleet.Snapshot(ctx)
}

// InService returns how many instances currently serve traffic.
func (s *FleetService) InService(ctx context.Context) (int, error) {
	snap, err := s.Fleet.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return domain.CountInService(snap), nil
}
