package memfleet_test

import (
	"testing"

	"github.com/fleetforge/fleetforge-server/internal/domain"
	"github.com/fleetforge/fleetforge-server/internal/domain/fleetstoretest"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/memfleet"
)

func TestStoreContract(t *testing.T) {
	fleetstoretest.Run(t, func(t *testing.T) domain.FleetStore {
		return memfleet.New()
	})
}
