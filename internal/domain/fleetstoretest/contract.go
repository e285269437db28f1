// Package fleetstoretest provides contract tests for [domain.FleetStore]
// implementations, including the consistent-snapshot guarantee.
package fleetstoretest

import (
	"context"
	"sync"
	"testing"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// Factory creates a fresh [domain.FleetStore] for each test invocation.
type Factory func(t *testing.T) domain.FleetStore

// Run exercises the [domain.FleetStore] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("LaunchCreatesPending", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		ids, err := store.Launch(ctx, 1, 3)
		if err != nil {
			t.Fatalf("Launch: %v", err)
		}
		if len(ids) != 3 {
			t.Fatalf("Launch returned %d ids, want 3", len(ids))
		}

		snap, err := store.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if len(snap) != 3 {
			t.Fatalf("Snapshot: got %d instances, want 3", len(snap))
		}
		for _, inst := range snap {
			if inst.State != domain.LifecyclePending {
				t.Errorf("instance %s: State = %q, want pending", inst.ID, inst.State)
			}
			if inst.Version != 1 {
				t.Errorf("instance %s: Version = %d, want 1", inst.ID, inst.Version)
			}
			if inst.Health != domain.HealthUnknown {
				t.Errorf("instance %s: Health = %q, want unknown", inst.ID, inst.Health)
			}
			if inst.LaunchTime.IsZero() {
				t.Errorf("instance %s: LaunchTime is zero", inst.ID)
			}
		}
	})

	t.Run("MarkInService", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		ids, err := store.Launch(ctx, 1, 2)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.MarkInService(ctx, ids); err != nil {
			t.Fatalf("MarkInService: %v", err)
		}

		snap, err := store.Snapshot(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got := domain.CountInService(snap); got != 2 {
			t.Fatalf("CountInService = %d, want 2", got)
		}
		for _, inst := range snap {
			if inst.Health != domain.HealthHealthy {
				t.Errorf("instance %s: Health = %q, want healthy", inst.ID, inst.Health)
			}
		}
	})

	t.Run("TerminateRemovesFromSnapshot", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		ids, err := store.Launch(ctx, 1, 2)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.MarkInService(ctx, ids); err != nil {
			t.Fatal(err)
		}
		if err := store.Terminate(ctx, ids[:1]); err != nil {
			t.Fatalf("Terminate: %v", err)
		}

		snap, err := store.Snapshot(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(snap) != 1 {
			t.Fatalf("Snapshot after terminate: got %d instances, want 1", len(snap))
		}
		if snap[0].ID != ids[1] {
			t.Errorf("surviving instance = %s, want %s", snap[0].ID, ids[1])
		}
	})

	t.Run("SnapshotNeverTorn", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		seed, err := store.Launch(ctx, 1, 4)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.MarkInService(ctx, seed); err != nil {
			t.Fatal(err)
		}

		// Replace instances pairwise while snapshotting concurrently.
		// Each mutation launches one and terminates one in sequence, so
		// every consistent snapshot holds 4 or 5 instances with no
		// duplicate IDs.
		var wg sync.WaitGroup
		stop := make(chan struct{})

		wg.Add(1)
		go func() {
			defer wg.Done()
			victims := seed
			for i := 0; i < 20; i++ {
				ids, err := store.Launch(ctx, 2, 1)
				if err != nil {
					return
				}
				if err := store.MarkInService(ctx, ids); err != nil {
					return
				}
				if len(victims) > 0 {
					if err := store.Terminate(ctx, victims[:1]); err != nil {
						return
					}
					victims = victims[1:]
				} else {
					if err := store.Terminate(ctx, ids); err != nil {
						return
					}
				}
			}
			close(stop)
		}()

		for {
			select {
			case <-stop:
				wg.Wait()
				return
			default:
			}
			snap, err := store.Snapshot(ctx)
			if err != nil {
				t.Fatalf("Snapshot: %v", err)
			}
			if len(snap) < 4 || len(snap) > 5 {
				t.Fatalf("torn snapshot: %d instances", len(snap))
			}
			seen := make(map[domain.InstanceID]bool, len(snap))
			for _, inst := range snap {
				if seen[inst.ID] {
					t.Fatalf("instance %s appears twice in snapshot", inst.ID)
				}
				seen[inst.ID] = true
			}
		}
	})
}
