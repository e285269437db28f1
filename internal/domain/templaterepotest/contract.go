// Package templaterepotest provides contract tests for
// [domain.TemplateVersionRepository] implementations.
package templaterepotest

import (
	"context"
	"errors"
	"testing"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// Factory creates a fresh [domain.TemplateVersionRepository] for each
// test invocation.
type Factory func(t *testing.T) domain.TemplateVersionRepository

// Run exercises the [domain.TemplateVersionRepository] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("LatestEmpty", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.Latest(context.Background())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Latest on empty history: got %v, want ErrNotFound", err)
		}
	})

	t.Run("CreateAllocatesMonotonicIDs", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		v1, err := repo.Create(ctx, "ami-1")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		v2, err := repo.Create(ctx, "ami-2")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if v2.ID <= v1.ID {
			t.Errorf("version IDs must be monotonic: got %d then %d", v1.ID, v2.ID)
		}
	})

	t.Run("LatestReturnsNewest", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if _, err := repo.Create(ctx, "ami-1"); err != nil {
			t.Fatal(err)
		}
		v2, err := repo.Create(ctx, "ami-2")
		if err != nil {
			t.Fatal(err)
		}

		latest, err := repo.Latest(ctx)
		if err != nil {
			t.Fatalf("Latest: %v", err)
		}
		if latest.ID != v2.ID {
			t.Errorf("Latest ID = %d, want %d", latest.ID, v2.ID)
		}
		if latest.Artifact != "ami-2" {
			t.Errorf("Latest Artifact = %q, want %q", latest.Artifact, "ami-2")
		}
	})

	t.Run("HistoryMostRecentFirst", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		for _, a := range []domain.ArtifactID{"ami-1", "ami-2", "ami-3"} {
			if _, err := repo.Create(ctx, a); err != nil {
				t.Fatal(err)
			}
		}

		history, err := repo.History(ctx)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("History: got %d versions, want 3", len(history))
		}
		for i := 1; i < len(history); i++ {
			if history[i].ID >= history[i-1].ID {
				t.Errorf("history not most-recent-first at index %d: %d then %d",
					i, history[i-1].ID, history[i].ID)
			}
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.Get(context.Background(), 42)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})
}
