package execbuild_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/fleetforge/fleetforge-server/internal/infrastructure/execbuild"
)

func TestBuild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	b := &execbuild.Builder{
		Command: "sh",
		Args:    []string{"-c", `echo "build log line"; echo "ami-$1"`, "build"},
	}

	art, err := b.Build(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if art.ID != "ami-abc123" {
		t.Errorf("ID = %q, want ami-abc123", art.ID)
	}
	if art.SourceCommit != "abc123" {
		t.Errorf("SourceCommit = %q, want abc123", art.SourceCommit)
	}
	if art.BuiltAt.IsZero() {
		t.Error("BuiltAt is zero")
	}
}

func TestBuildFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	b := &execbuild.Builder{
		Command: "sh",
		Args:    []string{"-c", "exit 1", "build"},
	}

	if _, err := b.Build(context.Background(), "abc123"); err == nil {
		t.Fatal("Build: expected error for failing command")
	}
}
