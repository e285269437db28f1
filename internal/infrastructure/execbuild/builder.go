// Package execbuild implements [domain.Builder] by shelling out to the
// image build tooling. The command receives the commit as its final
// argument and prints the built image ID on its last stdout line.
package execbuild

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// Builder runs a build command per artifact. Builds are expected to be
// deterministic: the same commit yields the same image ID, which keeps
// the build activity idempotent under at-least-once execution.
type Builder struct {
	// Command and Args form the build invocation, e.g.
	// "packer" ["build", "-machine-readable", "image.pkr.hcl"].
	Command string
	Args    []string

	// NowFn is injectable for tests; nil means real time.
	NowFn func() time.Time

	Log zerolog.Logger
}

func (b *Builder) Build(ctx context.Context, commit string) (domain.Artifact, error) {
	args := append(append([]string{}, b.Args...), commit)
	cmd := exec.CommandContext(ctx, b.Command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	b.Log.Info().Str("commit", commit).Str("command", b.Command).Msg("starting image build")
	start := b.now()
	if err := cmd.Run(); err != nil {
		b.Log.Error().Err(err).Str("commit", commit).
			Str("stderr", lastLine(stderr.String())).Msg("image build failed")
		return domain.Artifact{}, fmt.Errorf("build command: %w", err)
	}

	imageID := lastLine(stdout.String())
	if imageID == "" {
		return domain.Artifact{}, fmt.Errorf("build command produced no image ID")
	}

	b.Log.Info().Str("commit", commit).Str("image", imageID).
		Dur("took", b.now().Sub(start)).Msg("image build finished")

	return domain.Artifact{
		ID:           domain.ArtifactID(imageID),
		SourceCommit: commit,
		BuiltAt:      b.now(),
	}, nil
}

func (b *Builder) now() time.Time {
	if b.NowFn != nil {
		return b.NowFn()
	}
	return time.Now()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
