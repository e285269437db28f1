package domain

import "time"

// ArtifactID identifies a built machine image.
type ArtifactID string

// ArtifactStatus indicates the build state of an artifact.
type ArtifactStatus string

const (
	ArtifactStatusBuilding ArtifactStatus = "building"
	ArtifactStatusReady    ArtifactStatus = "ready"
	ArtifactStatusFailed   ArtifactStatus = "failed"
)

// Artifact is a built, versioned machine image produced by the build
// stage. Once Ready it is immutable; "change" means building a new one.
type Artifact struct {
	ID           ArtifactID
	SourceCommit string
	BuiltAt      time.Time
	Status       ArtifactStatus
}
