package domain

import "time"

// TemplateVersionID is a monotonically increasing version number.
// Allocation is owned by the template version repository.
type TemplateVersionID int64

// TemplateVersion is an immutable launch configuration binding instance
// settings to one artifact. Versions form an append-only history; rollback
// means starting a new plan that targets an older version, never mutating
// an existing one.
type TemplateVersion struct {
	ID        TemplateVersionID
	Artifact  ArtifactID
	CreatedAt time.Time
}
