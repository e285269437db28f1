package domain

import (
	"context"
	"sort"
)

// FleetStore is the authoritative record of the fleet. Snapshot must be
// consistent: a read concurrent with a mutation never observes a torn
// intermediate state (no instance counted twice, none omitted).
type FleetStore interface {
	// Launch creates count pending instances on the given version and
	// returns their IDs.
	Launch(ctx context.Context, version TemplateVersionID, count int) ([]InstanceID, error)

	// MarkInService moves pending instances into service and records
	// them healthy.
	MarkInService(ctx context.Context, ids []InstanceID) error

	// Terminate drains and then terminates the given instances.
	Terminate(ctx context.Context, ids []InstanceID) error

	// Snapshot returns every non-terminated instance.
	Snapshot(ctx context.Context) ([]Instance, error)
}

// CountInService counts instances currently serving traffic, across all
// versions.
func CountInService(snapshot []Instance) int {
	n := 0
	for _, inst := range snapshot {
		if inst.InService() {
			n++
		}
	}
	return n
}

// InServiceOn counts instances serving traffic on the given version.
func InServiceOn(snapshot []Instance, version TemplateVersionID) int {
	n := 0
	for _, inst := range snapshot {
		if inst.InService() && inst.Version == version {
			n++
		}
	}
	return n
}

// PendingOn returns pending instances on the given version. The engine
// uses this to recover from ambiguous launch outcomes without issuing
// duplicate launches.
func PendingOn(snapshot []Instance, version TemplateVersionID) []InstanceID {
	var ids []InstanceID
	for _, inst := range snapshot {
		if inst.State == LifecyclePending && inst.Version == version {
			ids = append(ids, inst.ID)
		}
	}
	return ids
}

// OldestInService returns up to n in-service instances not on the target
// version, oldest launch first. Ties break on instance ID so the order is
// stable.
func OldestInService(snapshot []Instance, target TemplateVersionID, n int) []InstanceID {
	var old []Instance
	for _, inst := range snapshot {
		if inst.InService() && inst.Version != target {
			old = append(old, inst)
		}
	}
	sort.Slice(old, func(i, j int) bool {
		if !old[i].LaunchTime.Equal(old[j].LaunchTime) {
			return old[i].LaunchTime.Before(old[j].LaunchTime)
		}
		return old[i].ID < old[j].ID
	})
	if n > len(old) {
		n = len(old)
	}
	ids := make([]InstanceID, n)
	for i := range ids {
		ids[i] = old[i].ID
	}
	return ids
}
