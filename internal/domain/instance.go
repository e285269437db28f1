package domain

import "time"

// InstanceID identifies a single fleet instance.
type InstanceID string

// LifecycleState indicates where an instance is in its life.
type LifecycleState string

const (
	LifecyclePending    LifecycleState = "pending"
	LifecycleInService  LifecycleState = "in-service"
	LifecycleDraining   LifecycleState = "draining"
	LifecycleTerminated LifecycleState = "terminated"
)

// HealthState is the load-balancer view of an instance.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

// Instance is one member of the fleet. Every instance references exactly
// one template version.
type Instance struct {
	ID         InstanceID
	Version    TemplateVersionID
	State      LifecycleState
	Health     HealthState
	LaunchTime time.Time
}

// InService reports whether the instance currently serves traffic.
func (i Instance) InService() bool {
	return i.State == LifecycleInService
}
