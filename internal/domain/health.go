package domain

import "context"

// HealthEvaluator reports per-instance health derived from load-balancer
// target registration. The engine consults it after instance warmup and
// periodically while an instance is pending.
type HealthEvaluator interface {
	Check(ctx context.Context, id InstanceID) (HealthState, error)
}

// HealthFunc adapts a function to the [HealthEvaluator] interface.
type HealthFunc func(ctx context.Context, id InstanceID) (HealthState, error)

func (f HealthFunc) Check(ctx context.Context, id InstanceID) (HealthState, error) {
	return f(ctx, id)
}
