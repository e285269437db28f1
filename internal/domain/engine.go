package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

const (
	defaultHealthPollInterval = 5 * time.Second
	defaultHealthPollAttempts = 3
	defaultRelaunchBudget     = 3
)

// ReplacementEngine executes health-gated, checkpointed replacement plans
// against one fleet. At most one plan runs at a time; concurrent starts
// are rejected with [ErrPlanConflict] rather than queued.
//
// The engine mutates the fleet imperatively through [FleetStore]: it
// launches new-version instances first, confirms them healthy, and only
// then terminates the matching old-version instances, so the in-service
// count never drops below the plan's capacity floor.
type ReplacementEngine struct {
	Fleet  FleetStore
	Health HealthEvaluator
	Plans  PlanRepository
	Events EventSink

	// Now and Sleep are injectable for tests. Nil means real time.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	// HealthPollInterval spaces health checks after warmup expiry.
	HealthPollInterval time.Duration
	// HealthPollAttempts bounds health checks per launched instance.
	HealthPollAttempts int
	// RelaunchBudget bounds total launches per replacement slot,
	// including the first. Exhausting it fails the plan.
	RelaunchBudget int

	mu     sync.Mutex
	active *activeRun
}

// activeRun tracks the single in-flight plan and its cancellation flag.
type activeRun struct {
	id PlanID

	cancelMu  sync.Mutex
	cancelled bool
}

func (r *activeRun) cancel() {
	r.cancelMu.Lock()
	r.cancelled = true
	r.cancelMu.Unlock()
}

func (r *activeRun) isCancelled() bool {
	r.cancelMu.Lock()
	defer r.cancelMu.Unlock()
	return r.cancelled
}

// Execute runs the plan to a terminal status and returns the final plan
// record. Precondition violations (invalid parameters) fail the plan
// before any launch or terminate call. The returned error is non-nil for
// every non-Completed outcome; the plan's Status and Reason carry the
// same information for callers that persist it.
func (e *ReplacementEngine) Execute(ctx context.Context, plan ReplacementPlan) (ReplacementPlan, error) {
	if plan.ID == "" {
		plan.ID = PlanID(uuid.NewString())
	}

	if err := plan.Validate(); err != nil {
		plan.Status = PlanStatusFailed
		plan.Reason = err.Error()
		plan.CreatedAt, plan.UpdatedAt = e.now(), e.now()
		if cerr := e.Plans.Create(ctx, plan); cerr != nil {
			return plan, cerr
		}
		e.Events.PlanTerminal(e.event(plan), plan.Status, plan.Reason)
		return plan, err
	}

	run := &activeRun{id: plan.ID}
	e.mu.Lock()
	if e.active != nil {
		holder := e.active.id
		e.mu.Unlock()
		return ReplacementPlan{}, fmt.Errorf("%w: plan %s holds the fleet", ErrPlanConflict, holder)
	}
	e.active = run
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.active = nil
		e.mu.Unlock()
	}()

	plan.Status = PlanStatusRunning
	plan.CreatedAt, plan.UpdatedAt = e.now(), e.now()
	if err := e.Plans.Create(ctx, plan); err != nil {
		return plan, fmt.Errorf("persist plan: %w", err)
	}

	return e.run(ctx, plan, run)
}

// Cancel requests cooperative cancellation of the running plan. The
// request takes effect at the next batch boundary, never mid-batch, so a
// replaced pair is never left half-terminated.
func (e *ReplacementEngine) Cancel(id PlanID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || e.active.id != id {
		return fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	e.active.cancel()
	return nil
}

func (e *ReplacementEngine) run(ctx context.Context, plan ReplacementPlan, run *activeRun) (ReplacementPlan, error) {
	snap, err := e.Fleet.Snapshot(ctx)
	if err != nil {
		return e.finish(ctx, plan, PlanStatusFailed, fmt.Errorf("initial snapshot: %w", err))
	}
	// Instances already serving on the target version count as replaced,
	// so a re-run after an interrupted plan resumes instead of
	// over-provisioning.
	plan.ReplacedCount = InServiceOn(snap, plan.TargetVersion)
	floor := plan.MinHealthyCount()

	for _, pct := range plan.Params.CheckpointPercentages {
		target := ceilPct(plan.DesiredCount, pct)

		for plan.ReplacedCount < target {
			// Batch boundary: the only point where cancellation is
			// observed.
			if run.isCancelled() || ctx.Err() != nil {
				return e.finish(ctx, plan, PlanStatusCancelled, ErrCancelled)
			}

			snap, err := e.Fleet.Snapshot(ctx)
			if err != nil {
				return e.finish(ctx, plan, PlanStatusFailed, fmt.Errorf("snapshot: %w", err))
			}
			batch := target - plan.ReplacedCount
			if slack := CountInService(snap) - floor; batch > slack {
				batch = slack
			}
			if batch < 1 {
				// Launch-first keeps the floor intact even with no
				// slack: capacity grows before anything is terminated.
				batch = 1
			}

			if err := e.replaceBatch(ctx, &plan, batch, snap); err != nil {
				return e.finish(ctx, plan, PlanStatusFailed, err)
			}

			plan.ReplacedCount += batch
			plan.UpdatedAt = e.now()
			if err := e.Plans.Update(ctx, plan); err != nil {
				return e.finish(ctx, plan, PlanStatusFailed, fmt.Errorf("persist progress: %w", err))
			}
			e.Events.BatchReplaced(e.event(plan), batch)
		}

		e.Events.CheckpointReached(e.event(plan), pct)
		if pct < 100 {
			// Bake time before the next checkpoint.
			if err := e.sleep(ctx, plan.Params.CheckpointDelay); err != nil {
				return e.finish(ctx, plan, PlanStatusCancelled, ErrCancelled)
			}
		}
	}

	snap, err = e.Fleet.Snapshot(ctx)
	if err != nil {
		return e.finish(ctx, plan, PlanStatusFailed, fmt.Errorf("final snapshot: %w", err))
	}
	if got := InServiceOn(snap, plan.TargetVersion); got < plan.DesiredCount {
		return e.finish(ctx, plan, PlanStatusFailed,
			fmt.Errorf("expected %d in-service instances on version %d, found %d",
				plan.DesiredCount, plan.TargetVersion, got))
	}
	return e.finish(ctx, plan, PlanStatusCompleted, nil)
}

// replaceBatch launches batch new instances, confirms them healthy, and
// terminates an equal number of the oldest old-version instances. On any
// error it returns without terminating: already-confirmed new instances
// and all old instances stay as they are, which is the safe state.
//
// Pending instances already on the target version (left by an ambiguous
// launch outcome in an interrupted run) are adopted into the batch
// before anything new is launched.
func (e *ReplacementEngine) replaceBatch(ctx context.Context, plan *ReplacementPlan, batch int, snap []Instance) error {
	ids := PendingOn(snap, plan.TargetVersion)
	if len(ids) > batch {
		ids = ids[:batch]
	}
	if need := batch - len(ids); need > 0 {
		launched, err := e.Fleet.Launch(ctx, plan.TargetVersion, need)
		if err != nil {
			return fmt.Errorf("launch batch of %d: %w", need, err)
		}
		ids = append(ids, launched...)
	}

	if err := e.sleep(ctx, plan.Params.InstanceWarmup); err != nil {
		return err
	}

	ready := make([]InstanceID, 0, batch)
	for _, id := range ids {
		confirmed, err := e.confirmSlot(ctx, plan, id)
		if err != nil {
			return err
		}
		ready = append(ready, confirmed)
	}
	if err := e.Fleet.MarkInService(ctx, ready); err != nil {
		return fmt.Errorf("mark in service: %w", err)
	}

	snap, err := e.Fleet.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot before terminate: %w", err)
	}
	victims := OldestInService(snap, plan.TargetVersion, batch)
	if err := e.Fleet.Terminate(ctx, victims); err != nil {
		return fmt.Errorf("terminate old batch: %w", err)
	}
	return nil
}

// confirmSlot waits for the instance to report healthy. An instance that
// never does is abandoned and a fresh one is launched for the slot, up
// to the relaunch budget.
func (e *ReplacementEngine) confirmSlot(ctx context.Context, plan *ReplacementPlan, id InstanceID) (InstanceID, error) {
	budget := e.relaunchBudget()
	current := id
	for launches := 1; ; launches++ {
		healthy, err := e.pollHealthy(ctx, current)
		if err != nil {
			return "", err
		}
		if healthy {
			return current, nil
		}
		if launches >= budget {
			return "", fmt.Errorf("%w: instance %s after %d launches", ErrHealthTimeout, current, launches)
		}
		replacement, err := e.Fleet.Launch(ctx, plan.TargetVersion, 1)
		if err != nil {
			return "", fmt.Errorf("relaunch slot: %w", err)
		}
		current = replacement[0]
		if err := e.sleep(ctx, plan.Params.InstanceWarmup); err != nil {
			return "", err
		}
	}
}

// pollHealthy polls the health evaluator until the instance is healthy
// or the poll attempts run out. A false result with nil error means the
// instance simply never became healthy.
func (e *ReplacementEngine) pollHealthy(ctx context.Context, id InstanceID) (bool, error) {
	err := retry.Do(
		func() error {
			state, err := e.Health.Check(ctx, id)
			if err != nil {
				return err
			}
			if state != HealthHealthy {
				return fmt.Errorf("instance %s reported %s", id, state)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.pollAttempts())),
		retry.Delay(e.pollInterval()),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return false, nil
}

func (e *ReplacementEngine) finish(ctx context.Context, plan ReplacementPlan, status PlanStatus, cause error) (ReplacementPlan, error) {
	plan.Status = status
	if cause != nil {
		plan.Reason = cause.Error()
	}
	plan.UpdatedAt = e.now()
	if err := e.Plans.Update(ctx, plan); err != nil && cause == nil {
		cause = fmt.Errorf("persist terminal status: %w", err)
	}
	e.Events.PlanTerminal(e.event(plan), status, plan.Reason)
	return plan, cause
}

func (e *ReplacementEngine) event(plan ReplacementPlan) PlanEvent {
	return PlanEvent{
		PlanID:        plan.ID,
		Time:          e.now(),
		DesiredCount:  plan.DesiredCount,
		ReplacedCount: plan.ReplacedCount,
	}
}

func (e *ReplacementEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *ReplacementEngine) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *ReplacementEngine) pollInterval() time.Duration {
	if e.HealthPollInterval > 0 {
		return e.HealthPollInterval
	}
	return defaultHealthPollInterval
}

func (e *ReplacementEngine) pollAttempts() int {
	if e.HealthPollAttempts > 0 {
		return e.HealthPollAttempts
	}
	return defaultHealthPollAttempts
}

func (e *ReplacementEngine) relaunchBudget() int {
	if e.RelaunchBudget > 0 {
		return e.RelaunchBudget
	}
	return defaultRelaunchBudget
}
