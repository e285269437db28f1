// Package httphealth implements [domain.HealthEvaluator] by probing an
// HTTP health endpoint on each instance.
package httphealth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetforge/fleetforge-server/internal/domain"
)

// Evaluator probes instances over HTTP. A 2xx response is healthy, any
// other response is unhealthy, and a transport failure is unknown: the
// instance may be fine behind an unreachable network path, and the
// caller decides how long to keep polling.
type Evaluator struct {
	// Resolve maps an instance ID to its health endpoint URL.
	Resolve func(id domain.InstanceID) (string, error)

	// Client is the probe client; nil means a client with Timeout.
	Client *http.Client

	// Timeout bounds a single probe when Client is nil.
	Timeout time.Duration

	Log zerolog.Logger
}

func (e *Evaluator) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (e *Evaluator) Check(ctx context.Context, id domain.InstanceID) (domain.HealthState, error) {
	url, err := e.Resolve(id)
	if err != nil {
		return domain.HealthUnknown, fmt.Errorf("resolve instance %s: %w", id, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.HealthUnknown, fmt.Errorf("build probe request: %w", err)
	}

	resp, err := e.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.HealthUnknown, ctx.Err()
		}
		e.Log.Debug().Err(err).Str("instance", string(id)).Msg("health probe failed")
		return domain.HealthUnknown, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return domain.HealthHealthy, nil
	}
	e.Log.Debug().Int("status", resp.StatusCode).Str("instance", string(id)).Msg("health probe unhealthy")
	return domain.HealthUnhealthy, nil
}
