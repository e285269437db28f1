package httphealth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fleetforge/fleetforge-server/internal/domain"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/httphealth"
)

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthy/healthz":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)

	ev := &httphealth.Evaluator{
		Resolve: func(id domain.InstanceID) (string, error) {
			return srv.URL + "/" + string(id) + "/healthz", nil
		},
	}

	ctx := context.Background()

	got, err := ev.Check(ctx, "healthy")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got != domain.HealthHealthy {
		t.Errorf("healthy instance: got %q, want healthy", got)
	}

	got, err = ev.Check(ctx, "sick")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got != domain.HealthUnhealthy {
		t.Errorf("unhealthy instance: got %q, want unhealthy", got)
	}
}

func TestCheckTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // probe target is gone

	ev := &httphealth.Evaluator{
		Resolve: func(domain.InstanceID) (string, error) {
			return srv.URL + "/healthz", nil
		},
	}

	got, err := ev.Check(context.Background(), "i1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got != domain.HealthUnknown {
		t.Errorf("unreachable instance: got %q, want unknown", got)
	}
}
