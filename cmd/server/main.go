package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	wfsqlite "github.com/cschleiden/go-workflows/backend/sqlite"
	"github.com/cschleiden/go-workflows/client"
	"github.com/cschleiden/go-workflows/worker"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"

	"github.com/fleetforge/fleetforge-server/internal/application"
	"github.com/fleetforge/fleetforge-server/internal/domain"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/execbuild"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/goworkflows"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/httphealth"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/logevents"
	"github.com/fleetforge/fleetforge-server/internal/infrastructure/sqlite"
)

func loggerLevelFromString(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

type Config struct {
	LoggerLevel string `envconfig:"LOGGER_LEVEL,default=info"`

	ListenAddr string `envconfig:"LISTEN_ADDR,default=0.0.0.0:8080"`
	DBPath     string `envconfig:"DB_PATH,default=fleetforge.db"`

	// BuildCommand shells out to the image build tooling. Empty means
	// simulated builds: the image ID is derived from the commit.
	BuildCommand string   `envconfig:"BUILD_COMMAND,optional"`
	BuildArgs    []string `envconfig:"BUILD_ARGS,optional"`

	// HealthURLTemplate is the per-instance probe URL with {id}
	// substituted. Empty means every instance reports healthy, which is
	// what the simulated fleet needs.
	HealthURLTemplate string        `envconfig:"HEALTH_URL_TEMPLATE,optional"`
	HealthPollPeriod  time.Duration `envconfig:"HEALTH_POLL_PERIOD,default=5s"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appCfg := Config{}
	if err := envconfig.Init(&appCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to read app config")
	}
	log.Logger = log.Level(loggerLevelFromString(appCfg.LoggerLevel))

	db, err := sqlite.Open(appCfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	runRepo := &sqlite.PipelineRunRepo{DB: db}
	artifactRepo := &sqlite.ArtifactRepo{DB: db}
	templateRepo := &sqlite.TemplateVersionRepo{DB: db}
	planRepo := &sqlite.PlanRepo{DB: db}
	fleet := &sqlite.FleetStore{DB: db}

	engine := &domain.ReplacementEngine{
		Fleet:              fleet,
		Health:             newHealthEvaluator(appCfg),
		Plans:              planRepo,
		Events:             &logevents.Sink{Log: log.Logger},
		HealthPollInterval: appCfg.HealthPollPeriod,
	}

	wf := &domain.PipelineWorkflow{
		Runs:      runRepo,
		Artifacts: artifactRepo,
		Templates: templateRepo,
		Source: domain.SourceFunc(func(_ context.Context, ref string) (string, error) {
			return ref, nil
		}),
		Builder:  newBuilder(appCfg),
		Replacer: engine,
	}

	backend := wfsqlite.NewInMemoryBackend()
	wfWorker := worker.New(backend, nil)
	wfEngine := &goworkflows.Engine{
		Worker:  wfWorker,
		Client:  client.New(backend),
		Timeout: 24 * time.Hour,
	}
	runner, err := wfEngine.PipelineRunner(wf)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register pipeline workflow")
	}
	if err := wfWorker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start workflow worker")
	}
	defer func() { _ = wfWorker.WaitForCompletion() }()

	srv := &server{
		pipeline:  &application.PipelineService{Runs: runRepo, Workflow: runner},
		templates: &application.TemplateService{Templates: templateRepo, Artifacts: artifactRepo},
		rollback: &application.RollbackService{
			Templates: templateRepo,
			Runs:      runRepo,
			Replacer:  engine,
		},
		fleet:  &application.FleetService{Fleet: fleet},
		engine: engine,
	}

	httpSrv := &http.Server{
		Addr:    appCfg.ListenAddr,
		Handler: srv.routes(),
	}
	go func() {
		log.Info().Str("addr", appCfg.ListenAddr).Msg("running http server")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to serve http")
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}

func newBuilder(cfg Config) domain.Builder {
	if cfg.BuildCommand != "" {
		return &execbuild.Builder{
			Command: cfg.BuildCommand,
			Args:    cfg.BuildArgs,
			Log:     log.Logger,
		}
	}
	log.Warn().Msg("BUILD_COMMAND unset, using simulated builds")
	return simulatedBuilder{}
}

func newHealthEvaluator(cfg Config) domain.HealthEvaluator {
	if cfg.HealthURLTemplate != "" {
		return &httphealth.Evaluator{
			Resolve: func(id domain.InstanceID) (string, error) {
				return strings.ReplaceAll(cfg.HealthURLTemplate, "{id}", string(id)), nil
			},
			Log: log.Logger,
		}
	}
	log.Warn().Msg("HEALTH_URL_TEMPLATE unset, instances always report healthy")
	return domain.HealthFunc(func(context.Context, domain.InstanceID) (domain.HealthState, error) {
		return domain.HealthHealthy, nil
	})
}

// simulatedBuilder derives a stable image ID from the commit, so
// repeated builds of the same source dedupe into one artifact.
type simulatedBuilder struct{}

func (simulatedBuilder) Build(_ context.Context, commit string) (domain.Artifact, error) {
	sum := sha256.Sum256([]byte(commit))
	return domain.Artifact{
		ID:           domain.ArtifactID("img-" + hex.EncodeToString(sum[:8])),
		SourceCommit: commit,
		BuiltAt:      time.Now(),
	}, nil
}

type server struct {
	pipeline  *application.PipelineService
	templates *application.TemplateService
	rollback  *application.RollbackService
	fleet     *application.FleetService
	engine    *domain.ReplacementEngine
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /pipeline/trigger", s.handleTrigger)
	mux.HandleFunc("POST /rollback", s.handleRollback)
	mux.HandleFunc("POST /plans/{id}/cancel", s.handleCancelPlan)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /templates", s.handleListTemplates)
	mux.HandleFunc("GET /fleet", s.handleFleet)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

type replacementParamsRequest struct {
	MinHealthyPercentage   int   `json:"min_healthy_percentage"`
	InstanceWarmupSeconds  int   `json:"instance_warmup_seconds"`
	CheckpointDelaySeconds int   `json:"checkpoint_delay_seconds"`
	CheckpointPercentages  []int `json:"checkpoint_percentages"`
}

func (r replacementParamsRequest) toDomain() domain.ReplacementParams {
	return domain.ReplacementParams{
		MinHealthyPercentage:  r.MinHealthyPercentage,
		InstanceWarmup:        time.Duration(r.InstanceWarmupSeconds) * time.Second,
		CheckpointDelay:       time.Duration(r.CheckpointDelaySeconds) * time.Second,
		CheckpointPercentages: r.CheckpointPercentages,
	}
}

func (s *server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CommitRef    string                   `json:"commit_ref"`
		DesiredCount int                      `json:"desired_count"`
		Params       replacementParamsRequest `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, domain.ErrInvalidArgument)
		return
	}

	run, err := s.pipeline.Trigger(r.Context(), application.TriggerPipelineInput{
		CommitRef:    req.CommitRef,
		DesiredCount: req.DesiredCount,
		Params:       req.Params.toDomain(),
	})
	if err != nil {
		log.Error().Err(err).Str("commit", req.CommitRef).Msg("pipeline run failed")
		if run.ID == "" {
			httpError(w, err)
			return
		}
		// The run record carries the failure detail; report it with the
		// mapped status code.
		writeJSON(w, statusCode(err), run)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetVersion int64                    `json:"target_version"`
		DesiredCount  int                      `json:"desired_count"`
		Params        replacementParamsRequest `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, domain.ErrInvalidArgument)
		return
	}

	plan, err := s.rollback.Rollback(r.Context(), application.RollbackInput{
		TargetVersion: domain.TemplateVersionID(req.TargetVersion),
		DesiredCount:  req.DesiredCount,
		Params:        req.Params.toDomain(),
	})
	if err != nil {
		log.Error().Err(err).Int64("version", req.TargetVersion).Msg("rollback failed")
		if plan.ID == "" {
			httpError(w, err)
			return
		}
		writeJSON(w, statusCode(err), plan)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *server) handleCancelPlan(w http.ResponseWriter, r *http.Request) {
	id := domain.PlanID(r.PathValue("id"))
	if err := s.engine.Cancel(id); err != nil {
		httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.pipeline.List(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	versions, err := s.templates.History(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *server) handleFleet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.fleet.Snapshot(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPlanConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func httpError(w http.ResponseWriter, err error) {
	writeJSON(w, statusCode(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}
