// Package orchestrator manages named orchestrator instances, each carrying a
// capability and policy configuration, and admits workflow triggers against
// their concurrency ceilings.
//
// A Registry is explicitly constructed and dependency-injected; there is no
// process-wide instance. Lifecycle: New → operations → Close.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/boriskellerman/gimli-sub008/internal/model"
	"github.com/boriskellerman/gimli-sub008/internal/retry"
	"github.com/boriskellerman/gimli-sub008/internal/runstore"
	"github.com/boriskellerman/gimli-sub008/internal/workflow"
)

var (
	// ErrAlreadyExists signals a duplicate orchestrator id on Register.
	ErrAlreadyExists = errors.New("orchestrator: id already registered")

	// ErrNotFound signals an unknown orchestrator id where the caller
	// unambiguously expected it to exist.
	ErrNotFound = errors.New("orchestrator: not found")

	// ErrTriggerNotAllowed signals that the orchestrator's policy disables
	// workflow triggering.
	ErrTriggerNotAllowed = errors.New("orchestrator: workflow triggering not permitted")

	// ErrWorkflowNotAllowed signals a workflow outside the orchestrator's
	// allow-list.
	ErrWorkflowNotAllowed = errors.New("orchestrator: workflow not in allow-list")

	// ErrCapacity signals that the orchestrator is at its concurrency ceiling.
	ErrCapacity = errors.New("orchestrator: concurrency ceiling reached")
)

// instance is the registry's bookkeeping for one live orchestrator.
// active is the admission counter: it is checked and incremented under the
// registry lock as one step, so two triggers racing at the ceiling boundary
// can never both proceed.
type instance struct {
	cfg    model.OrchestratorConfig
	active int

	// ctx is cancelled on shutdown so in-flight triggers resolve into a
	// terminal error instead of staying stuck running.
	ctx    context.Context
	cancel context.CancelFunc
}

// Registry manages orchestrator instances. Safe for concurrent use.
type Registry struct {
	connector workflow.Connector
	runs      *runstore.Store
	retryCfg  retry.Config
	logger    *slog.Logger

	mu        sync.Mutex
	instances map[string]*instance
	wg        sync.WaitGroup
}

// New creates an empty registry. retryCfg tunes the retry engine wrapped
// around every connector trigger call.
func New(connector workflow.Connector, runs *runstore.Store, retryCfg retry.Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		connector: connector,
		runs:      runs,
		retryCfg:  retryCfg,
		logger:    logger,
		instances: make(map[string]*instance),
	}
}

// Register builds a configuration from the preset merge and adds the
// orchestrator. Duplicate ids fail with ErrAlreadyExists.
func (r *Registry) Register(id string, opts Options) (model.OrchestratorConfig, error) {
	if id == "" {
		return model.OrchestratorConfig{}, fmt.Errorf("orchestrator: id is required")
	}
	cfg, err := BuildConfig(id, opts)
	if err != nil {
		return model.OrchestratorConfig{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[id]; exists {
		return model.OrchestratorConfig{}, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.instances[id] = &instance{cfg: cfg, ctx: ctx, cancel: cancel}

	r.logger.Info("orchestrator registered",
		"id", id, "role", cfg.Role, "max_concurrent", cfg.MaxConcurrentAgents)
	return cfg, nil
}

// Get returns the stored config. Absent ids return false rather than an error.
func (r *Registry) Get(id string) (model.OrchestratorConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return model.OrchestratorConfig{}, false
	}
	return inst.cfg, true
}

// List returns all live configs sorted by id.
func (r *Registry) List() []model.OrchestratorConfig {
	r.mu.Lock()
	defer r.mu.Unlock()

	configs := make([]model.OrchestratorConfig, 0, len(r.instances))
	for _, inst := range r.instances {
		configs = append(configs, inst.cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
	return configs
}

// ActiveRuns reports the current admission count for id. Zero for unknown ids.
func (r *Registry) ActiveRuns(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok {
		return inst.active
	}
	return 0
}

// Len reports the number of live orchestrators.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// Shutdown removes the orchestrator and cancels its in-flight triggers.
// Idempotent: a second shutdown of the same id reports false, not an error.
func (r *Registry) Shutdown(id string) bool {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if ok {
		delete(r.instances, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	inst.cancel()
	r.logger.Info("orchestrator shut down", "id", id)
	return true
}

// Close shuts down every orchestrator and waits for in-flight trigger
// goroutines to resolve their run entries.
func (r *Registry) Close() {
	r.mu.Lock()
	for id, inst := range r.instances {
		inst.cancel()
		delete(r.instances, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// ListAvailableWorkflows returns the catalogue filtered by the
// orchestrator's allow-list. Best-effort: unknown ids and collaborator
// failures yield an empty list, never an error.
func (r *Registry) ListAvailableWorkflows(ctx context.Context, id string) []workflow.Info {
	cfg, ok := r.Get(id)
	if !ok {
		return nil
	}

	catalogue, err := r.connector.ListAvailable(ctx)
	if err != nil {
		r.logger.Warn("workflow catalogue unavailable", "orchestrator", id, "error", err)
		return nil
	}

	filtered := make([]workflow.Info, 0, len(catalogue))
	for _, w := range catalogue {
		if cfg.WorkflowAllowed(w.ID) {
			filtered = append(filtered, w)
		}
	}
	return filtered
}

// TriggerWorkflow admits and launches one workflow trigger on behalf of the
// orchestrator. It returns the local run id immediately; the collaborator
// call proceeds in the background wrapped in the retry engine, and the run
// store entry transitions running → terminal as it resolves.
func (r *Registry) TriggerWorkflow(ctx context.Context, id, workflowID string, params map[string]any) (string, error) {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cfg := inst.cfg
	if !cfg.CanTriggerWorkflows {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrTriggerNotAllowed, id)
	}
	if !cfg.WorkflowAllowed(workflowID) {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrWorkflowNotAllowed, workflowID)
	}
	if inst.active >= cfg.MaxConcurrentAgents {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %d active of %d for %s",
			ErrCapacity, inst.active, cfg.MaxConcurrentAgents, id)
	}
	// Admission: counted as part of the capacity check, under the same lock.
	inst.active++
	runCtx := inst.ctx
	r.mu.Unlock()

	runID := r.runs.Create(workflowID, id, "")

	r.wg.Add(1)
	go r.execute(runCtx, id, workflowID, runID, params)
	return runID, nil
}

// execute drives one admitted trigger to a terminal run state.
// ctx is the orchestrator's lifetime, not the caller's request: cancelling
// the RPC that asked for the trigger must not abandon the workflow.
func (r *Registry) execute(ctx context.Context, id, workflowID, runID string, params map[string]any) {
	defer r.wg.Done()
	defer r.release(id)

	r.runs.Start(runID)

	var remote workflow.TriggerResult
	outcome := retry.Do(ctx, r.retryCfg, func(ctx context.Context) error {
		var err error
		remote, err = r.connector.Trigger(ctx, workflowID, params)
		return err
	})

	if outcome.Success {
		r.runs.Complete(runID, model.RunResult{
			Kind:    model.RunResultOK,
			Summary: fmt.Sprintf("workflow %s triggered", workflowID),
			Output:  remote.RunID,
		})
		r.logger.Info("workflow trigger succeeded",
			"orchestrator", id, "workflow", workflowID,
			"run_id", runID, "attempts", outcome.Attempts)
		return
	}

	errMsg := "trigger failed"
	if outcome.Err != nil {
		errMsg = outcome.Err.Error()
	}
	r.runs.Complete(runID, model.RunResult{
		Kind:    model.RunResultError,
		Summary: fmt.Sprintf("workflow %s failed after %d attempts", workflowID, outcome.Attempts),
		Error:   errMsg,
	})
	r.logger.Warn("workflow trigger failed",
		"orchestrator", id, "workflow", workflowID, "run_id", runID,
		"attempts", outcome.Attempts, "elapsed", outcome.Elapsed, "error", outcome.Err)
}

// release decrements the admission counter once a trigger resolves.
// The orchestrator may already be gone; that is fine.
func (r *Registry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok && inst.active > 0 {
		inst.active--
	}
}
