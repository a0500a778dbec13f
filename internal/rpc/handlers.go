package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/boriskellerman/gimli-sub008/internal/auth"
	"github.com/boriskellerman/gimli-sub008/internal/model"
	"github.com/boriskellerman/gimli-sub008/internal/orchestrator"
	"github.com/boriskellerman/gimli-sub008/internal/runstore"
	"github.com/boriskellerman/gimli-sub008/internal/workflow"
)

// Deps are the subsystems the declared methods read and write.
// Archive is optional; run.history reports empty without one.
type Deps struct {
	Registry *orchestrator.Registry
	Runs     *runstore.Store
	Archive  *runstore.Archive
	Logger   *slog.Logger
}

// New builds a dispatcher with every declared control-plane method wired.
func New(deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	d := NewDispatcher(deps.Logger)
	h := &handlers{deps: deps}

	var (
		one     = float64(1)
		zero    = float64(0)
		maxPage = float64(500)
	)

	pagination := Schema{
		"limit":  {Type: TypeInt, Min: &one, Max: &maxPage},
		"offset": {Type: TypeInt, Min: &zero},
	}

	runList := Schema{
		"status": {Type: TypeString, Enum: []string{
			string(model.RunStatusPending), string(model.RunStatusRunning),
			string(model.RunStatusCompleted), string(model.RunStatusError),
		}},
		"name":   {Type: TypeString},
		"limit":  pagination["limit"],
		"offset": pagination["offset"],
	}

	d.register("run.list", auth.RoleReader, runList, h.runList)
	d.register("run.get", auth.RoleReader, Schema{
		"run_id": {Type: TypeString, Required: true},
	}, h.runGet)
	d.register("run.stats", auth.RoleReader, Schema{}, h.runStats)
	d.register("run.history", auth.RoleReader, pagination, h.runHistory)

	d.register("orchestrator.get", auth.RoleReader, Schema{
		"id": {Type: TypeString, Required: true},
	}, h.orchestratorGet)
	d.register("orchestrator.list", auth.RoleReader, Schema{}, h.orchestratorList)
	d.register("orchestrator.register", auth.RoleOperator, Schema{
		"id":                    {Type: TypeString, Required: true},
		"preset":                {Type: TypeString, Enum: []string{orchestrator.PresetDefault, orchestrator.PresetMinimal, orchestrator.PresetExecutor}},
		"name":                  {Type: TypeString},
		"managed_agents":        {Type: TypeStringList},
		"max_concurrent_agents": {Type: TypeInt, Min: &one},
		"available_workflows":   {Type: TypeStringList},
		"workspace_dir":         {Type: TypeString},
		"custom_instructions":   {Type: TypeString},
	}, h.orchestratorRegister)
	d.register("orchestrator.shutdown", auth.RoleOperator, Schema{
		"id": {Type: TypeString, Required: true},
	}, h.orchestratorShutdown)

	d.register("workflow.trigger", auth.RoleOperator, Schema{
		"id":          {Type: TypeString, Required: true},
		"workflow_id": {Type: TypeString, Required: true},
		"params":      {Type: TypeObject},
	}, h.workflowTrigger)
	d.register("workflow.list", auth.RoleReader, Schema{
		"id": {Type: TypeString, Required: true},
	}, h.workflowList)

	return d
}

type handlers struct {
	deps Deps
}

func (h *handlers) runList(_ context.Context, _ Caller, params map[string]any) (any, *model.ErrorDetail) {
	filter := runstore.Filter{
		Status:       model.RunStatus(paramString(params, "status")),
		NameContains: paramString(params, "name"),
		Limit:        paramInt(params, "limit", 50),
		Offset:       paramInt(params, "offset", 0),
	}
	runs, total := h.deps.Runs.List(filter)
	return model.ListRunsResult{
		Runs:    runs,
		Total:   total,
		HasMore: filter.Offset+len(runs) < total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func (h *handlers) runGet(_ context.Context, _ Caller, params map[string]any) (any, *model.ErrorDetail) {
	runID := paramString(params, "run_id")
	run, ok := h.deps.Runs.Get(runID)
	if !ok {
		return nil, &model.ErrorDetail{
			Code:    model.ErrCodeNotFound,
			Message: fmt.Sprintf("run %s not found", runID),
		}
	}
	return run, nil
}

func (h *handlers) runStats(_ context.Context, _ Caller, _ map[string]any) (any, *model.ErrorDetail) {
	return h.deps.Runs.Stats(), nil
}

func (h *handlers) runHistory(_ context.Context, _ Caller, params map[string]any) (any, *model.ErrorDetail) {
	if h.deps.Archive == nil {
		return model.ListRunsResult{Runs: []model.Run{}}, nil
	}
	limit := paramInt(params, "limit", 50)
	offset := paramInt(params, "offset", 0)
	runs, err := h.deps.Archive.History(limit, offset)
	if err != nil {
		h.deps.Logger.Error("run history query failed", "error", err)
		return nil, &model.ErrorDetail{
			Code:    model.ErrCodeInternalError,
			Message: "run history unavailable",
		}
	}
	if runs == nil {
		runs = []model.Run{}
	}
	return model.ListRunsResult{Runs: runs, Total: len(runs), Limit: limit, Offset: offset}, nil
}

func (h *handlers) orchestratorGet(_ context.Context, _ Caller, params map[string]any) (any, *model.ErrorDetail) {
	id := paramString(params, "id")
	cfg, ok := h.deps.Registry.Get(id)
	if !ok {
		return nil, &model.ErrorDetail{
			Code:    model.ErrCodeNotFound,
			Message: fmt.Sprintf("orchestrator %s not found", id),
		}
	}
	return cfg, nil
}

func (h *handlers) orchestratorList(_ context.Context, _ Caller, _ map[string]any) (any, *model.ErrorDetail) {
	return h.deps.Registry.List(), nil
}

func (h *handlers) orchestratorRegister(_ context.Context, caller Caller, params map[string]any) (any, *model.ErrorDetail) {
	opts := orchestrator.Options{
		Preset:             paramString(params, "preset"),
		Name:               paramString(params, "name"),
		ManagedAgents:      paramStringList(params, "managed_agents"),
		AvailableWorkflows: paramStringList(params, "available_workflows"),
		WorkspaceDir:       paramString(params, "workspace_dir"),
		CustomInstructions: paramString(params, "custom_instructions"),
	}
	if n := paramInt(params, "max_concurrent_agents", 0); n >= 1 {
		opts.MaxConcurrentAgents = &n
	}

	cfg, err := h.deps.Registry.Register(paramString(params, "id"), opts)
	if err != nil {
		return nil, registryError(err)
	}
	h.deps.Logger.Info("orchestrator registered via rpc",
		"id", cfg.ID, "client", caller.ClientID)
	return cfg, nil
}

func (h *handlers) orchestratorShutdown(_ context.Context, caller Caller, params map[string]any) (any, *model.ErrorDetail) {
	id := paramString(params, "id")
	existed := h.deps.Registry.Shutdown(id)
	if existed {
		h.deps.Logger.Info("orchestrator shut down via rpc",
			"id", id, "client", caller.ClientID)
	}
	return model.ShutdownResult{Existed: existed}, nil
}

func (h *handlers) workflowTrigger(ctx context.Context, caller Caller, params map[string]any) (any, *model.ErrorDetail) {
	id := paramString(params, "id")
	workflowID := paramString(params, "workflow_id")
	runID, err := h.deps.Registry.TriggerWorkflow(ctx, id, workflowID, paramObject(params, "params"))
	if err != nil {
		return nil, registryError(err)
	}
	h.deps.Logger.Info("workflow triggered via rpc",
		"orchestrator", id, "workflow", workflowID, "run_id", runID, "client", caller.ClientID)
	return model.TriggerResult{RunID: runID}, nil
}

func (h *handlers) workflowList(ctx context.Context, _ Caller, params map[string]any) (any, *model.ErrorDetail) {
	infos := h.deps.Registry.ListAvailableWorkflows(ctx, paramString(params, "id"))
	if infos == nil {
		infos = []workflow.Info{}
	}
	return map[string]any{"workflows": infos}, nil
}

// registryError maps registry sentinel errors onto stable RPC error codes.
// Messages are the sentinel text plus the offending id; no internal detail
// leaks across the boundary.
func registryError(err error) *model.ErrorDetail {
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		return &model.ErrorDetail{Code: model.ErrCodeNotFound, Message: err.Error()}
	case errors.Is(err, orchestrator.ErrTriggerNotAllowed),
		errors.Is(err, orchestrator.ErrWorkflowNotAllowed):
		return &model.ErrorDetail{Code: model.ErrCodeForbidden, Message: err.Error()}
	case errors.Is(err, orchestrator.ErrCapacity):
		return &model.ErrorDetail{Code: model.ErrCodeCapacityExceeded, Message: err.Error()}
	case errors.Is(err, orchestrator.ErrAlreadyExists):
		return &model.ErrorDetail{Code: model.ErrCodeInvalidRequest, Message: err.Error()}
	default:
		return &model.ErrorDetail{Code: model.ErrCodeInvalidRequest, Message: err.Error()}
	}
}
