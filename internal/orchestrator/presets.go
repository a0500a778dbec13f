package orchestrator

import (
	"fmt"
	"slices"

	"github.com/boriskellerman/gimli-sub008/internal/model"
)

// Preset names accepted by Register.
const (
	PresetDefault  = "default"
	PresetMinimal  = "minimal"
	PresetExecutor = "executor"
)

// Options are the caller-supplied overrides applied on top of a preset.
// Nil or zero fields leave the preset value in place; pointer fields allow
// overriding booleans and integers explicitly.
type Options struct {
	Preset              string
	Name                string
	ManagedAgents       []string
	MaxConcurrentAgents *int
	AvailableWorkflows  []string
	WorkspaceDir        string
	CustomInstructions  string
}

// baseDefaults is stage one of the three-stage merge. Every field a preset
// or override does not touch keeps this value.
func baseDefaults(id string) model.OrchestratorConfig {
	return model.OrchestratorConfig{
		ID:                  id,
		Name:                id,
		Role:                model.RoleCoordinator,
		ManagedAgents:       []string{model.ManagedAgentsWildcard},
		CanCreateAgents:     true,
		CanDeleteAgents:     true,
		CanTriggerWorkflows: true,
		MaxConcurrentAgents: 5,
	}
}

// applyPreset is stage two: a table lookup mutating only the fields the
// preset defines. Unknown presets are an error, not a silent default.
func applyPreset(cfg model.OrchestratorConfig, preset string) (model.OrchestratorConfig, error) {
	switch preset {
	case "", PresetDefault:
		// Defaults are the default preset.
	case PresetMinimal:
		cfg.Role = model.RoleMinimal
		cfg.CanCreateAgents = false
		cfg.CanDeleteAgents = false
		cfg.CanTriggerWorkflows = false
		cfg.MaxConcurrentAgents = 1
	case PresetExecutor:
		cfg.Role = model.RoleExecutor
		cfg.CanCreateAgents = false
		cfg.CanDeleteAgents = false
		cfg.CanTriggerWorkflows = true
		cfg.MaxConcurrentAgents = 10
	default:
		return cfg, fmt.Errorf("orchestrator: unknown preset %q", preset)
	}
	return cfg, nil
}

// applyOverrides is stage three: caller fields win over preset values.
func applyOverrides(cfg model.OrchestratorConfig, opts Options) model.OrchestratorConfig {
	if opts.Name != "" {
		cfg.Name = opts.Name
	}
	if opts.ManagedAgents != nil {
		cfg.ManagedAgents = slices.Clone(opts.ManagedAgents)
	}
	if opts.MaxConcurrentAgents != nil && *opts.MaxConcurrentAgents >= 1 {
		cfg.MaxConcurrentAgents = *opts.MaxConcurrentAgents
	}
	if opts.AvailableWorkflows != nil {
		cfg.AvailableWorkflows = slices.Clone(opts.AvailableWorkflows)
	}
	if opts.WorkspaceDir != "" {
		cfg.WorkspaceDir = opts.WorkspaceDir
	}
	if opts.CustomInstructions != "" {
		cfg.CustomInstructions = opts.CustomInstructions
	}
	return cfg
}

// BuildConfig runs the full defaults → preset → overrides merge.
func BuildConfig(id string, opts Options) (model.OrchestratorConfig, error) {
	cfg, err := applyPreset(baseDefaults(id), opts.Preset)
	if err != nil {
		return model.OrchestratorConfig{}, err
	}
	return applyOverrides(cfg, opts), nil
}
