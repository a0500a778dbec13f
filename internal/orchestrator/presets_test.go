package orchestrator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boriskellerman/gimli-sub008/internal/model"
	"github.com/boriskellerman/gimli-sub008/internal/orchestrator"
)

func TestBuildConfigDefaults(t *testing.T) {
	cfg, err := orchestrator.BuildConfig("orc-1", orchestrator.Options{})
	require.NoError(t, err)

	assert.Equal(t, "orc-1", cfg.ID)
	assert.Equal(t, "orc-1", cfg.Name)
	assert.Equal(t, model.RoleCoordinator, cfg.Role)
	assert.Equal(t, []string{"*"}, cfg.ManagedAgents)
	assert.True(t, cfg.CanCreateAgents)
	assert.True(t, cfg.CanDeleteAgents)
	assert.True(t, cfg.CanTriggerWorkflows)
	assert.Equal(t, 5, cfg.MaxConcurrentAgents)
	assert.Empty(t, cfg.AvailableWorkflows)
}

func TestBuildConfigDefaultPresetExplicit(t *testing.T) {
	implicit, err := orchestrator.BuildConfig("x", orchestrator.Options{})
	require.NoError(t, err)
	explicit, err := orchestrator.BuildConfig("x", orchestrator.Options{Preset: orchestrator.PresetDefault})
	require.NoError(t, err)
	assert.Equal(t, implicit, explicit)
}

func TestBuildConfigMinimalPreset(t *testing.T) {
	cfg, err := orchestrator.BuildConfig("orc-1", orchestrator.Options{Preset: orchestrator.PresetMinimal})
	require.NoError(t, err)

	assert.Equal(t, model.RoleMinimal, cfg.Role)
	assert.False(t, cfg.CanCreateAgents)
	assert.False(t, cfg.CanDeleteAgents)
	assert.False(t, cfg.CanTriggerWorkflows)
	assert.Equal(t, 1, cfg.MaxConcurrentAgents)
	// Untouched by the preset: the base default survives.
	assert.Equal(t, []string{"*"}, cfg.ManagedAgents)
}

func TestBuildConfigExecutorPreset(t *testing.T) {
	cfg, err := orchestrator.BuildConfig("orc-1", orchestrator.Options{Preset: orchestrator.PresetExecutor})
	require.NoError(t, err)

	assert.Equal(t, model.RoleExecutor, cfg.Role)
	assert.False(t, cfg.CanCreateAgents)
	assert.False(t, cfg.CanDeleteAgents)
	assert.True(t, cfg.CanTriggerWorkflows)
	assert.Equal(t, 10, cfg.MaxConcurrentAgents)
}

func TestBuildConfigUnknownPreset(t *testing.T) {
	_, err := orchestrator.BuildConfig("orc-1", orchestrator.Options{Preset: "turbo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown preset")
}

func TestBuildConfigOverridesWinOverPreset(t *testing.T) {
	ceiling := 3
	cfg, err := orchestrator.BuildConfig("orc-1", orchestrator.Options{
		Preset:              orchestrator.PresetExecutor,
		Name:                "builder",
		ManagedAgents:       []string{"agent-a", "agent-b"},
		MaxConcurrentAgents: &ceiling,
		AvailableWorkflows:  []string{"deploy"},
		WorkspaceDir:        "/srv/work",
		CustomInstructions:  "be careful",
	})
	require.NoError(t, err)

	assert.Equal(t, "builder", cfg.Name)
	assert.Equal(t, []string{"agent-a", "agent-b"}, cfg.ManagedAgents)
	assert.Equal(t, 3, cfg.MaxConcurrentAgents)
	assert.Equal(t, []string{"deploy"}, cfg.AvailableWorkflows)
	assert.Equal(t, "/srv/work", cfg.WorkspaceDir)
	assert.Equal(t, "be careful", cfg.CustomInstructions)
	// Preset values not overridden remain.
	assert.Equal(t, model.RoleExecutor, cfg.Role)
	assert.False(t, cfg.CanCreateAgents)
}

func TestBuildConfigZeroOverridesLeavePreset(t *testing.T) {
	cfg, err := orchestrator.BuildConfig("orc-1", orchestrator.Options{
		Preset: orchestrator.PresetMinimal,
		// All override fields zero.
	})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxConcurrentAgents)
	assert.Equal(t, "orc-1", cfg.Name)
}

func TestBuildConfigInvalidCeilingIgnored(t *testing.T) {
	zero := 0
	cfg, err := orchestrator.BuildConfig("orc-1", orchestrator.Options{MaxConcurrentAgents: &zero})
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxConcurrentAgents)
}

func TestBuildConfigClonesSlices(t *testing.T) {
	agents := []string{"a"}
	cfg, err := orchestrator.BuildConfig("orc-1", orchestrator.Options{ManagedAgents: agents})
	require.NoError(t, err)

	agents[0] = "mutated"
	assert.Equal(t, []string{"a"}, cfg.ManagedAgents)
}

func TestManagesAgent(t *testing.T) {
	wild, _ := orchestrator.BuildConfig("w", orchestrator.Options{})
	assert.True(t, wild.ManagesAgent("anything"))

	scoped, _ := orchestrator.BuildConfig("s", orchestrator.Options{ManagedAgents: []string{"a", "b"}})
	assert.True(t, scoped.ManagesAgent("a"))
	assert.False(t, scoped.ManagesAgent("c"))
}

func TestWorkflowAllowed(t *testing.T) {
	open, _ := orchestrator.BuildConfig("o", orchestrator.Options{})
	assert.True(t, open.WorkflowAllowed("anything"))

	restricted, _ := orchestrator.BuildConfig("r", orchestrator.Options{AvailableWorkflows: []string{"deploy"}})
	assert.True(t, restricted.WorkflowAllowed("deploy"))
	assert.False(t, restricted.WorkflowAllowed("teardown"))
}
