package model

// OrchestratorRole describes what an orchestrator instance is for.
type OrchestratorRole string

const (
	RoleCoordinator OrchestratorRole = "coordinator"
	RoleExecutor    OrchestratorRole = "executor"
	RoleMinimal     OrchestratorRole = "minimal"
)

// ManagedAgentsWildcard in the managed-agents list grants scope over every agent.
const ManagedAgentsWildcard = "*"

// OrchestratorConfig is the identity and policy for one orchestrator instance.
// Built by the preset merge in the orchestrator package; immutable once registered.
type OrchestratorConfig struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Role                OrchestratorRole `json:"role"`
	ManagedAgents       []string         `json:"managed_agents"`
	CanCreateAgents     bool             `json:"can_create_agents"`
	CanDeleteAgents     bool             `json:"can_delete_agents"`
	CanTriggerWorkflows bool             `json:"can_trigger_workflows"`
	MaxConcurrentAgents int              `json:"max_concurrent_agents"`
	AvailableWorkflows  []string         `json:"available_workflows,omitempty"`
	WorkspaceDir        string           `json:"workspace_dir,omitempty"`
	CustomInstructions  string           `json:"custom_instructions,omitempty"`
}

// ManagesAgent reports whether the config's managed-agent scope covers agentID.
func (c OrchestratorConfig) ManagesAgent(agentID string) bool {
	for _, a := range c.ManagedAgents {
		if a == ManagedAgentsWildcard || a == agentID {
			return true
		}
	}
	return false
}

// WorkflowAllowed reports whether workflowID passes the allow-list.
// An empty allow-list means no restriction.
func (c OrchestratorConfig) WorkflowAllowed(workflowID string) bool {
	if len(c.AvailableWorkflows) == 0 {
		return true
	}
	for _, w := range c.AvailableWorkflows {
		if w == workflowID {
			return true
		}
	}
	return false
}
