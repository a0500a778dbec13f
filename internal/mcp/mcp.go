// Package mcp implements the Model Context Protocol surface of the control
// plane.
//
// MCP-compatible agents get the same capabilities as the RPC API: inspecting
// runs and orchestrators and triggering workflows. The transport is mounted
// by the HTTP server; this package only declares resources and tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/boriskellerman/gimli-sub008/internal/model"
	"github.com/boriskellerman/gimli-sub008/internal/orchestrator"
	"github.com/boriskellerman/gimli-sub008/internal/runstore"
	"github.com/boriskellerman/gimli-sub008/internal/workflow"
)

// Server wraps the MCP server with the control-plane subsystems.
type Server struct {
	mcpServer *mcpserver.MCPServer
	registry  *orchestrator.Registry
	runs      *runstore.Store
}

// New creates and configures an MCP server with all resources and tools.
func New(registry *orchestrator.Registry, runs *runstore.Store, version string) *Server {
	s := &Server{
		registry: registry,
		runs:     runs,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"gimli",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// gimli://runs/recent — most recent workflow runs.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"gimli://runs/recent",
			"Recent Runs",
			mcplib.WithResourceDescription("Most recent workflow runs across all orchestrators"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRunsRecent,
	)

	// gimli://orchestrators — registered orchestrator configurations.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"gimli://orchestrators",
			"Orchestrators",
			mcplib.WithResourceDescription("All registered orchestrator configurations"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleOrchestrators,
	)
}

func (s *Server) registerTools() {
	// gimli_run_list — list runs with optional filters.
	s.mcpServer.AddTool(
		mcplib.NewTool("gimli_run_list",
			mcplib.WithDescription("List workflow runs with optional status and name filters"),
			mcplib.WithString("status", mcplib.Description("Filter by status: pending, running, completed, error")),
			mcplib.WithString("name", mcplib.Description("Filter by substring of the run name")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return")),
		),
		s.handleRunList,
	)

	// gimli_run_get — fetch a single run by id.
	s.mcpServer.AddTool(
		mcplib.NewTool("gimli_run_get",
			mcplib.WithDescription("Get the full record of a single workflow run"),
			mcplib.WithString("run_id", mcplib.Description("Run identifier"), mcplib.Required()),
		),
		s.handleRunGet,
	)

	// gimli_orchestrator_list — list registered orchestrators.
	s.mcpServer.AddTool(
		mcplib.NewTool("gimli_orchestrator_list",
			mcplib.WithDescription("List all registered orchestrators and their configurations"),
		),
		s.handleOrchestratorList,
	)

	// gimli_workflow_list — workflows an orchestrator may trigger.
	s.mcpServer.AddTool(
		mcplib.NewTool("gimli_workflow_list",
			mcplib.WithDescription("List the workflows available to an orchestrator"),
			mcplib.WithString("id", mcplib.Description("Orchestrator identifier"), mcplib.Required()),
		),
		s.handleWorkflowList,
	)

	// gimli_workflow_trigger — start a workflow as an orchestrator.
	s.mcpServer.AddTool(
		mcplib.NewTool("gimli_workflow_trigger",
			mcplib.WithDescription("Trigger a workflow on behalf of an orchestrator and return the run id"),
			mcplib.WithString("id", mcplib.Description("Orchestrator identifier"), mcplib.Required()),
			mcplib.WithString("workflow_id", mcplib.Description("Workflow to trigger"), mcplib.Required()),
		),
		s.handleWorkflowTrigger,
	)
}

func (s *Server) handleRunsRecent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	runs, total := s.runs.List(runstore.Filter{Limit: 20})

	data, err := json.MarshalIndent(map[string]any{
		"runs":  runs,
		"total": total,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal runs: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "gimli://runs/recent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleOrchestrators(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(s.registry.List(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal orchestrators: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "gimli://orchestrators",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleRunList(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	filter := runstore.Filter{
		Status:       model.RunStatus(request.GetString("status", "")),
		NameContains: request.GetString("name", ""),
		Limit:        request.GetInt("limit", 20),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return errorResult(fmt.Sprintf("unknown status %q", filter.Status)), nil
	}

	runs, total := s.runs.List(filter)
	return jsonResult(map[string]any{
		"runs":  runs,
		"total": total,
	})
}

func (s *Server) handleRunGet(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	runID := request.GetString("run_id", "")
	if runID == "" {
		return errorResult("run_id is required"), nil
	}

	run, ok := s.runs.Get(runID)
	if !ok {
		return errorResult(fmt.Sprintf("run %s not found", runID)), nil
	}
	return jsonResult(run)
}

func (s *Server) handleOrchestratorList(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return jsonResult(map[string]any{
		"orchestrators": s.registry.List(),
	})
}

func (s *Server) handleWorkflowList(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id := request.GetString("id", "")
	if id == "" {
		return errorResult("id is required"), nil
	}

	infos := s.registry.ListAvailableWorkflows(ctx, id)
	if infos == nil {
		infos = []workflow.Info{}
	}
	return jsonResult(map[string]any{"workflows": infos})
}

func (s *Server) handleWorkflowTrigger(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id := request.GetString("id", "")
	workflowID := request.GetString("workflow_id", "")
	if id == "" || workflowID == "" {
		return errorResult("id and workflow_id are required"), nil
	}

	runID, err := s.registry.TriggerWorkflow(ctx, id, workflowID, nil)
	if err != nil {
		return errorResult(fmt.Sprintf("trigger failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"run_id": runID})
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal failed: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
