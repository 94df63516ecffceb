package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/avolkov/driveline/internal/engine"
	"github.com/avolkov/driveline/internal/liveness"
	"github.com/avolkov/driveline/internal/storage"
)

// MCPDeps holds dependencies for the MCP server. The tools are strictly
// read-only: the assistant's LLM layer can look at driving context but never
// mutates engine state.
type MCPDeps struct {
	Store    *storage.Store
	Liveness *liveness.Coordinator
}

// NewMCPServer creates an MCP server exposing the driving context to the
// assistant's LLM tooling.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"driveline",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("driveline — trip and visit detection engine; read-only access to drive state and the event log."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("driving_status",
			mcp.WithDescription("Current driving and visit state, queue depth, and foreground liveness."),
		),
		mcpDrivingStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_events",
			mcp.WithDescription("List recent drive and visit events from the event log, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of events (default 10)")),
		),
		mcpRecentEvents(deps),
	)

	s.AddTool(
		mcp.NewTool("pending_events",
			mcp.WithDescription("Number of queued events awaiting the next foreground drain."),
		),
		mcpPendingEvents(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"driveline://state",
			"Engine State",
			mcp.WithResourceDescription("Current engine status as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceState(deps),
	)

	return s
}

func mcpDrivingStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status, err := BuildStatus(deps.Store, deps.Liveness)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to build status: %v", err)), nil
		}

		b, err := json.Marshal(status)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecentEvents(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		logged, err := deps.Store.RecentEvents(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list events: %v", err)), nil
		}

		if len(logged) == 0 {
			return mcpText("[]"), nil
		}

		events := make([]engine.Event, 0, len(logged))
		for _, entry := range logged {
			ev, err := engine.DecodePayload(entry.PayloadJSON)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to decode event %s: %v", entry.ID, err)), nil
			}
			events = append(events, ev)
		}

		b, err := json.Marshal(events)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal events: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpPendingEvents(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		count, err := deps.Store.PendingCount()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to count pending events: %v", err)), nil
		}
		return mcpText(fmt.Sprintf(`{"pending":%d}`, count)), nil
	}
}

func mcpResourceState(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		status, err := BuildStatus(deps.Store, deps.Liveness)
		if err != nil {
			return nil, fmt.Errorf("failed to build status: %w", err)
		}

		b, err := json.Marshal(status)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
