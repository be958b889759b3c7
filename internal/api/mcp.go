package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/previouslives/internal/pipeline"
	"github.com/kalambet/previouslives/internal/storage"
)

const defaultCaptureWait = 3 * time.Minute

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    CaptureStore
	Pipeline Capturer
	// CaptureWait bounds how long the capture tool waits for an outcome.
	CaptureWait time.Duration
}

// NewMCPServer creates an MCP server with the capture tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"previouslives",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("previouslives: capture a frame from the camera and reveal the past life behind it."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("capture",
			mcp.WithDescription("Capture the current camera frame, generate a past life for it and return the finished record."),
		),
		mcpCapture(deps),
	)

	s.AddTool(
		mcp.NewTool("get_capture",
			mcp.WithDescription("Fetch a stored capture record by ID, including its past-life narrative."),
			mcp.WithNumber("id", mcp.Description("Capture record ID"), mcp.Required()),
		),
		mcpGetCapture(deps),
	)

	s.AddTool(
		mcp.NewTool("list_captures",
			mcp.WithDescription("List stored captures, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
			mcp.WithNumber("offset", mcp.Description("Number of records to skip")),
		),
		mcpListCaptures(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"captures://recent",
			"Recent Captures",
			mcp.WithResourceDescription("Last 10 captures with shortened narratives"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpCapture(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, err := deps.Pipeline.Capture(ctx)
		if errors.Is(err, pipeline.ErrBusy) {
			return mcpError("a capture is already in progress; try again shortly"), nil
		}
		if errors.Is(err, pipeline.ErrNoFrame) {
			return mcpError("no camera frame available yet"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("capture failed to start: %v", err)), nil
		}

		wait := deps.CaptureWait
		if wait <= 0 {
			wait = defaultCaptureWait
		}
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()

		out, err := task.Wait(waitCtx)
		if waitCtx.Err() != nil {
			return mcpError(fmt.Sprintf("capture %s still running; check task state later", task.ID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("capture failed (%s): %v", ErrorKind(err), err)), nil
		}

		rec, err := deps.Store.FetchByID(ctx, out.RecordID)
		if err != nil {
			return mcpError(fmt.Sprintf("capture %d completed but could not be read: %v", out.RecordID, err)), nil
		}
		return mcpRecord(rec, out.Profession, out.Age)
	}
}

func mcpGetCapture(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("id", 0)
		if id <= 0 {
			return mcpError("id must be a positive integer"), nil
		}

		rec, err := deps.Store.FetchByID(ctx, int64(id))
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("capture %d not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get capture: %v", err)), nil
		}
		return mcpRecord(rec, "", 0)
	}
}

func mcpListCaptures(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}
		offset := req.GetInt("offset", 0)
		if offset < 0 {
			offset = 0
		}

		items, err := deps.Store.List(ctx, limit, offset)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list captures: %v", err)), nil
		}
		if items == nil {
			items = []storage.CaptureSummary{}
		}

		b, err := json.Marshal(items)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal captures: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		items, err := deps.Store.List(ctx, 10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list recent captures: %w", err)
		}

		type captureSummary struct {
			ID        int64  `json:"id"`
			CreatedAt string `json:"created_at"`
			Story     string `json:"story"`
		}

		summaries := make([]captureSummary, len(items))
		for i, it := range items {
			story := it.Description
			if utf8.RuneCountInString(story) > 200 {
				runes := []rune(story)
				story = string(runes[:200]) + "..."
			}
			summaries[i] = captureSummary{
				ID:        it.ID,
				CreatedAt: time.Unix(it.Timestamp, 0).UTC().Format(time.RFC3339),
				Story:     story,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal captures: %w", err)
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

func mcpRecord(rec storage.CaptureRecord, profession string, age int) (*mcp.CallToolResult, error) {
	type recordResult struct {
		RecordResponse
		Profession string `json:"profession,omitempty"`
		Age        int    `json:"age,omitempty"`
	}
	b, err := json.Marshal(recordResult{NewRecordResponse(rec), profession, age})
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal capture: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
