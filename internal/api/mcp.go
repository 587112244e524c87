package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/tengine/internal/pipeline"
	"github.com/kalambet/tengine/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service Service
	Store   *storage.Store // optional; enables add_context and the context resource
}

// NewMCPServer creates an MCP server exposing ingestion, lineage and replay.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"tengine",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("tengine turns meeting transcripts into validated insights and keeps every intermediate artifact with its lineage."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ingest",
			mcp.WithDescription("Run a transcript through all pipeline stages and return the produced artifacts."),
			mcp.WithString("content", mcp.Description("Raw transcript text"), mcp.Required()),
			mcp.WithString("run_id", mcp.Description("Run id; generated when omitted")),
		),
		mcpIngest(deps),
	)

	s.AddTool(
		mcp.NewTool("lineage",
			mcp.WithDescription("Return an artifact with its ancestry chain and version history."),
			mcp.WithString("artifact_id", mcp.Description("Artifact id"), mcp.Required()),
		),
		mcpLineage(deps),
	)

	s.AddTool(
		mcp.NewTool("replay",
			mcp.WithDescription("Recompute one stage for an artifact, producing its next version."),
			mcp.WithString("artifact_id", mcp.Description("Artifact id to replay"), mcp.Required()),
			mcp.WithString("stage", mcp.Description("Stage name: normalize, extract, contextualize, insight or validate"), mcp.Required()),
		),
		mcpReplay(deps),
	)

	if deps.Store != nil {
		s.AddTool(
			mcp.NewTool("add_context",
				mcp.WithDescription("Store a context document used by the contextualize stage."),
				mcp.WithString("context_id", mcp.Description("Document id"), mcp.Required()),
				mcp.WithString("title", mcp.Description("Document title")),
				mcp.WithString("content", mcp.Description("Document text"), mcp.Required()),
			),
			mcpAddContext(deps),
		)

		s.AddResource(
			mcp.NewResource(
				"context://documents",
				"Context Documents",
				mcp.WithResourceDescription("Context documents stored in the local database"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceContextDocs(deps),
		)
	}

	return s
}

func mcpIngest(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		runID := req.GetString("run_id", "")

		res, err := deps.Service.Ingest(ctx, content, runID)
		if err != nil {
			var se *pipeline.StageError
			if errors.As(err, &se) {
				return mcpError(fmt.Sprintf("ingest failed at stage %s: %v", se.Stage, se.Err)), nil
			}
			return mcpError(fmt.Sprintf("ingest failed: %v", err)), nil
		}

		final := res.Final()
		return mcpJSON(IngestResponse{
			RunID:           res.RunID,
			FinalArtifactID: final.ID,
			Status:          final.Status,
			Confidence:      final.Confidence,
			Artifacts:       summarize(res.Ordered()),
		})
	}
}

func mcpLineage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("artifact_id")
		if err != nil {
			return mcpError("artifact_id is required"), nil
		}

		view, err := deps.Service.GetLineage(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("lineage failed: %v", err)), nil
		}
		return mcpJSON(lineageResponse(view))
	}
}

func mcpReplay(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("artifact_id")
		if err != nil {
			return mcpError("artifact_id is required"), nil
		}
		stageName, err := req.RequireString("stage")
		if err != nil {
			return mcpError("stage is required"), nil
		}

		a, err := deps.Service.ReplayStage(ctx, id, stageName)
		if err != nil {
			return mcpError(fmt.Sprintf("replay failed: %v", err)), nil
		}
		return mcpJSON(a)
	}
}

func mcpAddContext(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("context_id")
		if err != nil {
			return mcpError("context_id is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		doc := storage.ContextDoc{
			ID:      id,
			Title:   req.GetString("title", ""),
			Content: content,
			Source:  "mcp",
		}
		if err := deps.Store.SaveContextDoc(doc); err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Stored context doc %s", id)), nil
	}
}

func mcpResourceContextDocs(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		docs, err := deps.Store.ListContextDocs(0)
		if err != nil {
			return nil, fmt.Errorf("failed to list context docs: %w", err)
		}
		if docs == nil {
			docs = []storage.ContextDoc{}
		}

		b, err := json.Marshal(docs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal context docs: %w", err)
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

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
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
