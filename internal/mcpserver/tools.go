package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/medsage-ai/medsage/internal/service"
)

// TriageTools holds the orchestration service the tool handlers drive.
type TriageTools struct {
	Service *service.Service
}

// --- Input types ---

type AnalyzeSymptomsInput struct {
	Query     string `json:"query" jsonschema:"Free-text symptom description from the patient"`
	ImagePath string `json:"image_path,omitempty" jsonschema:"Optional path to a local image of the affected area"`
}

type DownloadModelInput struct {
	Initialize bool `json:"initialize,omitempty" jsonschema:"Also initialize the inference engine after download"`
}

type HistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of past assessments to return (default 20)"`
}

// --- Handlers ---

func (t *TriageTools) AnalyzeSymptoms(ctx context.Context, _ *mcp.CallToolRequest, input AnalyzeSymptomsInput) (*mcp.CallToolResult, any, error) {
	if input.Query == "" {
		return toolError("Symptom query is required"), nil, nil
	}
	if !t.Service.IsReady() {
		return toolError("Model is not ready. Run download_model first."), nil, nil
	}

	analysis, err := t.Service.InferSymptoms(ctx, input.Query, input.ImagePath)
	if err != nil {
		return toolError("Assessment failed: %v", err), nil, nil
	}

	return toolJSON(analysis)
}

func (t *TriageTools) ModelStatus(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	return toolJSON(t.Service.Status())
}

func (t *TriageTools) DownloadModel(ctx context.Context, _ *mcp.CallToolRequest, input DownloadModelInput) (*mcp.CallToolResult, any, error) {
	if err := t.Service.DownloadModel(ctx); err != nil {
		return toolError("Model download failed: %v", err), nil, nil
	}

	if input.Initialize {
		if err := t.Service.InitializeModel(ctx); err != nil {
			return toolError("Model downloaded but initialization failed: %v", err), nil, nil
		}
	}

	return toolJSON(t.Service.Status())
}

func (t *TriageTools) InitializeModel(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	if err := t.Service.InitializeModel(ctx); err != nil {
		return toolError("Model initialization failed: %v", err), nil, nil
	}
	return toolJSON(t.Service.Status())
}

func (t *TriageTools) AssessmentHistory(ctx context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, any, error) {
	entries, err := t.Service.History(ctx, input.Limit)
	if err != nil {
		return toolError("Failed to load history: %v", err), nil, nil
	}
	return toolJSON(entries)
}

// --- Helpers ---

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
