// Package mcpserver exposes the triage service over the Model Context
// Protocol so agent hosts can drive assessments as tools.
package mcpserver

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/medsage-ai/medsage/internal/service"
)

// New creates a fully configured MCP server with all tools registered.
func New(svc *service.Service) *mcp.Server {
	tt := &TriageTools{Service: svc}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "medsage",
		Version: "0.1.0",
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "analyze_symptoms",
		Description: "Run an on-device triage assessment over a symptom description, optionally with an image of the affected area",
	}, tt.AnalyzeSymptoms)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "model_status",
		Description: "Get the current model lifecycle status (phase, progress, current asset)",
	}, tt.ModelStatus)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "download_model",
		Description: "Download and verify the model assets, optionally initializing the engine afterwards",
	}, tt.DownloadModel)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "initialize_model",
		Description: "Initialize the inference engine from previously downloaded assets",
	}, tt.InitializeModel)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "assessment_history",
		Description: "List recent triage assessments recorded on this device",
	}, tt.AssessmentHistory)

	return srv
}
