package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/craftlabs/forma/internal/models"
	"github.com/craftlabs/forma/internal/store"
	"github.com/craftlabs/forma/internal/workflow"
)

// Server wraps the forma data layer and formulation runner and exposes
// them as MCP tools.
type Server struct {
	store  store.Store
	runner workflow.Runner
}

// NewServer creates the MCP server wrapper. The runner may be nil, in
// which case only the history tools are usable.
func NewServer(s store.Store, r workflow.Runner) *Server {
	return &Server{
		store:  s,
		runner: r,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("forma", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listHistoryTool())
	srv.AddTool(s.getFormulationTool())
	srv.AddTool(s.deleteFormulationTool())
	srv.AddTool(s.analyzeTool())
	srv.AddTool(s.suggestTool())
	srv.AddTool(s.formulateTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// forma_list_history
func (s *Server) listHistoryTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("forma_list_history",
		mcp.WithDescription("List saved formulations, newest first. Returns a JSON array with id, input_ref, category, prompt, and created_at."),
		mcp.WithString("category", mcp.Description("Filter by product category")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of formulations to return (default 20)")),
	)
	return tool, s.handleListHistory
}

func (s *Server) handleListHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := request.GetString("category", "")
	limit := request.GetInt("limit", 20)

	formulations, err := s.store.ListFormulations(ctx, category, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list formulations: %v", err)), nil
	}

	type formulationOut struct {
		ID        string `json:"id"`
		InputRef  string `json:"input_ref"`
		Category  string `json:"category"`
		Prompt    string `json:"prompt"`
		CreatedAt string `json:"created_at"`
	}

	out := make([]formulationOut, len(formulations))
	for i, f := range formulations {
		out[i] = formulationOut{
			ID:        f.ID,
			InputRef:  f.InputRef,
			Category:  f.Category,
			Prompt:    f.Prompt,
			CreatedAt: f.CreatedAt.Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal formulations: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// forma_get_formulation
func (s *Server) getFormulationTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("forma_get_formulation",
		mcp.WithDescription("Get a saved formulation by ID, including its full body text."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Formulation ID")),
	)
	return tool, s.handleGetFormulation
}

func (s *Server) handleGetFormulation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	f, err := s.store.GetFormulation(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("formulation not found: %s", id)), nil
	}

	result := map[string]any{
		"id":         f.ID,
		"input_ref":  f.InputRef,
		"category":   f.Category,
		"prompt":     f.Prompt,
		"body":       f.Body,
		"created_at": f.CreatedAt.Format(time.RFC3339),
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal formulation: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// forma_delete_formulation
func (s *Server) deleteFormulationTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("forma_delete_formulation",
		mcp.WithDescription("Delete a saved formulation by ID."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Formulation ID")),
	)
	return tool, s.handleDeleteFormulation
}

func (s *Server) handleDeleteFormulation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	if err := s.store.DeleteFormulation(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete formulation: %v", err)), nil
	}

	data, _ := json.Marshal(map[string]any{"deleted": id})
	return mcp.NewToolResultText(string(data)), nil
}

// forma_analyze
func (s *Server) analyzeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("forma_analyze",
		mcp.WithDescription("Analyze a product reference and return a summary with detected ingredients and attributes as JSON."),
		mcp.WithString("input_ref", mcp.Required(), mcp.Description("Product input reference (image path or upload ID)")),
		mcp.WithString("category", mcp.Description("Product category, e.g. skincare, haircare")),
		mcp.WithNumber("cost_target", mcp.Description("Target unit cost for the formulation")),
	)
	return tool, s.handleAnalyze
}

func (s *Server) handleAnalyze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runner == nil {
		return mcp.NewToolResultError("formulation runner not configured"), nil
	}

	inputRef, err := request.RequireString("input_ref")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: input_ref"), nil
	}

	req := models.OperationRequest{
		InputRef:   inputRef,
		Category:   request.GetString("category", ""),
		CostTarget: request.GetFloat("cost_target", 0),
	}

	analysis, err := s.runner.Analyze(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
	}

	data, err := json.Marshal(analysis)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal analysis: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// forma_suggest
func (s *Server) suggestTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("forma_suggest",
		mcp.WithDescription("Generate candidate formulation directions for an analyzed product. Returns a JSON array of suggestions with title, text, and rationale."),
		mcp.WithString("input_ref", mcp.Required(), mcp.Description("Product input reference (image path or upload ID)")),
		mcp.WithString("category", mcp.Description("Product category, e.g. skincare, haircare")),
		mcp.WithNumber("cost_target", mcp.Description("Target unit cost for the formulation")),
	)
	return tool, s.handleSuggest
}

func (s *Server) handleSuggest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runner == nil {
		return mcp.NewToolResultError("formulation runner not configured"), nil
	}

	inputRef, err := request.RequireString("input_ref")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: input_ref"), nil
	}

	req := models.OperationRequest{
		InputRef:   inputRef,
		Category:   request.GetString("category", ""),
		CostTarget: request.GetFloat("cost_target", 0),
	}

	suggestions, err := s.runner.Suggest(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("suggestion generation failed: %v", err)), nil
	}

	data, err := json.Marshal(suggestions)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal suggestions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// forma_formulate
func (s *Server) formulateTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("forma_formulate",
		mcp.WithDescription("Synthesize a complete formulation from a product reference and a direction prompt. The result is saved to history and returned as JSON."),
		mcp.WithString("input_ref", mcp.Required(), mcp.Description("Product input reference (image path or upload ID)")),
		mcp.WithString("prompt_text", mcp.Required(), mcp.Description("Formulation direction, typically a selected suggestion text")),
		mcp.WithString("category", mcp.Description("Product category, e.g. skincare, haircare")),
		mcp.WithNumber("cost_target", mcp.Description("Target unit cost for the formulation")),
	)
	return tool, s.handleFormulate
}

func (s *Server) handleFormulate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runner == nil {
		return mcp.NewToolResultError("formulation runner not configured"), nil
	}

	inputRef, err := request.RequireString("input_ref")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: input_ref"), nil
	}
	promptText, err := request.RequireString("prompt_text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: prompt_text"), nil
	}

	req := models.OperationRequest{
		InputRef:   inputRef,
		PromptText: promptText,
		Category:   request.GetString("category", ""),
		CostTarget: request.GetFloat("cost_target", 0),
	}

	f, err := s.runner.Synthesize(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("synthesis failed: %v", err)), nil
	}

	if err := s.store.CreateFormulation(ctx, f); err != nil {
		// Non-fatal: the formulation was produced, only history failed.
		return mcp.NewToolResultError(fmt.Sprintf("formulation produced but saving to history failed: %v", err)), nil
	}

	result := map[string]any{
		"id":         f.ID,
		"input_ref":  f.InputRef,
		"category":   f.Category,
		"prompt":     f.Prompt,
		"body":       f.Body,
		"created_at": f.CreatedAt.Format(time.RFC3339),
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal formulation: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
