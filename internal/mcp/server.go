package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/eightd/internal/models"
	"github.com/joescharf/eightd/internal/rca"
	"github.com/joescharf/eightd/internal/tree"
)

// Server exposes the problem and root cause service as MCP tools.
type Server struct {
	svc     *rca.Service
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *rca.Service, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{svc: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("eightd", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listProblemsTool())
	srv.AddTool(s.getProblemTool())
	srv.AddTool(s.createProblemTool())
	srv.AddTool(s.updateProblemTool())
	srv.AddTool(s.rootCauseTreeTool())
	srv.AddTool(s.addWhyTool())
	srv.AddTool(s.updateWhyTool())
	srv.AddTool(s.deleteWhyTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

// intArg reads an integer argument. JSON numbers arrive as float64; string
// forms are accepted too since some clients send ids quoted.
func intArg(request mcp.CallToolRequest, key string) (int64, bool) {
	v, ok := request.GetArguments()[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// stringArg returns a pointer to a string argument, nil when absent.
func stringArg(request mcp.CallToolRequest, key string) *string {
	v, ok := request.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}

// boolArg returns a pointer to a boolean argument, nil when absent.
func boolArg(request mcp.CallToolRequest, key string) *bool {
	v, ok := request.GetArguments()[key].(bool)
	if !ok {
		return nil
	}
	return &v
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult shows validation and not-found messages as is; other errors
// are prefixed with the failed action.
func errorResult(action string, err error) *mcp.CallToolResult {
	if msg, ok := rca.PublicMessage(err); ok {
		return mcp.NewToolResultError(msg)
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
}

// ---------------------------------------------------------------------------
// Problems
// ---------------------------------------------------------------------------

// eightd_list_problems
func (s *Server) listProblemsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("eightd_list_problems",
		mcp.WithDescription("List all 8D problems, newest first. Returns a JSON array with id, title, responsible_person, team, deadline and status (OPEN or CLOSED)."),
		mcp.WithString("status", mcp.Description("Only return problems with this status: OPEN or CLOSED")),
	)
	return tool, s.handleListProblems
}

func (s *Server) handleListProblems(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	problems, err := s.svc.ListProblems(ctx)
	if err != nil {
		return errorResult("list problems", err), nil
	}

	status := models.ProblemStatus(request.GetString("status", ""))
	if status == "" {
		return jsonResult(problems)
	}
	filtered := make([]*models.Problem, 0, len(problems))
	for _, p := range problems {
		if p.Status == status {
			filtered = append(filtered, p)
		}
	}
	return jsonResult(filtered)
}

// eightd_get_problem
func (s *Server) getProblemTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("eightd_get_problem",
		mcp.WithDescription("Get one problem together with its 5-Why root cause tree."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Problem ID")),
	)
	return tool, s.handleGetProblem
}

func (s *Server) handleGetProblem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := intArg(request, "id")
	if !ok {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	p, err := s.svc.GetProblem(ctx, id)
	if err != nil {
		return errorResult("get problem", err), nil
	}
	forest, err := s.svc.RootCauseTree(ctx, id)
	if err != nil {
		return errorResult("load root cause tree", err), nil
	}

	return jsonResult(map[string]any{
		"problem":     p,
		"root_causes": forest,
		"why_count":   tree.Count(forest),
	})
}

// eightd_create_problem
func (s *Server) createProblemTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("eightd_create_problem",
		mcp.WithDescription("Create a new problem. New problems start OPEN unless status is CLOSED. Returns the new id."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short problem statement")),
		mcp.WithString("responsible_person", mcp.Required(), mcp.Description("Owner of the problem")),
		mcp.WithString("description", mcp.Description("Longer description")),
		mcp.WithString("team", mcp.Description("Team working on the problem")),
		mcp.WithString("deadline", mcp.Description("Deadline as YYYY-MM-DD")),
		mcp.WithString("status", mcp.Description("OPEN or CLOSED (default OPEN)")),
	)
	return tool, s.handleCreateProblem
}

func (s *Server) handleCreateProblem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	responsible, err := request.RequireString("responsible_person")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: responsible_person"), nil
	}

	id, err := s.svc.CreateProblem(ctx, rca.ProblemInput{
		Title:             title,
		ResponsiblePerson: responsible,
		Description:       request.GetString("description", ""),
		Team:              request.GetString("team", ""),
		Deadline:          request.GetString("deadline", ""),
		Status:            request.GetString("status", ""),
	})
	if err != nil {
		return errorResult("create problem", err), nil
	}
	return jsonResult(map[string]any{"success": true, "id": id})
}

// eightd_update_problem
func (s *Server) updateProblemTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("eightd_update_problem",
		mcp.WithDescription("Update fields of a problem. Only the given fields change. Returns the updated problem."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Problem ID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("responsible_person", mcp.Description("New owner")),
		mcp.WithString("team", mcp.Description("New team")),
		mcp.WithString("deadline", mcp.Description("New deadline as YYYY-MM-DD, empty to clear")),
		mcp.WithString("status", mcp.Description("OPEN or CLOSED")),
	)
	return tool, s.handleUpdateProblem
}

func (s *Server) handleUpdateProblem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := intArg(request, "id")
	if !ok {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	p, err := s.svc.UpdateProblem(ctx, id, rca.ProblemPatch{
		Title:             stringArg(request, "title"),
		Description:       stringArg(request, "description"),
		ResponsiblePerson: stringArg(request, "responsible_person"),
		Team:              stringArg(request, "team"),
		Deadline:          stringArg(request, "deadline"),
		Status:            stringArg(request, "status"),
	})
	if err != nil {
		return errorResult("update problem", err), nil
	}
	return jsonResult(p)
}

// ---------------------------------------------------------------------------
// Root causes
// ---------------------------------------------------------------------------

// eightd_root_cause_tree
func (s *Server) rootCauseTreeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("eightd_root_cause_tree",
		mcp.WithDescription("Return the nested 5-Why tree of a problem. Each node has id, parent_id, description, is_root_cause, action_plan and children."),
		mcp.WithNumber("problem_id", mcp.Required(), mcp.Description("Problem ID")),
	)
	return tool, s.handleRootCauseTree
}

func (s *Server) handleRootCauseTree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	problemID, ok := intArg(request, "problem_id")
	if !ok {
		return mcp.NewToolResultError("missing required parameter: problem_id"), nil
	}
	forest, err := s.svc.RootCauseTree(ctx, problemID)
	if err != nil {
		return errorResult("load root cause tree", err), nil
	}
	return jsonResult(forest)
}

// eightd_add_why
func (s *Server) addWhyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("eightd_add_why",
		mcp.WithDescription("Add a why to a problem's 5-Why tree. Omit parent_id for a top-level why. Adding never changes the problem status."),
		mcp.WithNumber("problem_id", mcp.Required(), mcp.Description("Problem ID")),
		mcp.WithNumber("parent_id", mcp.Description("ID of the why this one answers")),
		mcp.WithString("description", mcp.Required(), mcp.Description("The why statement")),
		mcp.WithBoolean("is_root_cause", mcp.Description("Mark as the root cause")),
		mcp.WithString("action_plan", mcp.Description("Corrective action for a root cause")),
	)
	return tool, s.handleAddWhy
}

func (s *Server) handleAddWhy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	problemID, ok := intArg(request, "problem_id")
	if !ok {
		return mcp.NewToolResultError("missing required parameter: problem_id"), nil
	}
	description, err := request.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: description"), nil
	}

	in := rca.RootCauseInput{
		ProblemID:   problemID,
		Description: description,
		ActionPlan:  request.GetString("action_plan", ""),
	}
	if parentID, ok := intArg(request, "parent_id"); ok {
		in.ParentID = &parentID
	}
	if isRoot := boolArg(request, "is_root_cause"); isRoot != nil {
		in.IsRootCause = *isRoot
	}

	id, err := s.svc.AddRootCause(ctx, in)
	if err != nil {
		return errorResult("add why", err), nil
	}
	return jsonResult(map[string]any{"success": true, "id": id})
}

// eightd_update_why
func (s *Server) updateWhyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("eightd_update_why",
		mcp.WithDescription("Update a why. A root cause with a non-empty action plan closes the problem; removing the last one reopens it. Reports whether the problem status changed."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Why ID")),
		mcp.WithString("description", mcp.Description("New why statement")),
		mcp.WithBoolean("is_root_cause", mcp.Description("Mark or unmark as the root cause")),
		mcp.WithString("action_plan", mcp.Description("Corrective action, empty to clear")),
	)
	return tool, s.handleUpdateWhy
}

func (s *Server) handleUpdateWhy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := intArg(request, "id")
	if !ok {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}

	res, err := s.svc.UpdateRootCause(ctx, id, rca.RootCausePatch{
		Description: stringArg(request, "description"),
		IsRootCause: boolArg(request, "is_root_cause"),
		ActionPlan:  stringArg(request, "action_plan"),
	})
	if err != nil {
		return errorResult("update why", err), nil
	}

	out := map[string]any{
		"success":                true,
		"why":                    res.Node,
		"problem_status_updated": res.ProblemStatusChanged,
	}
	if res.StatusErr != nil {
		out["status_derivation_failed"] = true
	}
	return jsonResult(out)
}

// eightd_delete_why
func (s *Server) deleteWhyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("eightd_delete_why",
		mcp.WithDescription("Delete a why and every why below it."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Why ID")),
	)
	return tool, s.handleDeleteWhy
}

func (s *Server) handleDeleteWhy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := intArg(request, "id")
	if !ok {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	res, err := s.svc.DeleteRootCause(ctx, id)
	if err != nil {
		return errorResult("delete why", err), nil
	}
	return jsonResult(map[string]any{
		"success":                true,
		"deleted":                len(res.Removed),
		"problem_status_updated": res.ProblemStatusChanged,
	})
}
