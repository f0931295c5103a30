// Package mcp exposes trees and runs as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/cascade/internal/logging"
	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
	"github.com/aretw0/cascade/pkg/runner"
	"github.com/aretw0/cascade/pkg/session"
	"github.com/aretw0/lifecycle"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// TreesURI is the resource listing every stored root.
const TreesURI = "cascade://trees"

// Store is the persistence the MCP tools need.
type Store interface {
	ports.TreeStore
	ports.TreeCatalog
}

// RunResponse is the structured output of the run tools.
type RunResponse struct {
	RunID    string                `json:"run_id" jsonschema_description:"Identifier of the run"`
	RootID   string                `json:"root_id" jsonschema_description:"Node the run started from"`
	Finished bool                  `json:"finished" jsonschema_description:"Whether the run has ended"`
	State    domain.RunSnapshot    `json:"state" jsonschema_description:"Live state including any pending question or preview"`
	Result   *domain.CascadeResult `json:"result,omitempty" jsonschema_description:"Final report once finished"`
	Error    string                `json:"error,omitempty" jsonschema_description:"Run error, if any"`
}

// ValidationResponse is the structured output of validate_tree.
type ValidationResponse struct {
	Valid  bool            `json:"valid" jsonschema_description:"False when any issue is an error"`
	Issues []runtime.Issue `json:"issues" jsonschema_description:"Problems found in the tree"`
}

// Server wraps a session manager and exposes it as an MCP server.
type Server struct {
	store     Store
	sessions  *session.Manager
	logger    *slog.Logger
	waitLimit time.Duration
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithWaitLimit bounds how long start_run blocks when wait is set.
func WithWaitLimit(d time.Duration) Option {
	return func(s *Server) {
		s.waitLimit = d
	}
}

// NewServer creates a new MCP server.
func NewServer(store Store, sessions *session.Manager, version string, opts ...Option) *Server {
	s := &Server{
		store:     store,
		sessions:  sessions,
		logger:    logging.NewNop(),
		waitLimit: 5 * time.Minute,
		mcpServer: server.NewMCPServer("cascade-mcp", strings.TrimSpace(version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
		return nil
	})

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_trees",
		mcp.WithDescription("List the root nodes of every stored prompt tree."),
	), s.handleListTrees)

	s.mcpServer.AddTool(mcp.NewTool("get_tree",
		mcp.WithDescription("Get a prompt tree (a node and all of its descendants)."),
		mcp.WithString("tree_id", mcp.Required(), mcp.Description("ID of the root node")),
	), s.handleGetTree)

	s.mcpServer.AddTool(mcp.NewTool("validate_tree",
		mcp.WithDescription("Check a stored tree for configuration mistakes before running it."),
		mcp.WithString("tree_id", mcp.Required(), mcp.Description("ID of the root node")),
		mcp.WithOutputSchema[ValidationResponse](),
	), mcp.NewStructuredToolHandler(s.handleValidateTree))

	s.mcpServer.AddTool(mcp.NewTool("run_cascade",
		mcp.WithDescription("Run a cascade (or a single node) in the background. Questions and previews pause the run until answered."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node to start from")),
		mcp.WithString("mode", mcp.Description("cascade (default) or single")),
		mcp.WithNumber("max_depth", mcp.Description("Depth limit; 0 uses the default")),
		mcp.WithString("seed", mcp.Description("JSON object of initial variables")),
		mcp.WithBoolean("wait", mcp.Description("Block until the run finishes or pauses")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleRunCascade))

	s.mcpServer.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Get the live state or final report of a run."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetRun))

	s.mcpServer.AddTool(mcp.NewTool("answer_question",
		mcp.WithDescription("Answer the run's pending question. Omit answer to cancel the asking node."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier")),
		mcp.WithString("answer", mcp.Description("The answer text")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleAnswer))

	s.mcpServer.AddTool(mcp.NewTool("decide_action",
		mcp.WithDescription("Approve or reject the run's pending action preview."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier")),
		mcp.WithBoolean("approve", mcp.Required(), mcp.Description("True applies the action")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleDecide))

	s.mcpServer.AddTool(mcp.NewTool("cancel_run",
		mcp.WithDescription("Stop a run before its next node."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleCancel))
}

func (s *Server) handleListTrees(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roots, err := s.store.ListRoots(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	return jsonResult(roots)
}

func (s *Server) handleGetTree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := request.GetArguments()["tree_id"].(string)
	tree, err := s.store.GetSubtree(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get tree failed: %v", err)), nil
	}
	return jsonResult(tree)
}

func (s *Server) handleValidateTree(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (ValidationResponse, error) {
	id, _ := args["tree_id"].(string)
	tree, err := s.store.GetSubtree(ctx, id)
	if err != nil {
		return ValidationResponse{}, fmt.Errorf("get tree failed: %w", err)
	}
	issues := runtime.ValidateTree(tree, nil)
	return ValidationResponse{Valid: !runtime.HasErrors(issues), Issues: issues}, nil
}

func (s *Server) handleRunCascade(ctx context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	req := session.StartRequest{Mode: domain.ModeCascade}
	req.NodeID, _ = args["node_id"].(string)
	if req.NodeID == "" {
		return RunResponse{}, errors.New("node_id is required")
	}
	if mode, _ := args["mode"].(string); mode != "" {
		switch domain.RunMode(mode) {
		case domain.ModeCascade, domain.ModeSingle:
			req.Mode = domain.RunMode(mode)
		default:
			return RunResponse{}, fmt.Errorf("unknown mode %q", mode)
		}
	}
	if depth, ok := args["max_depth"].(float64); ok {
		req.Options.MaxDepth = int(depth)
	}
	if seed, _ := args["seed"].(string); seed != "" {
		if err := json.Unmarshal([]byte(seed), &req.Options.Seed); err != nil {
			return RunResponse{}, fmt.Errorf("invalid seed: %w", err)
		}
	}

	run, err := s.sessions.Start(ctx, req)
	if err != nil {
		return RunResponse{}, err
	}
	if wait, _ := args["wait"].(bool); wait {
		s.waitPaused(ctx, run)
	}
	return responseOf(run), nil
}

// waitPaused blocks until the run ends or parks on a question or preview.
func (s *Server) waitPaused(ctx context.Context, run *session.Run) {
	ctx, cancel := context.WithTimeout(ctx, s.waitLimit)
	defer cancel()
	snaps := run.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-run.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if snap.PendingQuestion != nil || snap.PendingPreview != nil {
				return
			}
		}
	}
}

func (s *Server) handleGetRun(_ context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	run, err := s.run(args)
	if err != nil {
		return RunResponse{}, err
	}
	return responseOf(run), nil
}

func (s *Server) handleAnswer(_ context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	run, err := s.run(args)
	if err != nil {
		return RunResponse{}, err
	}
	var answer *string
	if text, ok := args["answer"].(string); ok {
		clean, err := runner.SanitizeInput(text)
		if err != nil {
			s.logger.Warn("MCP answer rejected", "err", err, "size", len(text))
			return RunResponse{}, fmt.Errorf("answer rejected: %w", err)
		}
		answer = &clean
	}
	if err := run.Answer(answer); err != nil {
		return RunResponse{}, err
	}
	return responseOf(run), nil
}

func (s *Server) handleDecide(_ context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	run, err := s.run(args)
	if err != nil {
		return RunResponse{}, err
	}
	approve, _ := args["approve"].(bool)
	if err := run.Decide(approve); err != nil {
		return RunResponse{}, err
	}
	return responseOf(run), nil
}

func (s *Server) handleCancel(_ context.Context, _ mcp.CallToolRequest, args map[string]interface{}) (RunResponse, error) {
	run, err := s.run(args)
	if err != nil {
		return RunResponse{}, err
	}
	run.Cancel()
	return responseOf(run), nil
}

func (s *Server) run(args map[string]interface{}) (*session.Run, error) {
	id, _ := args["run_id"].(string)
	return s.sessions.Get(id)
}

func responseOf(run *session.Run) RunResponse {
	resp := RunResponse{
		RunID:    run.ID,
		RootID:   run.RootID,
		Finished: run.Finished(),
		State:    run.Snapshot(),
	}
	if resp.Finished {
		res, err := run.Result()
		resp.Result = res
		if err != nil {
			resp.Error = err.Error()
		}
	}
	return resp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(TreesURI, "Stored prompt trees",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		roots, err := s.store.ListRoots(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list trees: %w", err)
		}
		data, err := json.Marshal(roots)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      TreesURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
