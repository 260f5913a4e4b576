package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/leadbit-flash1/251005forms/internal/browser"
	"github.com/leadbit-flash1/251005forms/internal/config"
	"github.com/leadbit-flash1/251005forms/internal/gateway"
	"github.com/leadbit-flash1/251005forms/internal/pipeline"
	"github.com/leadbit-flash1/251005forms/internal/recorder"
)

// Server wires the MCP runtime, the Rod session manager, and the fill
// pipeline.
type Server struct {
	cfg       config.Config
	sessions  *browser.Manager
	runner    *pipeline.Runner
	trace     *recorder.Recorder
	tools     map[string]Tool
	mcpServer *mcpserver.MCPServer

	providerMu sync.Mutex
	provider   gateway.Provider
}

// Tool describes the contract for MCP tool implementations.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// NewServer constructs the formpilot MCP server and registers all tools.
func NewServer(cfg config.Config, sessions *browser.Manager) (*Server, error) {
	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithRecovery(),
	)

	server := &Server{
		cfg:       cfg,
		sessions:  sessions,
		runner:    pipeline.NewRunner(),
		tools:     make(map[string]Tool),
		mcpServer: mcpSrv,
	}

	if cfg.Fill.TraceDir != "" {
		trace, err := recorder.NewRecorder(cfg.Fill.TraceDir)
		if err != nil {
			log.Printf("run tracing disabled: %v", err)
		} else {
			server.trace = trace
		}
	}

	server.registerAllTools()
	return server, nil
}

// Provider returns the configured model provider, constructing it on first
// use so collect-only workflows never need an API key.
func (s *Server) Provider() (gateway.Provider, error) {
	s.providerMu.Lock()
	defer s.providerMu.Unlock()

	if s.provider != nil {
		return s.provider, nil
	}

	g := s.cfg.Gateway
	key := g.APIKey()
	if key == "" {
		return nil, fmt.Errorf("no API key in environment variable %s", g.KeyEnvName())
	}

	provider, err := gateway.New(g.Provider, key, g.BaseURL, gateway.Timeouts{
		Prompt:  g.GetPromptTimeout(),
		Session: g.GetSessionTimeout(),
	})
	if err != nil {
		return nil, err
	}
	s.provider = provider
	return provider, nil
}

// Start launches the stdio server.
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartSSE hosts the server over HTTP using SSE endpoints with graceful shutdown.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL("http://localhost:"+strconv.Itoa(port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Printf("SSE server shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ExecuteTool executes a tool directly (used by the CLI and tests).
func (s *Server) ExecuteTool(name string, args map[string]interface{}) (interface{}, error) {
	tool, exists := s.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool.Execute(context.Background(), args)
}

func (s *Server) registerAllTools() {
	// Browser lifecycle
	s.registerTool(&LaunchBrowserTool{sessions: s.sessions})
	s.registerTool(&ShutdownBrowserTool{sessions: s.sessions})
	s.registerTool(&ListPagesTool{sessions: s.sessions})
	s.registerTool(&OpenPageTool{sessions: s.sessions})
	s.registerTool(&AttachPageTool{sessions: s.sessions})
	s.registerTool(&ClosePageTool{sessions: s.sessions})

	// Form filling
	s.registerTool(&CollectFieldsTool{sessions: s.sessions})
	s.registerTool(&FillPageTool{server: s})
	s.registerTool(&FillStatusTool{runner: s.runner})
	s.registerTool(&ToggleFieldTool{runner: s.runner})
	s.registerTool(&CancelFillTool{runner: s.runner})
}

func (s *Server) registerTool(tool Tool) {
	s.tools[tool.Name()] = tool

	schema, err := json.Marshal(tool.InputSchema())
	if err != nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	s.mcpServer.AddTool(mcpTool, s.wrapTool(tool))
}

func (s *Server) wrapTool(tool Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("tool %s failed: %v", tool.Name(), err))},
				IsError: true,
			}, nil
		}

		payload := marshalToolPayload(tool.Name(), result)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(payload))},
			IsError: false,
		}, nil
	}
}

func marshalToolPayload(toolName string, result interface{}) []byte {
	payload, marshalErr := json.Marshal(result)
	if marshalErr == nil {
		return payload
	}

	fallback := map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("tool %s returned non-serializable payload: %v", toolName, marshalErr),
	}
	payload, fallbackErr := json.Marshal(fallback)
	if fallbackErr == nil {
		return payload
	}

	return []byte(fmt.Sprintf(`{"success":false,"error":"tool %s failed to encode payload"}`, toolName))
}
