package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/leadbit-flash1/251005forms/internal/browser"
	"github.com/leadbit-flash1/251005forms/internal/config"
	"github.com/leadbit-flash1/251005forms/internal/field"
	"github.com/leadbit-flash1/251005forms/internal/gateway"
	"github.com/leadbit-flash1/251005forms/internal/ingest"
	mcpserver "github.com/leadbit-flash1/251005forms/internal/mcp"
	"github.com/leadbit-flash1/251005forms/internal/pipeline"
	"github.com/leadbit-flash1/251005forms/internal/recorder"
	"github.com/leadbit-flash1/251005forms/internal/resolver"
)

var (
	configPath   string
	workspaceDir string
	noWorkspace  bool
	ssePort      int
	documentPath string
	documentText string
	batchSize    int
)

func main() {
	// Load .env if present; missing files are fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "formpilot",
		Short: "AI form filling for browser pages",
		Long: `formpilot collects the form fields of a live browser page, asks a model
provider to match them against a source document (resume, profile, notes),
and writes the accepted values back into the page.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Explicit config file (layered over the workspace config)")
	rootCmd.PersistentFlags().StringVar(&workspaceDir, "workspace-dir", "", "Use this directory as workspace root instead of walking up")
	rootCmd.PersistentFlags().BoolVar(&noWorkspace, "no-workspace", false, "Skip workspace discovery")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio by default, SSE with --sse-port)",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&ssePort, "sse-port", 0, "SSE port override (falls back to config)")

	collectCmd := &cobra.Command{
		Use:   "collect <url>",
		Short: "Open a page and print its collected form fields as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runCollect,
	}

	fillCmd := &cobra.Command{
		Use:   "fill <url>",
		Short: "Open a page, run one fill pass and print the identified fields",
		Args:  cobra.ExactArgs(1),
		RunE:  runFill,
	}
	fillCmd.Flags().StringVar(&documentPath, "document", "", "Path to the source document (txt, md, html, pdf, docx)")
	fillCmd.Flags().StringVar(&documentText, "document-text", "", "Inline source document text")
	fillCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Fields per prompt (defaults to the configured batch size)")

	initCmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a .formpilot workspace with a template config",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInit,
	}

	rootCmd.AddCommand(serveCmd, collectCmd, fillCmd, initCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, wsDir, err := config.LoadWithWorkspace(configPath, config.WorkspaceOptions{
		Disable:     noWorkspace,
		ExplicitDir: workspaceDir,
	})
	if err != nil {
		return cfg, err
	}
	if wsDir != "" {
		log.Printf("using workspace at %s", wsDir)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if ssePort != 0 {
		cfg.Server.SSEPort = ssePort
	}

	// Redirect logging to file for stdio mode (stderr interferes with the
	// MCP protocol).
	if cfg.Server.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			log.SetOutput(io.Discard)
		}
	}

	sessions := browser.NewManager(cfg.Browser)
	server, err := mcpserver.NewServer(cfg, sessions)
	if err != nil {
		return fmt.Errorf("failed to initialize MCP server: %w", err)
	}

	var startErr error
	if cfg.Server.SSEPort > 0 {
		log.Printf("starting formpilot MCP SSE server on port %d", cfg.Server.SSEPort)
		startErr = server.StartSSE(ctx, cfg.Server.SSEPort)
	} else {
		log.Printf("starting formpilot MCP stdio server")
		startErr = server.Start(ctx)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		return fmt.Errorf("server exited with error: %w", startErr)
	}
	return nil
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sessions := browser.NewManager(cfg.Browser)
	if err := sessions.Start(ctx); err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer sessions.Shutdown(context.Background())

	session, err := sessions.Open(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}

	raws, err := sessions.Collect(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("failed to collect fields: %w", err)
	}

	return printJSON(field.DescribeAll(raws))
}

func runFill(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	document, err := loadDocument(cfg)
	if err != nil {
		return err
	}

	key := cfg.Gateway.APIKey()
	if key == "" {
		return fmt.Errorf("no API key in environment variable %s", cfg.Gateway.KeyEnvName())
	}
	provider, err := gateway.New(cfg.Gateway.Provider, key, cfg.Gateway.BaseURL, gateway.Timeouts{
		Prompt:  cfg.Gateway.GetPromptTimeout(),
		Session: cfg.Gateway.GetSessionTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize model provider: %w", err)
	}

	sessions := browser.NewManager(cfg.Browser)
	if err := sessions.Start(ctx); err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer sessions.Shutdown(context.Background())

	session, err := sessions.Open(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}

	var policy resolver.SelectPolicy
	if len(cfg.Fill.SelectDefaults) > 0 {
		policy = resolver.SelectPolicy(cfg.Fill.SelectDefaults)
	}
	size := batchSize
	if size <= 0 {
		size = cfg.Fill.GetBatchSize()
	}

	var trace *recorder.Recorder
	if cfg.Fill.TraceDir != "" {
		trace, err = recorder.NewRecorder(cfg.Fill.TraceDir)
		if err != nil {
			log.Printf("run tracing disabled: %v", err)
		}
	}

	runner := pipeline.NewRunner()
	run, err := runner.Start(ctx, sessions.Bind(session.ID), pipeline.Options{
		Provider: provider,
		Session: gateway.SessionOptions{
			Model:       cfg.Gateway.Model,
			MaxTokens:   cfg.Gateway.MaxTokens,
			Temperature: float32(cfg.Gateway.Temperature),
		},
		BatchSize: size,
		Policy:    policy,
		Document:  document,
		Trace:     trace,
	})
	if err != nil {
		return fmt.Errorf("failed to start fill run: %w", err)
	}

	run.Wait()
	status, identified, runErr := run.Snapshot()

	if err := printJSON(map[string]interface{}{
		"status": string(status),
		"fields": identified,
	}); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("fill run %s: %w", status, runErr)
	}
	return nil
}

func loadDocument(cfg config.Config) (string, error) {
	limit := cfg.Fill.GetExcerptLimit()
	if documentPath != "" {
		text, err := ingest.FromFile(documentPath, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read document: %w", err)
		}
		return text, nil
	}
	if documentText != "" {
		return ingest.Excerpt(documentText, limit), nil
	}
	return "", nil
}

func runInit(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	if err := config.InitWorkspace(root); err != nil {
		return err
	}
	fmt.Printf("initialized %s workspace in %s\n", config.WorkspaceDirName, root)
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
