package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level formpilot config.
	WorkspaceDirName = ".formpilot"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for formpilot.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Browser BrowserConfig `yaml:"browser"`
	Gateway GatewayConfig `yaml:"gateway"`
	Fill    FillConfig    `yaml:"fill"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required when launch is empty.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command to start Chrome in detached mode (e.g., ["chrome", "--remote-debugging-port=9222"]).
	Launch []string `yaml:"launch"`
	// Headless controls whether Chrome runs in headless mode (default: true).
	Headless *bool `yaml:"headless"`
	// Default navigation timeout (e.g., "15s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
	// Optional path to persist session metadata between restarts.
	SessionStore string `yaml:"session_store"`
	// Viewport width for new sessions (default: 1920).
	ViewportWidth int `yaml:"viewport_width"`
	// Viewport height for new sessions (default: 1080).
	ViewportHeight int `yaml:"viewport_height"`
}

// GatewayConfig selects and tunes the language-model provider. The API key
// is never stored in the file; APIKeyEnv names the environment variable that
// carries it.
type GatewayConfig struct {
	// Provider name: "openai" (default) or "claude".
	Provider string `yaml:"provider"`
	// Model identifier passed to the provider (provider default when empty).
	Model string `yaml:"model"`
	// Optional API base URL override (proxies, local gateways).
	BaseURL string `yaml:"base_url"`
	// Environment variable holding the API key (default depends on provider).
	APIKeyEnv string `yaml:"api_key_env"`
	// Max tokens per completion (default: 2048).
	MaxTokens int `yaml:"max_tokens"`
	// Sampling temperature (default: 0).
	Temperature float64 `yaml:"temperature"`
	// Per-prompt deadline (e.g., "30s").
	PromptTimeout string `yaml:"prompt_timeout"`
	// Session create/destroy deadline (e.g., "20s").
	SessionTimeout string `yaml:"session_timeout"`
}

// FillConfig tunes the fill pipeline.
type FillConfig struct {
	// Fields per model prompt (default: 24).
	BatchSize int `yaml:"batch_size"`
	// Max characters of source-document excerpt sent with each prompt (default: 6000).
	ExcerptLimit int `yaml:"excerpt_limit"`
	// Per-role ordered option preferences for select fields the model could
	// not match. "*" means the first non-empty option. Overrides the built-in
	// table when non-empty.
	SelectDefaults map[string][]string `yaml:"select_defaults"`
	// Directory for rotating JSONL run traces. Tracing is off when empty.
	TraceDir string `yaml:"trace_dir"`
}

// DefaultConfig provides reasonable defaults for local use.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "formpilot",
			Version: "0.1.0",
			LogFile: "formpilot.log",
		},
		Browser: BrowserConfig{
			DefaultNavigationTimeout: "15s",
			SessionStore:             "sessions.json",
			ViewportWidth:            1920,
			ViewportHeight:           1080,
		},
		Gateway: GatewayConfig{
			Provider:       "openai",
			MaxTokens:      2048,
			PromptTimeout:  "30s",
			SessionTimeout: "20s",
		},
		Fill: FillConfig{
			BatchSize:    24,
			ExcerptLimit: 6000,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .formpilot/config.yaml file.
// Returns the workspace root directory (parent of .formpilot/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .formpilot/config.yaml <- explicit --config <- CLI flags
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	// Layer 1: Workspace config (if not disabled)
	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			// Verify the explicit workspace dir has a config
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	// Layer 2: Explicit config file (--config flag)
	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	return cfg, wsDir, cfg.Validate()
}

// InitWorkspace creates a .formpilot/ directory with template files at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	// Check if already exists
	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	dirs := []string{
		wsDir,
		filepath.Join(wsDir, "data"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	// Write template config
	templateConfig := `# formpilot project-level configuration
# Values here override defaults but are overridden by --config and CLI flags.
# The API key is read from the environment variable named by api_key_env,
# never from this file.

# gateway:
#   provider: openai
#   model: gpt-4o-mini
#   api_key_env: OPENAI_API_KEY

# browser:
#   headless: false
#   viewport_width: 1280
#   viewport_height: 720

# fill:
#   batch_size: 24
#   select_defaults:
#     source: [search_engine, other]
#   trace_dir: data/traces
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	// Write .gitignore for data directory
	gitignoreContent := "# Runtime data (logs, sessions) - do not version control\ndata/\n"
	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Browser.SessionStore = resolve(cfg.Browser.SessionStore)
	cfg.Fill.TraceDir = resolve(cfg.Fill.TraceDir)
	return cfg
}

// Validate ensures required fields exist so startup is deterministic.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	switch c.Gateway.Provider {
	case "", "openai", "gpt", "claude", "anthropic":
	default:
		return fmt.Errorf("gateway.provider %q is not supported", c.Gateway.Provider)
	}
	if c.Fill.BatchSize < 0 {
		return errors.New("fill.batch_size must not be negative")
	}
	if c.Fill.ExcerptLimit < 0 {
		return errors.New("fill.excerpt_limit must not be negative")
	}
	return nil
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	if b.DefaultNavigationTimeout == "" {
		return 15 * time.Second
	}
	d, err := time.ParseDuration(b.DefaultNavigationTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// IsHeadless returns whether Chrome should run in headless mode (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true // default to headless
	}
	return *b.Headless
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1920
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 1080
	}
	return b.ViewportHeight
}

// APIKey reads the provider key from the configured environment variable.
// Keys live in the environment, never in config files or source.
func (g GatewayConfig) APIKey() string {
	return os.Getenv(g.KeyEnvName())
}

// KeyEnvName returns the environment variable name holding the API key,
// defaulting per provider.
func (g GatewayConfig) KeyEnvName() string {
	if g.APIKeyEnv != "" {
		return g.APIKeyEnv
	}
	switch g.Provider {
	case "claude", "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// GetPromptTimeout returns the parsed per-prompt deadline with a sane default.
func (g GatewayConfig) GetPromptTimeout() time.Duration {
	if g.PromptTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(g.PromptTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetSessionTimeout returns the parsed session deadline with a sane default.
func (g GatewayConfig) GetSessionTimeout() time.Duration {
	if g.SessionTimeout == "" {
		return 20 * time.Second
	}
	d, err := time.ParseDuration(g.SessionTimeout)
	if err != nil {
		return 20 * time.Second
	}
	return d
}

// GetBatchSize returns the fields-per-prompt batch size with a sane default.
func (f FillConfig) GetBatchSize() int {
	if f.BatchSize <= 0 {
		return 24
	}
	return f.BatchSize
}

// GetExcerptLimit returns the document excerpt cap with a sane default.
func (f FillConfig) GetExcerptLimit() int {
	if f.ExcerptLimit <= 0 {
		return 6000
	}
	return f.ExcerptLimit
}
