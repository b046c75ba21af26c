// app.go wires configuration, providers, the session store and the
// orchestrator for every command.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warriorcabo/ai-orchestration-system/internal/archive"
	"github.com/warriorcabo/ai-orchestration-system/internal/config"
	"github.com/warriorcabo/ai-orchestration-system/internal/log"
	"github.com/warriorcabo/ai-orchestration-system/internal/obs"
	"github.com/warriorcabo/ai-orchestration-system/internal/orchestrator"
	"github.com/warriorcabo/ai-orchestration-system/internal/provider"
	"github.com/warriorcabo/ai-orchestration-system/internal/server"
	"github.com/warriorcabo/ai-orchestration-system/internal/session"
)

// app holds everything a command needs. Close releases the database.
type app struct {
	dir       string
	cfg       *config.Config
	logger    *log.Logger
	history   *session.History
	store     *session.MemoryStore
	archive   *archive.FileStore
	orch      *orchestrator.Orchestrator
	providers []server.ProviderInfo
}

// loadConfig reads .env and .aiorch/config.yaml under dir and applies
// AIORCH_* overrides.
func loadConfig(dir string) (*config.Config, error) {
	if err := config.LoadEnv(dir); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp builds the orchestrator for the project in dir.
func newApp(dir string) (*app, error) {
	cfg, err := loadConfig(dir)
	if err != nil {
		return nil, err
	}

	logger, err := log.NewLogger(dir)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &app{dir: dir, cfg: cfg, logger: logger}

	if cfg.Session.Persist {
		dbPath := resolvePath(dir, cfg.Session.DBPath)
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating session directory: %w", err)
		}
		a.history, err = session.NewHistory(dbPath)
		if err != nil {
			return nil, fmt.Errorf("opening session history: %w", err)
		}
	}

	a.store = session.NewMemoryStore(session.Options{
		MaxSessions: cfg.Session.MaxSessions,
		TTL:         cfg.Session.TTL,
		MaxHistory:  cfg.Session.MaxHistory,
		History:     a.history,
		Sink:        logger,
	})

	metrics, err := obs.NewMetrics(nil)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	connectors := make(map[string]provider.Connector)
	connector := func(role, name string) provider.Connector {
		if name == "" {
			return nil
		}
		c, ok := connectors[name]
		if !ok {
			c = newConnector(name, cfg, logger)
			connectors[name] = c
		}
		a.providers = append(a.providers, describe(role, c))
		return c
	}

	opts := orchestrator.Options{
		Store:     a.store,
		Generator: connector("generator", cfg.Routing.Generator),
		Reviewer:  connector("reviewer", cfg.Routing.Reviewer),

		GeneratorParams: provider.DefaultParams(),
		ReviewerParams:  withTemperature(cfg.Routing.ReviewerTemperature),
		PlannerParams:   withTemperature(cfg.Routing.PlannerTemperature),

		MaxRetries:       cfg.Orchestration.MaxRetries,
		MaxFeedbackLoops: cfg.Orchestration.MaxFeedbackLoops,
		BackoffBase:      cfg.Orchestration.BackoffBase,
		MaxBackoff:       cfg.Orchestration.MaxBackoff,
		BreakerThreshold: cfg.Orchestration.CircuitBreakerThreshold,
		BreakerCooldown:  cfg.Orchestration.CircuitBreakerCooldown,

		Limits: map[string]orchestrator.Limits{
			provider.OpenAIName: limitsFor(cfg.Providers.OpenAI),
			provider.GeminiName: limitsFor(cfg.Providers.Gemini),
		},

		Logger:  logger,
		Sink:    logger,
		Metrics: metrics,
	}
	if cfg.Routing.Plan {
		opts.Planner = connector("planner", cfg.Routing.Planner)
	}
	if cfg.Output.Enabled {
		a.archive = archive.NewFileStore(resolvePath(dir, cfg.Output.Dir))
		opts.Output = a.archive
	}

	a.orch, err = orchestrator.New(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the session database, if open.
func (a *app) Close() {
	if a.history != nil {
		_ = a.history.Close()
	}
}

// newConnector builds the connector registered under name.
func newConnector(name string, cfg *config.Config, logger *log.Logger) provider.Connector {
	switch name {
	case provider.OpenAIName:
		return provider.NewOpenAI(providerOptions(cfg.Providers.OpenAI, logger)...)
	case provider.GeminiName:
		return provider.NewGemini(providerOptions(cfg.Providers.Gemini, logger)...)
	default:
		return offlineMock(logger)
	}
}

func providerOptions(pc config.ProviderConfig, logger *log.Logger) []provider.Option {
	return []provider.Option{
		provider.WithAPIKey(pc.APIKey()),
		provider.WithModel(pc.Model),
		provider.WithBaseURL(pc.BaseURL),
		provider.WithTimeout(pc.Timeout),
		provider.WithErrorSink(logger),
		provider.WithLogger(logger),
	}
}

// offlineMock answers without network access. Review prompts are approved,
// everything else echoes the user request.
func offlineMock(logger *log.Logger) *provider.Mock {
	m := provider.NewMockFunc(provider.MockName, func(req provider.Request) (string, error) {
		if strings.Contains(req.Prompt, `respond with just: "APPROVED"`) {
			return "APPROVED", nil
		}
		return fmt.Sprintf("Mock response: %s", requestOf(req.Prompt)), nil
	})
	return m.WithSink(logger)
}

// requestOf extracts the user request line from an orchestration prompt.
func requestOf(prompt string) string {
	for _, marker := range []string{"ORIGINAL USER REQUEST:", "Current user request:"} {
		i := strings.Index(prompt, marker)
		if i < 0 {
			continue
		}
		rest := strings.TrimSpace(prompt[i+len(marker):])
		if j := strings.IndexByte(rest, '\n'); j >= 0 {
			rest = rest[:j]
		}
		return rest
	}
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func describe(role string, c provider.Connector) server.ProviderInfo {
	info := server.ProviderInfo{Role: role, Name: c.Name(), Configured: true}
	switch p := c.(type) {
	case *provider.OpenAI:
		info.Model = p.Model()
		info.Configured = p.Configured()
	case *provider.Gemini:
		info.Model = p.Model()
		info.Configured = p.Configured()
	}
	return info
}

func withTemperature(t float64) provider.Params {
	p := provider.DefaultParams()
	if t > 0 {
		p.Temperature = t
	}
	return p
}

func limitsFor(pc config.ProviderConfig) orchestrator.Limits {
	timeout := pc.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return orchestrator.Limits{Timeout: timeout, RequestsPerMin: pc.RequestsPerMin}
}

// resolvePath joins relative paths onto the project directory.
func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
