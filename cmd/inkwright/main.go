package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"inkwright/internal/agent"
	"inkwright/internal/config"
	"inkwright/internal/llm"
	"inkwright/internal/logging"
	"inkwright/internal/planner"
	"inkwright/internal/store"
	"inkwright/internal/token"
)

var (
	// Global flags
	verbose    bool
	jsonLogs   bool
	configPath string
	dbPath     string
	apiKey     string
	modelFlag  string
	projectID  string

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "inkwright",
	Short: "inkwright - context-budgeted writing agents",
	Long: `inkwright orchestrates LLM agent pipelines over an author's notes,
sources, and corpus to draft and revise a long-form artefact.

Every agent pass plans its context against the model's token budget,
commits its result as an immutable artefact version, and records a full
prompt/response trail for audit.

Agents:
  writer        drafts from notes and sources, then self-checks coverage
  style_editor  rewrites toward the author's cached style profile
  detail_editor finds vague passages and expands them
  fact_checker  verifies claims against sources and annotates the draft`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if jsonLogs {
			logger, err = logging.New(verbose)
		} else {
			logger, err = logging.NewCLI(verbose)
		}
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// app bundles the wired components behind a CLI command.
type app struct {
	cfg     *config.Config
	store   *store.Store
	tokens  *token.Cache
	planner *planner.Planner
	client  llm.Client
	orch    *agent.Orchestrator
}

// openApp loads config and wires the component graph. When needLLM is false
// the Gemini backend is skipped and token counting falls back to the
// heuristic estimator, so read-only commands work without an API key.
func openApp(ctx context.Context, needLLM bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Storage.DatabasePath = dbPath
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if modelFlag != "" {
		cfg.LLM.Model = modelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: st}

	var counter token.Counter = token.NewHeuristicCounter()
	if needLLM {
		if cfg.LLM.APIKey == "" {
			st.Close()
			return nil, fmt.Errorf("no API key configured (set GEMINI_API_KEY or --api-key)")
		}
		gemini, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:  cfg.LLM.APIKey,
			Timeout: cfg.LLMTimeout(),
		}, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		policy := llm.RetryPolicy{
			MaxRetries:  cfg.Orchestrator.MaxTransientRetries,
			BackoffBase: cfg.RetryBackoffBase(),
			BackoffMax:  cfg.RetryBackoffMax(),
		}
		a.client = llm.WithThrottle(llm.WithRetry(gemini, policy, logger), cfg.LLM.MaxConcurrentCalls)
		// Exact counts from the backend tokenizer; the cache absorbs the
		// round trips.
		counter = token.CounterFunc(a.client.CountTokens)
	}

	a.tokens = token.NewCache(counter, logger).WithPersistence(st)
	chunks := planner.NewStoreChunkProvider(st, a.tokens, cfg.Planner.ChunkSizeTokens, logger)
	a.planner = planner.New(a.tokens, chunks, planner.Config{
		ReservedOverhead:    cfg.Planner.ReservedOverhead,
		SummaryTokenCeiling: cfg.Planner.SummaryTokenCeiling,
	}, logger)

	if needLLM {
		a.orch = agent.New(st, a.planner, a.client, logger)
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("failed to close store", zap.Error(err))
	}
}

// modelFor resolves the model for a project: --model flag, then the
// project default, then the configured default.
func (a *app) modelFor(ctx context.Context, projectID string) (string, error) {
	if modelFlag != "" {
		return modelFlag, nil
	}
	project, err := a.store.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	if project.DefaultModelID != "" {
		return project.DefaultModelID, nil
	}
	return a.cfg.LLM.Model, nil
}

func requireProject() error {
	if projectID == "" {
		return fmt.Errorf("--project is required")
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "Emit structured JSON logs instead of console output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "inkwright.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Model ID (overrides project default)")
	rootCmd.PersistentFlags().StringVarP(&projectID, "project", "p", "", "Project ID")

	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(resourceCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(budgetCmd)
	rootCmd.AddCommand(planCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
