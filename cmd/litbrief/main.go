// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the litbrief CLI. Each stage of a
// brief (define, refine, search, generate) is a subcommand of "brief";
// "providers" manages LLM credentials and model choices.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/litbrief/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	verbose bool
	logger  = zap.NewNop()
)

// rootCmd is the base command for the litbrief CLI.
var rootCmd = &cobra.Command{
	Use:   "litbrief",
	Short: "Turn a research question into a literature brief",
	Long: `litbrief carries a research question through four steps: define the
question, refine it into arXiv search terms, search and select papers, and
generate a cited literature review.

Briefs, papers, and provider settings live in a local SQLite database by
default, or in PostgreSQL when store.driver is "postgres".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config = zap.NewDevelopmentConfig()
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := config.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./litbrief.yaml or ~/.config/litbrief/litbrief.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging to the console")
	pf.String("provider", "", "LLM provider: openai, anthropic, gemini, openrouter")
	pf.String("model", "", "model id, overriding the provider's selected model")
	pf.String("db", "", "database path (SQLite) or URL (PostgreSQL)")

	_ = viper.BindPFlag("ai.provider", pf.Lookup("provider"))
	_ = viper.BindPFlag("ai.model", pf.Lookup("model"))
	_ = viper.BindPFlag("store.dsn", pf.Lookup("db"))
}

func initConfig() {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("litbrief")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "litbrief"))
		}
	}

	viper.SetEnvPrefix("LITBRIEF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(types.DefaultConfig())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every key so that environment variables reach
// viper.Unmarshal.
func setDefaults(d types.Config) {
	viper.SetDefault("search.timeout", d.Search.Timeout)
	viper.SetDefault("search.user_agent", d.Search.UserAgent)
	viper.SetDefault("search.base_url", d.Search.BaseURL)
	viper.SetDefault("search.max_results", d.Search.MaxResults)
	viper.SetDefault("search.min_interval", d.Search.MinInterval)
	viper.SetDefault("search.max_retries", d.Search.MaxRetries)

	viper.SetDefault("ai.provider", string(d.AI.Provider))
	viper.SetDefault("ai.model", d.AI.Model)
	viper.SetDefault("ai.max_retries", d.AI.MaxRetries)
	viper.SetDefault("ai.max_tokens", d.AI.MaxTokens)
	viper.SetDefault("ai.temperature", d.AI.Temperature)
	viper.SetDefault("ai.referer", d.AI.Referer)
	viper.SetDefault("ai.title", d.AI.Title)

	viper.SetDefault("relevancy.batch_fraction", d.Relevancy.BatchFraction)

	viper.SetDefault("store.driver", string(d.Store.Driver))
	viper.SetDefault("store.dsn", d.Store.DSN)

	viper.SetDefault("secrets_dir", d.SecretsDir)
}

// loadConfig decodes the merged configuration.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading configuration: %w", err)
	}
	if cfg.Relevancy.BatchFraction <= 0 || cfg.Relevancy.BatchFraction > 1 {
		return cfg, fmt.Errorf("relevancy.batch_fraction must be in (0, 1], got %v", cfg.Relevancy.BatchFraction)
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
