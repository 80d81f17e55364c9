// Package cli exposes the document chat pipeline as cobra commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"document-chat/internal/config"
	"document-chat/internal/helper"
	"document-chat/internal/rag"
)

const (
	configEnv         = "RAG_CONFIG"
	defaultConfigPath = "./configs/config.yaml"
)

var (
	configPath string
	logLevel   string
	jsonOutput bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Ask questions about your documents",
	Long: `Indexes PDF, Word, PowerPoint, Excel, Markdown and text files into a vector
store and answers questions from them with cited, confidence-scored answers.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml or toml), defaults to $"+configEnv+" or "+defaultConfigPath)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output results as JSON")
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	loaded, err := config.LoadConfig(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	if err := helper.SetupLogger(loaded.Log.Level, loaded.Log.Pretty); err != nil {
		return err
	}
	cfg = loaded
	log.Debug().Interface("config", cfg.Redacted()).Msg("Loaded config")
	return nil
}

// resolveConfigPath prefers the flag, then the environment, then the default file when present.
// An empty result selects the built-in defaults.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

func openRAG(cmd *cobra.Command) (*rag.RAG, error) {
	r, err := rag.Open(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	return r, nil
}

func printJSON(cmd *cobra.Command, v any) {
	fmt.Fprintln(cmd.OutOrStdout(), helper.PrettyString(v))
}
