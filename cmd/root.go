// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bilirelay/internal/config"
	"bilirelay/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfig   string
	flagQuality  int
	flagTimeout  int
	flagAPIBase  string
	flagCache    string
	flagJSON     bool
	flagDebug    bool
	flagLogJSON  bool
	flagPlay     string
	flagDownload string
	flagPublic   string
	flagListen   string
)

// cfg holds the loaded configuration (merged: defaults < config file < env < flags).
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bilirelay [link or text]",
	Short: "Resolve Bilibili links to direct media URLs and relay the streams",
	Long: `bilirelay turns a Bilibili link, short link or shared text blob into a
direct media URL, falling back through quality tiers until one plays.
Run "bilirelay serve" to expose the resolver and the streaming relay over HTTP.`,
	Args:              cobra.ArbitraryArgs,
	PersistentPreRunE: loadConfig,
	RunE:              resolveRun,
	SilenceUsage:      true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Config file (default: $XDG_CONFIG_HOME/bilirelay/config.toml)")
	rootCmd.PersistentFlags().IntVarP(&flagQuality, "quality", "q", 0, "Quality ceiling: 16 | 32 | 64 | 80 | 112 | 116 | 120")
	rootCmd.PersistentFlags().IntVar(&flagTimeout, "timeout", 0, "Per-call upstream timeout in seconds")
	rootCmd.PersistentFlags().StringVar(&flagAPIBase, "api-base", "", "Upstream API base URL")
	rootCmd.PersistentFlags().StringVar(&flagCache, "cache", "", "Cache backend: memory | sqlite | redis | none")
	rootCmd.PersistentFlags().StringVar(&flagPublic, "public-url", "", "Externally visible relay origin used in playable URLs")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Log as JSON")

	addResolveFlags(rootCmd)

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < env < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagQuality != 0 {
		cfg.Quality = flagQuality
	}
	if flagTimeout != 0 {
		cfg.Timeout = flagTimeout
	}
	if flagAPIBase != "" {
		cfg.APIBase = flagAPIBase
	}
	if flagCache != "" {
		cfg.Cache.Backend = flagCache
		if cfg.Cache.Backend == "sqlite" && cfg.Cache.Path == "" {
			if cfg.Cache.Path, err = config.CachePath(); err != nil {
				return err
			}
		}
	}
	if flagPublic != "" {
		cfg.PublicURL = flagPublic
	}
	if flagListen != "" {
		cfg.Listen = flagListen
	}
	if flagDebug {
		cfg.Debug = true
	}
	if flagLogJSON {
		cfg.LogJSON = true
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(os.Stderr, cfg.Debug, cfg.LogJSON)
	logrus.WithField("api_base", cfg.APIBase).Debug("configuration loaded")

	return nil
}
