// Command castcheck analyzes podcast transcripts: it summarizes them,
// extracts claims and fact-checks those claims with web search.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/pprof"
)

var (
	configFile string
	logLevel   string
	debugMode  bool
	profileCfg pprof.Config
	profiler   *pprof.Handler
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "castcheck",
	Short: "Fact-checked podcast transcript analysis",
	Long: `castcheck runs a podcast transcript through a multi-model pipeline:

- Two independent analyses consolidated into one summary
- Claim verification with Tavily, Serper or Brave web search
- A critic that sends weak research back for another round

Use 'castcheck help <command>' for more information on a specific command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !profileCfg.Enabled() {
			return nil
		}
		profiler = pprof.NewHandler(profileCfg)
		return profiler.Start()
	},
}

func main() {
	err := rootCmd.Execute()
	if profiler != nil {
		if stopErr := profiler.Stop(); stopErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", stopErr)
		}
	}
	_ = logger.Global().Close()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error, none")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Include tracebacks in error events and log at debug level")
	rootCmd.PersistentFlags().StringVar(&profileCfg.HTTPAddr, "pprof-addr", "", "Serve /debug/pprof/ on this address")
	rootCmd.PersistentFlags().StringVar(&profileCfg.CPUProfile, "cpu-profile", "", "Write a CPU profile to this file")
	rootCmd.PersistentFlags().StringVar(&profileCfg.HeapProfile, "heap-profile", "", "Write a heap profile to this file on exit")
}

// loadConfig reads the configuration and initializes the global logger.
// Environment variables override the file; flags override both.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if env := strings.TrimSpace(os.Getenv("CASTCHECK_LOG_LEVEL")); env != "" {
		cfg.App.LogLevel = env
	}
	if env := strings.TrimSpace(os.Getenv("CASTCHECK_LOG_PATH")); env != "" {
		cfg.App.LogPath = env
	}
	if logLevel != "" {
		cfg.App.LogLevel = logLevel
		if cfg.App.LogPath == "" {
			cfg.App.LogPath = logger.StderrPath
		}
	}
	if debugMode {
		cfg.App.LogLevel = "debug"
		if cfg.App.LogPath == "" {
			cfg.App.LogPath = logger.StderrPath
		}
	}

	if err := logger.Init(logger.ParseLevel(cfg.App.LogLevel), cfg.App.LogPath); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Debug("configuration loaded from %s (log level %s)", configFile, cfg.App.LogLevel)
	return cfg, nil
}
