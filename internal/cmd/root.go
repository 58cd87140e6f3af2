// Package cmd provides the CLI commands for scanblock.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/scanblock/internal/config"
	"github.com/inercia/scanblock/internal/logging"
)

var (
	// Global flags
	configPath    string
	debug         bool
	logLevel      string // --log-level flag (debug, info, warn, error)
	logFile       string
	logComponents string

	// Loaded configuration
	cfg *config.Config
	// cfgSource is the file cfg was loaded from, or "" for built-in defaults
	cfgSource string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scanblock",
	Short: "scanblock - block vulnerability scanners by request score",
	Long: `scanblock sits in front of an HTTP service and scores every request
against a list of known vulnerability-scanner signatures.

Hosts whose score within the retention window reaches the block threshold
receive 503 Service Unavailable until their old entries expire.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that do not need it
		switch cmd.Name() {
		case "help", "completion", "version", "create":
			return nil
		}

		// An explicit --config must exist; the default path may be missing.
		path := configPath
		allowMissing := false
		if path == "" {
			path = config.DefaultConfigPath()
			allowMissing = true
		}
		loaded, err := config.LoadOrDefault(path, allowMissing)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		cfgSource = path
		if allowMissing && !fileExists(path) {
			cfgSource = ""
		}

		// Priority: --log-level flag > --debug flag > config file > info
		lc := cfg.LoggingConfig()
		if logLevel != "" {
			lc.Level = logLevel
		} else if debug {
			lc.Level = "debug"
		}
		if !logging.ValidLevel(lc.Level) {
			return fmt.Errorf("invalid log level %q", lc.Level)
		}
		if logFile != "" {
			fc := logging.DefaultFileConfig()
			fc.Path = logFile
			lc.File = &fc
		}
		if logComponents != "" {
			for _, c := range strings.Split(logComponents, ",") {
				c = strings.TrimSpace(c)
				if c != "" {
					lc.Components = append(lc.Components, c)
				}
			}
		}
		lc.Console = cmd.ErrOrStderr()
		if err := logging.Initialize(lc); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		logging.ConfigFile().Debug("config_loaded", "source", sourceName())
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Clean up logging resources
		return logging.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file path (default: $SCANBLOCK_CONFIG or ~/.config/scanblock/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: from config, else info)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path (logs are also written to console)")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated list of components to log (e.g., 'engine,web'). Empty means all components.")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func sourceName() string {
	if cfgSource == "" {
		return "built-in defaults"
	}
	return cfgSource
}
