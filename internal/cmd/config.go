package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	embeddedconfig "github.com/inercia/scanblock/config"
	"github.com/inercia/scanblock/internal/config"
)

var (
	configOutputPath string
	configForce      bool
)

// configCmd represents the config parent command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage scanblock configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file without starting the server",
	Long: `Parse and validate the configuration: rule signatures, the listing and
skip_scoring expressions, the listing format, the upstream URL and the log level.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

// configCreateCmd represents the config create subcommand
var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a default configuration file",
	Long: `Write the embedded default configuration to the configuration path
(or --output), ready to be reviewed and customized.

Examples:
  scanblock config create                          # Create ~/.config/scanblock/config.yaml
  scanblock config create --output ./scanblock.yaml
  scanblock config create --force                  # Overwrite existing file`,
	Args: cobra.NoArgs,
	RunE: runConfigCreate,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configCreateCmd)

	configCreateCmd.Flags().StringVarP(&configOutputPath, "output", "o", "",
		"File to write (default: the configuration path)")
	configCreateCmd.Flags().BoolVarP(&configForce, "force", "f", false,
		"Overwrite existing configuration file")
}

func runConfigCreate(cmd *cobra.Command, args []string) error {
	path := configOutputPath
	if path == "" {
		path = configPath
	}
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, embeddedconfig.DefaultConfigYAML, 0o644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created: %s\n", path)
	fmt.Fprintln(cmd.OutOrStdout(), "Review listing.allow before exposing the host report, then run 'scanblock serve'.")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", sourceName(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK (%s)\n", sourceName())
	fmt.Fprintf(cmd.OutOrStdout(), "  block threshold: %d\n", cfg.BlockThreshold)
	fmt.Fprintf(cmd.OutOrStdout(), "  listing:         %s (%s)\n", cfg.Listing.Path, cfg.Listing.Format)
	fmt.Fprintf(cmd.OutOrStdout(), "  signatures:      %d full paths, %d partial urls, %d bad suffixes, %d bad partial paths\n",
		len(cfg.Rules.FullPaths), len(cfg.Rules.PartialURLs), len(cfg.Rules.BadSuffixes), len(cfg.Rules.BadPartialPaths))
	return nil
}
