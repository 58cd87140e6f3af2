package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inercia/scanblock/internal/config"
	"github.com/inercia/scanblock/internal/logging"
	"github.com/inercia/scanblock/internal/scanblock"
	"github.com/inercia/scanblock/internal/web"
)

var (
	serveListen    string
	serveUpstream  string
	serveAccessLog string
	serveReload    bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the blocking proxy",
	Long: `Start the HTTP server. Every request is scored against the rule set;
passing requests are proxied to the upstream (or answered with 404 when no
upstream is configured), and hosts over the block threshold get 503.

Examples:
  scanblock serve --upstream http://127.0.0.1:3000
  scanblock serve --listen :9090 --config ./scanblock.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveUpstream, "upstream", "", "Upstream URL to proxy passing requests to (overrides config)")
	serveCmd.Flags().StringVar(&serveAccessLog, "access-log", "", "Access log file path (overrides config)")
	serveCmd.Flags().BoolVar(&serveReload, "reload", true, "Reload the rule set when the configuration file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveListen != "" {
		cfg.Listen = serveListen
	}
	if serveUpstream != "" {
		cfg.Upstream = serveUpstream
	}
	if serveAccessLog != "" {
		cfg.AccessLog.Path = serveAccessLog
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ec, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	ec.Hooks = web.NewLogHooks(logging.Engine(), web.DefaultHookLogsPerSecond, web.DefaultHookLogBurst)

	engine, err := scanblock.New(ec)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer func() { _ = engine.Close() }()

	srv, err := web.NewServer(web.Config{
		Listen:   cfg.Listen,
		Upstream: cfg.Upstream,
		AccessLog: web.AccessLogConfig{
			Path:       cfg.AccessLog.Path,
			MaxSizeMB:  cfg.AccessLog.MaxSizeMB,
			MaxBackups: cfg.AccessLog.MaxBackups,
		},
	}, engine)
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	if serveReload && cfgSource != "" {
		watcher, err := config.NewWatcher(cfgSource, reloadRules(engine), logging.ConfigFile())
		if err != nil {
			return fmt.Errorf("failed to watch configuration: %w", err)
		}
		watcher.Start()
		defer func() { _ = watcher.Close() }()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	upstream := cfg.Upstream
	if upstream == "" {
		upstream = "(none, answering 404)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scanblock listening on %s\n", cfg.Listen)
	fmt.Fprintf(cmd.OutOrStdout(), "  upstream:        %s\n", upstream)
	fmt.Fprintf(cmd.OutOrStdout(), "  block threshold: %d\n", cfg.BlockThreshold)
	fmt.Fprintf(cmd.OutOrStdout(), "  listing path:    %s\n", cfg.Listing.Path)
	fmt.Fprintf(cmd.OutOrStdout(), "  config:          %s\n", sourceName())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	if err := srv.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
	return nil
}

// reloadRules applies the rule set of a reloaded configuration. Other
// settings take effect on restart.
func reloadRules(engine *scanblock.Engine) config.ReloadFunc {
	return func(newCfg *config.Config, err error) {
		if err != nil {
			return
		}
		if err := engine.ReloadRules(newCfg.Rules); err != nil {
			logging.ConfigFile().Warn("rules_reload_failed", "error", err)
		}
	}
}
