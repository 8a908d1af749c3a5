// Package cli implements the agent command line: flag parsing, wiring and the
// interactive loop.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petasbytes/vm-agent/internal/config"
	"github.com/petasbytes/vm-agent/internal/logger"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
	once     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Computer-use agent for a virtual machine",
	Long: `agent chats with Claude and lets it operate this machine through a single
tool: computer-use when a display is configured, bash otherwise.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (json or yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")
	rootCmd.Flags().StringVar(&once, "once", "", "send a single prompt, print the reply and exit")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

func runRoot(cmd *cobra.Command, _ []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: true,
		Pretty:  cfg.Log.Pretty,
	})
	if err != nil {
		return err
	}
	defer lg.Close()

	a, err := newApp(cfg, cmd.OutOrStdout(), lg.Component("cli"))
	if err != nil {
		return err
	}
	if err := loader.Watch(a.applyConfig); err != nil {
		a.logger.Debug().Err(err).Str("config", loader.GetConfigPath()).Msg("config watch disabled")
	} else {
		a.logger.Debug().Str("config", loader.GetConfigPath()).Msg("watching config file")
	}

	// Ctrl-C stops the running turn; while idle it exits.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	a.sigs = sigs

	ctx := cmd.Context()
	if once != "" {
		return a.runOnce(ctx, once)
	}
	return a.repl(ctx, cmd.InOrStdin())
}
