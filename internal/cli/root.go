// Package cli implements the runquest command line: the HTTP server plus a
// handful of commands that run the same services from a terminal.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/sakif/runquest/internal/app"
	"github.com/sakif/runquest/internal/config"
	"github.com/sakif/runquest/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "runquest",
		Short: "RunQuest - achievements for your Strava runs",
		Long: `RunQuest turns your Strava running totals into achievements.

Run "runquest serve" for the web dashboard, or drive a sync from the
terminal for an owner who has already connected Strava in the browser.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file (env vars override it)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewAchievementsCommand(opts))
	cmd.AddCommand(NewActivitiesCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))

	return cmd
}

// Execute runs the command line and returns the process exit code. Errors
// are printed to stderr in the requested format.
func Execute() int {
	cmd := NewRootCommand()
	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	format := "text"
	if f := cmd.PersistentFlags().Lookup("format"); f != nil && f.Value.String() == "json" {
		format = "json"
	}
	(&Printer{Format: format, Out: os.Stderr}).Error(err)
	return ExitCode(err)
}

func (o *RootOptions) printer(cmd *cobra.Command) *Printer {
	return &Printer{Format: o.Format, Out: cmd.OutOrStdout()}
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}
	return cfg, nil
}

// openApp loads config and wires the services for one-shot commands. Logs go
// to stderr so --format json output on stdout stays parseable.
func (o *RootOptions) openApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	level, _ := config.ParseLevel(cfg.Logging.Level) // validated by Load
	logger := slog.New(logging.NewHandler(cmd.ErrOrStderr(), cfg.Logging.Format, level))

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "opening store", err)
	}
	return a, nil
}

// withSyncTimeout bounds one sync the way the HTTP handlers do.
func withSyncTimeout(ctx context.Context, a *app.App) (context.Context, context.CancelFunc) {
	if d := a.Config.Sync.Timeout.Duration; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
