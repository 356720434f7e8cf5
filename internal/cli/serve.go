package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sakif/runquest/internal/app"
	"github.com/sakif/runquest/internal/config"
	"github.com/sakif/runquest/internal/logging"
	"github.com/sakif/runquest/internal/server"
)

const banner = `
  ┏━┓╻ ╻┏┓╻┏━┓╻ ╻┏━╸┏━┓╺┳╸
  ┣┳┛┃ ┃┃┗┫┃┓┃┃ ┃┣╸ ┗━┓ ┃
  ╹┗╸┗━┛╹ ╹┗┻┛┗━┛┗━╸┗━┛ ╹
`

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web dashboard and JSON API",
		Long: `Run the HTTP server.

Required settings (file or environment):
  STRAVA_CLIENT_ID, STRAVA_CLIENT_SECRET   from strava.com/settings/api
  SESSION_SECRET                           at least 16 characters

Example:
  runquest serve --config runquest.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return WrapExitError(ExitCommandError, "invalid server config", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return WrapExitError(ExitCommandError, "setting up logging", err)
	}
	defer closeLog()

	printStartup(cfg)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitFailure, "opening store", err)
	}
	if err := a.EnableSessions(); err != nil {
		a.Close()
		return WrapExitError(ExitCommandError, "enabling sessions", err)
	}

	srv, err := server.New(a, logger)
	if err != nil {
		a.Close()
		return err
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func printStartup(cfg *config.Config) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("HTTP:      http://localhost%s\n", cfg.Addr())
	green.Print("    ▶ ")
	fmt.Printf("Storage:   %s\n", cfg.Storage.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Callback:  %s\n", cfg.Strava.CallbackURL)
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	if cfg.Auth.TokenKey == "" {
		yellow.Print("    ! ")
		fmt.Println("token_key not set: Strava tokens are stored unencrypted")
	}
	fmt.Println()
}
