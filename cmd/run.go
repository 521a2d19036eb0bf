package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/s0up4200/seedbrake/server"
)

const shutdownTimeout = 30 * time.Second

var (
	noStart       bool
	restoreOnExit bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the controller and the control API",
	Long: `Run the adaptive rate-limit loop until interrupted.

The control API (if enabled) can start and stop the loop, toggle services,
force a restore and list failure records.`,
	PreRunE: initializeApp,
	RunE:    runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&noStart, "no-start", false, "do not start the loop until requested through the API")
	runCmd.Flags().BoolVar(&restoreOnExit, "restore-on-exit", false, "restore full speed on every target before exiting")
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("version", version).
		Int("sources", len(cfg.Sources)).
		Int("targets", len(cfg.EnabledTargets())).
		Msg("Starting seedbrake")

	if cfg.Controller.AutoStart && !noStart {
		a.ctrl.Start()
	} else if !cfg.Server.Enabled {
		logger.Warn().Msg("Controller is not started and the control API is disabled; nothing to do until interrupted")
	}

	var srv *server.Server
	errCh := make(chan error, 1)
	if cfg.Server.Enabled {
		srv = server.New(cfg.Server.Address, a.ctrl, logger)
		go func() {
			errCh <- srv.Start()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error().Err(runErr).Msg("Control API failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shut down control API")
		}
	}
	if err := a.ctrl.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Controller did not stop in time")
	}

	if restoreOnExit {
		if err := a.ctrl.ForceRestore(shutdownCtx, ""); err != nil {
			logger.Error().Err(err).Msg("Failed to restore full speed on exit")
		}
	}

	logger.Info().Msg("Stopped")
	return runErr
}
