package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/takeshi-yoshida/Naoru/internal/app"
	"github.com/takeshi-yoshida/Naoru/internal/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the healing engine",
	Long: `Run the healing engine with the API server, metrics endpoint and
resource detector as configured.

Examples:
  # Run with default config
  naoru serve

  # Run with a specific config
  naoru serve --config custom-config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting Naoru",
		zap.String("version", Version),
		zap.String("config", cfgFile),
	)

	application, err := app.New(logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	if err := application.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	// Reloads are logged only; component-level settings need a restart.
	watcher, err := config.NewWatcher(logger, cfgFile)
	if err == nil {
		watcher.OnChange(func(next *config.Config) {
			logger.Info("Configuration changed on disk, restart to apply",
				zap.String("log_level", next.LogLevel),
			)
		})
		if err := watcher.Start(); err != nil {
			logger.Warn("Config watcher disabled", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	logger.Info("Naoru started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Naoru stopped")
	return nil
}
