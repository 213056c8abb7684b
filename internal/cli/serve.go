package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mfadhlan/selia/internal/config"
	"github.com/mfadhlan/selia/internal/daemon"
	"github.com/mfadhlan/selia/internal/logger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Selia daemon in the foreground",
	Long: `Run the Selia daemon in the foreground. The daemon serves the chat
API over HTTP, connects to the configured MCP tool servers, and keeps
running until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	// Follow config file edits, log level changes apply without a restart
	watchPath := cfgFile
	if watchPath == "" {
		watchPath, err = config.DefaultPath()
		if err != nil {
			watchPath = ""
		}
	}
	if watchPath != "" {
		watcher, err := config.NewWatcher(watchPath, func(updated *config.Config) {
			if err := log.SetLevel(updated.Logging.Level); err != nil {
				log.Warn().Err(err).Str("level", updated.Logging.Level).Msg("Ignoring invalid log level from config reload")
			}
		}, log.GetZerolog())
		if err != nil {
			log.Warn().Err(err).Str("path", watchPath).Msg("Config watcher unavailable")
		} else {
			defer watcher.Close()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	return d.Stop()
}
