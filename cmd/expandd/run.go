package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"expandd/internal/config"
	"expandd/internal/keyboard"
	"expandd/internal/logging"
	"expandd/internal/security"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the expansion daemon",
	Long: `Start capturing keystrokes and expanding shortcuts.

The config file is watched; trigger keys, application lists and timing
changes apply without a restart. Send SIGHUP to reload snippets edited with
"expandd snippet".

On Linux, capture needs read access to /dev/input and write access to
/dev/uinput (usually membership of the "input" group).`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	loader := config.NewLoader(configPath, nil)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	lock, err := security.AcquireInstanceLock(filepath.Join(filepath.Dir(cfg.Storage.Path), "expandd.lock"))
	if err != nil {
		return fmt.Errorf("another expandd is running: %w", err)
	}
	defer lock.Release()

	logger, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)
	log := logger.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(cfg, keyboard.New(), log)
	if err != nil {
		return err
	}
	if err := d.start(ctx); err != nil {
		d.shutdown(context.Background())
		return err
	}

	loader.OnChange(d.reconfigure)
	if err := loader.Watch(); err != nil {
		log.Warn("config changes will need a restart", "path", loader.Path(), "error", err)
	}
	defer loader.Close()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			d.shutdown(sctx)
			cancel()
			return nil
		case <-hup:
			if err := d.reloadSnippets(); err != nil {
				log.Error("reloading snippets failed", "error", err)
				d.reportError("Reloading snippets failed", err)
			}
		case err := <-loader.Errors():
			log.Error("config reload failed", "error", err)
			d.reportError("Config reload failed", err)
		}
	}
}
