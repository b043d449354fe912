// expandd - system-wide text expansion
//
//	expandd run                   Start the expansion daemon
//	expandd snippet list          List snippets
//	expandd snippet add           Add a snippet
//	expandd snippet rm <id>       Remove a snippet by id or shortcut
//	expandd snippet import <file> Import a JSON or YAML collection
//	expandd snippet export <file> Export every snippet
//	expandd render <template>     Render a template through the variable pipeline
//	expandd check                 Report platform support and configuration
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"expandd/internal/config"
	"expandd/internal/logging"
	"expandd/internal/snippet"
	"expandd/internal/store"
)

var (
	// configPath overrides config.ConfigPath.
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "expandd",
	Short: "System-wide text expansion",
	Long: `expandd watches what you type and replaces shortcuts with snippets.

Type a shortcut followed by a trigger key (space or tab by default) in any
application and the shortcut is replaced with the snippet text, after
substituting variables such as {date}, {clipboard} or {count}.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $EXPANDD_CONFIG or the platform config dir)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(snippetCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(checkCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// cliLogger logs warnings and errors to stderr for one-shot commands.
func cliLogger() *slog.Logger {
	lc := logging.DefaultConfig()
	lc.Level = logging.LevelWarn
	return slog.New(logging.NewHandler(os.Stderr, lc))
}

func openStore(cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	opts := store.Options{
		BusyTimeout: msDuration(cfg.Storage.BusyTimeoutMs),
		Logger:      logger,
	}
	if cfg.Storage.EncryptSensitive {
		opts.Passphrase = os.Getenv(cfg.Storage.PassphraseEnv)
		if opts.Passphrase == "" {
			return nil, fmt.Errorf("storage.encrypt_sensitive is set but $%s is empty", cfg.Storage.PassphraseEnv)
		}
	}
	st, err := store.Open(cfg.Storage.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Storage.Path, err)
	}
	return st, nil
}

// openRepository opens the store and loads every snippet. The caller closes
// the returned store.
func openRepository(cfg *config.Config, logger *slog.Logger) (*snippet.Repository, *store.Store, error) {
	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	repo := snippet.NewRepository(st, logger)
	if err := repo.Load(); err != nil {
		st.Close()
		return nil, nil, err
	}
	return repo, st, nil
}
