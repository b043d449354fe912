package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"expandd/internal/clipboard"
	"expandd/internal/config"
	"expandd/internal/diag"
	"expandd/internal/engine"
	"expandd/internal/health"
	"expandd/internal/keyboard"
	"expandd/internal/logging"
	"expandd/internal/notify"
	"expandd/internal/perf"
	"expandd/internal/plugin"
	"expandd/internal/scope"
	"expandd/internal/snippet"
	"expandd/internal/store"
	"expandd/internal/variables"
)

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// daemon owns every long-lived component of `expandd run`.
type daemon struct {
	log *slog.Logger

	store    *store.Store
	repo     *snippet.Repository
	monitor  *clipboard.Monitor
	lua      *plugin.LuaHost
	poller   *scope.Poller
	filter   *scope.Filter
	registry *prometheus.Registry
	recorder *perf.Recorder
	engine   *engine.Engine
	checker  *health.Checker
	diag     *diag.Server
	backend  keyboard.Backend

	notifier atomic.Pointer[notify.Notifier]
	send     notify.Sender
}

// newDaemon wires the components for cfg. Nothing runs until start.
func newDaemon(cfg *config.Config, backend keyboard.Backend, logger *slog.Logger) (_ *daemon, err error) {
	d := &daemon{log: logger, backend: backend, send: notify.Desktop}
	defer func() {
		if err != nil {
			d.close()
		}
	}()

	d.repo, d.store, err = openRepository(cfg, logger)
	if err != nil {
		return nil, err
	}

	var clip variables.ClipboardSource
	if cfg.Clipboard.Enabled {
		acc, err := clipboard.New(cfg.Clipboard.Source)
		if err != nil {
			return nil, err
		}
		mc := clipboard.MonitorConfig{
			HistorySize:  cfg.Clipboard.HistorySize,
			PollInterval: msDuration(cfg.Clipboard.PollIntervalMs),
			Logger:       logger,
		}
		if cfg.Clipboard.Persist {
			mc.Store = d.store
		}
		d.monitor = clipboard.NewMonitor(acc, mc)
		clip = d.monitor
	}

	var resolver plugin.Resolver
	if cfg.Plugins.Enabled {
		d.lua = plugin.NewLuaHost(msDuration(cfg.Plugins.TimeoutMs), logger)
		n, err := d.lua.LoadDir(cfg.Plugins.Dir)
		if err != nil {
			return nil, err
		}
		logger.Info("plugins loaded", "count", n, "dir", cfg.Plugins.Dir)
		resolver = d.lua
	}
	pipeline := variables.NewPipeline(variables.NewContext(clip, resolver), logger)

	d.poller = scope.NewPlatformResolver(msDuration(cfg.Apps.PollIntervalMs))
	// The engine installs the app lists from its settings.
	d.filter = scope.NewFilter(d.poller, logger)

	d.registry = prometheus.NewRegistry()
	d.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	d.recorder, err = perf.NewRecorder(perf.Options{
		Window:     cfg.Performance.SampleWindow,
		Registerer: d.registry,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("perf recorder: %w", err)
	}

	d.engine, err = engine.New(engine.Deps{
		Backend:    backend,
		Repository: d.repo,
		Filter:     d.filter,
		Pipeline:   pipeline,
		Recorder:   d.recorder,
		Forms:      engine.NoForms{},
		Crashes:    logging.NewCrashRecorder(filepath.Join(filepath.Dir(cfg.Logging.FilePath), "crashes"), 20),
		Logger:     logger,
	}, engine.SettingsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	d.notifier.Store(notify.New(d.notifyOptions(cfg)))
	d.engine.OnExpansion(func(x engine.Expansion) { d.notifier.Load().Handle(x) })

	d.checker = health.NewChecker()
	d.checker.RegisterFunc("keyboard", true, health.Available(backend.Available))
	d.checker.RegisterFunc("engine", true, health.Running(d.engine.Running))
	d.checker.RegisterFunc("store", false, health.Ping(d.store.Ping))
	d.checker.RegisterFunc("scope", false, health.Available(scope.Available))

	if cfg.Diagnostics.Enabled {
		src := diag.Sources{
			Health:   d.checker,
			Gatherer: d.registry,
			Recorder: d.recorder,
			Snippets: d.repo,
			Scope:    d.filter,
		}
		if d.lua != nil {
			src.Plugins = d.lua.Plugins
		}
		d.diag, err = diag.New(cfg.Diagnostics.Listen, src, logger)
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *daemon) notifyOptions(cfg *config.Config) notify.Options {
	o := notify.FromConfig(cfg.Notifications)
	o.Send = d.send
	o.Logger = d.log
	return o
}

// start launches background loops, then capture.
func (d *daemon) start(ctx context.Context) error {
	if ok, reason := d.backend.Available(); !ok {
		return fmt.Errorf("keyboard capture unavailable: %s", reason)
	}
	if d.monitor != nil {
		d.monitor.Start(ctx)
	}
	d.poller.Start(ctx)
	if d.diag != nil {
		if err := d.diag.Start(ctx); err != nil {
			return err
		}
	}
	if err := d.engine.Start(ctx); err != nil {
		return err
	}
	d.checker.SetReady(true)
	d.log.Info("expandd running", "snippets", d.repo.Len())
	return nil
}

// reconfigure applies a reloaded config. Storage, clipboard, plugin and
// diagnostics settings take effect on restart.
func (d *daemon) reconfigure(cfg *config.Config) {
	d.engine.UpdateSettings(engine.SettingsFromConfig(cfg))
	d.notifier.Store(notify.New(d.notifyOptions(cfg)))
}

// reloadSnippets rereads the store, picking up edits made by other
// processes such as `expandd snippet add`.
func (d *daemon) reloadSnippets() error {
	if err := d.repo.Load(); err != nil {
		return err
	}
	n, err := d.engine.RefreshHotkeys()
	if err != nil {
		d.log.Warn("some hotkeys were ignored", "bound", n, "error", err)
	}
	return nil
}

func (d *daemon) reportError(title string, err error) {
	if n := d.notifier.Load(); n != nil {
		n.Error(title, err)
	}
}

// shutdown stops capture first so no expansion starts during teardown.
func (d *daemon) shutdown(ctx context.Context) {
	d.checker.SetReady(false)
	if err := d.engine.Stop(); err != nil {
		d.log.Warn("stopping capture", "error", err)
	}
	if d.diag != nil {
		if err := d.diag.Shutdown(ctx); err != nil {
			d.log.Warn("stopping diagnostics", "error", err)
		}
	}
	d.poller.Stop()
	if d.monitor != nil {
		d.monitor.Stop()
	}
	d.close()
}

func (d *daemon) close() {
	if d.lua != nil {
		d.lua.Close()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.log.Warn("closing store", "error", err)
		}
		d.store = nil
	}
}
