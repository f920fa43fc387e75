// Package app wires config, logging, history, engine and the runner,
// and owns the one-shot and daemon execution modes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"ftmaint/internal/config"
	"ftmaint/internal/engine"
	"ftmaint/internal/history"
	"ftmaint/internal/maint"
	"ftmaint/internal/notify"
	logx "ftmaint/pkg/logx"
)

// Overrides carries CLI flag overrides for the per-run knobs.
// Negative ints mean "not set"; config values apply.
type Overrides struct {
	ReorgThreshold   int
	RebuildThreshold int
	StopAfter        int
	WindowMinutes    int
	MonthsForAvg     int
	MaxSizeGB        int
	DryRun           bool
}

// NoOverrides returns an Overrides with every field unset.
func NoOverrides() Overrides {
	return Overrides{
		ReorgThreshold:   -1,
		RebuildThreshold: -1,
		StopAfter:        -1,
		WindowMinutes:    -1,
		MonthsForAvg:     -1,
		MaxSizeGB:        -1,
	}
}

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	hist     history.Store
	notifier notify.Notifier
	ov       Overrides

	running atomic.Bool
}

func New(cfgPath string, ov Overrides) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	busy, err := config.ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout)
	if err != nil {
		return nil, err
	}
	hist, err := history.Open(history.Config{
		Driver:      cfg.History.Driver,
		Path:        cfg.History.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "history")))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	var notifier notify.Notifier
	if n := cfg.Notify; n != nil && n.Telegram != nil && n.Telegram.Enabled {
		notifier, err = notify.NewTelegram(notify.TelegramConfig{
			Token:  n.Telegram.Token,
			ChatID: n.Telegram.ChatID,
		}, log.With(logx.String("comp", "notify")))
		if err != nil {
			_ = hist.Close()
			return nil, fmt.Errorf("notify: %w", err)
		}
	}

	return &App{
		cfgm:     cfgm,
		logs:     logs,
		log:      log,
		hist:     hist,
		notifier: notifier,
		ov:       ov,
	}, nil
}

func (a *App) Close() error {
	var errs []error
	if a.hist != nil {
		errs = append(errs, a.hist.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

// RunOnce performs a single maintenance run.
//
// The engine connection is opened per run: a daemon firing once a night
// should not hold a server connection around the clock.
func (a *App) RunOnce(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		a.log.Warn("previous maintenance run still in flight; skipping")
		return nil
	}
	defer a.running.Store(false)

	cfg := a.cfgm.Get()
	eng, err := engine.Connect(ctx, engine.Config{
		DSN:     cfg.Server.DSN,
		Include: cfg.Server.IncludeDatabases,
		Exclude: cfg.Server.ExcludeDatabases,
	}, a.log.With(logx.String("comp", "engine")))
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer func() {
		if c, ok := eng.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}()

	runner := maint.NewRunner(eng, a.hist,
		a.log.With(logx.String("comp", "maint")),
		maint.WithScanRate(cfg.Server.ScanRatePerSec))

	stats, err := runner.Run(ctx, a.runConfig(cfg))
	if err != nil {
		return err
	}

	if a.notifier != nil {
		nctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if nerr := a.notifier.RunFinished(nctx, serverLabel(cfg.Server.DSN), stats); nerr != nil {
			a.log.Warn("run report delivery failed", logx.Err(nerr))
		}
	}
	return nil
}

// RunDaemon schedules maintenance runs on the configured cron spec and
// reloads the config file on change.
func (a *App) RunDaemon(ctx context.Context) error {
	cfg := a.cfgm.Get()
	if cfg.Schedule == nil || !cfg.Schedule.Enabled {
		return errors.New("daemon mode requires schedule.enabled")
	}

	// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
		loc = l
	}

	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	fire := func() {
		if err := a.RunOnce(ctx); err != nil {
			a.log.Error("scheduled run failed", logx.Err(err))
		}
	}
	if _, err := c.AddFunc(cfg.Schedule.Cron, fire); err != nil {
		return fmt.Errorf("schedule.cron: %w", err)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	a.log.Info("daemon started",
		logx.String("cron", cfg.Schedule.Cron),
		logx.String("tz", loc.String()))

	// Config hot reload: logging changes apply live; schedule/server
	// changes need a restart and are only reported.
	updates := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(updates)
	go func() {
		if err := a.cfgm.Watch(ctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	notifyReadiness(a.log)
	watchdogDone := startWatchdog(ctx, a.log)
	defer close(watchdogDone)

	old := cfg
	for {
		select {
		case <-ctx.Done():
			a.log.Info("daemon stopping")
			return nil
		case next, ok := <-updates:
			if !ok {
				return nil
			}
			a.logs.Apply(logx.Config{
				Level:   next.Logging.Level,
				Console: next.Logging.Console,
				File: logx.FileConfig{
					Enabled: next.Logging.File.Enabled,
					Path:    next.Logging.File.Path,
				},
			})
			changed, attrs := config.SummarizeChange(old, next)
			if len(changed) > 0 {
				a.log.Info("config applied",
					append([]logx.Field{logx.Any("sections", changed)}, attrs...)...)
			}
			old = next
		}
	}
}

func (a *App) runConfig(cfg *config.Config) maint.RunConfig {
	m := cfg.Maintenance
	rc := maint.RunConfig{
		ReorgThreshold:   m.ReorgThreshold,
		RebuildThreshold: m.RebuildThreshold,
		StopAfter:        m.StopAfter,
		WindowMinutes:    m.WindowMinutes,
		MonthsForAvg:     m.MonthsForAvg,
		MaxSizeGB:        m.MaxSizeGB,
		DryRun:           m.DryRun || a.ov.DryRun,
	}
	if d, err := config.ParseDurationOrDefault("maintenance.poll_interval", m.PollInterval, 30*time.Second); err == nil {
		rc.PollInterval = d
	}
	if v := a.ov.ReorgThreshold; v >= 0 {
		rc.ReorgThreshold = v
	}
	if v := a.ov.RebuildThreshold; v >= 0 {
		rc.RebuildThreshold = v
	}
	if v := a.ov.StopAfter; v >= 0 {
		rc.StopAfter = v
	}
	if v := a.ov.WindowMinutes; v >= 0 {
		rc.WindowMinutes = v
	}
	if v := a.ov.MonthsForAvg; v >= 0 {
		rc.MonthsForAvg = v
	}
	if v := a.ov.MaxSizeGB; v >= 0 {
		rc.MaxSizeGB = v
	}
	return rc
}

// serverLabel extracts a loggable host from the DSN without leaking
// credentials.
func serverLabel(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Host != "" {
		return u.Host
	}
	return "server"
}

func notifyReadiness(log logx.Logger) {
	sent, err := sd.SdNotify(false, sd.SdNotifyReady)
	if err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify: ready")
	}
}

// startWatchdog feeds the systemd watchdog when one is armed. The
// returned channel stops the feeder when closed.
func startWatchdog(ctx context.Context, log logx.Logger) chan struct{} {
	done := make(chan struct{})
	interval, err := sd.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return done
	}
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-t.C:
				_, _ = sd.SdNotify(false, sd.SdNotifyWatchdog)
			}
		}
	}()
	return done
}
