// Package app wires the bot together: config, logging, state store,
// catalog, telegram adapter, scheduler and the daily report.
package app

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/qugok/birthday-bot/internal/catalog"
	"github.com/qugok/birthday-bot/internal/config"
	"github.com/qugok/birthday-bot/internal/report"
	rtsup "github.com/qugok/birthday-bot/internal/runtime/supervisor"
	"github.com/qugok/birthday-bot/internal/scheduler"
	"github.com/qugok/birthday-bot/internal/state"
	"github.com/qugok/birthday-bot/internal/transport/telegram"
	logx "github.com/qugok/birthday-bot/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store   state.Store
	sched   *scheduler.Service
	adapter *telegram.Adapter
	rep     *report.Service

	sup *rtsup.Supervisor
}

// New builds the full application. Any failure here (unreadable config,
// missing token, broken catalog or state files) must abort startup: the bot
// never serves with partially-initialized state.
func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	token, err := cfg.ResolveToken()
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	busy, _ := config.ParseDurationField("state.busy_timeout", cfg.State.BusyTimeout)
	store, err := state.Open(state.Config{
		Driver:      cfg.State.Driver,
		Path:        cfg.State.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "state")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("state store: %w", err)
	}

	set := cfg.SchedulerSettings()
	sched := scheduler.New(set, cat, catalog.NewRandomSelector(),
		store, nil, log.With(logx.String("comp", "scheduler")))

	pollTO, _ := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	adapter, err := telegram.New(telegram.Config{
		Token:       token,
		PollTimeout: pollTO,
		SendTimeout: set.SendTimeout,
		Greeting:    cfg.Telegram.Greeting,
	}, sched, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	sched.SetSender(adapter)

	return &App{
		cfgMgr:  mgr,
		logSvc:  logSvc,
		log:     log,
		store:   store,
		sched:   sched,
		adapter: adapter,
		rep:     report.New(sched, log.With(logx.String("comp", "report"))),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	// Startup load failure is fatal: do not serve with partial state.
	if err := a.sched.LoadState(ctx); err != nil {
		return err
	}

	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	a.adapter.Start(a.sup.Context())
	a.sup.Go("scheduler.run", a.sched.Run)
	a.sup.Go("config.watch", a.cfgMgr.Watch)

	// Re-apply hot-reloadable tunables on config changes.
	updates := a.cfgMgr.Subscribe(1)
	a.sup.Go0("config.apply", func(ctx context.Context) {
		defer a.cfgMgr.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-updates:
				if !ok || cfg == nil {
					return
				}
				a.applyConfig(cfg)
			}
		}
	})

	if cfg := a.cfgMgr.Get(); cfg != nil && cfg.Report.Enabled {
		if err := a.rep.Start(cfg.Report.At); err != nil {
			a.log.Warn("daily report not scheduled", logx.Err(err))
		}
	}

	// Best-effort readiness signal when running under systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	a.log.Info("bot started")
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.sched.Apply(cfg.SchedulerSettings())
	if cfg.Report.Enabled {
		if err := a.rep.Start(cfg.Report.At); err != nil {
			a.log.Warn("daily report not rescheduled", logx.Err(err))
		}
	} else {
		a.rep.Stop(context.Background())
	}
	a.log.Info("config applied")
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.rep.Stop(ctx)
	_ = a.adapter.Stop(ctx)

	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("bot stopped")
	_ = a.logSvc.Close()
	return err
}
