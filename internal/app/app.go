package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"alarmbot/internal/alarms"
	"alarmbot/internal/config"
	"alarmbot/internal/eventbus"
	"alarmbot/internal/notifier"
	rtsup "alarmbot/internal/runtime/supervisor"
	"alarmbot/internal/storage"
	"alarmbot/internal/task/scheduler"
	kit "alarmbot/internal/transport"
	telegram "alarmbot/internal/transport/telegram/adapter"
	"alarmbot/internal/transport/telegram/router"
	logx "alarmbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	sched  *scheduler.Service
	notif  *notifier.Service
	alarms *alarms.Service
	cmdm   *router.CommandManager

	updates chan kit.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, errors.New("telegram token is empty (set BOT_TOKEN or telegram.token)")
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(scheduler.Config{Location: loc}, log.With(logx.String("comp", "scheduler")), bus)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus)

	acfg, err := mapAlarmsConfig(cfg)
	if err != nil {
		return nil, err
	}
	svc := alarms.New(acfg, store, sched, notif, log.With(logx.String("comp", "alarms")), bus)
	svc.SetRenderer(router.AlarmRenderer(svc.SnoozeDelay))

	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")), ad, 4)
	cmdm.SetRegistry(router.AlarmCommands(svc))

	return &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		sched:   sched,
		notif:   notif,
		alarms:  svc,
		cmdm:    cmdm,
		updates: make(chan kit.Update, 256),
	}, nil
}

// openStore opens the configured store. If that fails the bot keeps running
// on a memory store so commands still answer; nothing survives a restart.
func openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := MapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	slog := log.With(logx.String("comp", "storage"))
	st, err := storage.Open(sc, slog)
	if err != nil {
		slog.Error("storage unavailable; alarms will not persist", logx.String("driver", sc.Driver), logx.Err(err))
		return storage.NewMemory(), nil
	}
	slog.Info("storage opened", logx.String("driver", sc.Driver))
	return st, nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start restores alarms, then starts polling and dispatch. Restore finishes
// before the first command is routed.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	a.notif.Start(a.sup.Context())

	rctx, cancel := context.WithTimeout(a.sup.Context(), 30*time.Second)
	rep, err := a.alarms.RestoreAll(rctx)
	cancel()
	if err != nil {
		// Keep serving: new alarms can still be set once storage recovers.
		a.log.Error("restore failed", logx.Err(err))
	} else {
		a.log.Info("restore done", logx.Int("armed", rep.Armed), logx.Int("skipped", len(rep.Skipped)))
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("telegram start: %w", err)
	}
	if err := a.cmdm.UpdateMenu(a.sup.Context()); err != nil {
		a.log.Warn("command menu update failed", logx.Err(err))
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("eventbus.log", a.logEvents)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, newCfg)
				last = newCfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	sdNotify(a.log, "READY=1")
	a.log.Info("app started", logx.String("timezone", a.sched.Location().String()))
	return nil
}

// logEvents mirrors bus events into the debug log.
func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		}
	}
}

// applyConfig hot-applies a reloaded config. Storage and the bot token only
// change on restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	if acfg, err := mapAlarmsConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduler delays; keeping previous", logx.Err(err))
	} else {
		a.alarms.Apply(acfg)
	}
	if loc, err := newCfg.Location(); err != nil {
		a.log.Warn("invalid timezone; keeping previous", logx.Err(err))
	} else {
		a.sched.SetLocation(loc)
	}

	if config.StorageChanged(oldCfg, newCfg) {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if oldCfg != nil && oldCfg.Telegram.Token != newCfg.Telegram.Token {
		a.log.Warn("telegram token changed; restart required for changes to take effect")
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, "STOPPING=1")

	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, func(context.Context) error { a.sched.Stop(); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max and by ctx, so a stuck
// component cannot stall the rest.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
