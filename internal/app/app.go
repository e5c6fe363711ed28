package app

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"taskrota/internal/assign"
	"taskrota/internal/config"
	"taskrota/internal/engine"
	"taskrota/internal/eventbus"
	"taskrota/internal/holiday"
	"taskrota/internal/recurrence"
	"taskrota/internal/runtime/supervisor"
	"taskrota/internal/store"
	logx "taskrota/pkg/logx"
)

// App wires config, storage, the recurrence engine and the minute ticker
// into one process.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	db  *store.Store
	eng *engine.Engine

	cron *cron.Cron
	// ticking guards against overlapping batch passes when one pass runs
	// longer than a minute.
	ticking atomic.Bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	db, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	eng, err := buildEngine(cfg, db, log, bus)
	if err != nil {
		_ = db.Close()
		logSvc.Close()
		return nil, err
	}

	loc, _ := cfg.Engine.Location() // validated by Load

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		db:      db,
		eng:     eng,
		cron:    cron.New(cron.WithLocation(loc)),
	}, nil
}

// buildEngine assembles the evaluator, assigner and engine from config.
func buildEngine(cfg *config.Config, db *store.Store, log logx.Logger, bus eventbus.Bus) (*engine.Engine, error) {
	table := holiday.Default()
	if p := strings.TrimSpace(cfg.Holiday.TablePath); p != "" {
		t, err := holiday.LoadFile(p)
		if err != nil {
			return nil, err
		}
		table = t
	}
	resolver := holiday.NewResolver(table, log.With(logx.String("comp", "holiday")))

	clamp, err := cfg.Engine.ClampPolicy()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Engine.Location()
	if err != nil {
		return nil, err
	}

	eval := recurrence.NewEvaluator(resolver, clamp)
	assigner := assign.New(assign.WithWindow(cfg.Engine.HistoryWindow))

	return engine.New(db, eval, assigner, engine.Config{
		Workers:       cfg.Engine.Workers,
		HistoryWindow: cfg.Engine.HistoryWindow,
		Location:      loc,
	}, log.With(logx.String("comp", "engine")), bus), nil
}

// Engine exposes the execution engine for one-shot CLI runs.
func (a *App) Engine() *engine.Engine { return a.eng }

// Store exposes the persistence layer for one-shot CLI runs.
func (a *App) Store() *store.Store { return a.db }

// Done is closed when the supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	// Minute tick. The engine itself is idempotent; the ticking flag only
	// suppresses overlapping passes.
	_, err := a.cron.AddFunc("* * * * *", func() {
		if !a.ticking.CompareAndSwap(false, true) {
			a.log.Warn("batch pass still running; tick skipped")
			return
		}
		defer a.ticking.Store(false)
		if _, err := a.eng.ExecuteScheduledTasks(a.sup.Context(), time.Now()); err != nil {
			a.log.Error("batch pass failed", logx.Err(err))
		}
	})
	if err != nil {
		return err
	}
	a.cron.Start()

	// Debug-level event mirror.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot reload fan-out. Logging applies live; storage and engine changes
	// need a restart.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				sections, attrs := config.SummarizeChange(lastApplied, newCfg)
				lastApplied = newCfg

				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})

				for _, s := range sections {
					if s == "storage" || s == "engine" || s == "holiday" {
						a.log.Warn("config section changed; restart required to take effect",
							logx.String("section", s))
					}
				}
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stop requested")

	cronCtx := a.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}

	err := a.sup.Stop(ctx)
	if cerr := a.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("app stopped")
	a.logs.Close()
	return err
}
