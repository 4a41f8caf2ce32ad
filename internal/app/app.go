package app

import (
	"context"
	"fmt"

	"recal/internal/api"
	"recal/internal/config"
	"recal/internal/learner"
	"recal/internal/logger"
	"recal/internal/scheduler"
	"recal/internal/store/sqlite"

	"golang.org/x/sync/errgroup"
)

// App wires the store, learner, HTTP server and run scheduler.
type App struct {
	cfg    *config.Config
	store  *sqlite.Store
	runs   *api.RunService
	server *api.Server
}

// NewApp builds the application from configuration without starting
// anything. An empty store is seeded with the configured baseline rule
// set and bootstrap gate thresholds.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	st, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ctx := context.Background()
	initial, err := st.EnsureInitial(ctx, cfg.BaselineRuleSet(), cfg.Baseline.Description)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("seed baseline version: %w", err)
	}
	logger.Infof("active rule version: %s (%s)", initial.ID, initial.RuleSet.Name)

	if err := seedThresholds(ctx, st, cfg); err != nil {
		st.Close()
		return nil, err
	}

	schema, err := cfg.Schema()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build parameter schema: %w", err)
	}
	l, err := learner.New(st, schema, cfg.LearnerConfig())
	if err != nil {
		st.Close()
		return nil, err
	}
	runs := api.NewRunService(l)

	server, err := api.NewServer(api.ServerConfig{
		Addr:   cfg.App.HTTPAddr,
		Store:  st,
		Runs:   runs,
		Config: cfg,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &App{cfg: cfg, store: st, runs: runs, server: server}, nil
}

// seedThresholds writes the config file's gate thresholds as the first
// audit revision. Once any revision exists the file values are
// ignored; threshold changes go through the API.
func seedThresholds(ctx context.Context, st *sqlite.Store, cfg *config.Config) error {
	audit, err := st.ThresholdAudit(ctx, 1)
	if err != nil {
		return fmt.Errorf("read threshold audit: %w", err)
	}
	if len(audit) > 0 {
		return nil
	}
	if err := st.UpdateThresholds(ctx, cfg.Thresholds(), "config", "bootstrap from config file"); err != nil {
		return fmt.Errorf("seed gate thresholds: %w", err)
	}
	logger.Infof("gate thresholds seeded from config")
	return nil
}

// Run serves HTTP and schedules learning runs until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.store.Close()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Infof("http server listening on %s", a.server.Addr())
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	if interval := a.cfg.RunInterval(); interval > 0 {
		group.Go(func() error {
			sched := scheduler.NewIntervalScheduler(ctx, interval)
			sched.Start(func(runCtx context.Context) {
				rec, err := a.runs.RunNow(runCtx)
				if err != nil {
					logger.Errorf("scheduled learning run failed: %v", err)
					return
				}
				logger.Infof("scheduled learning run %s: %s", rec.ID, rec.Recommendation)
			})
			return nil
		})
	} else {
		logger.Infof("internal run cadence disabled; learning runs trigger through the API")
	}

	return group.Wait()
}
