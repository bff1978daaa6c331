package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/brushhour/fieldclock/internal/config"
	"github.com/brushhour/fieldclock/internal/connectivity"
	"github.com/brushhour/fieldclock/internal/geofence"
	"github.com/brushhour/fieldclock/internal/location"
	"github.com/brushhour/fieldclock/internal/model"
	"github.com/brushhour/fieldclock/internal/orchestrator"
	"github.com/brushhour/fieldclock/internal/queue"
	"github.com/brushhour/fieldclock/internal/remote"
	"github.com/brushhour/fieldclock/internal/resilience"
	"github.com/brushhour/fieldclock/internal/store"
)

// env is the wired application: store, connectivity, queue, evaluator, and
// orchestrator, built from config.
type env struct {
	Store  store.Store
	Source connectivity.Source
	Queue  *queue.Queue
	Eval   *geofence.Evaluator
	Orch   *orchestrator.Orchestrator
}

// initEnv wires the pipeline. fix is the device's location shim reading; it
// may be zero for commands that never acquire a location (queue, override,
// audit, sites).
func initEnv(ctx context.Context, fix model.LocationReading) (*env, error) {
	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}

	prober := connectivity.NewProber(connectivity.ProberConfig{
		URL:                     cfg.Connectivity.ProbeURL,
		Interval:                time.Duration(cfg.Connectivity.IntervalSecs) * time.Second,
		MaxTransitionsPerMinute: float64(cfg.Connectivity.MaxTransitionsPerMinute),
	})

	svc := remote.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token)
	q := queue.New(s, svc, prober, queue.Options{
		Backoff: resilience.Backoff{
			InitialDelay:   time.Duration(cfg.Queue.BackoffInitialSecs) * time.Second,
			MaxDelay:       time.Duration(cfg.Queue.BackoffMaxMins) * time.Minute,
			Multiplier:     cfg.Queue.BackoffMultiplier,
			JitterFraction: cfg.Queue.BackoffJitter,
		},
	})

	eval := geofence.NewEvaluator(s, nil, geofence.Options{
		GraceWindow:        time.Duration(cfg.Geofence.GraceWindowMins) * time.Minute,
		AlertCooldown:      time.Duration(cfg.Geofence.AlertCooldownMins) * time.Minute,
		RequireMultiSignal: cfg.Geofence.RequireMultiSignal,
	})

	provider := location.NewPersistentProvider(location.NewStaticProvider(fix), s)
	orch := orchestrator.New(provider, eval, q, s)

	return &env{Store: s, Source: prober, Queue: q, Eval: eval, Orch: orch}, nil
}

func (e *env) Close() {
	e.Source.Close()
	_ = e.Store.Close()
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
