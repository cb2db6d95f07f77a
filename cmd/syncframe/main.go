// Command syncframe is the thin host process: it loads a job descriptor,
// resolves each job's adapters and mappers, and runs every job's Service
// on its configured schedule until a shutdown signal arrives. Adapter and
// mapper instantiation live in this package (adapters.go, mappers.go)
// rather than the core, matching spec §1's host/core split; the lifecycle
// and signal handling below are grounded on cmd/replicator/main.go and
// pkg/replicator/shutdown.go's signal-notify pattern, adapted to zerolog
// in place of the teacher's logrus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/zerolog/log"

	"github.com/scottthesecond/syncframe/pkg/config"
	"github.com/scottthesecond/syncframe/pkg/dedup"
	"github.com/scottthesecond/syncframe/pkg/engine"
	"github.com/scottthesecond/syncframe/pkg/linkindex"
	"github.com/scottthesecond/syncframe/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to the syncframe job descriptor")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "max time to wait for in-flight cycles on shutdown")
	flag.Parse()

	cfg, err := config.LoadConfiguration(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	store, err := buildStore(cfg.LinkIndex)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open link index store")
	}

	var recorder telemetry.Recorder = telemetry.Noop
	var meterMgr *telemetry.Manager
	if cfg.Telemetry.Enabled {
		meterMgr, err = telemetry.NewManager(cfg.Telemetry.ServiceName)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start telemetry manager")
		}
		recorder = meterMgr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	services := make([]*engine.Service, 0, len(cfg.Jobs))
	for _, jc := range cfg.Jobs {
		svc, err := buildService(ctx, jc, store, recorder)
		if err != nil {
			log.Fatal().Err(err).Str("job_id", jc.JobID).Msg("failed to build job")
		}
		services = append(services, svc)
	}

	for i, svc := range services {
		if err := svc.Start(ctx); err != nil {
			log.Fatal().Err(err).Str("job_id", cfg.Jobs[i].JobID).Msg("failed to start job")
		}
	}
	log.Info().Int("jobs", len(services)).Msg("syncframe running")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping jobs")

	stopCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()
	for i, svc := range services {
		if err := svc.Stop(stopCtx); err != nil {
			log.Error().Err(err).Str("job_id", cfg.Jobs[i].JobID).Msg("job did not stop cleanly")
		}
	}

	if meterMgr != nil {
		_ = meterMgr.Shutdown(stopCtx)
	}
	log.Info().Msg("syncframe stopped")
}

// buildStore opens the link-index backing store named by cfg.Driver:
// "memory" for the in-process MemoryStore, or "sqlite3"/"postgres" for
// linkindex.OpenSQLStore against cfg.DSN.
func buildStore(cfg config.LinkIndexConfig) (linkindex.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return linkindex.NewMemoryStore(), nil
	case "sqlite3", "postgres":
		return linkindex.OpenSQLStore(cfg.Driver, cfg.DSN)
	default:
		return nil, fmt.Errorf("link index: unknown driver %q", cfg.Driver)
	}
}

// buildService assembles one job's engine.JobConfig from its descriptor —
// resolving both sides' adapters and both directions' mappers — and wraps
// it in a Service scheduled at jc.ScheduleInterval.
func buildService(ctx context.Context, jc config.JobConfig, store linkindex.Store, rec telemetry.Recorder) (*engine.Service, error) {
	sideA, err := buildSide(ctx, jc.SideA)
	if err != nil {
		return nil, fmt.Errorf("job %s: side a: %w", jc.JobID, err)
	}
	sideB, err := buildSide(ctx, jc.SideB)
	if err != nil {
		return nil, fmt.Errorf("job %s: side b: %w", jc.JobID, err)
	}

	mapperAtoB, err := buildMapper(jc.MapperAtoB)
	if err != nil {
		return nil, fmt.Errorf("job %s: mapper a->b: %w", jc.JobID, err)
	}
	mapperBtoA, err := buildMapper(jc.MapperBtoA)
	if err != nil {
		return nil, fmt.Errorf("job %s: mapper b->a: %w", jc.JobID, err)
	}

	eng := engine.New(engine.JobConfig{
		JobID:      jc.JobID,
		SideA:      sideA,
		SideB:      sideB,
		MapperAtoB: mapperAtoB,
		MapperBtoA: mapperBtoA,
		Store:      store,
		Retry: engine.RetryConfig{
			MaxAttempts:     jc.Retry.MaxAttempts,
			BackoffSec:      jc.Retry.BackoffSec,
			DisableJobAfter: jc.Retry.DisableJobAfter,
		},
		ConflictPolicy: dedup.ConflictPolicy(jc.ConflictPolicy),
		Telemetry:      rec,
	})

	interval := jc.ScheduleInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return engine.NewService(eng, interval), nil
}

func buildSide(ctx context.Context, sc config.SideConfig) (engine.SideConfig, error) {
	a, err := buildAdapter(ctx, sc)
	if err != nil {
		return engine.SideConfig{}, err
	}
	return engine.SideConfig{
		AdapterName: sc.AdapterName,
		Table:       sc.Table,
		Adapter:     a,
		MaxReqs:     sc.MaxReqs,
		IntervalSec: sc.IntervalSec,
		BatchSize:   sc.BatchSize,
	}, nil
}
