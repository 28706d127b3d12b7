package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tracecap/internal/config"
	"tracecap/internal/manager"
	"tracecap/internal/metrics"
	"tracecap/internal/pipeline"
	"tracecap/internal/store"
	"tracecap/pkg/typereg"
	"tracecap/pkg/types"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to configuration file")
	flag.Parse()

	if configFile == "" {
		configFile = os.Getenv("TRACECAP_CONFIG_FILE")
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("tracecap exited with error")
		os.Exit(1)
	}
}

func newLogger(level, format string) *logrus.Entry {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logrus.NewEntry(l)
}

// sample is the tick counter this demo program collects, standing in
// for a simulator's own observed state.
type sample struct {
	ticks uint32
}

func run(cfg *types.Config, log *logrus.Entry) error {
	facade, err := store.Open(cfg.Store.Path, cfg.Store.ForceNew, log.WithField("component", "store"))
	if err != nil {
		return err
	}
	defer facade.Close()

	schemaBuilder, err := store.BuildSchema()
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := facade.ApplySchema(ctx, schemaBuilder); err != nil {
		log.WithError(err).Warn("schema not applied (store file may already exist)")
	}

	var tick uint64
	clock := manager.NewUint64Clock(func() uint64 {
		tick++
		return tick
	})

	mgr := manager.New(facade, clock, cfg.Pipeline.Heartbeat, log.WithField("component", "manager"))

	counter := &sample{}
	if err := mgr.AddScalar("stats.count", "root.stats.count", typereg.PrimitiveUint32, func() typereg.Value {
		counter.ticks++
		return typereg.Value{Uint: uint64(counter.ticks)}
	}); err != nil {
		return err
	}

	pipe := pipeline.New(pipeline.Config{
		StageAQueueSize:    cfg.Pipeline.StageAQueueSize,
		StageBQueueSize:    cfg.Pipeline.StageBQueueSize,
		CommitInterval:     cfg.Pipeline.CommitInterval,
		TaskQueueInterval:  cfg.Pipeline.TaskQueueInterval,
		BackpressureStreak: cfg.Pipeline.BackpressureStreak,
		QueueHighWaterMark: cfg.Pipeline.QueueHighWaterMark,
	}, mgr, mgr.Interner(), log.WithField("component", "pipeline"))
	mgr.AttachPipeline(pipe)
	pipe.Start()
	// Registered in this order so that, with deferred calls running LIFO,
	// Teardown (final Stage-A/B flush) runs before Close (AsyncTaskQueue
	// shutdown).
	defer mgr.Close(context.Background())
	defer pipe.Teardown()

	if err := mgr.Finalize(ctx); err != nil {
		return err
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, log.WithField("component", "metrics"))
		metricsServer.Start()
		defer metricsServer.Stop(context.Background())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	log.Info("tracecap demo running; collecting one scalar counter every 100ms")
	for {
		select {
		case <-ticker.C:
			if err := mgr.Collect(ctx); err != nil {
				log.WithError(err).Error("collect failed")
			}
		case <-sigCh:
			log.Info("shutdown signal received, tearing down")
			return nil
		}
	}
}
