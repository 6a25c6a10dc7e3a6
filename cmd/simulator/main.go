// Command simulator boots the EVSE load-test pool: it resolves
// configuration, wires logging/metrics/event bus, optionally attaches the
// Kafka control-plane and Redis snapshot mirror, runs one StartBatch when
// -target is set, and waits for a shutdown signal. Wiring order and style are grounded on the
// gateway's cmd/gateway/main.go (config -> logger -> storage -> Kafka ->
// business wiring -> transport -> signal shutdown), re-sequenced for a
// pool of outbound dialers instead of an inbound WebSocket server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/evse-sim/simulator/internal/clock"
	"github.com/evse-sim/simulator/internal/config"
	"github.com/evse-sim/simulator/internal/control"
	"github.com/evse-sim/simulator/internal/eventbus"
	simlogger "github.com/evse-sim/simulator/internal/logger"
	"github.com/evse-sim/simulator/internal/metrics"
	"github.com/evse-sim/simulator/internal/pool"
	"github.com/evse-sim/simulator/internal/session"
)

func main() {
	var (
		scenario   = flag.String("scenario", "default", "scenario name tagging this run's logs and metrics")
		target     = flag.Int("target", 0, "number of sessions to ramp to (0 = pool runs idle, driven only by the control API)")
		rampUp     = flag.Int("ramp-up", 60, "seconds over which to ramp to -target sessions")
		hold       = flag.Int("hold", 0, "seconds to hold steady state before tearing the batch down (0 = hold forever)")
		csmsURL    = flag.String("csms-url", "", "override the configured CSMS URL for this run")
		idPrefix   = flag.String("cp-prefix", "SIM-CP-", "charge point id prefix; session index is appended")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := simlogger.New(&simlogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("app", cfg.App.Name).Str("profile", cfg.App.Profile).Msg("starting simulator")

	metricsRegistry := metrics.NewRegistry()
	bus := eventbus.New(eventbus.DefaultSubscriberBuffer)

	dialer := session.GorillaDialer{HandshakeTimeout: cfg.CSMS.HandshakeTimeout}
	handlers := session.DefaultHandlers()
	p := pool.New(bus, metricsRegistry, clock.Real{}, dialer, handlers, log)
	p.SetMemoryFloor(cfg.Pool.MemoryFloorBytes)

	var producer *control.EventProducer
	var consumer *control.CommandConsumer
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Brokers[0] != "" {
		producer, err = control.NewEventProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, log)
		if err != nil {
			log.Warn().Err(err).Msg("Kafka event producer unavailable, continuing without it")
		} else {
			producer.Subscribe(bus)
		}

		dispatcher := control.NewDispatcher(p)
		consumer, err = control.NewCommandConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.CommandsTopic, dispatcher, log)
		if err != nil {
			log.Warn().Err(err).Msg("Kafka command consumer unavailable, continuing without it")
		} else {
			consumer.Start(context.Background())
		}
	}

	var mirror *control.SnapshotMirror
	if cfg.Redis.Enabled {
		mirror, err = control.NewSnapshotMirror(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.SnapshotTTL, log)
		if err != nil {
			log.Warn().Err(err).Msg("Redis snapshot mirror unavailable, continuing without it")
		} else {
			go runSnapshotMirrorLoop(mirror, p)
		}
	}

	go startMetricsServer(cfg.Metrics.ListenAddr, log)
	go runProfileSweepLoop(p, pool.DefaultProfileSweepInterval)

	ctx, cancel := context.WithCancel(context.Background())
	if *target > 0 {
		url := cfg.CSMS.URL
		if *csmsURL != "" {
			url = *csmsURL
		}
		spec := pool.BatchSpec{
			ScenarioName:       *scenario,
			TargetSessions:     *target,
			RampUpSeconds:      *rampUp,
			HoldSeconds:        *hold,
			CSMSURL:            url,
			IdTagTemplate:      "TAG-%05d",
			ChargePointPrefix:  *idPrefix,
			MeterValueInterval: cfg.Session.MeterValueInterval,
			HeartbeatInterval:  cfg.Session.HeartbeatInterval,
		}
		if err := p.StartBatch(ctx, spec); err != nil {
			log.Fatal().Err(err).Msg("failed to start batch")
		}
		log.Info().Int("target", *target).Int("ramp_up_s", *rampUp).Str("scenario", *scenario).Msg("batch started")
	} else {
		log.Info().Msg("no -target given; pool idle, awaiting control API commands")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	cancel()
	p.Stop()
	if consumer != nil {
		_ = consumer.Close()
	}
	if producer != nil {
		_ = producer.Close()
	}
	if mirror != nil {
		_ = mirror.Close()
	}
	log.Info().Msg("simulator stopped")
}

func startMetricsServer(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

func runSnapshotMirrorLoop(mirror *control.SnapshotMirror, p *pool.Pool) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		mirror.MirrorAll(context.Background(), p.Registry())
	}
}

func runProfileSweepLoop(p *pool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		p.SweepProfiles()
	}
}
