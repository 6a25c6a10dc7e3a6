package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/evse-sim/simulator/internal/clock"
	"github.com/evse-sim/simulator/internal/eventbus"
	"github.com/evse-sim/simulator/internal/metrics"
	"github.com/evse-sim/simulator/internal/session"
	"github.com/evse-sim/simulator/internal/simerr"
)

// DefaultMetricsTickHz is the default cadence for metricsTick publications,
// spec §4.5 "default 1 Hz".
const DefaultMetricsTickHz = 1

// DefaultMemoryFloorBytes is refused-StartBatch floor when the caller does
// not override it: below this much free heap headroom, StartBatch declines
// to start a new ramp rather than risk the process OOMing mid-run.
const DefaultMemoryFloorBytes = 256 * 1024 * 1024

// DefaultProfileSweepInterval matches spec §4.6's "background timer
// (default every 30s)" for expiring charging profiles.
const DefaultProfileSweepInterval = 30 * time.Second

// BatchSpec parametrizes one StartBatch call (spec §4.5).
type BatchSpec struct {
	ScenarioName       string
	TargetSessions     int
	RampUpSeconds      int
	HoldSeconds        int
	CSMSURL            string
	IdTagTemplate      string // fmt-style template; createSession does not read it
	ChargePointPrefix  string // prepended to the zero-padded (%05d) session index
	MeterValueInterval time.Duration
	HeartbeatInterval  time.Duration
}

// MemoryChecker reports available memory so the pool can enforce spec
// §4.5's "available memory heuristic" floor. The production
// implementation reads runtime.MemStats; tests substitute a fake.
type MemoryChecker func() (availableBytes uint64)

// DefaultMemoryChecker approximates available headroom from the Go
// runtime's own heap statistics, the same source the gateway's
// cache package consulted for its MemoryLimitMB enforcement.
func DefaultMemoryChecker() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.Sys > m.HeapInuse {
		return m.Sys - m.HeapInuse
	}
	return 0
}

// Pool owns every live session and the ramp controller driving StartBatch
// (spec §4.5's "Session pool / ramp controller" leaf).
type Pool struct {
	registry *Registry
	bus      *eventbus.Bus
	metrics  *metrics.Registry
	clk      clock.Clock
	dialer   session.Dialer
	handlers session.HandlerRegistry
	log      zerolog.Logger

	memFloor uint64
	memCheck MemoryChecker

	mu       sync.Mutex
	running  bool
	cancelFn context.CancelFunc
	seq      int
}

// New constructs a Pool. dialer/handlers are shared, read-only templates
// applied to every session the pool creates.
func New(bus *eventbus.Bus, metricsRegistry *metrics.Registry, clk clock.Clock, dialer session.Dialer, handlers session.HandlerRegistry, log zerolog.Logger) *Pool {
	return &Pool{
		registry: NewDefaultRegistry(),
		bus:      bus,
		metrics:  metricsRegistry,
		clk:      clk,
		dialer:   dialer,
		handlers: handlers,
		log:      log,
		memFloor: DefaultMemoryFloorBytes,
		memCheck: DefaultMemoryChecker,
	}
}

// SetMemoryFloor overrides the memory-heuristic floor used by StartBatch.
func (p *Pool) SetMemoryFloor(bytes uint64) { p.memFloor = bytes }

// SetMemoryChecker overrides how available memory is measured, for tests.
func (p *Pool) SetMemoryChecker(c MemoryChecker) { p.memCheck = c }

// Registry exposes the underlying session registry for introspection
// (snapshots, the Redis mirror, the debug CLI).
func (p *Pool) Registry() *Registry { return p.registry }

// StartBatch creates TargetSessions sessions at a rate of
// TargetSessions/RampUpSeconds, holds steady state for HoldSeconds (0 holds
// until ctx is cancelled), then tears every session in the batch down (spec
// §4.5). It runs in the
// background and returns immediately; progress is observable via the
// metricsTick event and the RampProgress gauge.
func (p *Pool) StartBatch(ctx context.Context, spec BatchSpec) error {
	if spec.TargetSessions <= 0 {
		return fmt.Errorf("%w: target sessions must be positive", simerr.ErrInternal)
	}
	if avail := p.memCheck(); avail < p.memFloor {
		return fmt.Errorf("%w: available memory %d bytes below floor %d", simerr.ErrPoolBusy, avail, p.memFloor)
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("%w: a batch is already running", simerr.ErrPoolBusy)
	}
	p.running = true
	batchCtx, cancel := context.WithCancel(ctx)
	p.cancelFn = cancel
	p.mu.Unlock()

	go p.runBatch(batchCtx, spec)
	return nil
}

func (p *Pool) runBatch(ctx context.Context, spec BatchSpec) {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	rampUp := spec.RampUpSeconds
	if rampUp <= 0 {
		rampUp = 1
	}
	interval := time.Duration(rampUp) * time.Second / time.Duration(spec.TargetSessions)
	if interval <= 0 {
		interval = time.Millisecond
	}

	created := make([]string, 0, spec.TargetSessions)
	ticker := p.clk.NewTicker(interval)
	defer ticker.Stop()

	metricsTicker := p.clk.NewTicker(time.Second / DefaultMetricsTickHz)
	defer metricsTicker.Stop()

	for i := 0; i < spec.TargetSessions; {
		select {
		case <-ctx.Done():
			p.teardown(created)
			return
		case <-ticker.C():
			id := p.createSession(spec, i)
			created = append(created, id)
			i++
			p.metrics.RampProgress.Set(100 * float64(i) / float64(spec.TargetSessions))
		case <-metricsTicker.C():
			p.publishMetricsTick()
		}
	}

	p.waitOrMetrics(ctx, time.Duration(spec.HoldSeconds)*time.Second, metricsTicker)
	p.teardown(created)
}

func (p *Pool) waitOrMetrics(ctx context.Context, hold time.Duration, metricsTicker clock.Ticker) {
	var deadline <-chan time.Time
	if hold > 0 {
		deadline = p.clk.After(hold)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-metricsTicker.C():
			p.publishMetricsTick()
		}
	}
}

// CreateAdHocSession registers one session outside of any StartBatch ramp,
// for the Core control API's CreateSession operation (spec §6) where an
// external caller names an exact chargePointId/csmsUrl rather than a
// templated batch. The session is created DISCONNECTED; the caller
// Enqueues Open separately via Inject or Session.Open.
func (p *Pool) CreateAdHocSession(sessionID string, cfg session.Config) *session.Session {
	sess := session.New(sessionID, cfg, p.clk, p.dialer, p.handlers, p.bus, p.log)
	p.registry.Put(sessionID, sess)
	p.metrics.ActiveSessions.Inc()
	go sess.Run(context.Background())
	return sess
}

func (p *Pool) createSession(spec BatchSpec, index int) string {
	p.seq++
	chargePointID := fmt.Sprintf(spec.ChargePointPrefix+"%05d", index)
	sessionID := fmt.Sprintf("sess-%s", chargePointID)

	cfg := session.DefaultConfig(chargePointID, spec.CSMSURL)
	if spec.MeterValueInterval > 0 {
		cfg.MeterValueInterval = spec.MeterValueInterval
	}
	if spec.HeartbeatInterval > 0 {
		cfg.HeartbeatInterval = spec.HeartbeatInterval
	}

	sess := session.New(sessionID, cfg, p.clk, p.dialer, p.handlers, p.bus, p.log)
	p.registry.Put(sessionID, sess)
	p.metrics.ActiveSessions.Inc()
	p.metrics.ConnectionsStarted.Inc()

	go sess.Run(context.Background())
	if err := sess.Open(); err != nil {
		p.log.Warn().Str("session_id", sessionID).Err(err).Msg("failed to enqueue Open")
		p.metrics.ConnectionsFailed.Inc()
	}
	return sessionID
}

func (p *Pool) teardown(ids []string) {
	for _, id := range ids {
		sess, ok := p.registry.Get(id)
		if !ok {
			continue
		}
		_ = sess.Close()
		sess.Stop()
		p.registry.Delete(id)
		p.metrics.ActiveSessions.Dec()
	}
}

func (p *Pool) publishMetricsTick() {
	p.bus.Publish(eventbus.Event{
		Topic: eventbus.TopicMetricsTick,
		Payload: MetricsSnapshot{
			ActiveSessions:    p.registry.Len(),
			ConnectionLatency: p.metrics.ConnectionLatencySnapshot(),
			MessageLatency:    p.metrics.MessageLatencySnapshot(),
		},
	})
}

// MetricsSnapshot is the metricsTick topic payload (spec §4.7).
type MetricsSnapshot struct {
	ActiveSessions    int
	ConnectionLatency metrics.LatencySummary
	MessageLatency    metrics.LatencySummary
}

// Stop cancels any in-flight batch and closes every registered session
// (spec §4.5 "Stop: cancel further creations; close all sessions; drain").
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.cancelFn != nil {
		p.cancelFn()
	}
	p.mu.Unlock()

	p.registry.Each(func(id string, s *session.Session) {
		_ = s.Close()
		s.Stop()
	})
}

// SweepProfiles runs spec §4.6's profile-engine sweeper across every
// registered session: each session removes its own expired profiles and
// publishes ProfileExpired, fanned out through the same best-effort Enqueue
// Broadcast uses, since a sweep that misses a busy session this pass will
// catch it on the next one.
func (p *Pool) SweepProfiles() (delivered, skipped int) {
	cmd := session.SweepCommand(p.clk.Now())
	return p.Broadcast(cmd)
}

// Inject forwards a command to one specific session (spec §4.5 "Inject").
func (p *Pool) Inject(sessionID string, cmd session.Command) error {
	sess, ok := p.registry.Get(sessionID)
	if !ok {
		return simerr.ErrSessionNotFound
	}
	return sess.Enqueue(cmd)
}

// Broadcast forwards a command to every registered session (spec §4.5
// "Broadcast"). Sessions whose inbox is full are skipped (logged), not
// retried — broadcast is best-effort by design, matching the spec's
// "all send Heartbeat now" example where a missed tick self-corrects on
// the next one.
func (p *Pool) Broadcast(cmd session.Command) (delivered, skipped int) {
	p.registry.Each(func(id string, s *session.Session) {
		if err := s.Enqueue(cmd); err != nil {
			skipped++
			p.log.Warn().Str("session_id", id).Err(err).Msg("broadcast skipped busy session")
			return
		}
		delivered++
	})
	return delivered, skipped
}
