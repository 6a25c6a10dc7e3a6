package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/evse-sim/simulator/internal/clock"
	"github.com/evse-sim/simulator/internal/eventbus"
	"github.com/evse-sim/simulator/internal/logger"
	"github.com/evse-sim/simulator/internal/ocpp"
	"github.com/evse-sim/simulator/internal/profile"
	"github.com/evse-sim/simulator/internal/simerr"
)

// Command is one unit of work accepted on a session's inbox. All state
// mutation happens by the task goroutine executing a Command — this is the
// single-writer model of spec §4.4, replacing the gateway's per-field
// locking (internal/domain/connection types guarded connection state with
// sync.RWMutex at the struct level; here only the task goroutine ever
// touches Session's mutable fields).
type Command func(s *Session)

// DefaultInboxSize is the bounded inbox depth of spec §4.5 ("default
// 1024").
const DefaultInboxSize = 1024

// Config carries the per-session tunables of spec §3/§4.4.
type Config struct {
	ChargePointID        string
	CSMSURL              string
	SubProtocol          string // must be "ocpp1.6"
	HeartbeatInterval    time.Duration
	MeterValueInterval   time.Duration
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	InboxSize            int
	MaxPendingCalls      int
	CallDeadline         time.Duration
	TrustAllCerts        bool
	ConnectorConfig      profile.ConnectorConfig
	MaxPowerW            float64
	LogRingSize          int
	Vendor               string
	Model                string
}

// DefaultConfig fills in the spec's stated defaults.
func DefaultConfig(chargePointID, csmsURL string) Config {
	return Config{
		ChargePointID:        chargePointID,
		CSMSURL:              csmsURL,
		SubProtocol:          "ocpp1.6",
		HeartbeatInterval:    30 * time.Second,
		MeterValueInterval:   60 * time.Second,
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   2 * time.Second,
		ReconnectMaxDelay:    60 * time.Second,
		InboxSize:            DefaultInboxSize,
		MaxPendingCalls:      DefaultMaxPending,
		CallDeadline:         30 * time.Second,
		TrustAllCerts:        false,
		ConnectorConfig:      profile.DefaultConnectorConfig(),
		MaxPowerW:            22000,
		LogRingSize:          DefaultLogRingSize,
		Vendor:               "EVSE-Sim",
		Model:                "Simulator",
	}
}

// Snapshot is the immutable view returned by the Snapshot command, spec
// §3/§4.4 — the only way external code observes session state.
type Snapshot struct {
	ID                string
	ChargePointID     string
	State             State
	TransactionID     *int
	IdTag             string
	MeterValueWh      int
	HeartbeatInterval time.Duration
	LastConnected     time.Time
	EffectiveLimit    profile.EffectiveLimit
	PendingCalls      int
	ReconnectAttempts int
	RecentLog         []LogEntry
}

// Session is one simulated charge point: one socket, one state machine,
// one outbox (spec §2's "Session" leaf). Every field below is mutated only
// by the task goroutine started in Run; external goroutines interact
// exclusively through Enqueue.
type Session struct {
	id     string
	cfg    Config
	clk    clock.Clock
	dialer Dialer
	bus    *eventbus.Bus
	log    zerolog.Logger

	handlers HandlerRegistry
	pending  *PendingRegistry
	profiles *profile.Store

	inbox chan Command

	// mutable only inside the task goroutine (started by Run):
	conn              socket
	connGen           uint64 // bumped every (re)connect, tags readPump goroutines so a stale pump's frames are ignored after reconnect
	state             State
	transactionID     *int
	txStartedAt       time.Time
	idTag             string
	meterValueWh      int
	connectorID       int
	configKV          map[string]string
	closing           bool
	reconnectAttempts int
	msgSeq            uint64
	logs              *logRing
	lastConnected     time.Time
	availability      string

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a session in state DISCONNECTED. It does not connect;
// callers Enqueue an Open command (or call Open) to do so.
func New(id string, cfg Config, clk clock.Clock, dialer Dialer, handlers HandlerRegistry, bus *eventbus.Bus, log zerolog.Logger) *Session {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}
	return &Session{
		id:          id,
		cfg:         cfg,
		clk:         clk,
		dialer:      dialer,
		bus:         bus,
		log:         logger.WithSession(log, id, cfg.ChargePointID),
		handlers:    handlers,
		pending:     NewPendingRegistry(clk, cfg.MaxPendingCalls),
		profiles:    profile.NewStore(),
		inbox:       make(chan Command, cfg.InboxSize),
		state:       StateDisconnected,
		connectorID: 1,
		availability: "Operative",
		configKV: map[string]string{
			"HeartbeatInterval":        fmt.Sprintf("%d", int(cfg.HeartbeatInterval.Seconds())),
			"MeterValueSampleInterval": fmt.Sprintf("%d", int(cfg.MeterValueInterval.Seconds())),
		},
		logs: newLogRing(cfg.LogRingSize),
		done: make(chan struct{}),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// Run starts the single-writer task loop. It returns when ctx is
// cancelled or the inbox is closed.
func (s *Session) Run(ctx context.Context) {
	taskCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer close(s.done)
	defer s.closeSocketLocked()

	heartbeatTicker := s.clk.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeatTicker.Stop()
	meterTicker := s.clk.NewTicker(s.cfg.MeterValueInterval)
	defer meterTicker.Stop()
	pendingSweepTicker := s.clk.NewTicker(1 * time.Second)
	defer pendingSweepTicker.Stop()

	for {
		select {
		case <-taskCtx.Done():
			s.pending.CancelAll()
			return
		case cmd, ok := <-s.inbox:
			if !ok {
				s.pending.CancelAll()
				return
			}
			cmd(s)
		case <-heartbeatTicker.C():
			s.onHeartbeatTick()
		case <-meterTicker.C():
			s.onMeterTick()
		case <-pendingSweepTicker.C():
			s.pending.SweepExpired(s.clk.Now())
		}
	}
}

// Stop cancels the task loop without running the cooperative close
// sequence; callers wanting spec §5 "Cancellation" semantics should
// Enqueue a Close command first and give it time to drain.
func (s *Session) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Done is closed once the task loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Enqueue is the external-facing, non-blocking send used by every command
// originating outside the session's own task (pool control API, HTTP/Kafka
// bridge). A full inbox yields Busy rather than blocking the caller or
// silently dropping the command (spec §4.5 "Backpressure").
func (s *Session) Enqueue(cmd Command) error {
	select {
	case s.inbox <- cmd:
		return nil
	default:
		return simerr.ErrBusy
	}
}

// enqueueInternal is used by the task's own background producers (the
// socket read pump) where dropping a frame silently would violate spec
// §5's ordering guarantees; it blocks until the task can accept it or the
// session is stopped.
func (s *Session) enqueueInternal(cmd Command) {
	select {
	case s.inbox <- cmd:
	case <-s.done:
	}
}

func (s *Session) nextMessageID() string {
	n := atomic.AddUint64(&s.msgSeq, 1)
	return fmt.Sprintf("%s-%d-%s", s.id, n, uuid.NewString()[:8])
}

func (s *Session) logLine(level, msg string) {
	s.logs.append(LogEntry{At: s.clk.Now(), Level: level, Message: msg})
}

func (s *Session) publish(topic eventbus.Topic, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Topic: topic, SessionID: s.id, Payload: payload})
}

func (s *Session) setState(next State) {
	prev := s.state
	s.state = next
	if prev != next {
		s.logLine("info", fmt.Sprintf("state %s -> %s", prev, next))
		s.publish(eventbus.TopicSessionEvent, SessionStateChanged{SessionID: s.id, From: prev, To: next})
	}
}

// SessionStateChanged is the sessionEvent topic payload for state
// transitions.
type SessionStateChanged struct {
	SessionID string
	From      State
	To        State
}

// FrameEvent is the frameIn/frameOut topic payload (spec §4.7).
type FrameEvent struct {
	SessionID string
	Raw       []byte
}

// ProfileExpired is the sessionEvent topic payload published when the
// profile-engine sweeper removes a profile whose validTo or Absolute
// start+duration has passed (spec §4.6 "Sweeper").
type ProfileExpired struct {
	SessionID   string
	ConnectorID int
	ProfileID   int
}

// SweepCommand returns a Command that removes expired profiles from a
// session's profile store and publishes ProfileExpired for each one
// removed, as of now. It is built once per sweep pass and fanned out to
// every session through Enqueue, so sweeping 25,000 sessions costs one
// registry walk rather than 25,000 synchronous round trips.
func SweepCommand(now time.Time) Command {
	return func(s *Session) {
		for _, swept := range s.profiles.Sweep(now) {
			s.publish(eventbus.TopicSessionEvent, ProfileExpired{
				SessionID:   s.id,
				ConnectorID: swept.ConnectorID,
				ProfileID:   swept.ProfileID,
			})
		}
	}
}

// Snapshot returns an immutable copy of session state via a synchronous
// round-trip through the task (spec §4.4 "Snapshot -> immutable copy").
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	replyCh := make(chan Snapshot, 1)
	err := s.Enqueue(func(s *Session) {
		replyCh <- s.snapshotLocked()
	})
	if err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-replyCh:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (s *Session) snapshotLocked() Snapshot {
	eff := s.profiles.Effective(s.connectorID, s.txState(), s.clk.Now(), s.cfg.ConnectorConfig, s.cfg.MaxPowerW)
	return Snapshot{
		ID:                s.id,
		ChargePointID:     s.cfg.ChargePointID,
		State:             s.state,
		TransactionID:     s.transactionID,
		IdTag:             s.idTag,
		MeterValueWh:      s.meterValueWh,
		HeartbeatInterval: s.cfg.HeartbeatInterval,
		LastConnected:     s.lastConnected,
		EffectiveLimit:    eff,
		PendingCalls:      s.pending.Len(),
		ReconnectAttempts: s.reconnectAttempts,
		RecentLog:         s.logs.snapshot(),
	}
}

func (s *Session) txState() profile.TransactionState {
	if s.transactionID == nil {
		return profile.TransactionState{}
	}
	return profile.TransactionState{Active: true, TransactionID: *s.transactionID, StartedAt: s.txStartedAt}
}

// Open enqueues a connect attempt. Safe to call whether or not a prior
// attempt is in flight; once CONNECTED it is a no-op.
func (s *Session) Open() error {
	return s.Enqueue(func(s *Session) { s.connect() })
}

// Close enqueues a graceful shutdown: marks the session as intentionally
// closing, cancels in-flight pending calls, and tears the socket down
// without triggering the reconnect policy (spec §4.4 "Close").
func (s *Session) Close() error {
	return s.Enqueue(func(s *Session) {
		s.closing = true
		s.pending.CancelAll()
		s.closeSocketLocked()
		s.setState(StateDisconnected)
	})
}

// connect runs synchronously on the task goroutine: it dials, performs the
// BootNotification handshake, and starts a read pump goroutine that feeds
// frames back onto the inbox. Failure schedules a reconnect per spec
// §4.4's policy (delay = base * attempt, capped, up to MaxReconnectAttempts).
func (s *Session) connect() {
	if s.closing || s.conn != nil {
		return
	}
	s.setState(StateConnecting)
	conn, err := s.dialer.Dial(s.cfg.CSMSURL, s.cfg.SubProtocol, s.cfg.TrustAllCerts)
	if err != nil {
		s.logLine("warn", fmt.Sprintf("dial failed: %v", err))
		s.scheduleReconnect()
		return
	}
	s.conn = conn
	s.connGen++
	gen := s.connGen
	s.lastConnected = s.clk.Now()
	s.reconnectAttempts = 0
	s.setState(StateConnected)
	go s.readPump(conn, gen)
	s.sendBootNotification()
}

func (s *Session) scheduleReconnect() {
	s.setState(StateDisconnected)
	if s.closing {
		return
	}
	if s.reconnectAttempts >= s.cfg.MaxReconnectAttempts {
		s.logLine("error", "exhausted reconnect attempts")
		s.setState(StateFaulted)
		return
	}
	s.reconnectAttempts++
	delay := time.Duration(s.reconnectAttempts) * s.cfg.ReconnectBaseDelay
	if delay > s.cfg.ReconnectMaxDelay {
		delay = s.cfg.ReconnectMaxDelay
	}
	attempt := s.reconnectAttempts
	go func() {
		select {
		case <-s.clk.After(delay):
			s.enqueueInternal(func(s *Session) {
				s.logLine("info", fmt.Sprintf("reconnect attempt %d", attempt))
				s.connect()
			})
		case <-s.done:
		}
	}()
}

func (s *Session) closeSocketLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// readPump runs off-task; it owns no session state directly and instead
// posts closures onto the inbox for every frame or socket error, keeping
// all mutation on the single task goroutine (spec §4.4's single-writer
// invariant). gen lets a stale pump from a superseded connection detect
// that it has been replaced and exit quietly.
func (s *Session) readPump(conn socket, gen uint64) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.enqueueInternal(func(s *Session) {
				if s.connGen != gen {
					return // superseded by a later connect; not our socket anymore
				}
				s.logLine("warn", fmt.Sprintf("socket read error: %v", err))
				s.closeSocketLocked()
				s.scheduleReconnect()
			})
			return
		}
		frame := append([]byte(nil), raw...)
		s.enqueueInternal(func(s *Session) {
			if s.connGen != gen {
				return
			}
			s.onFrame(frame)
		})
	}
}

// onFrame decodes and routes one inbound frame. Decode failures are
// dropped with a logged warning rather than tearing the session down
// (spec §7 "FramingError ... session continues").
func (s *Session) onFrame(raw []byte) {
	s.publish(eventbus.TopicFrameIn, FrameEvent{SessionID: s.id, Raw: raw})
	frame, err := ocpp.Decode(raw)
	if err != nil {
		s.logLine("warn", fmt.Sprintf("frame decode failed: %v", err))
		return
	}
	switch frame.Type {
	case ocpp.Call:
		s.handleInboundCall(frame)
	case ocpp.CallResult:
		if !s.pending.Resolve(frame.MessageID, frame.Payload) {
			s.logLine("warn", fmt.Sprintf("CALLRESULT for unknown message id %s", frame.MessageID))
		}
	case ocpp.CallError:
		err := fmt.Errorf("%s: %s", frame.ErrorCode, frame.ErrorDescription)
		if !s.pending.Reject(frame.MessageID, err) {
			s.logLine("warn", fmt.Sprintf("CALLERROR for unknown message id %s", frame.MessageID))
		}
	}
}

// handleInboundCall dispatches a CSMS-originated CALL through the handler
// registry, recovering from handler panics into a synthesized CALLERROR
// (spec §7 "InternalError ... handler panic").
func (s *Session) handleInboundCall(frame ocpp.Frame) {
	h, ok := s.handlers[frame.Action]
	if !ok {
		s.writeCallError(frame.MessageID, "NotImplemented", fmt.Sprintf("unknown action %q", frame.Action))
		return
	}
	payload, err := h.Validate(frame.Payload)
	if err != nil {
		s.writeCallError(frame.MessageID, "FormationViolation", err.Error())
		return
	}
	result, err := s.safeHandle(h, payload)
	if err != nil {
		s.writeCallError(frame.MessageID, "InternalError", err.Error())
		return
	}
	s.writeCallResult(frame.MessageID, result)
}

func (s *Session) safeHandle(h Handler, payload interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panic: %v", simerr.ErrInternal, r)
		}
	}()
	return h.Handle(s, payload)
}

func (s *Session) writeCallResult(messageID string, payload interface{}) {
	raw, err := ocpp.EncodeCallResult(messageID, payload)
	if err != nil {
		s.logLine("error", fmt.Sprintf("encode CALLRESULT failed: %v", err))
		return
	}
	s.writeRaw(raw)
}

func (s *Session) writeCallError(messageID, code, description string) {
	raw, err := ocpp.EncodeCallError(messageID, code, description, nil)
	if err != nil {
		s.logLine("error", fmt.Sprintf("encode CALLERROR failed: %v", err))
		return
	}
	s.writeRaw(raw)
}

func (s *Session) writeRaw(raw []byte) {
	if s.conn == nil {
		s.logLine("warn", "dropped outbound frame: no connection")
		return
	}
	if err := s.conn.SetWriteDeadline(s.clk.Now().Add(5 * time.Second)); err != nil {
		s.logLine("warn", fmt.Sprintf("set write deadline failed: %v", err))
	}
	if err := s.conn.WriteMessage(1, raw); err != nil { // 1 == websocket.TextMessage
		s.logLine("warn", fmt.Sprintf("write failed: %v", err))
		s.closeSocketLocked()
		s.scheduleReconnect()
		return
	}
	s.publish(eventbus.TopicFrameOut, FrameEvent{SessionID: s.id, Raw: raw})
}

// sendCallAsync frames and writes a CALL, registers it in the pending
// registry, and invokes onResult on the task goroutine once the CALLRESULT
// or CALLERROR (or timeout) arrives — the mechanism by which a handler like
// handleRemoteStartTransaction can kick off an outbound StartTransaction
// without blocking (spec §4.4 "Session command model").
func (s *Session) sendCallAsync(action ocpp.Action, payload interface{}, onResult func(s *Session, raw []byte, err error)) error {
	if err := ocpp.ValidatePayload(payload); err != nil {
		return err
	}
	messageID := s.nextMessageID()
	waiter, err := s.pending.Register(messageID, action, s.clk.Now().Add(s.cfg.CallDeadline))
	if err != nil {
		return err
	}
	raw, err := ocpp.EncodeCall(messageID, action, payload)
	if err != nil {
		return err
	}
	s.writeRaw(raw)
	go func() {
		result, werr := waiter.Await()
		s.enqueueInternal(func(s *Session) { onResult(s, result, werr) })
	}()
	return nil
}

func (s *Session) onHeartbeatTick() {
	if s.state != StateBooted {
		return
	}
	req := ocpp.HeartbeatRequest{}
	_ = s.sendCallAsync(ocpp.ActionHeartbeat, req, func(s *Session, raw []byte, err error) {
		if err != nil {
			s.logLine("warn", fmt.Sprintf("Heartbeat failed: %v", err))
		}
	})
}

func (s *Session) onMeterTick() {
	if s.transactionID == nil || !s.state.HasTransaction() {
		return
	}
	s.meterValueWh += s.currentDrawWh()
	measurand := ocpp.MeasurandEnergyActiveImportRegister
	unit := ocpp.UnitWh
	mv := ocpp.MeterValuesRequest{
		ConnectorId:   s.connectorID,
		TransactionId: s.transactionID,
		MeterValue: []ocpp.MeterValue{{
			Timestamp: ocpp.NewDateTime(s.clk.Now()),
			SampledValue: []ocpp.SampledValue{{
				Value:     fmt.Sprintf("%d", s.meterValueWh),
				Measurand: &measurand,
				Unit:      &unit,
			}},
		}},
	}
	_ = s.sendCallAsync(ocpp.ActionMeterValues, mv, func(s *Session, raw []byte, err error) {
		if err != nil {
			s.logLine("warn", fmt.Sprintf("MeterValues failed: %v", err))
		}
	})
}

// currentDrawWh estimates energy delivered since the last tick from the
// profile-engine effective limit, in watt-hours for one MeterValueInterval.
func (s *Session) currentDrawWh() int {
	eff := s.profiles.Effective(s.connectorID, s.txState(), s.clk.Now(), s.cfg.ConnectorConfig, s.cfg.MaxPowerW)
	hours := s.cfg.MeterValueInterval.Hours()
	return int(eff.LimitW * hours)
}

func (s *Session) sendBootNotification() {
	req := ocpp.BootNotificationRequest{
		ChargePointVendor: s.cfg.Vendor,
		ChargePointModel:  s.cfg.Model,
	}
	err := s.sendCallAsync(ocpp.ActionBootNotification, req, func(s *Session, raw []byte, err error) {
		if err != nil {
			s.logLine("warn", fmt.Sprintf("BootNotification failed: %v", err))
			s.closeSocketLocked()
			s.scheduleReconnect()
			return
		}
		var resp ocpp.BootNotificationResponse
		if decodeErr := ocpp.DecodePayload(raw, &resp); decodeErr != nil {
			s.logLine("warn", fmt.Sprintf("BootNotification response decode failed: %v", decodeErr))
			return
		}
		if resp.Status != ocpp.RegistrationAccepted {
			s.logLine("warn", fmt.Sprintf("BootNotification status %s", resp.Status))
			s.closeSocketLocked()
			s.scheduleReconnect()
			return
		}
		s.setState(StateBooted)
		s.sendStatusNotification(ocpp.StatusAvailable)
	})
	if err != nil {
		s.logLine("error", fmt.Sprintf("could not send BootNotification: %v", err))
		s.scheduleReconnect()
	}
}

// SendCall is the synchronous, external-facing counterpart to
// sendCallAsync, exposed for the Core control API's SendCall operation
// (spec §6): it enqueues the send on the task goroutine and blocks the
// caller — not the session — until the CALLRESULT payload, a CALLERROR, or
// ctx's deadline arrives.
func (s *Session) SendCall(ctx context.Context, action ocpp.Action, payload interface{}) (json.RawMessage, error) {
	type outcome struct {
		raw json.RawMessage
		err error
	}
	replyCh := make(chan outcome, 1)
	err := s.Enqueue(func(s *Session) {
		sendErr := s.sendCallAsync(action, payload, func(s *Session, raw []byte, err error) {
			replyCh <- outcome{raw: append(json.RawMessage(nil), raw...), err: err}
		})
		if sendErr != nil {
			replyCh <- outcome{err: sendErr}
		}
	})
	if err != nil {
		return nil, err
	}
	select {
	case out := <-replyCh:
		return out.raw, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetProfile is the synchronous counterpart to the SetChargingProfile
// handler, exposed for the Core control API's SetProfile operation.
func (s *Session) SetProfile(ctx context.Context, connectorID int, p ocpp.ChargingProfile) (ocpp.ChargingProfileStatus, error) {
	type outcome struct {
		status ocpp.ChargingProfileStatus
		err    error
	}
	replyCh := make(chan outcome, 1)
	err := s.Enqueue(func(s *Session) {
		status, acceptErr := s.profiles.Accept(connectorID, p, s.txState(), s.clk.Now())
		replyCh <- outcome{status: status, err: acceptErr}
	})
	if err != nil {
		return "", err
	}
	select {
	case out := <-replyCh:
		return out.status, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ClearProfile is the synchronous counterpart to the ClearChargingProfile
// handler, exposed for the Core control API's ClearProfile operation.
func (s *Session) ClearProfile(ctx context.Context, criteria ocpp.ClearChargingProfileCriteria) ([]int, error) {
	replyCh := make(chan []int, 1)
	err := s.Enqueue(func(s *Session) {
		replyCh <- s.profiles.Clear(criteria)
	})
	if err != nil {
		return nil, err
	}
	select {
	case removed := <-replyCh:
		return removed, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetCompositeSchedule is the synchronous counterpart to the
// GetCompositeSchedule handler, exposed for the Core control API operation
// of the same name.
func (s *Session) GetCompositeSchedule(ctx context.Context, connectorID, durationSeconds int, rateUnit ocpp.ChargingRateUnit) (ocpp.ChargingSchedule, error) {
	replyCh := make(chan ocpp.ChargingSchedule, 1)
	err := s.Enqueue(func(s *Session) {
		sched := s.profiles.CompositeSchedule(connectorID, durationSeconds, rateUnit, s.txState(), s.clk.Now(), s.cfg.ConnectorConfig, s.cfg.MaxPowerW)
		replyCh <- sched
	})
	if err != nil {
		return ocpp.ChargingSchedule{}, err
	}
	select {
	case sched := <-replyCh:
		return sched, nil
	case <-ctx.Done():
		return ocpp.ChargingSchedule{}, ctx.Err()
	}
}

func (s *Session) sendStatusNotification(status ocpp.ChargePointStatus) {
	ts := ocpp.NewDateTime(s.clk.Now())
	req := ocpp.StatusNotificationRequest{
		ConnectorId: s.connectorID,
		ErrorCode:   ocpp.ErrorCodeNoError,
		Status:      status,
		Timestamp:   &ts,
	}
	_ = s.sendCallAsync(ocpp.ActionStatusNotification, req, func(s *Session, raw []byte, err error) {
		if err != nil {
			s.logLine("warn", fmt.Sprintf("StatusNotification failed: %v", err))
		}
	})
}
