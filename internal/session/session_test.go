package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/evse-sim/simulator/internal/clock"
	"github.com/evse-sim/simulator/internal/eventbus"
	"github.com/evse-sim/simulator/internal/ocpp"
	"github.com/evse-sim/simulator/internal/simerr"
)

// fakeSocket is an in-memory socket.Dial target: frames written by the
// session land on outFrames, and a test drives inbound frames onto
// inFrames to simulate CSMS traffic, mirroring the other_examples
// reference charger's habit of pairing a real dial with a scriptable
// in-memory transport in tests.
type fakeSocket struct {
	mu        sync.Mutex
	outFrames chan []byte
	inFrames  chan []byte
	closed    bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{outFrames: make(chan []byte, 32), inFrames: make(chan []byte, 32)}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	b, ok := <-f.inFrames
	if !ok {
		return 0, nil, errClosed
	}
	return 1, b, nil
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed
	}
	cp := append([]byte(nil), data...)
	select {
	case f.outFrames <- cp:
	default:
	}
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inFrames)
	}
	return nil
}

func (f *fakeSocket) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

const errClosed = simpleErr("fake socket closed")

type fakeDialer struct {
	sock *fakeSocket
	err  error
}

func (d *fakeDialer) Dial(url, subProtocol string, trustAllCerts bool) (socket, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.sock, nil
}

func newTestSession(t *testing.T, sock *fakeSocket) (*Session, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := DefaultConfig("CP-1", "ws://csms.example/ocpp/CP-1")
	cfg.InboxSize = 64
	bus := eventbus.New(16)
	s := New("sess-1", cfg, clk, &fakeDialer{sock: sock}, DefaultHandlers(), bus, zerolog.Nop())
	return s, clk
}

// readOutbound waits for the next frame written by the session and decodes
// it, failing the test if none arrives in time.
func readOutbound(t *testing.T, sock *fakeSocket) ocpp.Frame {
	t.Helper()
	select {
	case raw := <-sock.outFrames:
		f, err := ocpp.Decode(raw)
		require.NoError(t, err)
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return ocpp.Frame{}
	}
}

func TestBootNotificationAcceptedTransitionsToBooted(t *testing.T) {
	sock := newFakeSocket()
	s, _ := newTestSession(t, sock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	require.NoError(t, s.Open())

	bootFrame := readOutbound(t, sock)
	require.Equal(t, ocpp.ActionBootNotification, bootFrame.Action)

	respRaw, err := ocpp.EncodeCallResult(bootFrame.MessageID, ocpp.BootNotificationResponse{
		Status:      ocpp.RegistrationAccepted,
		CurrentTime: ocpp.NewDateTime(time.Now()),
		Interval:    30,
	})
	require.NoError(t, err)
	sock.inFrames <- respRaw

	statusFrame := readOutbound(t, sock)
	require.Equal(t, ocpp.ActionStatusNotification, statusFrame.Action)

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateBooted, snap.State)
}

func TestRemoteStartTransactionFlow(t *testing.T) {
	sock := newFakeSocket()
	s, _ := newTestSession(t, sock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	require.NoError(t, s.Open())

	boot := readOutbound(t, sock)
	bootResp, _ := ocpp.EncodeCallResult(boot.MessageID, ocpp.BootNotificationResponse{
		Status: ocpp.RegistrationAccepted, CurrentTime: ocpp.NewDateTime(time.Now()), Interval: 30,
	})
	sock.inFrames <- bootResp
	readOutbound(t, sock) // initial StatusNotification(Available)

	remoteStart := ocpp.RemoteStartTransactionRequest{IdTag: "TAG1"}
	payload, _ := json.Marshal(remoteStart)
	callRaw, _ := ocpp.EncodeCall("csms-1", ocpp.ActionRemoteStartTransaction, json.RawMessage(payload))
	sock.inFrames <- callRaw

	callResultFrame := readOutbound(t, sock)
	require.Equal(t, ocpp.MessageType(ocpp.CallResult), callResultFrame.Type)

	startTxFrame := readOutbound(t, sock)
	require.Equal(t, ocpp.ActionStartTransaction, startTxFrame.Action)

	startResp, _ := ocpp.EncodeCallResult(startTxFrame.MessageID, ocpp.StartTransactionResponse{
		IdTagInfo:     ocpp.IdTagInfo{Status: ocpp.AuthorizationAccepted},
		TransactionId: 42,
	})
	sock.inFrames <- startResp

	readOutbound(t, sock) // StatusNotification(Charging)

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateCharging, snap.State)
	require.NotNil(t, snap.TransactionID)
	require.Equal(t, 42, *snap.TransactionID)
}

func TestEnqueueReturnsBusyWhenInboxFull(t *testing.T) {
	sock := newFakeSocket()
	s, _ := newTestSession(t, sock)
	s.cfg.InboxSize = 1
	s.inbox = make(chan Command, 1)

	// Fill the inbox without a running task loop to drain it.
	require.NoError(t, s.Enqueue(func(s *Session) {}))
	err := s.Enqueue(func(s *Session) {})
	require.ErrorIs(t, err, simerr.ErrBusy)
}
