// Package session implements the OCPP session runtime of spec §4.2-§4.5:
// the pending-call registry, the action handler registry, and the
// single-writer session task that owns one WebSocket and one state
// machine. It is grounded on the gateway's internal/protocol/ocpp16
// processor (pending-request tracking with a cleanup sweep) and
// internal/transport/websocket manager (single-writer-via-channel
// connection handling), inverted from the gateway's CSMS-receiving
// direction to a charge-point-dialing-out direction.
package session

import (
	"sync"
	"time"

	"github.com/evse-sim/simulator/internal/clock"
	"github.com/evse-sim/simulator/internal/ocpp"
	"github.com/evse-sim/simulator/internal/simerr"
)

// DefaultMaxPending is the registry ceiling of spec §4.2 ("default 256 per
// session").
const DefaultMaxPending = 256

// Waiter is delivered exactly once: either the CALLRESULT payload, a
// CALLERROR translated to an error, or a CallTimeout/Cancelled error.
type Waiter struct {
	Action  ocpp.Action
	Payload chan pendingResult
}

type pendingResult struct {
	payload []byte
	err     error
}

// Await blocks until the waiter is resolved.
func (w *Waiter) Await() ([]byte, error) {
	r := <-w.Payload
	return r.payload, r.err
}

type pendingEntry struct {
	action   ocpp.Action
	deadline time.Time
	waiter   *Waiter
}

// PendingRegistry is the per-session mapping of outbound CALL id to waiter
// (spec §4.2). It is owned exclusively by one session task; the mutex
// exists so a background deadline sweep (running on the same task's timer,
// not a separate goroutine touching shared memory) and Await() calls from
// other goroutines awaiting the Waiter's channel don't race on the map
// itself.
type PendingRegistry struct {
	mu      sync.Mutex
	entries map[string]pendingEntry
	maxSize int
	clk     clock.Clock
}

// NewPendingRegistry returns an empty registry. maxSize <= 0 selects
// DefaultMaxPending.
func NewPendingRegistry(clk clock.Clock, maxSize int) *PendingRegistry {
	if maxSize <= 0 {
		maxSize = DefaultMaxPending
	}
	return &PendingRegistry{entries: make(map[string]pendingEntry), maxSize: maxSize, clk: clk}
}

// Register stores a new pending CALL awaiting its CALLRESULT/CALLERROR.
// It fails with TooManyPending if the registry is at capacity, or
// DuplicateMessageID if the id is already pending.
func (r *PendingRegistry) Register(messageID string, action ocpp.Action, deadline time.Time) (*Waiter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[messageID]; exists {
		return nil, simerr.ErrDuplicateMessageID
	}
	if len(r.entries) >= r.maxSize {
		return nil, simerr.ErrTooManyPending
	}

	w := &Waiter{Action: action, Payload: make(chan pendingResult, 1)}
	r.entries[messageID] = pendingEntry{action: action, deadline: deadline, waiter: w}
	return w, nil
}

// Resolve delivers a CALLRESULT payload to the waiter registered under
// messageID, if any. It returns false if no such pending entry exists
// (e.g. a stray or duplicate response).
func (r *PendingRegistry) Resolve(messageID string, payload []byte) bool {
	r.mu.Lock()
	e, ok := r.entries[messageID]
	if ok {
		delete(r.entries, messageID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.waiter.Payload <- pendingResult{payload: payload}
	return true
}

// Reject delivers err to the waiter registered under messageID (used for
// CALLERROR responses).
func (r *PendingRegistry) Reject(messageID string, err error) bool {
	r.mu.Lock()
	e, ok := r.entries[messageID]
	if ok {
		delete(r.entries, messageID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.waiter.Payload <- pendingResult{err: err}
	return true
}

// SweepExpired resolves every entry whose deadline has passed with
// CallTimeout and returns how many were swept (spec §4.2 "background timer
// cancels entries past their deadline").
func (r *PendingRegistry) SweepExpired(now time.Time) int {
	r.mu.Lock()
	var expired []pendingEntry
	for id, e := range r.entries {
		if now.After(e.deadline) {
			expired = append(expired, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range expired {
		e.waiter.Payload <- pendingResult{err: simerr.ErrCallTimeout}
	}
	return len(expired)
}

// CancelAll fails every still-pending entry with Cancelled (used during
// session close, spec §5 "Cancellation").
func (r *PendingRegistry) CancelAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]pendingEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.waiter.Payload <- pendingResult{err: simerr.ErrCancelled}
	}
}

// Len reports the number of pending entries, for metrics and tests.
func (r *PendingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
