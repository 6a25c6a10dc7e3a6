// Package profile implements the Smart Charging Profile engine of spec
// §4.6: profile storage with stacking/eviction, active-window and
// time-origin evaluation for Absolute/Relative/Recurring schedules, A→W
// conversion, effective-limit selection, and composite-schedule
// computation. It is grounded on the ChargingProfile/ChargingSchedule data
// model already present in the gateway's ocpp16 message types — that
// model needed no redesign, only the behaviour around it, which the
// gateway never implemented (it only relays RemoteStartTransaction's
// embedded profile, it never evaluates one).
package profile

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/evse-sim/simulator/internal/ocpp"
)

// ConnectorConfig carries the electrical parameters needed for A<->W
// conversion (spec §3 ConnectorConfig).
type ConnectorConfig struct {
	Voltage float64
	Phases  int
}

// DefaultConnectorConfig matches the gateway's implicit assumption of a
// single-phase 230V connector when nothing else is configured.
func DefaultConnectorConfig() ConnectorConfig {
	return ConnectorConfig{Voltage: 230, Phases: 1}
}

// TransactionState answers the profile engine's questions about the
// transaction running on a connector, without the engine needing to know
// about session internals.
type TransactionState struct {
	Active        bool
	TransactionID int
	StartedAt     time.Time
}

// entry is a stored profile plus the bookkeeping the engine needs that
// isn't part of the wire payload.
type entry struct {
	profile   ocpp.ChargingProfile
	acceptedAt time.Time
}

// Store holds every profile for one session, partitioned by connector id,
// exactly as spec §3's "Profile store" describes. A Store belongs to
// exactly one session and is mutated only from that session's task, so it
// needs no locking for the steady-state case; the mutex exists only to let
// external inspection (Snapshot, the Redis mirror) read consistently
// without coordinating with the session task's goroutine.
type Store struct {
	mu         sync.RWMutex
	connectors map[int]map[int]entry // connectorId -> profileId -> entry
}

// NewStore returns an empty profile store.
func NewStore() *Store {
	return &Store{connectors: make(map[int]map[int]entry)}
}

// Accept implements spec §4.6 "Accepting a profile": validate, purpose
// check, stacking eviction, insert. now is the acceptance timestamp, used
// as the Absolute-kind origin when the profile carries no startSchedule.
func (s *Store) Accept(connectorID int, p ocpp.ChargingProfile, tx TransactionState, now time.Time) (ocpp.ChargingProfileStatus, error) {
	if err := ocpp.ValidateChargingProfile(p); err != nil {
		return ocpp.ChargingProfileRejected, err
	}

	if p.ChargingProfilePurpose == ocpp.PurposeTxProfile {
		if p.TransactionId != nil {
			if !tx.Active || tx.TransactionID != *p.TransactionId {
				return ocpp.ChargingProfileRejected, fmt.Errorf("txProfile references transaction %d which is not active on connector %d", *p.TransactionId, connectorID)
			}
		}
		// No transactionId: accepted provisionally, attachable on next
		// StartTransaction per spec §4.6 step 2.
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.connectors[connectorID]
	if !ok {
		byID = make(map[int]entry)
		s.connectors[connectorID] = byID
	}

	// Stacking: evict every existing profile of the same purpose whose
	// stack level is <= the new one's (spec §4.6 step 3, "superset
	// interpretation" open question resolved in DESIGN.md).
	for id, existing := range byID {
		if existing.profile.ChargingProfilePurpose == p.ChargingProfilePurpose && existing.profile.StackLevel <= p.StackLevel {
			delete(byID, id)
		}
	}

	byID[p.ChargingProfileId] = entry{profile: p, acceptedAt: now}
	return ocpp.ChargingProfileAccepted, nil
}

// Clear implements spec §4.6 "Clearing": every provided criterion must
// match for a profile to be removed; empty criteria clears everything.
func (s *Store) Clear(criteria ocpp.ClearChargingProfileCriteria) (removed []int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for connectorID, byID := range s.connectors {
		if criteria.ConnectorId != nil && *criteria.ConnectorId != connectorID {
			continue
		}
		for id, e := range byID {
			if !matches(e.profile, criteria) {
				continue
			}
			delete(byID, id)
			removed = append(removed, id)
		}
	}
	sort.Ints(removed)
	return removed
}

func matches(p ocpp.ChargingProfile, c ocpp.ClearChargingProfileCriteria) bool {
	if c.Id != nil && *c.Id != p.ChargingProfileId {
		return false
	}
	if c.ChargingProfilePurpose != nil && *c.ChargingProfilePurpose != p.ChargingProfilePurpose {
		return false
	}
	if c.StackLevel != nil && *c.StackLevel != p.StackLevel {
		return false
	}
	return true
}

// AttachTransaction links provisionally-accepted TxProfiles (those with no
// transactionId) on connectorID to a newly started transaction, per spec
// §4.6 step 2.
func (s *Store) AttachTransaction(connectorID, transactionID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.connectors[connectorID]
	if !ok {
		return
	}
	for id, e := range byID {
		if e.profile.ChargingProfilePurpose == ocpp.PurposeTxProfile && e.profile.TransactionId == nil {
			e.profile.TransactionId = &transactionID
			byID[id] = e
		}
	}
}

// DetachTransaction clears TxProfiles tied to a finished transaction (spec
// §3 Lifecycle: "profiles are ... destroyed by ... transaction end
// (TxProfile)").
func (s *Store) DetachTransaction(connectorID, transactionID int) (removed []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.connectors[connectorID]
	if !ok {
		return nil
	}
	for id, e := range byID {
		if e.profile.ChargingProfilePurpose == ocpp.PurposeTxProfile && e.profile.TransactionId != nil && *e.profile.TransactionId == transactionID {
			delete(byID, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Profiles returns a snapshot copy of every profile stored for connectorID.
func (s *Store) Profiles(connectorID int) []ocpp.ChargingProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := s.connectors[connectorID]
	out := make([]ocpp.ChargingProfile, 0, len(byID))
	for _, e := range byID {
		out = append(out, e.profile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChargingProfileId < out[j].ChargingProfileId })
	return out
}

// acceptedAt returns when profileID on connectorID was accepted, used as
// the Absolute-kind default origin.
func (s *Store) acceptedAt(connectorID, profileID int) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.connectors[connectorID][profileID]
	if !ok {
		return time.Time{}, false
	}
	return e.acceptedAt, true
}

// Sweep removes profiles whose validTo or Absolute start+duration has
// passed (spec §4.6 "Sweeper"). It returns the removed (connectorID,
// profileID) pairs so the caller can emit ProfileExpired events and
// recompute effective limits.
func (s *Store) Sweep(now time.Time) (removed []SweptProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for connectorID, byID := range s.connectors {
		for id, e := range byID {
			if isExpired(e.profile, e.acceptedAt, now) {
				delete(byID, id)
				removed = append(removed, SweptProfile{ConnectorID: connectorID, ProfileID: id})
			}
		}
	}
	return removed
}

// SweptProfile identifies a profile removed by Sweep.
type SweptProfile struct {
	ConnectorID int
	ProfileID   int
}

func isExpired(p ocpp.ChargingProfile, acceptedAt, now time.Time) bool {
	if p.ValidTo != nil && now.After(p.ValidTo.Time) {
		return true
	}
	if p.ChargingProfileKind == ocpp.KindAbsolute && p.ChargingSchedule.Duration != nil {
		origin := absoluteOrigin(p, acceptedAt)
		end := origin.Add(time.Duration(*p.ChargingSchedule.Duration) * time.Second)
		if now.After(end) {
			return true
		}
	}
	return false
}
