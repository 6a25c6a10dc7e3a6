package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/evse-sim/simulator/internal/pool"
	"github.com/evse-sim/simulator/internal/session"
)

// SnapshotMirror writes sessionId -> SessionSnapshot JSON into Redis with a
// TTL, purely as an external inspection aid for dashboards and TNR
// comparison tooling (spec §6 "External collaborators may serialise
// session snapshots ... using the data model of §3"). It is write-only:
// the core never reads it back, so it never becomes a second source of
// truth. Grounded on the gateway's internal/storage.RedisStorage, whose
// SetConnection/DeleteConnection pair mapped chargePointID to an owning
// pod; this mirror maps sessionID to a point-in-time snapshot instead.
type SnapshotMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewSnapshotMirror dials addr and verifies connectivity with a bounded
// ping, exactly as the gateway's NewRedisStorage did.
func NewSnapshotMirror(addr, password string, db int, ttl time.Duration, log zerolog.Logger) (*SnapshotMirror, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("control: failed to connect to Redis at %s: %w", addr, err)
	}
	return &SnapshotMirror{client: client, prefix: "sim:snapshot:", ttl: ttl, log: log}, nil
}

// Mirror writes one session's snapshot. Failures are logged, not returned,
// since a dropped mirror write must never affect session behavior.
func (m *SnapshotMirror) Mirror(ctx context.Context, snap session.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		m.log.Warn().Err(err).Str("session_id", snap.ID).Msg("failed to marshal snapshot for Redis mirror")
		return
	}
	key := m.prefix + snap.ID
	if err := m.client.Set(ctx, key, data, m.ttl).Err(); err != nil {
		m.log.Warn().Err(err).Str("session_id", snap.ID).Msg("failed to write snapshot to Redis")
	}
}

// Forget removes a session's mirrored snapshot before its TTL expires.
func (m *SnapshotMirror) Forget(ctx context.Context, sessionID string) {
	if err := m.client.Del(ctx, m.prefix+sessionID).Err(); err != nil {
		m.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to delete mirrored snapshot")
	}
}

// Close releases the Redis connection.
func (m *SnapshotMirror) Close() error {
	return m.client.Close()
}

// MirrorAll walks every session in registry and writes its snapshot, for
// periodic sync rather than reacting to each session event individually.
func (m *SnapshotMirror) MirrorAll(ctx context.Context, registry *pool.Registry) {
	registry.Each(func(id string, s *session.Session) {
		snap, err := s.Snapshot(ctx)
		if err != nil {
			return
		}
		m.Mirror(ctx, snap)
	})
}
