package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chypac/olimpiafa/internal/domain"
)

const progressKeyPrefix = "quiz:progress:"

// SnapshotMirror is the remote, write-only copy of session progress: an
// upsert keyed by participant so operators can recover a session after
// device loss. Resume never reads it; the local store stays authoritative.
type SnapshotMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotMirror(client *redis.Client, ttl time.Duration) *SnapshotMirror {
	return &SnapshotMirror{client: client, ttl: ttl}
}

func (m *SnapshotMirror) Upsert(ctx context.Context, snapshot domain.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := m.client.Set(ctx, progressKeyPrefix+snapshot.ParticipantID, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("mirror snapshot: %w", err)
	}
	return nil
}
