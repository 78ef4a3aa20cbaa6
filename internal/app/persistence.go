package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/chypac/olimpiafa/internal/domain"
)

// DefaultStalenessHorizon is how long a snapshot stays resumable.
const DefaultStalenessHorizon = 24 * time.Hour

const mirrorTimeout = 5 * time.Second

// LocalStore is the synchronous resume source of truth. A malformed record
// reads back as absent (nil, nil), never as an error surfaced to the caller.
type LocalStore interface {
	Write(snapshot domain.Snapshot) error
	Read() (*domain.Snapshot, error)
	Delete() error
}

// Mirror receives a best-effort copy of every snapshot, keyed by participant.
// It is write-only in this design: restore never consults it.
type Mirror interface {
	Upsert(ctx context.Context, snapshot domain.Snapshot) error
}

// Persistence pairs the local store with an optional remote mirror. Saves
// never fail the caller-visible flow: a local write error is logged, and the
// mirror write runs asynchronously with its failures swallowed. Each save
// carries the full snapshot, so out-of-order mirror completion is harmless.
type Persistence struct {
	local   LocalStore
	mirror  Mirror
	horizon time.Duration
	clock   clockwork.Clock
	log     zerolog.Logger
}

func NewPersistence(local LocalStore, mirror Mirror, horizon time.Duration, clock clockwork.Clock, log zerolog.Logger) *Persistence {
	if horizon <= 0 {
		horizon = DefaultStalenessHorizon
	}
	return &Persistence{local: local, mirror: mirror, horizon: horizon, clock: clock, log: log}
}

func (p *Persistence) Save(snapshot domain.Snapshot) {
	if err := p.local.Write(snapshot); err != nil {
		p.log.Error().Err(err).Str("participant_id", snapshot.ParticipantID).Msg("local snapshot write failed")
	}
	if p.mirror == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := p.mirror.Upsert(ctx, snapshot); err != nil {
			p.log.Warn().Err(err).Str("participant_id", snapshot.ParticipantID).Msg("snapshot mirror write failed")
		}
	}()
}

// Restore returns the local snapshot, or nil when it is absent, malformed,
// missing a participant identifier, or older than the staleness horizon.
func (p *Persistence) Restore() *domain.Snapshot {
	snap, err := p.local.Read()
	if err != nil {
		p.log.Warn().Err(err).Msg("local snapshot unreadable, starting cold")
		return nil
	}
	if snap == nil || snap.ParticipantID == "" {
		return nil
	}
	if p.clock.Now().Sub(snap.SavedAt) >= p.horizon {
		p.log.Info().
			Str("participant_id", snap.ParticipantID).
			Time("saved_at", snap.SavedAt).
			Msg("discarding stale snapshot")
		return nil
	}
	return snap
}

func (p *Persistence) Clear() {
	if err := p.local.Delete(); err != nil {
		p.log.Error().Err(err).Msg("clearing snapshot failed")
	}
}
