package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chypac/olimpiafa/internal/domain"
)

// IdentityRegistry is the external one-attempt policy service. Validate
// reports whether the identifier may start a quiz; Claim reserves it for a
// live session; MarkUsed burns it forever once a result exists.
type IdentityRegistry interface {
	Validate(ctx context.Context, participantID string) (bool, string, error)
	Claim(ctx context.Context, participantID string) error
	Release(ctx context.Context, participantID string) error
	MarkUsed(ctx context.Context, participantID string) error
}

// IdentityGate validates a participant identifier before any session state
// is created. An empty identifier is rejected without a remote call; a
// transport failure is inconclusive and never falls back to admitted.
type IdentityGate struct {
	registry IdentityRegistry
	log      zerolog.Logger
}

func NewIdentityGate(registry IdentityRegistry, log zerolog.Logger) *IdentityGate {
	return &IdentityGate{registry: registry, log: log}
}

// Admit returns the trimmed identifier once it passes the one-attempt
// policy and is claimed for this session.
func (g *IdentityGate) Admit(ctx context.Context, raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", domain.ErrEmptyParticipantID
	}

	ok, message, err := g.registry.Validate(ctx, id)
	if err != nil {
		g.log.Error().Err(err).Str("participant_id", id).Msg("identity check failed")
		return "", fmt.Errorf("%w: %v", domain.ErrIdentityUnavailable, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrParticipantRejected, message)
	}

	if err := g.registry.Claim(ctx, id); err != nil {
		if errors.Is(err, domain.ErrParticipantRejected) {
			return "", err
		}
		g.log.Error().Err(err).Str("participant_id", id).Msg("identity claim failed")
		return "", fmt.Errorf("%w: %v", domain.ErrIdentityUnavailable, err)
	}

	g.log.Info().Str("participant_id", id).Msg("participant admitted")
	return id, nil
}
