package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chypac/olimpiafa/internal/domain"
)

// DefaultClaimTTL bounds how long an admitted identity stays claimed
// without being finalized; after that a fresh start is allowed again.
const DefaultClaimTTL = 2 * time.Minute

// IdentityRegistry is an in-memory one-attempt policy: identifiers must be
// on the valid list, may be claimed by at most one live session, and are
// burned forever once a result exists.
type IdentityRegistry struct {
	clock    clockwork.Clock
	claimTTL time.Duration

	mu     sync.Mutex
	valid  map[string]struct{}
	used   map[string]struct{}
	claims map[string]time.Time // claim expiry per identifier
}

func NewIdentityRegistry(validIDs []string, claimTTL time.Duration, clock clockwork.Clock) *IdentityRegistry {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	valid := make(map[string]struct{}, len(validIDs))
	for _, id := range validIDs {
		valid[id] = struct{}{}
	}
	return &IdentityRegistry{
		clock:    clock,
		claimTTL: claimTTL,
		valid:    valid,
		used:     make(map[string]struct{}),
		claims:   make(map[string]time.Time),
	}
}

func (r *IdentityRegistry) Validate(_ context.Context, participantID string) (bool, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.valid[participantID]; !ok {
		return false, "unknown participant id", nil
	}
	if _, ok := r.used[participantID]; ok {
		return false, "this id has already been used", nil
	}
	if expiry, ok := r.claims[participantID]; ok && r.clock.Now().Before(expiry) {
		return false, "a session is already active for this id", nil
	}
	return true, "OK", nil
}

func (r *IdentityRegistry) Claim(_ context.Context, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	if expiry, ok := r.claims[participantID]; ok && now.Before(expiry) {
		return fmt.Errorf("%w: a session is already active for this id", domain.ErrParticipantRejected)
	}
	r.claims[participantID] = now.Add(r.claimTTL)
	return nil
}

func (r *IdentityRegistry) Release(_ context.Context, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claims, participantID)
	return nil
}

func (r *IdentityRegistry) MarkUsed(_ context.Context, participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used[participantID] = struct{}{}
	delete(r.claims, participantID)
	return nil
}
