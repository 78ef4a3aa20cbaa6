package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chypac/olimpiafa/internal/domain"
)

const (
	validIDsKey    = "quiz:ids:valid"
	usedIDsKey     = "quiz:ids:used"
	claimKeyPrefix = "quiz:ids:claim:"
)

// IdentityRegistry enforces the one-attempt policy in Redis: a set of valid
// identifiers, a set of burned ones, and a TTL'd claim key per live session.
type IdentityRegistry struct {
	client   *redis.Client
	claimTTL time.Duration
}

func NewIdentityRegistry(client *redis.Client, claimTTL time.Duration) *IdentityRegistry {
	return &IdentityRegistry{client: client, claimTTL: claimTTL}
}

func (r *IdentityRegistry) Validate(ctx context.Context, participantID string) (bool, string, error) {
	valid, err := r.client.SIsMember(ctx, validIDsKey, participantID).Result()
	if err != nil {
		return false, "", fmt.Errorf("check valid ids: %w", err)
	}
	if !valid {
		return false, "unknown participant id", nil
	}

	used, err := r.client.SIsMember(ctx, usedIDsKey, participantID).Result()
	if err != nil {
		return false, "", fmt.Errorf("check used ids: %w", err)
	}
	if used {
		return false, "this id has already been used", nil
	}

	claimed, err := r.client.Exists(ctx, claimKeyPrefix+participantID).Result()
	if err != nil {
		return false, "", fmt.Errorf("check claim: %w", err)
	}
	if claimed > 0 {
		return false, "a session is already active for this id", nil
	}
	return true, "OK", nil
}

func (r *IdentityRegistry) Claim(ctx context.Context, participantID string) error {
	ok, err := r.client.SetNX(ctx, claimKeyPrefix+participantID, "1", r.claimTTL).Result()
	if err != nil {
		return fmt.Errorf("claim id: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: a session is already active for this id", domain.ErrParticipantRejected)
	}
	return nil
}

func (r *IdentityRegistry) Release(ctx context.Context, participantID string) error {
	return r.client.Del(ctx, claimKeyPrefix+participantID).Err()
}

func (r *IdentityRegistry) MarkUsed(ctx context.Context, participantID string) error {
	if err := r.client.SAdd(ctx, usedIDsKey, participantID).Err(); err != nil {
		return fmt.Errorf("mark id used: %w", err)
	}
	return r.client.Del(ctx, claimKeyPrefix+participantID).Err()
}

// SeedValidIDs registers identifiers that are allowed to take the quiz.
func (r *IdentityRegistry) SeedValidIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	return r.client.SAdd(ctx, validIDsKey, members...).Err()
}
