package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chypac/olimpiafa/internal/domain"
)

type countingLoader struct {
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return []domain.Question{{ID: "q1", Text: "cached?", Answer: "yes"}}, nil
}

func (l *countingLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestQuestionCacheServesFromCache(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{}
	cache := NewQuestionCache(loader, time.Minute)

	for i := 0; i < 3; i++ {
		qs, err := cache.GetQuestions(ctx)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(qs) != 1 || qs[0].ID != "q1" {
			t.Fatalf("unexpected questions: %+v", qs)
		}
	}
	if loader.callCount() != 1 {
		t.Fatalf("expected a single backing load, got %d", loader.callCount())
	}
}

func TestQuestionCacheReloadsAfterTTL(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{}
	cache := NewQuestionCache(loader, time.Minute)

	now := time.Now()
	cache.clock = func() time.Time { return now }

	if _, err := cache.GetQuestions(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}
	// Jitter extends the TTL by at most 10%, so two minutes is past expiry.
	now = now.Add(2 * time.Minute)
	if _, err := cache.GetQuestions(ctx); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if loader.callCount() != 2 {
		t.Fatalf("expected reload after ttl, got %d loads", loader.callCount())
	}
}
