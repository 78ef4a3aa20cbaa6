package redis

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
	return []domain.Question{{ID: "q1", Text: "cached?", Answer: "yes", Score: 1, TimeLimit: 60}}, nil
}

func (l *countingLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestQuestionCacheLoadsOnce(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	loader := &countingLoader{}
	cache := NewQuestionCache(client, loader, time.Minute)

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
		t.Fatalf("expected one backing load, got %d", loader.callCount())
	}
	if !mr.Exists("quiz:questions") {
		t.Fatalf("expected cache key in redis")
	}
}

func TestQuestionCacheReloadsAfterExpiry(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	loader := &countingLoader{}
	cache := NewQuestionCache(client, loader, time.Minute)

	if _, err := cache.GetQuestions(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := cache.GetQuestions(ctx); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if loader.callCount() != 2 {
		t.Fatalf("expected reload after expiry, got %d loads", loader.callCount())
	}
}
