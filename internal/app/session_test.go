package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/chypac/olimpiafa/internal/app"
	"github.com/chypac/olimpiafa/internal/domain"
	"github.com/chypac/olimpiafa/internal/infra/memory"
	"github.com/chypac/olimpiafa/internal/question"
	"github.com/chypac/olimpiafa/internal/scoring"
)

type stubScorer struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (s *stubScorer) Score(_ context.Context, _ map[string]string, participantID string) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return domain.Result{}, errors.New("scoring backend down")
	}
	return domain.Result{
		ID:            "r1",
		ParticipantID: participantID,
		Score:         1,
		MaxScore:      1,
		Percent:       100,
		Grade:         "excellent",
	}, nil
}

func (s *stubScorer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func threeQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Title: "Question 1", Text: "2+2?", Hint: "even", Answer: "4", Score: 1, TimeLimit: 60},
		{ID: "q2", Title: "Question 2", Text: "3*3?", Hint: "odd", Answer: "9", Score: 2, TimeLimit: 60},
		{ID: "q3", Title: "Question 3", Text: "10/4?", Hint: "fraction", Answer: "2,5", Score: 2, TimeLimit: 60},
	}
}

func newSessionEnv(clock clockwork.Clock, scorer app.Scorer, retry app.RetryPolicy, questions []domain.Question) (*app.QuizService, *memory.SnapshotStore, *memory.IdentityRegistry) {
	logger := zerolog.Nop()
	local := memory.NewSnapshotStore()
	registry := memory.NewIdentityRegistry([]string{"demo-1", "demo-2"}, time.Minute, clock)
	gate := app.NewIdentityGate(registry, logger)
	store := app.NewPersistence(local, nil, 0, clock, logger)
	repo := memory.NewQuestionCache(question.NewStaticLoader(questions), time.Minute)
	service := app.NewQuizService(gate, repo, scorer, store, clock, retry, logger)
	return service, local, registry
}

func waitFor(t *testing.T, events <-chan app.Event, typ app.EventType) app.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func TestStartSessionGatekeeping(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newSessionEnv(clockwork.NewFakeClock(), &stubScorer{}, app.RetryPolicy{Attempts: 1}, threeQuestions())

	if _, err := service.StartSession(ctx, "   "); !errors.Is(err, domain.ErrEmptyParticipantID) {
		t.Fatalf("expected empty id rejection, got %v", err)
	}
	if _, err := service.StartSession(ctx, "ghost"); !errors.Is(err, domain.ErrParticipantRejected) {
		t.Fatalf("expected unknown id rejection, got %v", err)
	}

	session, err := service.StartSession(ctx, "demo-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	again, err := service.StartSession(ctx, "demo-1")
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if again != session {
		t.Fatalf("expected reconnect to reuse the live session")
	}
}

func TestAnswerSurvivesNavigation(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newSessionEnv(clockwork.NewFakeClock(), &stubScorer{}, app.RetryPolicy{Attempts: 1}, threeQuestions())

	session, err := service.StartSession(ctx, "demo-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := session.Edit("four"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := session.Navigate(domain.DirectionNext); err != nil {
		t.Fatalf("navigate next: %v", err)
	}
	if got := session.View().Answer; got != "" {
		t.Fatalf("expected empty answer on q2, got %q", got)
	}
	if err := session.Navigate(domain.DirectionPrev); err != nil {
		t.Fatalf("navigate prev: %v", err)
	}
	if got := session.View().Answer; got != "four" {
		t.Fatalf("expected committed answer to survive navigation, got %q", got)
	}
}

func TestNavigateOutOfBounds(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newSessionEnv(clockwork.NewFakeClock(), &stubScorer{}, app.RetryPolicy{Attempts: 1}, threeQuestions())

	session, err := service.StartSession(ctx, "demo-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := session.Navigate(domain.DirectionPrev); !errors.Is(err, domain.ErrOutOfBounds) {
		t.Fatalf("expected out of bounds at first question, got %v", err)
	}
	if err := session.Navigate("sideways"); !errors.Is(err, domain.ErrOutOfBounds) {
		t.Fatalf("expected invalid direction rejection, got %v", err)
	}
	if view := session.View(); view.Position != 0 {
		t.Fatalf("expected position unchanged, got %d", view.Position)
	}
}

func TestSubmitOnlyOnLastQuestion(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newSessionEnv(clockwork.NewFakeClock(), &stubScorer{}, app.RetryPolicy{Attempts: 1}, threeQuestions())

	session, err := service.StartSession(ctx, "demo-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := session.Submit(ctx); !errors.Is(err, domain.ErrNotLastQuestion) {
		t.Fatalf("expected submit rejection before last question, got %v", err)
	}
}

func TestSubmitScoresExactlyOnce(t *testing.T) {
	ctx := context.Background()
	scorer := &stubScorer{}
	service, local, _ := newSessionEnv(clockwork.NewFakeClock(), scorer, app.RetryPolicy{Attempts: 1}, threeQuestions())

	session, err := service.StartSession(ctx, "demo-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	session.Edit("4")
	session.Navigate(domain.DirectionNext)
	session.Navigate(domain.DirectionNext)

	result, err := session.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result == nil || result.ParticipantID != "demo-1" {
		t.Fatalf("expected result for demo-1, got %+v", result)
	}
	if session.State() != domain.StateTerminal {
		t.Fatalf("expected terminal state, got %s", session.State())
	}
	if snap, _ := local.Read(); snap != nil {
		t.Fatalf("expected snapshot cleared after result, got %+v", snap)
	}

	again, err := session.Submit(ctx)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if again != result {
		t.Fatalf("expected the stored result on repeat submit")
	}
	if scorer.callCount() != 1 {
		t.Fatalf("expected a single scoring call, got %d", scorer.callCount())
	}
}

func TestFinalizeFailureKeepsSessionActive(t *testing.T) {
	ctx := context.Background()
	scorer := &stubScorer{failures: 1}
	service, local, _ := newSessionEnv(clockwork.NewFakeClock(), scorer, app.RetryPolicy{Attempts: 1}, threeQuestions())

	session, err := service.StartSession(ctx, "demo-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	session.Edit("4")
	session.Navigate(domain.DirectionNext)
	session.Navigate(domain.DirectionNext)

	if _, err := session.Submit(ctx); err == nil {
		t.Fatalf("expected submit to fail while the backend is down")
	}
	if session.State() != domain.StateActive {
		t.Fatalf("expected session to stay active after failed finalize, got %s", session.State())
	}
	if snap, _ := local.Read(); snap == nil {
		t.Fatalf("expected snapshot kept after failed finalize")
	}

	result, err := session.Submit(ctx)
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if result == nil {
		t.Fatalf("expected result on retry")
	}
}

func TestFinalizeRetriesWithinPolicy(t *testing.T) {
	ctx := context.Background()
	scorer := &stubScorer{failures: 2}
	service, _, _ := newSessionEnv(clockwork.NewFakeClock(), scorer, app.RetryPolicy{Attempts: 3}, threeQuestions())

	session, err := service.StartSession(ctx, "demo-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	session.Navigate(domain.DirectionNext)
	session.Navigate(domain.DirectionNext)

	if _, err := session.Submit(ctx); err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if scorer.callCount() != 3 {
		t.Fatalf("expected 3 scoring calls, got %d", scorer.callCount())
	}
}

func TestFinalizeBurnsIdentity(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	logger := zerolog.Nop()
	local := memory.NewSnapshotStore()
	registry := memory.NewIdentityRegistry([]string{"demo-1"}, time.Minute, clock)
	gate := app.NewIdentityGate(registry, logger)
	store := app.NewPersistence(local, nil, 0, clock, logger)
	repo := memory.NewQuestionCache(question.NewStaticLoader(threeQuestions()), time.Minute)
	scorer := scoring.NewScorer(repo, nil, registry, clock, logger)
	service := app.NewQuizService(gate, repo, scorer, store, clock, app.RetryPolicy{Attempts: 1}, logger)

	session, err := service.StartSession(ctx, "demo-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	session.Navigate(domain.DirectionNext)
	session.Navigate(domain.DirectionNext)
	if _, err := session.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := service.StartSession(ctx, "demo-1"); !errors.Is(err, domain.ErrParticipantRejected) {
		t.Fatalf("expected used id to be rejected, got %v", err)
	}
}

func TestExpiryAutoAdvances(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	questions := []domain.Question{
		{ID: "q1", Title: "Question 1", Text: "fast", Answer: "x", TimeLimit: 2},
		{ID: "q2", Title: "Question 2", Text: "slow", Answer: "y", TimeLimit: 60},
	}
	service, _, _ := newSessionEnv(clock, &stubScorer{}, app.RetryPolicy{Attempts: 1}, questions)

	session, err := service.StartSession(ctx, "demo-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events, cancel := session.Subscribe()
	defer cancel()
	waitFor(t, events, app.EventState) // initial snapshot

	advanceSecond(t, clock)
	tick := waitFor(t, events, app.EventTick).Payload.(app.TickView)
	if tick.QuestionID != "q1" || tick.Remaining != 1 {
		t.Fatalf("expected q1 at 1, got %+v", tick)
	}

	advanceSecond(t, clock)
	expired := waitFor(t, events, app.EventExpired).Payload.(app.TickView)
	if expired.QuestionID != "q1" {
		t.Fatalf("expected q1 expiry, got %+v", expired)
	}
	state := waitFor(t, events, app.EventState).Payload.(app.StateView)
	if state.Position != 1 || state.Question.ID != "q2" {
		t.Fatalf("expected auto-advance to q2, got %+v", state)
	}
	if state.Remaining != 60 {
		t.Fatalf("expected q2 counter untouched at 60, got %d", state.Remaining)
	}
}

func TestExpiryOnLastQuestionFinalizes(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	questions := []domain.Question{
		{ID: "q1", Title: "Question 1", Text: "only", Answer: "x", TimeLimit: 1},
	}
	scorer := &stubScorer{}
	service, _, _ := newSessionEnv(clock, scorer, app.RetryPolicy{Attempts: 1}, questions)

	session, err := service.StartSession(ctx, "demo-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events, cancel := session.Subscribe()
	defer cancel()
	waitFor(t, events, app.EventState)

	advanceSecond(t, clock)
	waitFor(t, events, app.EventExpired)
	result := waitFor(t, events, app.EventResult).Payload.(domain.Result)
	if result.ParticipantID != "demo-1" {
		t.Fatalf("expected result for demo-1, got %+v", result)
	}
	if session.State() != domain.StateTerminal {
		t.Fatalf("expected terminal state, got %s", session.State())
	}
	if scorer.callCount() != 1 {
		t.Fatalf("expected one scoring call, got %d", scorer.callCount())
	}
}

func TestResumeFromSnapshot(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	service, local, registry := newSessionEnv(clock, &stubScorer{}, app.RetryPolicy{Attempts: 1}, threeQuestions())

	if err := local.Write(domain.Snapshot{
		ParticipantID: "demo-1",
		Position:      1,
		Answers:       map[string]string{"q1": "4"},
		Timers:        map[string]int{"q1": 5, "q2": 30},
		SavedAt:       clock.Now(),
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	// A page reload resumes without a second pass through the gate, even
	// though the claim from the first visit is still live.
	if err := registry.MarkUsed(ctx, "demo-1"); err != nil {
		t.Fatalf("mark used: %v", err)
	}

	session, err := service.StartSession(ctx, "demo-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	view := session.View()
	if view.Position != 1 || view.Question.ID != "q2" {
		t.Fatalf("expected resume at q2, got %+v", view)
	}
	if view.Remaining != 30 {
		t.Fatalf("expected q2 resumed at 30, got %d", view.Remaining)
	}
	if err := session.Navigate(domain.DirectionPrev); err != nil {
		t.Fatalf("navigate prev: %v", err)
	}
	if got := session.View().Answer; got != "4" {
		t.Fatalf("expected restored answer, got %q", got)
	}
}

func TestStaleSnapshotStartsFresh(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	service, local, _ := newSessionEnv(clock, &stubScorer{}, app.RetryPolicy{Attempts: 1}, threeQuestions())

	if err := local.Write(domain.Snapshot{
		ParticipantID: "demo-1",
		Position:      2,
		Answers:       map[string]string{"q1": "old"},
		Timers:        map[string]int{"q1": 1},
		SavedAt:       clock.Now().Add(-25 * time.Hour),
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	session, err := service.StartSession(ctx, "demo-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	view := session.View()
	if view.Position != 0 || view.Remaining != 60 {
		t.Fatalf("expected a fresh session, got %+v", view)
	}
	if got := view.Answer; got != "" {
		t.Fatalf("expected no restored answer, got %q", got)
	}
}
