package app

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/chypac/olimpiafa/internal/domain"
)

// EventType labels session events pushed to subscribers.
type EventType string

const (
	EventState   EventType = "state"
	EventTick    EventType = "tick"
	EventExpired EventType = "expired"
	EventResult  EventType = "result"
)

// Event is a session update delivered to transport subscribers.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// QuestionView is the participant-visible part of a question.
type QuestionView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	TimeLimit int    `json:"timeLimit"`
}

// StateView describes what the participant currently sees: position,
// question, their saved answer, and the remaining seconds.
type StateView struct {
	State     domain.State `json:"state"`
	Position  int          `json:"position"`
	Total     int          `json:"total"`
	Question  QuestionView `json:"question"`
	Answer    string       `json:"answer"`
	Remaining int          `json:"remaining"`
}

// TickView reports a countdown change for the active question.
type TickView struct {
	QuestionID string `json:"questionId"`
	Remaining  int    `json:"remaining"`
}

// RetryPolicy bounds the finalize call. Attempts below one mean a single
// try; Backoff doubles between attempts; Timeout caps each attempt.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
}

// Session owns one participant's pass through the question sequence. All
// transitions run under its mutex to completion, so no two interleave; the
// timer engine is the only autonomous event source feeding it. Every
// mutation overwrites the persisted snapshot with the full current state.
type Session struct {
	participantID string
	questions     []domain.Question
	byID          map[string]domain.Question
	clock         clockwork.Clock
	store         *Persistence
	scorer        Scorer
	retry         RetryPolicy
	log           zerolog.Logger
	onTerminal    func()

	mu          sync.Mutex
	state       domain.State
	index       int
	answers     map[string]string
	timers      *TimerEngine
	result      *domain.Result
	createdAt   time.Time
	subscribers map[chan Event]struct{}
}

func newSession(participantID string, questions []domain.Question, store *Persistence, scorer Scorer, retry RetryPolicy, clock clockwork.Clock, log zerolog.Logger) *Session {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	s := &Session{
		participantID: participantID,
		questions:     questions,
		byID:          byID,
		clock:         clock,
		store:         store,
		scorer:        scorer,
		retry:         retry,
		log:           log.With().Str("participant_id", participantID).Logger(),
		state:         domain.StateLoading,
		answers:       make(map[string]string),
		createdAt:     clock.Now(),
		subscribers:   make(map[chan Event]struct{}),
	}
	s.timers = NewTimerEngine(clock, s.handleTick, s.handleExpiry)
	s.timers.Init(questions)
	return s
}

// begin activates the session, resuming position, answers, and timers from
// the snapshot when one is given, otherwise starting fresh at index zero.
func (s *Session) begin(snap *domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap != nil && snap.ParticipantID == s.participantID {
		if snap.Position >= 0 && snap.Position < len(s.questions) {
			s.index = snap.Position
		}
		for id, text := range snap.Answers {
			if _, ok := s.byID[id]; ok {
				s.answers[id] = text
			}
		}
		s.timers.Restore(snap.Timers)
		s.log.Info().Int("position", s.index).Msg("session resumed from snapshot")
	} else {
		s.log.Info().Int("questions", len(s.questions)).Msg("session started")
	}

	s.state = domain.StateActive
	s.timers.Activate(s.currentLocked().ID)
	s.saveLocked()
	s.publishLocked(Event{Type: EventState, Payload: s.viewLocked()})
}

// ParticipantID returns the identity bound to this session.
func (s *Session) ParticipantID() string { return s.participantID }

// State returns the current lifecycle state.
func (s *Session) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns the current participant-visible state.
func (s *Session) View() StateView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Result returns the frozen result once the session is terminal.
func (s *Session) Result() *domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Edit stores the answer text for the active question. Every keystroke
// lands here; each one overwrites the mapping and the snapshot.
func (s *Session) Edit(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateActive {
		return domain.ErrSessionClosed
	}
	s.answers[s.currentLocked().ID] = text
	s.saveLocked()
	return nil
}

// Navigate moves to the adjacent question. The current answer is already
// committed (edits write the mapping directly, so the pre-move commit is
// idempotent); after moving, the new question's counter resumes from its
// stored value.
func (s *Session) Navigate(dir domain.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateActive {
		return domain.ErrSessionClosed
	}

	target := s.index
	switch dir {
	case domain.DirectionPrev:
		target--
	case domain.DirectionNext:
		target++
	default:
		return domain.ErrOutOfBounds
	}
	if target < 0 || target >= len(s.questions) {
		return domain.ErrOutOfBounds
	}
	s.moveLocked(target)
	return nil
}

// Submit finalizes the session. It is only valid on the last question, and
// is idempotent once the session is terminal: the stored result is returned
// without a second scoring call.
func (s *Session) Submit(ctx context.Context) (*domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateTerminal {
		return s.result, nil
	}
	if s.state != domain.StateActive {
		return nil, domain.ErrSessionClosed
	}
	if s.index != len(s.questions)-1 {
		return nil, domain.ErrNotLastQuestion
	}
	return s.finalizeLocked(ctx)
}

// Hint returns the hint for a question; empty questionID means the active
// one. Hints are read-only and independent of the state machine.
func (s *Session) Hint(questionID string) (string, error) {
	if questionID == "" {
		questionID = s.View().Question.ID
	}
	q, ok := s.byID[questionID]
	if !ok {
		return "", domain.ErrQuestionNotFound
	}
	return q.Hint, nil
}

// Subscribe returns a channel receiving session events, starting with the
// current state. The caller must invoke cancel to avoid leaks.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := Event{Type: EventState, Payload: s.viewLocked()}
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) handleTick(questionID string, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateActive || s.currentLocked().ID != questionID {
		return
	}
	s.saveLocked()
	s.publishLocked(Event{Type: EventTick, Payload: TickView{QuestionID: questionID, Remaining: remaining}})
}

// handleExpiry commits the current answer and either auto-advances or, on
// the last question, finalizes. A stale expiry (the participant navigated
// away in the same instant) is ignored.
func (s *Session) handleExpiry(questionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateActive || s.currentLocked().ID != questionID {
		return
	}
	s.publishLocked(Event{Type: EventExpired, Payload: TickView{QuestionID: questionID}})
	s.log.Info().Str("question_id", questionID).Msg("question expired")

	if s.index == len(s.questions)-1 {
		if _, err := s.finalizeLocked(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("finalize after expiry failed")
		}
		return
	}
	s.moveLocked(s.index + 1)
}

// finalizeLocked is the single transition from Active to Terminal. While it
// runs the session lock is held, so no Edit, Navigate, or Expire can slip
// in and a double submit cannot issue two scoring calls. On failure the
// session stays Active on the last question with all answers intact.
func (s *Session) finalizeLocked(ctx context.Context) (*domain.Result, error) {
	s.state = domain.StateFinalizing
	s.timers.Deactivate()

	answers := make(map[string]string, len(s.answers))
	for id, text := range s.answers {
		answers[id] = text
	}

	result, err := s.scoreWithRetry(ctx, answers)
	if err != nil {
		s.state = domain.StateActive
		s.timers.Activate(s.currentLocked().ID)
		s.log.Error().Err(err).Msg("finalize failed, session stays active")
		return nil, err
	}

	s.result = &result
	s.state = domain.StateTerminal
	s.store.Clear()
	s.publishLocked(Event{Type: EventResult, Payload: result})
	if s.onTerminal != nil {
		s.onTerminal()
	}
	return s.result, nil
}

func (s *Session) scoreWithRetry(ctx context.Context, answers map[string]string) (domain.Result, error) {
	attempts := s.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := s.retry.Backoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && backoff > 0 {
			s.clock.Sleep(backoff)
			backoff *= 2
		}

		attemptCtx := ctx
		cancel := func() {}
		if s.retry.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.retry.Timeout)
		}
		result, err := s.scorer.Score(attemptCtx, answers, s.participantID)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		s.log.Warn().Err(err).Int("attempt", attempt).Msg("scoring call failed")
		if ctx.Err() != nil {
			break
		}
	}
	return domain.Result{}, lastErr
}

func (s *Session) moveLocked(target int) {
	s.index = target
	s.timers.Activate(s.questions[target].ID)
	s.saveLocked()
	s.publishLocked(Event{Type: EventState, Payload: s.viewLocked()})
}

func (s *Session) currentLocked() domain.Question {
	return s.questions[s.index]
}

func (s *Session) viewLocked() StateView {
	q := s.currentLocked()
	return StateView{
		State:    s.state,
		Position: s.index,
		Total:    len(s.questions),
		Question: QuestionView{
			ID:        q.ID,
			Title:     q.Title,
			Text:      q.Text,
			TimeLimit: q.TimeLimit,
		},
		Answer:    s.answers[q.ID],
		Remaining: s.timers.RemainingFor(q.ID),
	}
}

func (s *Session) saveLocked() {
	answers := make(map[string]string, len(s.answers))
	for id, text := range s.answers {
		answers[id] = text
	}
	s.store.Save(domain.Snapshot{
		ParticipantID: s.participantID,
		Position:      s.index,
		Answers:       answers,
		Timers:        s.timers.Remaining(),
		SavedAt:       s.clock.Now(),
	})
}

func (s *Session) publishLocked(ev Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest update so a slow consumer never blocks a transition.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
