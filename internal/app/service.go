package app

import (
	"context"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/chypac/olimpiafa/internal/domain"
)

// QuestionRepository loads the fixed question sequence (from cache/backing store).
type QuestionRepository interface {
	GetQuestions(ctx context.Context) ([]domain.Question, error)
}

// Scorer is the external scoring function: it converts a finalized answer
// mapping into an immutable Result and burns the identity server-side.
type Scorer interface {
	Score(ctx context.Context, answers map[string]string, participantID string) (domain.Result, error)
}

// QuizService contains the quiz-taking use cases: admit a participant,
// start or resume their session, and hand the session to the transport.
type QuizService struct {
	gate      *IdentityGate
	questions QuestionRepository
	scorer    Scorer
	store     *Persistence
	clock     clockwork.Clock
	retry     RetryPolicy
	log       zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewQuizService(gate *IdentityGate, questions QuestionRepository, scorer Scorer, store *Persistence, clock clockwork.Clock, retry RetryPolicy, log zerolog.Logger) *QuizService {
	return &QuizService{
		gate:      gate,
		questions: questions,
		scorer:    scorer,
		store:     store,
		clock:     clock,
		retry:     retry,
		log:       log,
		sessions:  make(map[string]*Session),
	}
}

// StartSession admits the participant and returns their session. A live
// session (reconnect) or a fresh local snapshot (reload) resumes without a
// second pass through the identity gate; everything else is a cold start
// that must clear the one-attempt policy first.
func (s *QuizService) StartSession(ctx context.Context, rawID string) (*Session, error) {
	id := strings.TrimSpace(rawID)
	if id == "" {
		return nil, domain.ErrEmptyParticipantID
	}

	s.mu.Lock()
	if session, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return session, nil
	}
	s.mu.Unlock()

	snap := s.store.Restore()
	if snap != nil && snap.ParticipantID != id {
		snap = nil
	}
	if snap == nil {
		if _, err := s.gate.Admit(ctx, id); err != nil {
			return nil, err
		}
	}

	questions, err := s.questions.GetQuestions(ctx)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, domain.ErrNoQuestions
	}

	session := newSession(id, questions, s.store, s.scorer, s.retry, s.clock, s.log)
	session.onTerminal = func() { s.drop(id) }

	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.sessions[id] = session
	s.mu.Unlock()

	session.begin(snap)
	return session, nil
}

// Get returns the live session for a participant, if any.
func (s *QuizService) Get(participantID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[participantID]
	return session, ok
}

func (s *QuizService) drop(participantID string) {
	s.mu.Lock()
	delete(s.sessions, participantID)
	s.mu.Unlock()
}
