package scoring

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/chypac/olimpiafa/internal/domain"
)

// QuestionSource supplies the graded question set, including accepted answers.
type QuestionSource interface {
	GetQuestions(ctx context.Context) ([]domain.Question, error)
}

// ResultSink receives every finalized result (append-only).
type ResultSink interface {
	SaveResult(ctx context.Context, result domain.Result) error
}

// IdentityBinder burns a participant identifier once its result exists.
type IdentityBinder interface {
	MarkUsed(ctx context.Context, participantID string) error
	Release(ctx context.Context, participantID string) error
}

// Scorer grades a finalized answer mapping against the question set and
// freezes the outcome into a Result. Scoring a given participant succeeds
// at most once: on success the identifier is marked used, so a replayed
// call is rejected upstream by the identity gate.
type Scorer struct {
	questions  QuestionSource
	sink       ResultSink
	identities IdentityBinder
	clock      clockwork.Clock
	log        zerolog.Logger
}

// NewScorer builds a scorer; sink and identities may be nil.
func NewScorer(questions QuestionSource, sink ResultSink, identities IdentityBinder, clock clockwork.Clock, log zerolog.Logger) *Scorer {
	return &Scorer{questions: questions, sink: sink, identities: identities, clock: clock, log: log}
}

func (s *Scorer) Score(ctx context.Context, answers map[string]string, participantID string) (domain.Result, error) {
	qs, err := s.questions.GetQuestions(ctx)
	if err != nil {
		return domain.Result{}, fmt.Errorf("load questions: %w", err)
	}

	total := 0
	maxScore := 0
	details := make([]domain.AnswerDetail, 0, len(qs))
	for _, q := range qs {
		weight := q.Score
		if weight == 0 {
			weight = 1
		}
		maxScore += weight

		text, answered := answers[q.ID]
		if !answered {
			continue
		}
		awarded := 0
		correct := answerMatches(text, q.Answer)
		if correct {
			total += weight
			awarded = weight
		}
		details = append(details, domain.AnswerDetail{
			QuestionID: q.ID,
			Title:      q.Title,
			Answer:     text,
			Correct:    correct,
			Awarded:    awarded,
		})
	}

	percent := 0
	if maxScore > 0 {
		percent = int(math.Round(float64(total) / float64(maxScore) * 100))
	}

	result := domain.Result{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		Score:         total,
		MaxScore:      maxScore,
		Percent:       percent,
		Grade:         gradeFor(percent),
		Details:       details,
		CreatedAt:     s.clock.Now(),
	}

	if s.sink != nil {
		if err := s.sink.SaveResult(ctx, result); err != nil {
			return domain.Result{}, fmt.Errorf("store result: %w", err)
		}
	}
	if s.identities != nil {
		if err := s.identities.MarkUsed(ctx, participantID); err != nil {
			return domain.Result{}, fmt.Errorf("mark participant used: %w", err)
		}
		if err := s.identities.Release(ctx, participantID); err != nil {
			s.log.Warn().Err(err).Str("participant_id", participantID).Msg("release identity claim failed")
		}
	}

	s.log.Info().
		Str("participant_id", participantID).
		Int("score", total).
		Int("max_score", maxScore).
		Int("percent", percent).
		Msg("result finalized")
	return result, nil
}

func gradeFor(percent int) string {
	switch {
	case percent >= 80:
		return "excellent"
	case percent >= 60:
		return "good"
	default:
		return "try-again"
	}
}

// alternativeSeparator splits an accepted answer that lists several valid
// variants, e.g. "4 или четыре". Kept as the source content uses it.
const alternativeSeparator = "или"

// answerMatches compares a participant answer against the accepted answer
// string. Matching is lenient: case, spacing, and comma-vs-dot decimals are
// ignored, and numeric answers tolerate a 0.01 difference.
func answerMatches(userAnswer, accepted string) bool {
	user := strings.TrimSpace(userAnswer)
	if user == "" {
		return false
	}
	for _, alt := range strings.Split(accepted, alternativeSeparator) {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		if normalize(user) == normalize(alt) {
			return true
		}
		if un, uok := toNumber(user); uok {
			if an, aok := toNumber(alt); aok && math.Abs(un-an) <= 0.01 {
				return true
			}
		}
		if isDigits(user) && strings.Contains(alt, user) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
}

func toNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	return f, err == nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
