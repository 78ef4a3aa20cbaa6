package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chypac/olimpiafa/internal/domain"
)

// ResultRow is the persisted form of a finalized result.
type ResultRow struct {
	bun.BaseModel `bun:"table:results"`

	ID            string    `bun:"id,pk"`
	ParticipantID string    `bun:"participant_id"`
	Score         int       `bun:"score"`
	MaxScore      int       `bun:"max_score"`
	Percent       int       `bun:"percent"`
	Grade         string    `bun:"grade"`
	Details       []byte    `bun:"details,type:jsonb"`
	CreatedAt     time.Time `bun:"created_at"`
}

// ResultSink appends finalized results to Postgres. Rows are insert-only;
// a result is never updated or deleted.
type ResultSink struct {
	db *bun.DB
}

func NewResultSink(db *bun.DB) *ResultSink {
	return &ResultSink{db: db}
}

func (s *ResultSink) SaveResult(ctx context.Context, result domain.Result) error {
	details, err := json.Marshal(result.Details)
	if err != nil {
		return fmt.Errorf("marshal result details: %w", err)
	}
	row := &ResultRow{
		ID:            result.ID,
		ParticipantID: result.ParticipantID,
		Score:         result.Score,
		MaxScore:      result.MaxScore,
		Percent:       result.Percent,
		Grade:         result.Grade,
		Details:       details,
		CreatedAt:     result.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}
