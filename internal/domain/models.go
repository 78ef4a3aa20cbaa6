package domain

import "time"

// State identifies where a session is in its lifecycle.
type State string

const (
	StateAwaitingIdentity State = "awaiting_identity"
	StateLoading          State = "loading"
	StateActive           State = "active"
	StateFinalizing       State = "finalizing"
	StateTerminal         State = "terminal"
)

// Direction of a navigation request within the question sequence.
type Direction string

const (
	DirectionPrev Direction = "prev"
	DirectionNext Direction = "next"
)

// Question is a single free-text question. The Answer field holds the
// accepted answer(s) for grading and is never exposed to participants.
type Question struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Hint      string `json:"hint,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Score     int    `json:"score"` // defaults to 1 if zero
	TimeLimit int    `json:"timeLimit"`
}

// Snapshot is the resumable session state: where the participant is, what
// they have typed, and how much time each question has left. Snapshots
// older than the staleness horizon are discarded instead of resumed.
type Snapshot struct {
	ParticipantID string            `json:"participantId"`
	Position      int               `json:"position"`
	Answers       map[string]string `json:"answers"`
	Timers        map[string]int    `json:"timers"`
	SavedAt       time.Time         `json:"timestamp"`
}

// AnswerDetail records the grading outcome for one question.
type AnswerDetail struct {
	QuestionID string `json:"questionId"`
	Title      string `json:"title"`
	Answer     string `json:"answer"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
}

// Result is the frozen outcome of a finalized session. It is created
// exactly once per participant identity and never mutated.
type Result struct {
	ID            string         `json:"id"`
	ParticipantID string         `json:"participantId"`
	Score         int            `json:"score"`
	MaxScore      int            `json:"maxScore"`
	Percent       int            `json:"percent"`
	Grade         string         `json:"grade"`
	Details       []AnswerDetail `json:"details,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}
