package domain

import "errors"

var (
	// ErrEmptyParticipantID is returned when the identifier is blank after trimming.
	ErrEmptyParticipantID = errors.New("participant id is empty")
	// ErrParticipantRejected indicates the one-attempt policy refused the identifier.
	ErrParticipantRejected = errors.New("participant id rejected")
	// ErrIdentityUnavailable marks an inconclusive identity check; the caller must retry.
	ErrIdentityUnavailable = errors.New("identity check unavailable")
	// ErrNoQuestions indicates the question source returned an empty sequence.
	ErrNoQuestions = errors.New("no questions loaded")
	// ErrQuestionNotFound indicates a referenced question ID is not part of the session.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOutOfBounds indicates a navigation target outside the question sequence.
	ErrOutOfBounds = errors.New("navigation target out of bounds")
	// ErrNotLastQuestion indicates submit was requested before the last question.
	ErrNotLastQuestion = errors.New("submit is only allowed on the last question")
	// ErrSessionClosed indicates the session no longer accepts transitions.
	ErrSessionClosed = errors.New("session is no longer active")
)
