package domain

import "time"

// Session is one evaluator-trainee assessment encounter.
type Session struct {
	SessionID   string     `json:"session_id"`
	EvaluatorID string     `json:"evaluator_id"`
	SubjectID   string     `json:"subject_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Closed reports whether the session has been finalized.
func (s *Session) Closed() bool {
	return s.CompletedAt != nil
}

// Message is one persisted turn of a session transcript.
type Message struct {
	MessageID string    `json:"message_id"`
	SessionID string    `json:"session_id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is the closing assessment generated from a session transcript.
type Summary struct {
	SummaryID string    `json:"summary_id"`
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Subject is a directory entry as seen by the core.
type Subject struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       Role   `json:"role"`
	Department string `json:"department"`
}

// Principal is the verified actor supplied by the identity provider.
type Principal struct {
	ActorID string `json:"actor_id"`
	Role    Role   `json:"role"`
}

// SessionOverview is one row of a subject's session listing.
type SessionOverview struct {
	SessionID     string     `json:"session_id"`
	EvaluatorID   string     `json:"evaluator_id"`
	EvaluatorName string     `json:"evaluator_name"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	Summary       *string    `json:"summary"`
}

// SessionEvent is pushed to live subscribers of a session.
type SessionEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Ts        int64     `json:"ts"` // Unix milliseconds
	Message   *Message  `json:"message,omitempty"`
}
