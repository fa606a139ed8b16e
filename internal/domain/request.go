package domain

import "time"

// StartSessionRequest creates or resumes a session for a subject.
type StartSessionRequest struct {
	SubjectID string `json:"subject_id"`
}

// StartSessionResponse is returned by session creation.
type StartSessionResponse struct {
	SessionID   string    `json:"session_id"`
	EvaluatorID string    `json:"evaluator_id"`
	SubjectID   string    `json:"subject_id"`
	StartedAt   time.Time `json:"started_at"`
	Resumed     bool      `json:"resumed"`
}

// OpenSessionResponse is returned by the open-session lookup.
type OpenSessionResponse struct {
	SessionID *string `json:"session_id"`
}

// TurnRequest submits one turn. History is accepted for wire compatibility
// with older clients and ignored; the stored transcript is authoritative.
type TurnRequest struct {
	Message string          `json:"message"`
	History []HistoryRecord `json:"history,omitempty"`
}

// HistoryRecord is a client-side transcript entry.
type HistoryRecord struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// TurnResponse carries the assistant reply for a turn.
type TurnResponse struct {
	Response string `json:"response"`
}

// TranscriptResponse lists the messages of a session.
type TranscriptResponse struct {
	Messages []Message `json:"messages"`
}

// FinalizeResponse carries the stored summary.
type FinalizeResponse struct {
	SummaryID string `json:"summary_id"`
	Summary   string `json:"summary"`
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
