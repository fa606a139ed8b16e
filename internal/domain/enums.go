// Package domain defines the core domain models for the evaluation service.
package domain

// Role is the directory category of an actor or subject.
type Role string

const (
	RoleTrainee   Role = "student"
	RoleEvaluator Role = "evaluator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleTrainee, RoleEvaluator, RoleAdmin:
		return true
	}
	return false
}

// Sender identifies the author of a transcript message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}

// SessionState is the conversation state derived from a session and its transcript.
type SessionState string

const (
	SessionStateInit   SessionState = "INIT"
	SessionStateActive SessionState = "ACTIVE"
	SessionStateClosed SessionState = "CLOSED"
)

// Action names an operation subject to the role gate.
type Action string

const (
	ActionSessionStart    Action = "session.start"
	ActionSessionFindOpen Action = "session.find_open"
	ActionSessionRead     Action = "session.read"
	ActionSessionTurn     Action = "session.turn"
	ActionSessionFinalize Action = "session.finalize"
	ActionSubjectSessions Action = "subject.sessions"
)

// InitSentinel is the reserved input that asks for the opening question of a session.
const InitSentinel = "__system_init"

// EventType is the type of a live session event.
type EventType string

const (
	EventTypeMessage       EventType = "message"
	EventTypeSessionClosed EventType = "session_closed"
)
