package state

import (
	"context"
	"maps"
	"time"
)

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Attachment is a document kept in a session until it is submitted.
type Attachment struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Session stores conversation state and collected answers for a user.
type Session struct {
	UserID    int64          `json:"user_id"`
	State     State          `json:"state"`
	Flow      string         `json:"flow,omitempty"`
	Answers   map[string]any `json:"answers,omitempty"`
	Document  *Attachment    `json:"document,omitempty"`
	Retries   int            `json:"retries,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewSession returns an idle session for userID.
func NewSession(userID int64) *Session {
	return &Session{UserID: userID, State: StateIdle, Answers: make(map[string]any)}
}

// Idle reports whether no conversation is active.
func (s *Session) Idle() bool {
	return s == nil || s.State == "" || s.State == StateIdle
}

// Set stores an answer under key.
func (s *Session) Set(key string, v any) {
	if s.Answers == nil {
		s.Answers = make(map[string]any)
	}
	s.Answers[key] = v
}

// Float returns a numeric answer.
func (s *Session) Float(key string) (float64, bool) {
	switch v := s.Answers[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Int returns an integer answer. Values that went through JSON come back as
// float64 and are converted.
func (s *Session) Int(key string) (int, bool) {
	switch v := s.Answers[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Bool returns a boolean answer.
func (s *Session) Bool(key string) (bool, bool) {
	v, ok := s.Answers[key].(bool)
	return v, ok
}

// String returns a string answer.
func (s *Session) String(key string) (string, bool) {
	v, ok := s.Answers[key].(string)
	return v, ok
}

// Clone returns a copy that does not share the answers map with s.
// Attachment bytes are treated as immutable and shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Answers = maps.Clone(s.Answers)
	if cp.Answers == nil {
		cp.Answers = make(map[string]any)
	}
	if s.Document != nil {
		doc := *s.Document
		cp.Document = &doc
	}
	return &cp
}

// Manager stores sessions keyed by user id.
type Manager interface {
	// Get returns the user's session or a fresh idle one when none exists.
	Get(ctx context.Context, userID int64) (*Session, error)
	// Save replaces the stored session for s.UserID.
	Save(ctx context.Context, s *Session) error
	// Clear drops the user's session.
	Clear(ctx context.Context, userID int64) error
	// InProgress reports whether the user has a non-idle session.
	InProgress(ctx context.Context, userID int64) bool
	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)
}
