package session

import (
	"sync"
	"time"

	"github.com/skypro1111/voice-archive-bot/internal/storage"
)

// State is the step of the conversation a user is in
type State int

const (
	StateIdle State = iota
	StateAwaitingLanguageChoice
	StateAwaitingSaveConfirmation
	StateAwaitingDescription
	StateAwaitingSearchParameters
	StateAwaitingSearchConfirmationOfScope
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingLanguageChoice:
		return "AwaitingLanguageChoice"
	case StateAwaitingSaveConfirmation:
		return "AwaitingSaveConfirmation"
	case StateAwaitingDescription:
		return "AwaitingDescription"
	case StateAwaitingSearchParameters:
		return "AwaitingSearchParameters"
	case StateAwaitingSearchConfirmationOfScope:
		return "AwaitingSearchConfirmationOfScope"
	default:
		return "Unknown"
	}
}

// Pending is the context a multi-step conversation carries between messages
type Pending struct {
	Transcript string
	Audio      []byte
	RecordedAt time.Time
	Search     *storage.Query
}

// Empty reports whether nothing is pending
func (p Pending) Empty() bool {
	return p.Transcript == "" && len(p.Audio) == 0 && p.RecordedAt.IsZero() && p.Search == nil
}

// Session is the conversation state of one user. It is mutated only while
// its lock is held, through Manager.Do. Readers outside Do see the snapshot
// published when the last event started and finished, so they never wait on
// a session that is busy with a long recognition.
type Session struct {
	UserID       int64
	Username     string
	Language     string
	State        State
	Pending      Pending
	CreatedAt    time.Time
	LastActivity time.Time
	Transitions  uint64
	Events       uint64

	mu sync.Mutex

	snap   SessionInfo
	snapMu sync.RWMutex
}

// Transition moves the session to next and replaces the pending context
func (s *Session) Transition(next State, pending Pending) {
	if next != s.State {
		s.Transitions++
	}
	s.State = next
	s.Pending = pending
}

// SessionInfo is a read-only snapshot of a session for monitoring and APIs
type SessionInfo struct {
	UserID       int64         `json:"user_id"`
	Username     string        `json:"username,omitempty"`
	Language     string        `json:"language"`
	State        string        `json:"state"`
	HasPending   bool          `json:"has_pending"`
	PendingAudio int           `json:"pending_audio_bytes"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
	IdleFor      time.Duration `json:"idle_for"`
	Transitions  uint64        `json:"transitions"`
	Events       uint64        `json:"events"`
}

// publish must be called with s.mu held
func (s *Session) publish() {
	info := SessionInfo{
		UserID:       s.UserID,
		Username:     s.Username,
		Language:     s.Language,
		State:        s.State.String(),
		HasPending:   !s.Pending.Empty(),
		PendingAudio: len(s.Pending.Audio),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		Transitions:  s.Transitions,
		Events:       s.Events,
	}

	s.snapMu.Lock()
	s.snap = info
	s.snapMu.Unlock()
}

// snapshot returns the last published state without taking s.mu
func (s *Session) snapshot() SessionInfo {
	s.snapMu.RLock()
	info := s.snap
	s.snapMu.RUnlock()

	info.IdleFor = time.Since(info.LastActivity)
	return info
}
