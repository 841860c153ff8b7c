package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/skypro1111/voice-archive-bot/internal/metrics"
)

// Manager owns the per-user session table. Sessions are created lazily on
// first contact and never removed.
type Manager struct {
	sessions        map[int64]*Session
	mu              sync.RWMutex
	logger          *slog.Logger
	defaultLanguage string
	metrics         *metrics.Metrics
}

// NewManager creates an empty session table
func NewManager(logger *slog.Logger, defaultLanguage string, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		sessions:        make(map[int64]*Session),
		logger:          logger,
		defaultLanguage: defaultLanguage,
		metrics:         m,
	}
}

// DefaultLanguage returns the recognition locale new sessions start with
func (m *Manager) DefaultLanguage() string {
	return m.defaultLanguage
}

// getOrCreate returns the session for userID, creating it if needed
func (m *Manager) getOrCreate(userID int64, username string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s
	}

	now := time.Now()
	s = &Session{
		UserID:       userID,
		Username:     username,
		Language:     m.defaultLanguage,
		State:        StateIdle,
		CreatedAt:    now,
		LastActivity: now,
	}
	s.publish()
	m.sessions[userID] = s
	m.metrics.SetActiveSessions(len(m.sessions))

	m.logger.Info("Session created",
		slog.Int64("user_id", userID),
		slog.String("username", username),
		slog.String("language", s.Language),
	)

	return s
}

// Do runs fn with exclusive access to the user's session. Calls for the
// same user are serialized; calls for different users run in parallel.
func (m *Manager) Do(userID int64, username string, fn func(*Session) error) error {
	s := m.getOrCreate(userID, username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if username != "" {
		s.Username = username
	}
	s.LastActivity = time.Now()
	s.Events++
	s.publish()
	defer s.publish()

	return fn(s)
}

// GetSession returns a snapshot of the user's session
func (m *Manager) GetSession(userID int64) (SessionInfo, bool) {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if !ok {
		return SessionInfo{}, false
	}

	return s.snapshot(), true
}

// GetActiveSessionCount returns the number of known sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns snapshots of all sessions ordered by user id.
// A session busy with an event is reported as it was when the event started.
func (m *Manager) GetAllSessions() []SessionInfo {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.snapshot())
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].UserID < infos[j].UserID })
	return infos
}

// CountByState returns how many sessions are in each state
func (m *Manager) CountByState() map[string]int {
	return CountByState(m.GetAllSessions())
}

// CountByState groups already taken snapshots by state
func CountByState(infos []SessionInfo) map[string]int {
	counts := make(map[string]int)
	for _, info := range infos {
		counts[info.State]++
	}
	return counts
}
