package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/voice-archive-bot/internal/storage"
)

func TestDoCreatesSessionLazily(t *testing.T) {
	m := NewManager(nil, "uk-UA", nil)
	assert.Equal(t, 0, m.GetActiveSessionCount())

	err := m.Do(42, "alice", func(s *Session) error {
		assert.Equal(t, int64(42), s.UserID)
		assert.Equal(t, "uk-UA", s.Language)
		assert.Equal(t, StateIdle, s.State)
		assert.True(t, s.Pending.Empty())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, m.GetActiveSessionCount())

	info, ok := m.GetSession(42)
	require.True(t, ok)
	assert.Equal(t, "alice", info.Username)
	assert.Equal(t, "Idle", info.State)
	assert.Equal(t, uint64(1), info.Events)

	_, ok = m.GetSession(7)
	assert.False(t, ok)
}

func TestDoPropagatesError(t *testing.T) {
	m := NewManager(nil, "uk-UA", nil)
	err := m.Do(1, "", func(s *Session) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
}

func TestUsernameRefreshKeepsState(t *testing.T) {
	m := NewManager(nil, "uk-UA", nil)
	require.NoError(t, m.Do(1, "old", func(s *Session) error {
		s.Transition(StateAwaitingDescription, Pending{Transcript: "text"})
		return nil
	}))
	require.NoError(t, m.Do(1, "new", func(s *Session) error { return nil }))
	require.NoError(t, m.Do(1, "", func(s *Session) error { return nil }))

	info, _ := m.GetSession(1)
	assert.Equal(t, "new", info.Username)
	assert.Equal(t, "AwaitingDescription", info.State)
	assert.True(t, info.HasPending)
}

func TestSessionIsolation(t *testing.T) {
	m := NewManager(nil, "uk-UA", nil)

	require.NoError(t, m.Do(1, "a", func(s *Session) error {
		s.Transition(StateAwaitingSaveConfirmation, Pending{Transcript: "A", Audio: []byte("a")})
		return nil
	}))
	require.NoError(t, m.Do(2, "b", func(s *Session) error {
		q := storage.IdentityQuery(5)
		s.Transition(StateAwaitingSearchConfirmationOfScope, Pending{Search: &q})
		return nil
	}))

	require.NoError(t, m.Do(1, "a", func(s *Session) error {
		assert.Equal(t, "A", s.Pending.Transcript)
		assert.Nil(t, s.Pending.Search)
		return nil
	}))
	require.NoError(t, m.Do(2, "b", func(s *Session) error {
		assert.Equal(t, "", s.Pending.Transcript)
		require.NotNil(t, s.Pending.Search)
		assert.Equal(t, int64(5), s.Pending.Search.UserID)
		return nil
	}))

	counts := m.CountByState()
	assert.Equal(t, 1, counts["AwaitingSaveConfirmation"])
	assert.Equal(t, 1, counts["AwaitingSearchConfirmationOfScope"])
}

func TestDoSerializesPerUser(t *testing.T) {
	m := NewManager(nil, "uk-UA", nil)

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Do(9, "racer", func(s *Session) error {
				v := counter
				time.Sleep(time.Microsecond)
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 1, m.GetActiveSessionCount())
	info, _ := m.GetSession(9)
	assert.Equal(t, uint64(50), info.Events)
}

func TestDifferentUsersDoNotBlockEachOther(t *testing.T) {
	m := NewManager(nil, "uk-UA", nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = m.Do(1, "slow", func(s *Session) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		_ = m.Do(2, "fast", func(s *Session) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("user 2 was blocked by user 1")
	}
	close(release)
}

func TestTransitionCounting(t *testing.T) {
	s := &Session{State: StateIdle}
	s.Transition(StateIdle, Pending{})
	assert.Equal(t, uint64(0), s.Transitions)

	s.Transition(StateAwaitingLanguageChoice, Pending{})
	s.Transition(StateIdle, Pending{})
	assert.Equal(t, uint64(2), s.Transitions)
	assert.Equal(t, StateIdle, s.State)
}

func TestGetAllSessionsSorted(t *testing.T) {
	m := NewManager(nil, "en-US", nil)
	for _, id := range []int64{30, 10, 20} {
		require.NoError(t, m.Do(id, "", func(s *Session) error { return nil }))
	}

	infos := m.GetAllSessions()
	require.Len(t, infos, 3)
	assert.Equal(t, int64(10), infos[0].UserID)
	assert.Equal(t, int64(30), infos[2].UserID)
	assert.Equal(t, "en-US", infos[1].Language)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "AwaitingSearchParameters", StateAwaitingSearchParameters.String())
	assert.Equal(t, "Unknown", State(99).String())
}

func TestSnapshotsDoNotWaitForBusySession(t *testing.T) {
	m := NewManager(nil, "uk-UA", nil)
	require.NoError(t, m.Do(1, "slow", func(s *Session) error {
		s.Transition(StateAwaitingSaveConfirmation, Pending{Transcript: "text"})
		return nil
	}))

	entered := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_ = m.Do(1, "slow", func(s *Session) error {
			close(entered)
			<-release
			s.Transition(StateIdle, Pending{})
			return nil
		})
	}()
	<-entered

	read := make(chan []SessionInfo)
	go func() {
		infos := m.GetAllSessions()
		_, _ = m.GetSession(1)
		_ = m.CountByState()
		read <- infos
	}()

	var infos []SessionInfo
	select {
	case infos = <-read:
	case <-time.After(time.Second):
		t.Fatal("reading sessions waited for the busy session")
	}
	require.Len(t, infos, 1)
	assert.Equal(t, "AwaitingSaveConfirmation", infos[0].State)
	assert.Equal(t, uint64(2), infos[0].Events)

	close(release)
	<-finished

	info, ok := m.GetSession(1)
	require.True(t, ok)
	assert.Equal(t, "Idle", info.State)
	assert.False(t, info.HasPending)
	assert.Equal(t, uint64(2), info.Transitions)
}

func TestCountByStateFromSnapshots(t *testing.T) {
	counts := CountByState([]SessionInfo{{State: "Idle"}, {State: "Idle"}, {State: "AwaitingDescription"}})
	assert.Equal(t, map[string]int{"Idle": 2, "AwaitingDescription": 1}, counts)
}
