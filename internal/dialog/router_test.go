package dialog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/voice-archive-bot/internal/audio"
	"github.com/skypro1111/voice-archive-bot/internal/session"
	"github.com/skypro1111/voice-archive-bot/internal/storage"
	"github.com/skypro1111/voice-archive-bot/internal/transcription"
)

const testUser int64 = 42

type sentMessage struct {
	Kind     string
	ChatID   int64
	Text     string
	Keyboard *Keyboard
	ReplyTo  int
	Audio    []byte
	ID       int
}

type fakeMessenger struct {
	mu          sync.Mutex
	sent        []sentMessage
	files       map[string][]byte
	downloadErr error
	nextID      int
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{files: map[string][]byte{"voice-1": []byte("OggS recording")}, nextID: 100}
}

func (f *fakeMessenger) record(msg sentMessage) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg.ID = f.nextID
	f.sent = append(f.sent, msg)
	return msg.ID
}

func (f *fakeMessenger) SendText(ctx context.Context, chatID int64, text string, keyboard *Keyboard) (int, error) {
	return f.record(sentMessage{Kind: "text", ChatID: chatID, Text: text, Keyboard: keyboard}), nil
}

func (f *fakeMessenger) SendVoice(ctx context.Context, chatID int64, audio []byte, caption string) (int, error) {
	return f.record(sentMessage{Kind: "voice", ChatID: chatID, Text: caption, Audio: audio}), nil
}

func (f *fakeMessenger) SendAudio(ctx context.Context, chatID int64, audio []byte, caption string) (int, error) {
	return f.record(sentMessage{Kind: "audio", ChatID: chatID, Text: caption, Audio: audio}), nil
}

func (f *fakeMessenger) Reply(ctx context.Context, chatID int64, replyTo int, text string) (int, error) {
	return f.record(sentMessage{Kind: "reply", ChatID: chatID, Text: text, ReplyTo: replyTo}), nil
}

func (f *fakeMessenger) Download(ctx context.Context, fileID string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	data, ok := f.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	return data, nil
}

// take returns and clears everything sent so far
func (f *fakeMessenger) take() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

func sentTexts(msgs []sentMessage) []string {
	var out []string
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

type fakeTranscriber struct {
	result    *transcription.TranscriptResult
	err       error
	languages []string
}

func (f *fakeTranscriber) Run(ctx context.Context, recording []byte, languageTag string) (*transcription.TranscriptResult, error) {
	f.languages = append(f.languages, languageTag)
	return f.result, f.err
}

type fakeStore struct {
	submitted []storage.Record
	submitErr error
	queries   []storage.Query
	records   []storage.Record
	searchErr error
}

func (f *fakeStore) Submit(ctx context.Context, record storage.Record) (*storage.Ack, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, record)
	return &storage.Ack{StatusCode: 200}, nil
}

func (f *fakeStore) Search(ctx context.Context, q storage.Query) ([]storage.Record, error) {
	f.queries = append(f.queries, q)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.records, nil
}

type harness struct {
	router      *Router
	sessions    *session.Manager
	messenger   *fakeMessenger
	transcriber *fakeTranscriber
	store       *fakeStore
	now         time.Time
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{
		Languages: []Language{
			{Label: "українська", Tag: "uk-UA"},
			{Label: "російська", Tag: "ru-RU"},
			{Label: "англійська", Tag: "en-US"},
			{Label: "німецька", Tag: "de-DE"},
		},
		DefaultLanguage:  "uk-UA",
		Greetings:        []string{"привіт", "hello", "hi", "здравствуйте"},
		MaxCaptionLength: 1024,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		sessions:    session.NewManager(logger, "uk-UA", nil),
		messenger:   newFakeMessenger(),
		transcriber: &fakeTranscriber{result: &transcription.TranscriptResult{Text: "добрий день", Attempted: 1}},
		store:       &fakeStore{},
		now:         time.Date(2024, 3, 1, 10, 30, 0, 123456000, time.UTC),
	}

	router, err := NewRouter(logger, cfg, h.sessions, h.messenger, h.transcriber, h.store, nil)
	require.NoError(t, err)
	router.now = func() time.Time { return h.now }
	h.router = router

	return h
}

func (h *harness) send(t *testing.T, ev Event) []sentMessage {
	t.Helper()
	ev.UserID = testUser
	ev.Username = "tester"
	require.NoError(t, h.router.Route(context.Background(), ev))
	return h.messenger.take()
}

func (h *harness) text(t *testing.T, s string) []sentMessage {
	return h.send(t, Event{Kind: EventText, Text: s})
}

func (h *harness) command(t *testing.T, name string) []sentMessage {
	return h.send(t, Event{Kind: EventCommand, Command: name, Text: "/" + name})
}

func (h *harness) voice(t *testing.T) []sentMessage {
	return h.send(t, Event{Kind: EventVoice, Voice: &VoiceRef{FileID: "voice-1"}})
}

func (h *harness) state(t *testing.T) session.SessionInfo {
	t.Helper()
	info, ok := h.sessions.GetSession(testUser)
	require.True(t, ok)
	return info
}

func TestNewRouter_Validation(t *testing.T) {
	sessions := session.NewManager(nil, "uk-UA", nil)
	cfg := Config{Languages: []Language{{Label: "українська", Tag: "uk-UA"}}}

	_, err := NewRouter(nil, cfg, nil, newFakeMessenger(), &fakeTranscriber{}, &fakeStore{}, nil)
	assert.Error(t, err)

	_, err = NewRouter(nil, cfg, sessions, nil, &fakeTranscriber{}, &fakeStore{}, nil)
	assert.Error(t, err)

	_, err = NewRouter(nil, Config{}, sessions, newFakeMessenger(), &fakeTranscriber{}, &fakeStore{}, nil)
	assert.Error(t, err)

	r, err := NewRouter(nil, cfg, sessions, newFakeMessenger(), &fakeTranscriber{}, &fakeStore{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "uk-UA", r.config.DefaultLanguage)
	assert.Equal(t, 1024, r.config.MaxCaptionLength)
}

func TestRouter_Commands(t *testing.T) {
	h := newHarness(t, nil)

	msgs := h.command(t, "start")
	assert.Equal(t, []string{msgStart, msgStartHelp}, sentTexts(msgs))
	assert.Equal(t, "Idle", h.state(t).State)

	msgs = h.command(t, "help")
	assert.Equal(t, []string{msgHelpAbout, msgHelpUsage}, sentTexts(msgs))

	msgs = h.command(t, "unknown")
	assert.Equal(t, []string{msgHelpUsage}, sentTexts(msgs))
	assert.Equal(t, "Idle", h.state(t).State)
}

func TestRouter_UnmatchedTextGetsHelp(t *testing.T) {
	h := newHarness(t, nil)

	msgs := h.text(t, "what is this")
	assert.Equal(t, []string{msgHelpUsage}, sentTexts(msgs))
	assert.Equal(t, "Idle", h.state(t).State)
	assert.Equal(t, uint64(0), h.state(t).Transitions)
}

func TestRouter_GreetingShowsLanguageMenu(t *testing.T) {
	h := newHarness(t, nil)

	msgs := h.text(t, "Привіт!")
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Text, "tester ~ 42")
	assert.Equal(t, msgChooseLanguage, msgs[1].Text)
	require.NotNil(t, msgs[1].Keyboard)
	assert.Equal(t, [][]string{{"українська", "російська"}, {"англійська", "німецька"}}, msgs[1].Keyboard.Rows)
	assert.Equal(t, "AwaitingLanguageChoice", h.state(t).State)
}

func TestRouter_LanguageChoice(t *testing.T) {
	tests := []struct {
		name   string
		choice string
		want   string
	}{
		{"menu label", "англійська", "en-US"},
		{"label in another case", "Німецька", "de-DE"},
		{"locale tag", "ru-RU", "ru-RU"},
		{"unknown falls back to default", "klingon", "uk-UA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.text(t, "hello")

			msgs := h.text(t, tt.choice)
			require.Len(t, msgs, 2)
			assert.Equal(t, fmt.Sprintf(msgLanguageSet, tt.want), msgs[0].Text)
			require.NotNil(t, msgs[0].Keyboard)
			assert.True(t, msgs[0].Keyboard.Remove)
			assert.Equal(t, msgRecordPrompt, msgs[1].Text)

			info := h.state(t)
			assert.Equal(t, "Idle", info.State)
			assert.Equal(t, tt.want, info.Language)
		})
	}
}

func TestRouter_SaveFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.text(t, "hello")
	h.text(t, "англійська")

	msgs := h.voice(t)
	assert.Equal(t, []string{"en-US"}, h.transcriber.languages)
	require.Len(t, msgs, 2)
	assert.Equal(t, "добрий день", msgs[0].Text)
	assert.Equal(t, msgSavePrompt, msgs[1].Text)
	assert.Equal(t, [][]string{{labelYes, labelNo}}, msgs[1].Keyboard.Rows)
	assert.Equal(t, "AwaitingSaveConfirmation", h.state(t).State)
	assert.True(t, h.state(t).HasPending)

	msgs = h.text(t, "Так")
	assert.Equal(t, []string{msgDescribePrompt}, sentTexts(msgs))
	assert.Equal(t, "AwaitingDescription", h.state(t).State)

	// the timestamp is taken at confirmation, not at description
	confirmedAt := h.now
	h.now = h.now.Add(time.Minute)

	msgs = h.text(t, "weekly sync")
	assert.Equal(t, []string{msgSaved, msgRecordPrompt}, sentTexts(msgs))

	require.Len(t, h.store.submitted, 1)
	rec := h.store.submitted[0]
	assert.Equal(t, testUser, rec.UserID)
	assert.Equal(t, "добрий день", rec.Text)
	assert.Equal(t, "en-US", rec.Language)
	assert.Equal(t, "weekly sync", rec.Description)
	assert.Equal(t, storage.CollectionAnnotated, rec.Collection)
	assert.Equal(t, []byte("OggS recording"), rec.Audio)
	assert.True(t, confirmedAt.Equal(rec.Timestamp))

	info := h.state(t)
	assert.Equal(t, "Idle", info.State)
	assert.False(t, info.HasPending)
}

func TestRouter_SaveFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.store.submitErr = errors.New("connection refused")

	h.voice(t)
	h.text(t, "так")
	msgs := h.text(t, "desc")

	assert.Equal(t, []string{msgSaveFailed, msgRecordPrompt}, sentTexts(msgs))
	assert.Equal(t, "Idle", h.state(t).State)
	assert.False(t, h.state(t).HasPending)
}

func TestRouter_DeclineDiscards(t *testing.T) {
	h := newHarness(t, nil)
	h.voice(t)

	msgs := h.text(t, "Ні")
	assert.Equal(t, []string{msgRecordPrompt}, sentTexts(msgs))
	assert.Empty(t, h.store.submitted)
	assert.Equal(t, "Idle", h.state(t).State)
	assert.False(t, h.state(t).HasPending)
}

func TestRouter_DeclineKeepsAnonymousRecord(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.KeepDeclined = true })
	h.voice(t)
	h.text(t, "ні")

	require.Len(t, h.store.submitted, 1)
	rec := h.store.submitted[0]
	assert.Equal(t, storage.CollectionAnonymous, rec.Collection)
	assert.Empty(t, rec.Description)
	assert.True(t, h.now.Equal(rec.Timestamp))
}

func TestRouter_GreetingDiscardsPendingTranscript(t *testing.T) {
	h := newHarness(t, nil)
	h.voice(t)
	h.text(t, "так")
	require.Equal(t, "AwaitingDescription", h.state(t).State)

	msgs := h.text(t, "hi")
	require.Len(t, msgs, 2)
	assert.Equal(t, msgChooseLanguage, msgs[1].Text)

	info := h.state(t)
	assert.Equal(t, "AwaitingLanguageChoice", info.State)
	assert.False(t, info.HasPending)
	assert.Empty(t, h.store.submitted)
}

func TestRouter_RecognitionFailures(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(h *harness)
		wantMessage string
	}{
		{
			name: "undecodable recording",
			setup: func(h *harness) {
				h.transcriber.err = &audio.DecodeError{Reason: "unreadable WAV"}
			},
			wantMessage: msgRecognitionFailed,
		},
		{
			name: "download fails",
			setup: func(h *harness) {
				h.messenger.downloadErr = errors.New("file expired")
			},
			wantMessage: msgRecognitionFailed,
		},
		{
			name: "nothing recognized",
			setup: func(h *harness) {
				h.transcriber.result = &transcription.TranscriptResult{Attempted: 2, Failed: 2}
			},
			wantMessage: msgNotRecognized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			tt.setup(h)

			msgs := h.voice(t)
			assert.Equal(t, []string{tt.wantMessage}, sentTexts(msgs))
			assert.Equal(t, "Idle", h.state(t).State)
			assert.False(t, h.state(t).HasPending)
		})
	}
}

func TestRouter_VoiceOutsideIdleGetsHelp(t *testing.T) {
	h := newHarness(t, nil)
	h.voice(t)
	h.transcriber.languages = nil

	msgs := h.voice(t)
	assert.Equal(t, []string{msgHelpUsage}, sentTexts(msgs))
	assert.Empty(t, h.transcriber.languages)
	assert.Equal(t, "AwaitingSaveConfirmation", h.state(t).State)
	assert.True(t, h.state(t).HasPending)
}

func TestRouter_LongTranscriptIsSplit(t *testing.T) {
	h := newHarness(t, nil)
	long := strings.Repeat("слово ", 1000)
	h.transcriber.result = &transcription.TranscriptResult{Text: long, Attempted: 3}

	msgs := h.voice(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, long, msgs[0].Text+msgs[1].Text)
	assert.Equal(t, msgSavePrompt, msgs[2].Text)
}

func TestRouter_AdminForward(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.AdminChatID = 999 })

	msgs := h.voice(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, "voice", msgs[0].Kind)
	assert.Equal(t, int64(999), msgs[0].ChatID)
	assert.Equal(t, "username ~ tester \nchat_id ~ 42", msgs[0].Text)
	assert.Equal(t, testUser, msgs[1].ChatID)
}

func TestRouter_SearchFlow(t *testing.T) {
	h := newHarness(t, nil)

	msgs := h.command(t, "search")
	assert.Equal(t, []string{msgSearchIntro, msgSearchExample, msgSearchEnter}, sentTexts(msgs))
	assert.Equal(t, "AwaitingSearchParameters", h.state(t).State)

	msgs = h.text(t, "last week")
	assert.Equal(t, []string{msgSearchBadFmt, msgSearchExample, msgSearchRetry}, sentTexts(msgs))
	assert.Equal(t, "AwaitingSearchParameters", h.state(t).State)

	msgs = h.text(t, "42")
	assert.Equal(t, []string{msgSearchScope}, sentTexts(msgs))
	assert.Equal(t, "AwaitingSearchConfirmationOfScope", h.state(t).State)

	msgs = h.text(t, "Так")
	require.Len(t, msgs, 1)
	assert.Equal(t, "Знайдено записів: 0", msgs[0].Text)
	assert.True(t, msgs[0].Keyboard.Remove)

	require.Len(t, h.store.queries, 1)
	q := h.store.queries[0]
	assert.Equal(t, storage.QueryByIdentity, q.Kind)
	assert.Equal(t, testUser, q.UserID)
	assert.Equal(t, storage.CollectionAnnotated, q.Collection)
	assert.Equal(t, "Idle", h.state(t).State)
}

func TestRouter_SearchAnonymousScope(t *testing.T) {
	h := newHarness(t, nil)
	h.command(t, "search")
	h.text(t, "2021-12-18T00:00:00.000000Z 2021-12-19T00:00:00.000000Z")
	h.text(t, "ні")

	require.Len(t, h.store.queries, 1)
	assert.Equal(t, storage.QueryByTimeRange, h.store.queries[0].Kind)
	assert.Equal(t, storage.CollectionAnonymous, h.store.queries[0].Collection)
}

func TestRouter_SearchDeliversRecordings(t *testing.T) {
	h := newHarness(t, nil)
	h.store.records = []storage.Record{
		{
			UserID:      7,
			Timestamp:   time.Date(2021, 12, 18, 12, 0, 0, 0, time.UTC),
			Text:        strings.Repeat("a", 2500),
			Language:    "uk-UA",
			Description: "long one",
			Audio:       []byte("OggS 1"),
		},
		{
			UserID:    8,
			Timestamp: time.Date(2021, 12, 18, 13, 0, 0, 0, time.UTC),
			Text:      "short",
			Language:  "en-US",
			Audio:     append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 32)...),
		},
	}

	h.command(t, "search")
	h.text(t, "7")
	msgs := h.text(t, "так")

	caption := RecordCaption(h.store.records[0])
	parts := SplitCaption(caption, 1024)
	require.Len(t, parts, 3)

	// count line, voice plus two replies, audio
	require.Len(t, msgs, 5)
	assert.Equal(t, "Знайдено записів: 2", msgs[0].Text)

	assert.Equal(t, "voice", msgs[1].Kind)
	assert.Equal(t, parts[0], msgs[1].Text)
	assert.Equal(t, "reply", msgs[2].Kind)
	assert.Equal(t, msgs[1].ID, msgs[2].ReplyTo)
	assert.Equal(t, "reply", msgs[3].Kind)
	assert.Equal(t, msgs[1].ID, msgs[3].ReplyTo)
	assert.Equal(t, caption, msgs[1].Text+msgs[2].Text+msgs[3].Text)

	assert.Equal(t, "audio", msgs[4].Kind)
	assert.Equal(t, RecordCaption(h.store.records[1]), msgs[4].Text)
}

func TestRouter_SearchStoreUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.store.searchErr = &storage.TransportError{Op: "query", Err: errors.New("connection refused")}

	h.command(t, "search")
	h.text(t, "42")
	msgs := h.text(t, "так")

	assert.Equal(t, []string{msgStoreDown}, sentTexts(msgs))
	assert.Equal(t, "Idle", h.state(t).State)
	assert.False(t, h.state(t).HasPending)
}

func TestRouter_SearchCommandDiscardsPendingTranscript(t *testing.T) {
	h := newHarness(t, nil)
	h.voice(t)
	require.True(t, h.state(t).HasPending)

	h.command(t, "search")
	info := h.state(t)
	assert.Equal(t, "AwaitingSearchParameters", info.State)
	assert.False(t, info.HasPending)
}

func TestRouter_UsersAreIndependent(t *testing.T) {
	h := newHarness(t, nil)
	h.voice(t)

	ctx := context.Background()
	require.NoError(t, h.router.Route(ctx, Event{UserID: 7, Kind: EventText, Text: "так"}))

	other, ok := h.sessions.GetSession(7)
	require.True(t, ok)
	assert.Equal(t, "Idle", other.State)
	assert.Equal(t, "AwaitingSaveConfirmation", h.state(t).State)
}
