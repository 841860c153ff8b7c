package dialog

import (
	"context"
	"time"

	"github.com/skypro1111/voice-archive-bot/internal/session"
	"github.com/skypro1111/voice-archive-bot/internal/storage"
	"github.com/skypro1111/voice-archive-bot/internal/transcription"
)

// EventKind classifies an inbound message
type EventKind int

const (
	EventText EventKind = iota
	EventCommand
	EventVoice
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventCommand:
		return "command"
	case EventVoice:
		return "voice"
	default:
		return "unknown"
	}
}

// VoiceRef points at a recording held by the transport
type VoiceRef struct {
	FileID   string
	FileName string
	MimeType string
	Duration int // seconds, as reported by the transport
}

// Event is one inbound message from a user
type Event struct {
	UserID     int64
	Username   string
	Kind       EventKind
	Command    string // lower case, without the leading slash
	Text       string
	Voice      *VoiceRef
	MessageID  int
	ReceivedAt time.Time
	TraceID    string
}

// ActionKind selects the outbound message type
type ActionKind int

const (
	ActionSendText ActionKind = iota
	ActionSendVoice
	ActionSendAudio
)

// Keyboard is a reply keyboard. Remove hides a previously shown keyboard.
type Keyboard struct {
	Rows   [][]string
	Remove bool
}

// Action is one outbound message. ChatID 0 addresses the event's user.
// For voice and audio, Text is the caption and each FollowUp is sent as a
// reply to the delivered recording.
type Action struct {
	Kind      ActionKind
	ChatID    int64
	Text      string
	Audio     []byte
	Keyboard  *Keyboard
	FollowUps []string
}

// Transition is the outcome of handling one event: the next state, the
// pending context that goes with it, an optional language change and the
// messages to send. It is applied to the session in one step.
type Transition struct {
	Next     session.State
	Pending  session.Pending
	Language string
	Actions  []Action
}

// Messenger delivers outbound messages and fetches inbound recordings
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, keyboard *Keyboard) (int, error)
	SendVoice(ctx context.Context, chatID int64, audio []byte, caption string) (int, error)
	SendAudio(ctx context.Context, chatID int64, audio []byte, caption string) (int, error)
	Reply(ctx context.Context, chatID int64, replyTo int, text string) (int, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Transcriber turns a recording into text
type Transcriber interface {
	Run(ctx context.Context, recording []byte, languageTag string) (*transcription.TranscriptResult, error)
}

// RecordStore persists and searches records
type RecordStore interface {
	Submit(ctx context.Context, record storage.Record) (*storage.Ack, error)
	Search(ctx context.Context, q storage.Query) ([]storage.Record, error)
}
