package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skypro1111/voice-archive-bot/internal/metrics"
	"github.com/skypro1111/voice-archive-bot/internal/session"
)

// Language is one entry of the language menu
type Language struct {
	Label string
	Tag   string
}

// Config holds dialog behaviour settings
type Config struct {
	Languages        []Language
	DefaultLanguage  string
	Greetings        []string
	MaxCaptionLength int
	AdminChatID      int64 // 0 disables forwarding recordings
	KeepDeclined     bool  // store declined transcripts in the anonymous collection
}

type handler func(ctx context.Context, s *session.Session, ev Event) Transition

type route struct {
	state session.State
	kind  EventKind
}

// Router decides, for every inbound event, the outbound messages and the
// next state of the sender's session
type Router struct {
	config      Config
	sessions    *session.Manager
	messenger   Messenger
	transcriber Transcriber
	store       RecordStore
	greetings   *GreetingMatcher
	routes      map[route]handler
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewRouter creates a router over the given session table and collaborators
func NewRouter(logger *slog.Logger, config Config, sessions *session.Manager, messenger Messenger, transcriber Transcriber, store RecordStore, m *metrics.Metrics) (*Router, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if len(config.Languages) == 0 {
		return nil, fmt.Errorf("at least one language is required")
	}
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = sessions.DefaultLanguage()
	}
	if config.MaxCaptionLength <= 0 {
		config.MaxCaptionLength = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{
		config:      config,
		sessions:    sessions,
		messenger:   messenger,
		transcriber: transcriber,
		store:       store,
		greetings:   NewGreetingMatcher(config.Greetings),
		logger:      logger,
		metrics:     m,
		now:         time.Now,
	}

	r.routes = map[route]handler{
		{session.StateIdle, EventVoice}:                             r.handleRecording,
		{session.StateAwaitingLanguageChoice, EventText}:            r.handleLanguageChoice,
		{session.StateAwaitingSaveConfirmation, EventText}:          r.handleSaveConfirmation,
		{session.StateAwaitingDescription, EventText}:               r.handleDescription,
		{session.StateAwaitingSearchParameters, EventText}:          r.handleSearchParameters,
		{session.StateAwaitingSearchConfirmationOfScope, EventText}: r.handleSearchScope,
	}

	return r, nil
}

// Route handles one event. The sender's session stays locked until the
// transition is applied and its messages are delivered, so events of one
// user are processed strictly in order.
func (r *Router) Route(ctx context.Context, ev Event) error {
	return r.sessions.Do(ev.UserID, ev.Username, func(s *session.Session) error {
		prev := s.State
		tr := r.dispatch(ctx, s, ev)

		if tr.Language != "" {
			s.Language = tr.Language
		}
		s.Transition(tr.Next, tr.Pending)
		if tr.Next != prev {
			r.metrics.RecordTransition(tr.Next.String())
			r.logger.Debug("Session transition",
				slog.Int64("user_id", ev.UserID),
				slog.String("trace_id", ev.TraceID),
				slog.String("from", prev.String()),
				slog.String("to", tr.Next.String()),
			)
		}

		return r.deliver(ctx, ev.UserID, tr.Actions)
	})
}

// dispatch applies the routing precedence: commands, then greetings from
// any state, then the state table, then the generic help reply
func (r *Router) dispatch(ctx context.Context, s *session.Session, ev Event) Transition {
	switch {
	case ev.Kind == EventCommand:
		return r.handleCommand(ctx, s, ev)
	case ev.Kind == EventText && r.greetings.Match(ev.Text):
		return r.handleGreeting(ctx, s, ev)
	}

	if h, ok := r.routes[route{s.State, ev.Kind}]; ok {
		return h(ctx, s, ev)
	}
	return r.help(s)
}

// deliver sends actions in order. A failed message does not stop the rest.
func (r *Router) deliver(ctx context.Context, userID int64, actions []Action) error {
	var errs []error

	for _, a := range actions {
		chatID := a.ChatID
		if chatID == 0 {
			chatID = userID
		}

		var err error
		switch a.Kind {
		case ActionSendText:
			_, err = r.messenger.SendText(ctx, chatID, a.Text, a.Keyboard)
		case ActionSendVoice, ActionSendAudio:
			err = r.deliverRecording(ctx, chatID, a)
		default:
			err = fmt.Errorf("unknown action kind %d", a.Kind)
		}

		if err != nil {
			r.logger.Error("Failed to deliver message",
				slog.Int64("chat_id", chatID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Router) deliverRecording(ctx context.Context, chatID int64, a Action) error {
	send := r.messenger.SendVoice
	if a.Kind == ActionSendAudio {
		send = r.messenger.SendAudio
	}

	messageID, err := send(ctx, chatID, a.Audio, a.Text)
	if err != nil {
		return fmt.Errorf("failed to send recording: %w", err)
	}

	for _, part := range a.FollowUps {
		if _, err := r.messenger.Reply(ctx, chatID, messageID, part); err != nil {
			return fmt.Errorf("failed to send caption continuation: %w", err)
		}
	}
	return nil
}

// stay keeps the session where it is
func stay(s *session.Session, actions ...Action) Transition {
	return Transition{Next: s.State, Pending: s.Pending, Actions: actions}
}

// reset returns the session to Idle
func reset(actions ...Action) Transition {
	return Transition{Next: session.StateIdle, Actions: actions}
}

func text(msg string) Action {
	return Action{Kind: ActionSendText, Text: msg}
}

func textWithKeyboard(msg string, kb *Keyboard) Action {
	return Action{Kind: ActionSendText, Text: msg, Keyboard: kb}
}

// texts splits msg into as many text messages as the transport needs
func texts(msg string) []Action {
	parts := SplitCaption(msg, maxMessageLength)
	actions := make([]Action, 0, len(parts))
	for _, p := range parts {
		actions = append(actions, text(p))
	}
	return actions
}

func yesNoKeyboard() *Keyboard {
	return &Keyboard{Rows: [][]string{{labelYes, labelNo}}}
}

func removeKeyboard() *Keyboard {
	return &Keyboard{Remove: true}
}

// languageKeyboard lays the language menu out two buttons per row
func (r *Router) languageKeyboard() *Keyboard {
	kb := &Keyboard{}
	for i := 0; i < len(r.config.Languages); i += 2 {
		row := []string{r.config.Languages[i].Label}
		if i+1 < len(r.config.Languages) {
			row = append(row, r.config.Languages[i+1].Label)
		}
		kb.Rows = append(kb.Rows, row)
	}
	return kb
}

// languageFor maps a menu label to its locale tag, falling back to the default
func (r *Router) languageFor(label string) string {
	label = strings.TrimSpace(label)
	for _, l := range r.config.Languages {
		if strings.EqualFold(l.Label, label) || strings.EqualFold(l.Tag, label) {
			return l.Tag
		}
	}
	return r.config.DefaultLanguage
}
