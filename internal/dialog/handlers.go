package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skypro1111/voice-archive-bot/internal/audio"
	"github.com/skypro1111/voice-archive-bot/internal/session"
	"github.com/skypro1111/voice-archive-bot/internal/storage"
)

func (r *Router) handleCommand(ctx context.Context, s *session.Session, ev Event) Transition {
	switch ev.Command {
	case "start":
		return stay(s, text(msgStart), text(msgStartHelp))
	case "help":
		return stay(s, text(msgHelpAbout), text(msgHelpUsage))
	case "search":
		return Transition{
			Next: session.StateAwaitingSearchParameters,
			Actions: []Action{
				textWithKeyboard(msgSearchIntro, removeKeyboard()),
				text(msgSearchExample),
				text(msgSearchEnter),
			},
		}
	default:
		return r.help(s)
	}
}

func (r *Router) help(s *session.Session) Transition {
	return stay(s, text(msgHelpUsage))
}

func (r *Router) handleGreeting(ctx context.Context, s *session.Session, ev Event) Transition {
	name := ev.Username
	if name == "" {
		name = s.Username
	}

	return Transition{
		Next: session.StateAwaitingLanguageChoice,
		Actions: []Action{
			text(fmt.Sprintf(msgGreeting, name, ev.UserID)),
			textWithKeyboard(msgChooseLanguage, r.languageKeyboard()),
		},
	}
}

func (r *Router) handleLanguageChoice(ctx context.Context, s *session.Session, ev Event) Transition {
	tag := r.languageFor(ev.Text)

	r.logger.Info("Recognition language selected",
		slog.Int64("user_id", ev.UserID),
		slog.String("language", tag),
	)

	tr := reset(
		textWithKeyboard(fmt.Sprintf(msgLanguageSet, tag), removeKeyboard()),
		text(msgRecordPrompt),
	)
	tr.Language = tag
	return tr
}

func (r *Router) handleRecording(ctx context.Context, s *session.Session, ev Event) Transition {
	logger := r.logger.With(
		slog.Int64("user_id", ev.UserID),
		slog.String("trace_id", ev.TraceID),
	)

	if ev.Voice == nil {
		return r.help(s)
	}

	recording, err := r.messenger.Download(ctx, ev.Voice.FileID)
	if err != nil {
		logger.Error("Failed to download recording",
			slog.String("file_id", ev.Voice.FileID),
			slog.String("error", err.Error()),
		)
		return reset(text(msgRecognitionFailed))
	}

	var actions []Action
	if r.config.AdminChatID != 0 {
		actions = append(actions, Action{
			Kind:   recordingKind(recording),
			ChatID: r.config.AdminChatID,
			Audio:  recording,
			Text:   fmt.Sprintf(msgAdminCaption, s.Username, ev.UserID),
		})
	}

	result, err := r.transcriber.Run(ctx, recording, s.Language)
	if err != nil {
		var decodeErr *audio.DecodeError
		if errors.As(err, &decodeErr) {
			logger.Warn("Recording could not be decoded",
				slog.String("reason", decodeErr.Reason),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Error("Transcription failed", slog.String("error", err.Error()))
		}
		return reset(append(actions, text(msgRecognitionFailed))...)
	}

	logger.Info("Recording transcribed",
		slog.Int("bytes", len(recording)),
		slog.Int("segments", result.Attempted),
		slog.Int("failed_segments", result.Failed),
		slog.Int("chars", len([]rune(result.Text))),
	)

	if result.Empty() {
		return reset(append(actions, text(msgNotRecognized))...)
	}

	actions = append(actions, texts(result.Text)...)
	actions = append(actions, textWithKeyboard(msgSavePrompt, yesNoKeyboard()))

	return Transition{
		Next:    session.StateAwaitingSaveConfirmation,
		Pending: session.Pending{Transcript: result.Text, Audio: recording},
		Actions: actions,
	}
}

func (r *Router) handleSaveConfirmation(ctx context.Context, s *session.Session, ev Event) Transition {
	recordedAt := r.now().UTC()

	if isAffirmative(ev.Text) {
		return Transition{
			Next: session.StateAwaitingDescription,
			Pending: session.Pending{
				Transcript: s.Pending.Transcript,
				Audio:      s.Pending.Audio,
				RecordedAt: recordedAt,
			},
			Actions: []Action{textWithKeyboard(msgDescribePrompt, removeKeyboard())},
		}
	}

	if r.config.KeepDeclined {
		record := storage.Record{
			UserID:     ev.UserID,
			Timestamp:  recordedAt,
			Text:       s.Pending.Transcript,
			Language:   s.Language,
			Collection: storage.CollectionAnonymous,
			Audio:      s.Pending.Audio,
		}
		if _, err := r.store.Submit(ctx, record); err != nil {
			r.logger.Warn("Failed to keep declined transcript",
				slog.Int64("user_id", ev.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	return reset(textWithKeyboard(msgRecordPrompt, removeKeyboard()))
}

func (r *Router) handleDescription(ctx context.Context, s *session.Session, ev Event) Transition {
	recordedAt := s.Pending.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = r.now().UTC()
	}

	record := storage.Record{
		UserID:      ev.UserID,
		Timestamp:   recordedAt,
		Text:        s.Pending.Transcript,
		Language:    s.Language,
		Description: ev.Text,
		Collection:  storage.CollectionAnnotated,
		Audio:       s.Pending.Audio,
	}

	ack, err := r.store.Submit(ctx, record)
	if err != nil {
		r.logger.Error("Failed to save record",
			slog.Int64("user_id", ev.UserID),
			slog.String("trace_id", ev.TraceID),
			slog.String("error", err.Error()),
		)
		return reset(text(msgSaveFailed), text(msgRecordPrompt))
	}

	r.logger.Info("Record saved",
		slog.Int64("user_id", ev.UserID),
		slog.Int("status", ack.StatusCode),
		slog.String("time", storage.FormatTimestamp(recordedAt)),
	)
	return reset(text(msgSaved), text(msgRecordPrompt))
}

func (r *Router) handleSearchParameters(ctx context.Context, s *session.Session, ev Event) Transition {
	q, err := ParseSearch(ev.Text)
	if err != nil {
		r.logger.Debug("Rejected search parameters",
			slog.Int64("user_id", ev.UserID),
			slog.String("error", err.Error()),
		)
		return stay(s, text(msgSearchBadFmt), text(msgSearchExample), text(msgSearchRetry))
	}

	return Transition{
		Next:    session.StateAwaitingSearchConfirmationOfScope,
		Pending: session.Pending{Search: &q},
		Actions: []Action{textWithKeyboard(msgSearchScope, yesNoKeyboard())},
	}
}

func (r *Router) handleSearchScope(ctx context.Context, s *session.Session, ev Event) Transition {
	if s.Pending.Search == nil {
		return reset(text(msgHelpUsage))
	}

	q := *s.Pending.Search
	q.Collection = storage.CollectionAnonymous
	if isAffirmative(ev.Text) {
		q.Collection = storage.CollectionAnnotated
	}

	records, err := r.store.Search(ctx, q)
	if err != nil {
		r.logger.Error("Record search failed",
			slog.Int64("user_id", ev.UserID),
			slog.String("query", q.String()),
			slog.String("error", err.Error()),
		)
		return reset(textWithKeyboard(msgStoreDown, removeKeyboard()))
	}

	r.logger.Info("Record search completed",
		slog.Int64("user_id", ev.UserID),
		slog.String("query", q.String()),
		slog.Int("found", len(records)),
	)

	actions := []Action{textWithKeyboard(fmt.Sprintf(msgFound, len(records)), removeKeyboard())}
	for _, rec := range records {
		parts := SplitCaption(RecordCaption(rec), r.config.MaxCaptionLength)
		actions = append(actions, Action{
			Kind:      recordingKind(rec.Audio),
			Audio:     rec.Audio,
			Text:      parts[0],
			FollowUps: parts[1:],
		})
	}

	return reset(actions...)
}

// recordingKind sends WAV files as audio and everything else as voice
func recordingKind(data []byte) ActionKind {
	if audio.IsWAV(data) {
		return ActionSendAudio
	}
	return ActionSendVoice
}
