package telegram

import (
	"path"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/skypro1111/voice-archive-bot/internal/dialog"
)

// toEvent converts an update into a dialog event. Updates that are not
// messages, or messages the bot cannot act on, are reported as not ok.
func toEvent(update tgbotapi.Update) (dialog.Event, bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return dialog.Event{}, false
	}

	ev := dialog.Event{
		UserID:     msg.Chat.ID,
		Username:   msg.Chat.UserName,
		MessageID:  msg.MessageID,
		ReceivedAt: time.Unix(int64(msg.Date), 0).UTC(),
	}
	if ev.Username == "" && msg.From != nil {
		ev.Username = msg.From.UserName
	}

	switch {
	case msg.IsCommand():
		ev.Kind = dialog.EventCommand
		ev.Command = strings.ToLower(msg.Command())
		ev.Text = msg.Text
	case msg.Voice != nil:
		ev.Kind = dialog.EventVoice
		ev.Voice = &dialog.VoiceRef{
			FileID:   msg.Voice.FileID,
			MimeType: msg.Voice.MimeType,
			Duration: msg.Voice.Duration,
		}
	case msg.Audio != nil:
		ev.Kind = dialog.EventVoice
		ev.Voice = &dialog.VoiceRef{
			FileID:   msg.Audio.FileID,
			FileName: msg.Audio.FileName,
			MimeType: msg.Audio.MimeType,
			Duration: msg.Audio.Duration,
		}
	case msg.Document != nil && isAudioDocument(msg.Document):
		ev.Kind = dialog.EventVoice
		ev.Voice = &dialog.VoiceRef{
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
			MimeType: msg.Document.MimeType,
		}
	case strings.TrimSpace(msg.Text) != "":
		ev.Kind = dialog.EventText
		ev.Text = msg.Text
	default:
		return dialog.Event{}, false
	}

	return ev, true
}

// isAudioDocument accepts WAV and other audio files sent as documents
func isAudioDocument(doc *tgbotapi.Document) bool {
	if strings.HasPrefix(doc.MimeType, "audio/") {
		return true
	}
	switch strings.ToLower(path.Ext(doc.FileName)) {
	case ".wav", ".ogg", ".oga", ".mp3", ".m4a", ".flac":
		return true
	}
	return false
}

// keyboardMarkup converts a dialog keyboard into Bot API reply markup
func keyboardMarkup(kb *dialog.Keyboard) any {
	if kb == nil {
		return nil
	}
	if kb.Remove {
		return tgbotapi.NewRemoveKeyboard(true)
	}
	if len(kb.Rows) == 0 {
		return nil
	}

	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, labels := range kb.Rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(labels))
		for _, label := range labels {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
	}

	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.ResizeKeyboard = true
	markup.OneTimeKeyboard = true
	return markup
}
