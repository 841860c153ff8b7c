package dialog

import (
	"fmt"
	"unicode/utf16"

	"github.com/skypro1111/voice-archive-bot/internal/storage"
)

// SplitCaption cuts text into slices of at most max UTF-16 code units, the
// unit Telegram counts message and caption limits in. A character is never
// split. The slices concatenate back to text; empty text yields one empty slice.
func SplitCaption(text string, max int) []string {
	if max <= 0 || utf16Len(text) <= max {
		return []string{text}
	}

	var parts []string
	start, units := 0, 0
	for i, r := range text {
		n := utf16.RuneLen(r)
		if n < 1 {
			n = 1
		}
		if units+n > max && i > start {
			parts = append(parts, text[start:i])
			start, units = i, 0
		}
		units += n
	}
	return append(parts, text[start:])
}

func utf16Len(text string) int {
	n := 0
	for _, r := range text {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// RecordCaption renders the caption sent with a retrieved recording
func RecordCaption(r storage.Record) string {
	return fmt.Sprintf(msgRecordCaption,
		r.Description,
		storage.FormatTimestamp(r.Timestamp),
		r.UserID,
		r.Language,
		r.Text,
	)
}
