package dialog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skypro1111/voice-archive-bot/internal/storage"
)

// FormatError reports search parameters that are neither an identity nor a time range
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid search parameters %q: %s", e.Input, e.Reason)
}

// ParseSearch parses one integer token as a user identity, or exactly two
// tokens as a UTC time range in storage.TimestampLayout
func ParseSearch(text string) (storage.Query, error) {
	fields := strings.Fields(text)

	switch len(fields) {
	case 1:
		id, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return storage.Query{}, &FormatError{Input: text, Reason: "identity must be an integer"}
		}
		return storage.IdentityQuery(id), nil

	case 2:
		from, err := time.Parse(storage.TimestampLayout, fields[0])
		if err != nil {
			return storage.Query{}, &FormatError{Input: text, Reason: "start is not a UTC timestamp"}
		}
		to, err := time.Parse(storage.TimestampLayout, fields[1])
		if err != nil {
			return storage.Query{}, &FormatError{Input: text, Reason: "end is not a UTC timestamp"}
		}
		if to.Before(from) {
			return storage.Query{}, &FormatError{Input: text, Reason: "end is before start"}
		}
		return storage.RangeQuery(from, to), nil

	default:
		return storage.Query{}, &FormatError{Input: text, Reason: "expected an identity or two timestamps"}
	}
}
