package storage

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Collections partition records by whether the user annotated them
const (
	CollectionAnnotated = "user"
	CollectionAnonymous = "undefined_user"
)

// TimestampLayout is the wire format of record timestamps: UTC with microseconds
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Record is one archived recording
type Record struct {
	UserID      int64     `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	Text        string    `json:"text"`
	Language    string    `json:"language"`
	Description string    `json:"description,omitempty"`
	Collection  string    `json:"collection,omitempty"`
	Audio       []byte    `json:"-"`
}

// CollectionFor returns the collection a record with the given description belongs to
func CollectionFor(description string) string {
	if strings.TrimSpace(description) == "" {
		return CollectionAnonymous
	}
	return CollectionAnnotated
}

// FormatTimestamp renders t in the wire format
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses the wire format, also accepting any RFC3339 time
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t.UTC(), nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: expected %s", s, TimestampLayout)
	}
	return t.UTC(), nil
}

// EncodeAudio encodes raw audio for the wire
func EncodeAudio(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeAudio decodes audio received from the record store
func DecodeAudio(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio: %w", err)
	}
	return data, nil
}

// wireRecord is the JSON shape exchanged with the record store
type wireRecord struct {
	UserID      flexInt64 `json:"user_id"`
	Text        string    `json:"text"`
	Description string    `json:"description,omitempty"`
	SpeechBytes string    `json:"speech_bytes"`
	Language    string    `json:"language"`
	Timestamp   wireDate  `json:"timestamp"`
	Collection  string    `json:"collection,omitempty"`
}

func toWire(r Record) wireRecord {
	return wireRecord{
		UserID:      flexInt64(r.UserID),
		Text:        r.Text,
		Description: r.Description,
		SpeechBytes: EncodeAudio(r.Audio),
		Language:    r.Language,
		Timestamp:   wireDate{Time: r.Timestamp},
		Collection:  r.Collection,
	}
}

func fromWire(w wireRecord) (Record, error) {
	audio, err := DecodeAudio(w.SpeechBytes)
	if err != nil {
		return Record{}, err
	}

	return Record{
		UserID:      int64(w.UserID),
		Timestamp:   w.Timestamp.Time,
		Text:        w.Text,
		Language:    w.Language,
		Description: w.Description,
		Collection:  w.Collection,
		Audio:       audio,
	}, nil
}

// flexInt64 accepts a JSON number or a numeric string
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("user_id: %w", err)
	}
	*f = flexInt64(v)
	return nil
}

// wireDate is sent as a plain timestamp string and read back either as a
// string or as an extended-JSON date:
// {"$date": "<RFC3339>"}, {"$date": <epoch ms>} or {"$date": {"$numberLong": "<epoch ms>"}}
type wireDate struct {
	time.Time
}

func (d wireDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(FormatTimestamp(d.Time))
}

func (d *wireDate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		d.Time = time.Time{}
		return nil
	}

	if b[0] != '{' {
		t, err := parseDateValue(b)
		if err != nil {
			return err
		}
		d.Time = t
		return nil
	}

	var wrapper struct {
		Date json.RawMessage `json:"$date"`
	}
	if err := json.Unmarshal(b, &wrapper); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if len(wrapper.Date) == 0 {
		return fmt.Errorf("timestamp: missing $date")
	}

	t, err := parseDateValue(wrapper.Date)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// parseDateValue parses a $date payload: string, epoch milliseconds or $numberLong
func parseDateValue(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseTimestamp(s)
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}

	var long struct {
		NumberLong string `json:"$numberLong"`
	}
	if err := json.Unmarshal(raw, &long); err == nil && long.NumberLong != "" {
		v, err := strconv.ParseInt(long.NumberLong, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp: invalid $numberLong %q", long.NumberLong)
		}
		return time.UnixMilli(v).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("timestamp: unsupported $date value %s", string(raw))
}
