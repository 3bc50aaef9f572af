package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of every ledger date.
const DateLayout = "2006-01-02T15:04:05"

// Timestamp is a second-precision UTC instant serialised with DateLayout.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to the second and normalises it to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Second)}
}

// ParseTimestamp parses DateLayout, dropping any fractional seconds and a
// trailing Z.
func ParseTimestamp(s string) (Timestamp, error) {
	cleaned := strings.TrimSpace(s)
	if i := strings.IndexByte(cleaned, '.'); i >= 0 {
		cleaned = cleaned[:i]
	}
	cleaned = strings.TrimSuffix(cleaned, "Z")
	t, err := time.ParseInLocation(DateLayout, cleaned, time.UTC)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Timestamp{Time: t}, nil
}

func (t Timestamp) String() string {
	return t.UTC().Format(DateLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Ptr returns a pointer to a copy of t.
func (t Timestamp) Ptr() *Timestamp {
	return &t
}

// ExpiryAfter returns the expiry for a validity period of months, where a
// month is 30 days.
func ExpiryAfter(from time.Time, months int) Timestamp {
	return NewTimestamp(from.AddDate(0, 0, 30*months))
}
