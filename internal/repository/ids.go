package repository

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewSessionID returns an opaque session identifier
func NewSessionID() string {
	return "session_" + shortUUID()
}

// NewMessageID returns an opaque message identifier
func NewMessageID() string {
	return "msg_" + shortUUID()
}

func shortUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// NextTimestamp returns now, or one microsecond past last when the clock has not
// advanced, so a session's messages never share or reverse creation times.
func NextTimestamp(last, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !last.IsZero() && !now.After(last) {
		return last.Add(time.Microsecond)
	}
	return now
}
