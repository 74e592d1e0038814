package transcript

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies who spoke.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Entry is one finalized caption line.
type Entry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Pending is the caption text of the turn in progress.
type Pending struct {
	User  string `json:"user"`
	Model string `json:"model"`
}

// Buffer accumulates caption fragments until the turn completes. It is not
// safe for concurrent use; the session controller owns it.
type Buffer struct {
	user  strings.Builder
	model strings.Builder
}

// Append adds a fragment to the side named by role. Unknown roles are
// rejected.
func (b *Buffer) Append(role Role, text string) error {
	switch role {
	case RoleUser:
		b.user.WriteString(text)
	case RoleModel:
		b.model.WriteString(text)
	default:
		return fmt.Errorf("unknown transcript role %q", role)
	}
	return nil
}

// Pending returns the text accumulated so far.
func (b *Buffer) Pending() Pending {
	return Pending{User: b.user.String(), Model: b.model.String()}
}

// Empty reports whether nothing has been buffered.
func (b *Buffer) Empty() bool {
	return b.user.Len() == 0 && b.model.Len() == 0
}

// Flush turns the buffer into a user entry and a model entry, in that
// order, and resets it. Both entries are produced even when a side is
// empty.
func (b *Buffer) Flush(now time.Time) []Entry {
	stamp := now.UnixMilli()
	entries := []Entry{
		{ID: fmt.Sprintf("%d-u", stamp), Role: RoleUser, Text: b.user.String(), Timestamp: now},
		{ID: fmt.Sprintf("%d-m", stamp), Role: RoleModel, Text: b.model.String(), Timestamp: now},
	}
	b.Reset()
	return entries
}

// Reset discards buffered text.
func (b *Buffer) Reset() {
	b.user.Reset()
	b.model.Reset()
}
