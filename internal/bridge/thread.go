package bridge

import (
	"context"
	"iter"
)

// Payload is a static unit of content for a single platform post.
type Payload struct {
	Markdown string
	Files    []FilePayload
}

// FilePayload is a file attached to a post.
type FilePayload struct {
	Name     string
	MimeType string
	Data     []byte
}

// Attachment is media carried by a stored thread message. Data may be inline
// or fetched lazily via Fetch.
type Attachment struct {
	Kind     string // "image" or "file"
	MimeType string
	Name     string
	URL      string
	Data     []byte
	Fetch    func(ctx context.Context) ([]byte, error)
}

// ThreadMessage is one stored message of a thread's log.
type ThreadMessage struct {
	ID          string
	FromMe      bool
	AuthorID    string
	Text        string
	Attachments []Attachment
}

// Thread is the narrow contract a platform adapter exposes for one
// conversation thread. Post errors are classified at the adapter boundary:
// transient network failures arrive wrapped as core.ErrKindTransientNetwork.
type Thread interface {
	ID() string
	Post(ctx context.Context, p Payload) error
	// History returns the thread's stored messages, oldest first,
	// including the triggering message.
	History(ctx context.Context) ([]ThreadMessage, error)
	MaxMessageLength() int
}

// LiveThread is implemented by platforms that can render a message
// incrementally. PostLive consumes the fragment sequence to exhaustion and
// returns once the platform has accepted the full message.
type LiveThread interface {
	Thread
	PostLive(ctx context.Context, fragments iter.Seq[string]) error
}

// SupportsLiveStream reports whether t can render incrementally.
func SupportsLiveStream(t Thread) bool {
	_, ok := t.(LiveThread)
	return ok
}
