// Package room defines the chat message model and the event envelopes the hub
// hands to each connection's outbound queue.
package room

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of message kinds carried by the room.
type Kind string

// Message kinds.
const (
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindFile   Kind = "file"
	KindSystem Kind = "system"
)

// MediaKind is the declared media class of an uploaded blob.
type MediaKind string

// Media kinds.
const (
	MediaImage MediaKind = "image"
	MediaFile  MediaKind = "file"
)

// Message is a single chat event. It is never mutated after the hub accepts it.
type Message struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Sender    string    `json:"sender,omitempty"`
	Body      string    `json:"body,omitempty"`
	FileRef   string    `json:"fileRef,omitempty"`
	MediaKind MediaKind `json:"mediaKind,omitempty"`
	Name      string    `json:"name,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewText builds a text message body. Sender and timestamp are stamped by the hub.
func NewText(body string) Message {
	return Message{Kind: KindText, Body: body}
}

// NewAttachment builds an image or file message for a stored blob.
func NewAttachment(media MediaKind, ref, name string) Message {
	kind := KindFile
	if media == MediaImage {
		kind = KindImage
	}
	return Message{Kind: kind, FileRef: ref, MediaKind: media, Name: name}
}

func newSystem(body string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Kind:      KindSystem,
		Body:      body,
		Timestamp: now.UnixMilli(),
	}
}

// Validate checks that the message carries exactly the payload its kind requires.
func (m Message) Validate() error {
	switch m.Kind {
	case KindText:
		if strings.TrimSpace(m.Body) == "" {
			return fmt.Errorf("%w: text body is empty", ErrInvalidMessage)
		}
		if m.FileRef != "" {
			return fmt.Errorf("%w: text message carries a file reference", ErrInvalidMessage)
		}
	case KindImage, KindFile:
		if m.FileRef == "" {
			return fmt.Errorf("%w: %s message without file reference", ErrInvalidMessage, m.Kind)
		}
		want := MediaFile
		if m.Kind == KindImage {
			want = MediaImage
		}
		if m.MediaKind != want {
			return fmt.Errorf("%w: %s message declares media kind %q", ErrInvalidMessage, m.Kind, m.MediaKind)
		}
	case KindSystem:
		if m.Sender != "" {
			return fmt.Errorf("%w: system message with sender", ErrInvalidMessage)
		}
		if m.Body == "" {
			return fmt.Errorf("%w: system body is empty", ErrInvalidMessage)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}

	if m.Sender == "" {
		return fmt.Errorf("%w: %s message without sender", ErrInvalidMessage, m.Kind)
	}
	return nil
}

// EventType tags the envelopes written to a connection.
type EventType string

// Event types.
const (
	EventWelcome  EventType = "welcome"
	EventMessage  EventType = "message"
	EventPresence EventType = "presence"
	EventError    EventType = "error"
)

// PresenceType distinguishes presence changes.
type PresenceType string

// Presence change types.
const (
	PresenceJoined PresenceType = "joined"
	PresenceLeft   PresenceType = "left"
)

// Presence announces a join or leave together with the updated roster.
type Presence struct {
	Type        PresenceType `json:"type"`
	Name        string       `json:"name"`
	OnlineNames []string     `json:"onlineNames"`
}

// Welcome is the join handshake reply delivered to the joining connection.
type Welcome struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	History     []Message `json:"history"`
	OnlineNames []string  `json:"onlineNames"`
}

// Event is the envelope queued for a connection. Exactly one payload field is set,
// matching Type.
type Event struct {
	Type     EventType `json:"type"`
	Welcome  *Welcome  `json:"welcome,omitempty"`
	Message  *Message  `json:"message,omitempty"`
	Presence *Presence `json:"presence,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// MessageEvent wraps a message for delivery.
func MessageEvent(m Message) Event {
	return Event{Type: EventMessage, Message: &m}
}

// ErrorEvent wraps a client-facing error notice.
func ErrorEvent(text string) Event {
	return Event{Type: EventError, Error: text}
}
