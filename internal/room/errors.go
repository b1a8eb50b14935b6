package room

import "errors"

// Sentinel errors for hub operations.
var (
	// ErrNotJoined is returned when a connection posts before completing the join handshake.
	ErrNotJoined = errors.New("connection has not joined the room")

	// ErrAlreadyJoined is returned when a joined connection tries to join again.
	ErrAlreadyJoined = errors.New("connection already joined")

	// ErrUnknownConnection is returned for identities the hub has no record of,
	// including connections that have already left.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrDuplicateConnection is returned when an identity is registered twice.
	ErrDuplicateConnection = errors.New("connection identity already registered")

	// ErrInvalidMessage is returned when a message payload does not match its kind.
	ErrInvalidMessage = errors.New("invalid message")
)

// ErrClosed is returned by operations on a hub that has been shut down.
var ErrClosed = errors.New("hub is shut down")
