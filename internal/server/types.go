// Package server defines the inbound frame format and utility helpers that are
// reused across the transport adapter and HTTP handlers.
package server

import (
	"errors"
	"strings"
)

// ErrMalformedEvent is returned for frames that cannot be decoded or carry an
// unknown type. The connection that sent one is closed.
var ErrMalformedEvent = errors.New("malformed event")

// Inbound frame types.
const (
	frameJoin  = "join"
	frameText  = "text"
	frameImage = "image"
	frameFile  = "file"
)

// inboundFrame is the JSON shape clients send over the socket.
type inboundFrame struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Body    string `json:"body,omitempty"`
	FileRef string `json:"fileRef,omitempty"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
