// Package server implements the HTTP and WebSocket surface of MiniChat.
//
// The implementation is organized into specialized files for configuration,
// origin checks, clients, routing, uploads, and HTTP handlers. Room state lives
// in the room package; this package only translates between sockets and the hub.
package server
