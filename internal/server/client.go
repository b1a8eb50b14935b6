// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/minichat/internal/room"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Error texts sent back to a single client.
const (
	errTextNotJoined     = "not joined"
	errTextAlreadyJoined = "already joined"
	errTextBadReference  = "invalid file reference"
	errTextInvalid       = "invalid message"
)

// attachmentStore resolves a client-supplied upload reference to the media kind
// of the stored content.
type attachmentStore interface {
	Lookup(ref string) (room.MediaKind, bool)
}

// Client represents a WebSocket client connection in the chat system.
// It owns the socket and translates between frames and hub calls; the hub
// owns the outbound queue.
type Client struct {
	conn           *websocket.Conn
	hub            *room.Hub
	rc             *room.Connection
	store          attachmentStore
	addr           string
	logger         *zap.Logger
	maxMessageSize int64
	rateLimiter    *rate.Limiter
	rateLimit      RateLimitConfig
}

// NewClient creates a new Client for a connection already registered with hub.
func NewClient(conn *websocket.Conn, hub *room.Hub, rc *room.Connection, store attachmentStore, addr string, cfg *Config, logger *zap.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		conn:           conn,
		hub:            hub,
		rc:             rc,
		store:          store,
		addr:           addr,
		logger:         logger.With(zap.String("conn", rc.ID()), zap.String("remote", addr)),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the hub identity of this client.
func (c *Client) ID() string {
	return c.rc.ID()
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("set initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("set read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn("frame exceeded maximum size", zap.Int64("limit", c.maxMessageSize))
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.logger.Debug("client disconnected", zap.Error(err))
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.logger.Debug("connection closed", zap.Error(err))
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.logger.Warn("unexpected websocket close", zap.Error(err))
		return true
	}

	c.logger.Warn("websocket read error", zap.Error(err))
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the frame should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		c.logger.Warn("rate limit exceeded; discarding frame",
			zap.Int("burst", c.rateLimit.Burst),
			zap.Duration("interval", c.rateLimit.RefillInterval))
		return false
	}
	return true
}

// join enters the room under name.
func (c *Client) join(name string) error {
	_, err := c.hub.Join(c.ID(), name)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, room.ErrAlreadyJoined):
		c.reply(errTextAlreadyJoined)
		return nil
	default:
		return err
	}
}

// processFrame decodes one inbound frame and hands it to the hub. Only
// ErrMalformedEvent and hub failures that end the session are returned.
func (c *Client) processFrame(raw []byte) error {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch frame.Type {
	case frameJoin:
		return c.join(frame.Name)
	case frameText:
		body := strings.TrimSpace(frame.Body)
		if body == "" {
			return nil
		}
		c.post(room.NewText(body))
		return nil
	case frameImage, frameFile:
		kind, ok := c.store.Lookup(frame.FileRef)
		if !ok {
			c.reply(errTextBadReference)
			return nil
		}
		c.post(room.NewAttachment(kind, frame.FileRef, frame.Name))
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, frame.Type)
	}
}

func (c *Client) post(m room.Message) {
	_, err := c.hub.Post(c.ID(), m)
	switch {
	case err == nil:
	case errors.Is(err, room.ErrNotJoined):
		c.reply(errTextNotJoined)
	case errors.Is(err, room.ErrInvalidMessage):
		c.logger.Debug("rejected message", zap.Error(err))
		c.reply(errTextInvalid)
	default:
		c.logger.Warn("post failed", zap.Error(err))
	}
}

// reply queues an error event for this client only.
func (c *Client) reply(text string) {
	c.hub.Send(c.ID(), room.ErrorEvent(text))
}

// closeMalformed sends a close frame naming the problem. WriteControl is safe to
// call alongside the write pump.
func (c *Client) closeMalformed() {
	msg := websocket.FormatCloseMessage(websocket.CloseUnsupportedData, ErrMalformedEvent.Error())
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("write close frame", zap.Error(err))
	}
}

// readPump reads frames until the socket fails. When joinName is non-nil the
// client joins before the first read.
func (c *Client) readPump(joinName *string) {
	defer func() {
		c.hub.Leave(c.ID())
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.logger.Warn("close connection in readPump", zap.Error(err))
			}
		}
	}()

	c.setupReadConnection()

	if joinName != nil {
		if err := c.join(*joinName); err != nil {
			c.logger.Warn("join failed", zap.Error(err))
			return
		}
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				return
			}
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		if err := c.processFrame(raw); err != nil {
			if errors.Is(err, ErrMalformedEvent) {
				c.logger.Info("closing connection after malformed frame", zap.Error(err))
				c.closeMalformed()
			} else {
				c.logger.Warn("frame failed", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.Leave(c.ID())
		c.closeConnection()
	}()

	outbound := c.rc.Outbound()
	for c.processWriteEvent(outbound, ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(outbound <-chan room.Event, ticker *time.Ticker) bool {
	select {
	case ev, ok := <-outbound:
		return c.handleEvent(ev, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("close connection in writePump", zap.Error(err))
		}
	}
}

// handleEvent writes one outgoing event and returns false if the connection should be closed
func (c *Client) handleEvent(ev room.Event, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("set write deadline", zap.Error(err))
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeEvent(ev)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Debug("write close message", zap.Error(err))
		}
	}
	return false
}

// writeEvent encodes ev as a single JSON text frame.
func (c *Client) writeEvent(ev room.Event) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.logger.Debug("create writer", zap.Error(err))
		return false
	}

	if err := json.NewEncoder(w).Encode(ev); err != nil {
		c.logger.Warn("encode event", zap.String("type", string(ev.Type)), zap.Error(err))
		_ = w.Close()
		return false
	}

	if err := w.Close(); err != nil {
		c.logger.Debug("close writer", zap.Error(err))
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("set write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug("write ping", zap.Error(err))
		return false
	}
	return true
}
