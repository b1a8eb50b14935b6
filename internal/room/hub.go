// Package room coordinates connection registration, presence, bounded history and
// message fan-out for the single chat room via the Hub type.
package room

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle stage of a connection.
type State int

// Connection states. Left is terminal.
const (
	StateConnecting State = iota
	StateJoined
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateLeft:
		return "left"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Connection is the hub's view of one live session. Its fields are guarded by the
// owning Hub's mutex; the outbound channel is closed by the hub when the
// connection leaves.
type Connection struct {
	id    string
	name  string
	state State
	dead  bool
	send  chan Event
}

// ID returns the connection identity.
func (c *Connection) ID() string {
	return c.id
}

// Outbound returns the queue the transport drains to the socket. It is closed once
// the hub has removed the connection.
func (c *Connection) Outbound() <-chan Event {
	return c.send
}

// Options configures a Hub.
type Options struct {
	// HistoryLimit is the number of messages retained for replay.
	HistoryLimit int
	// ReplayLimit is the number of newest messages handed to a joining client.
	ReplayLimit int
	// SendQueueSize bounds each connection's outbound queue.
	SendQueueSize int
	// DefaultName replaces blank display names.
	DefaultName string
	// MaxNameLength caps display names, in runes.
	MaxNameLength int
	// Clock stamps messages; defaults to time.Now.
	Clock func() time.Time
}

// DefaultOptions returns the single-room defaults.
func DefaultOptions() Options {
	return Options{
		HistoryLimit:  20,
		ReplayLimit:   20,
		SendQueueSize: 256,
		DefaultName:   "Anonymous",
		MaxNameLength: 50,
		Clock:         time.Now,
	}
}

func sanitizeOptions(opts Options) Options {
	def := DefaultOptions()
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = def.HistoryLimit
	}
	if opts.ReplayLimit <= 0 || opts.ReplayLimit > opts.HistoryLimit {
		opts.ReplayLimit = opts.HistoryLimit
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = def.SendQueueSize
	}
	if strings.TrimSpace(opts.DefaultName) == "" {
		opts.DefaultName = def.DefaultName
	}
	if opts.MaxNameLength <= 0 {
		opts.MaxNameLength = def.MaxNameLength
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	return opts
}

// JoinResult is what a joining connection needs to render the room without
// racing live broadcasts.
type JoinResult struct {
	AssignedName string
	History      []Message
	OnlineNames  []string
}

// Hub is the room aggregate. One mutex guards presence, history, the connection
// registry and every enqueue, so all connections observe events in the order the
// hub accepted them. Enqueues never block: a full queue marks the connection dead
// and it is removed as if it had left.
type Hub struct {
	mu       sync.Mutex
	conns    map[string]*Connection
	presence *PresenceTable
	history  *HistoryBuffer
	opts     Options
	logger   *zap.Logger
	closed   bool
}

// NewHub creates a hub with an empty room.
func NewHub(opts Options, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = sanitizeOptions(opts)
	return &Hub{
		conns:    make(map[string]*Connection),
		presence: NewPresenceTable(),
		history:  NewHistoryBuffer(opts.HistoryLimit),
		opts:     opts,
		logger:   logger.Named("hub"),
	}
}

// Connect registers an outbound queue for id in the Connecting state. An empty id
// is replaced by a fresh UUID.
func (h *Hub) Connect(id string) (*Connection, error) {
	if id == "" {
		id = uuid.NewString()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if _, exists := h.conns[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateConnection, id)
	}

	c := &Connection{
		id:    id,
		state: StateConnecting,
		send:  make(chan Event, h.opts.SendQueueSize),
	}
	h.conns[id] = c
	h.logger.Debug("connection registered", zap.String("conn", id), zap.Int("connections", len(h.conns)))
	return c, nil
}

// Join moves a connecting identity into the room. The welcome event (history
// snapshot and roster) is queued to the joiner before the join is announced to
// anyone else, so the joiner never sees a broadcast twice or misses one.
func (h *Hub) Join(id, proposedName string) (JoinResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[id]
	if !ok {
		return JoinResult{}, fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	if c.state == StateJoined {
		return JoinResult{}, fmt.Errorf("%w: %s", ErrAlreadyJoined, id)
	}

	c.name = h.normalizeName(proposedName)
	c.state = StateJoined
	h.presence.Put(c.id, c.name)

	result := JoinResult{
		AssignedName: c.name,
		History:      h.history.Tail(h.opts.ReplayLimit),
		OnlineNames:  h.presence.Names(),
	}

	var dead []*Connection
	welcome := Event{Type: EventWelcome, Welcome: &Welcome{
		ID:          c.id,
		Name:        result.AssignedName,
		History:     result.History,
		OnlineNames: result.OnlineNames,
	}}
	if !h.enqueueLocked(c, welcome) {
		dead = append(dead, c)
	}

	now := h.opts.Clock()
	announce := []Event{
		MessageEvent(newSystem(c.name+" joined the chat", now)),
		{Type: EventPresence, Presence: &Presence{Type: PresenceJoined, Name: c.name, OnlineNames: result.OnlineNames}},
	}
	for _, ev := range announce {
		dead = h.fanOutLocked(ev, c, dead)
	}
	h.settleLocked(dead)

	h.logger.Info("joined",
		zap.String("conn", c.id),
		zap.String("name", c.name),
		zap.Int("online", h.presence.Len()))
	return result, nil
}

// Leave removes id from the room. It is idempotent: only the first call for a
// registered identity has an effect and only a joined connection is announced.
func (h *Hub) Leave(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[id]
	if !ok {
		return false
	}
	if h.removeLocked(c) {
		h.logger.Info("left", zap.String("conn", c.id), zap.String("name", c.name), zap.Int("online", h.presence.Len()))
		h.settleLocked(h.announceLeftLocked(c.name, nil))
	}
	return true
}

// Post accepts a message from a joined connection, stores it and fans it out to
// every joined connection, the sender included. The stored message is returned.
func (h *Hub) Post(id string, m Message) (Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[id]
	if !ok || c.state != StateJoined || c.dead {
		return Message{}, fmt.Errorf("%w: %s", ErrNotJoined, id)
	}
	if m.Kind == KindSystem {
		return Message{}, fmt.Errorf("%w: clients cannot post system messages", ErrInvalidMessage)
	}

	m.ID = uuid.NewString()
	m.Sender = c.name
	m.Timestamp = h.opts.Clock().UnixMilli()
	if err := m.Validate(); err != nil {
		return Message{}, err
	}

	h.history.Append(m)
	h.settleLocked(h.fanOutLocked(MessageEvent(m), nil, nil))
	return m, nil
}

// Send queues ev for one connection only. It reports false when the connection is
// unknown or its queue is full; a full queue disconnects it.
func (h *Hub) Send(id string, ev Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[id]
	if !ok || c.dead {
		return false
	}
	if h.enqueueLocked(c, ev) {
		return true
	}
	h.settleLocked([]*Connection{c})
	return false
}

// History returns the retained messages, oldest first.
func (h *Hub) History() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.history.Snapshot()
}

// OnlineNames returns the sorted display names of joined connections.
func (h *Hub) OnlineNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presence.Names()
}

// IsJoined reports whether id currently holds a presence entry.
func (h *Hub) IsJoined(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presence.Contains(id)
}

// ConnectionCount returns the number of registered connections, joined or not.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown closes every outbound queue so the write pumps can send a close frame
// and exit. Later Connect calls fail with ErrClosed.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, c := range h.conns {
		h.removeLocked(c)
	}
	h.logger.Info("hub shut down")
}

func (h *Hub) normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > h.opts.MaxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:h.opts.MaxNameLength]))
	}
	if name == "" {
		return h.opts.DefaultName
	}
	return name
}

// enqueueLocked attempts a non-blocking send. A failed send marks c dead so later
// fan-outs skip it until settleLocked removes it.
func (h *Hub) enqueueLocked(c *Connection, ev Event) bool {
	if c.dead || c.state == StateLeft {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		c.dead = true
		return false
	}
}

// fanOutLocked queues ev for every joined connection except skip and appends the
// connections whose queue was full to dead.
func (h *Hub) fanOutLocked(ev Event, skip *Connection, dead []*Connection) []*Connection {
	for _, c := range h.conns {
		if c == skip || c.state != StateJoined || c.dead {
			continue
		}
		if !h.enqueueLocked(c, ev) {
			dead = append(dead, c)
		}
	}
	return dead
}

// settleLocked removes dead connections and announces each departure. Departure
// notices can themselves overflow other queues, so it loops until nothing is left.
func (h *Hub) settleLocked(dead []*Connection) {
	for len(dead) > 0 {
		c := dead[0]
		dead = dead[1:]
		if c.state == StateLeft {
			continue
		}
		h.logger.Warn("dropping connection with full send queue",
			zap.String("conn", c.id),
			zap.String("name", c.name),
			zap.Int("queue", cap(c.send)))
		if h.removeLocked(c) {
			dead = h.announceLeftLocked(c.name, dead)
		}
	}
}

func (h *Hub) announceLeftLocked(name string, dead []*Connection) []*Connection {
	now := h.opts.Clock()
	dead = h.fanOutLocked(MessageEvent(newSystem(name+" left the chat", now)), nil, dead)
	return h.fanOutLocked(Event{Type: EventPresence, Presence: &Presence{
		Type:        PresenceLeft,
		Name:        name,
		OnlineNames: h.presence.Names(),
	}}, nil, dead)
}

// removeLocked unregisters c, closes its queue and reports whether it had joined.
func (h *Hub) removeLocked(c *Connection) bool {
	if c.state == StateLeft {
		return false
	}
	wasJoined := c.state == StateJoined
	delete(h.conns, c.id)
	if wasJoined {
		h.presence.Remove(c.id)
	}
	c.state = StateLeft
	close(c.send)
	return wasJoined
}
