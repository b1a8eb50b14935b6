package room

// HistoryBuffer is a fixed-capacity ring of the most recent messages. Appending to
// a full buffer evicts the oldest entry. It is not safe for concurrent use; the
// Hub guards it.
type HistoryBuffer struct {
	items []Message
	start int
	size  int
}

// NewHistoryBuffer creates an empty buffer holding at most capacity messages.
// A non-positive capacity is treated as 1.
func NewHistoryBuffer(capacity int) *HistoryBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &HistoryBuffer{items: make([]Message, capacity)}
}

// Append adds m at the tail, evicting the oldest message when full.
func (b *HistoryBuffer) Append(m Message) {
	capacity := len(b.items)
	if b.size < capacity {
		b.items[(b.start+b.size)%capacity] = m
		b.size++
		return
	}
	b.items[b.start] = m
	b.start = (b.start + 1) % capacity
}

// Snapshot returns a copy of every buffered message, oldest first.
func (b *HistoryBuffer) Snapshot() []Message {
	return b.Tail(b.size)
}

// Tail returns a copy of the newest n messages, oldest first.
func (b *HistoryBuffer) Tail(n int) []Message {
	if n > b.size {
		n = b.size
	}
	if n < 0 {
		n = 0
	}
	out := make([]Message, n)
	capacity := len(b.items)
	offset := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.items[(b.start+offset+i)%capacity]
	}
	return out
}

// Len reports how many messages are buffered.
func (b *HistoryBuffer) Len() int {
	return b.size
}

// Cap reports the buffer capacity.
func (b *HistoryBuffer) Cap() int {
	return len(b.items)
}
