package room

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textN(i int) Message {
	return Message{ID: strconv.Itoa(i), Kind: KindText, Sender: "a", Body: "m" + strconv.Itoa(i)}
}

func TestHistoryBufferEvictsOldestFirst(t *testing.T) {
	b := NewHistoryBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Append(textN(i))
	}

	snap := b.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "3", snap[0].ID)
	assert.Equal(t, "4", snap[1].ID)
	assert.Equal(t, "5", snap[2].ID)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 3, b.Cap())
}

// TestHistoryBufferSuffixProperty checks that after any number of appends the
// snapshot is the newest min(K, n) entries in insertion order.
func TestHistoryBufferSuffixProperty(t *testing.T) {
	for _, capacity := range []int{1, 2, 7, 20} {
		b := NewHistoryBuffer(capacity)
		for n := 1; n <= 3*capacity+1; n++ {
			b.Append(textN(n))

			snap := b.Snapshot()
			want := n
			if want > capacity {
				want = capacity
			}
			require.Len(t, snap, want, "capacity %d after %d appends", capacity, n)
			for i, m := range snap {
				assert.Equal(t, strconv.Itoa(n-want+1+i), m.ID)
			}
		}
	}
}

func TestHistoryBufferSnapshotIsACopy(t *testing.T) {
	b := NewHistoryBuffer(2)
	b.Append(textN(1))
	snap := b.Snapshot()

	snap[0].Body = "mutated"
	b.Append(textN(2))
	b.Append(textN(3))

	assert.Equal(t, "m1", snap[0].Body)
	assert.Len(t, snap, 1)
	assert.Equal(t, "2", b.Snapshot()[0].ID)
}

func TestHistoryBufferTail(t *testing.T) {
	b := NewHistoryBuffer(5)
	for i := 1; i <= 7; i++ {
		b.Append(textN(i))
	}

	tail := b.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "6", tail[0].ID)
	assert.Equal(t, "7", tail[1].ID)

	assert.Len(t, b.Tail(50), 5)
	assert.Empty(t, b.Tail(-1))
	assert.Empty(t, NewHistoryBuffer(4).Snapshot())
}

func TestHistoryBufferNonPositiveCapacity(t *testing.T) {
	b := NewHistoryBuffer(0)
	b.Append(textN(1))
	b.Append(textN(2))
	assert.Equal(t, 1, b.Cap())
	assert.Equal(t, "2", b.Snapshot()[0].ID)
}
