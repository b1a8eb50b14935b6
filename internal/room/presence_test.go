package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceTable(t *testing.T) {
	p := NewPresenceTable()
	p.Put("1", "bob")
	p.Put("2", "alice")
	p.Put("3", "bob")

	assert.True(t, p.Contains("1"))
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, []string{"alice", "bob", "bob"}, p.Names())

	name, ok := p.Remove("1")
	assert.True(t, ok)
	assert.Equal(t, "bob", name)
	assert.False(t, p.Contains("1"))

	_, ok = p.Remove("1")
	assert.False(t, ok)

	got, ok := p.Name("3")
	assert.True(t, ok)
	assert.Equal(t, "bob", got)
	assert.Equal(t, []string{"alice", "bob"}, p.Names())
}

func TestPresenceTableEmptyNames(t *testing.T) {
	assert.Empty(t, NewPresenceTable().Names())
}
