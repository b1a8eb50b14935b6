package room

import "sort"

// PresenceTable maps joined connection identities to display names. Display names
// may repeat across identities. Not safe for concurrent use.
type PresenceTable struct {
	names map[string]string
}

// NewPresenceTable creates an empty table.
func NewPresenceTable() *PresenceTable {
	return &PresenceTable{names: make(map[string]string)}
}

// Put records name for id, replacing any previous entry for the same id.
func (p *PresenceTable) Put(id, name string) {
	p.names[id] = name
}

// Remove deletes the entry for id and returns the name it held.
func (p *PresenceTable) Remove(id string) (string, bool) {
	name, ok := p.names[id]
	if ok {
		delete(p.names, id)
	}
	return name, ok
}

// Contains reports whether id has an entry.
func (p *PresenceTable) Contains(id string) bool {
	_, ok := p.names[id]
	return ok
}

// Name returns the display name recorded for id.
func (p *PresenceTable) Name(id string) (string, bool) {
	name, ok := p.names[id]
	return name, ok
}

// Names returns every display name currently present, sorted, duplicates kept.
func (p *PresenceTable) Names() []string {
	out := make([]string, 0, len(p.names))
	for _, name := range p.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of entries.
func (p *PresenceTable) Len() int {
	return len(p.names)
}
