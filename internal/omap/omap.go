// Package omap implements a lazily copy-on-write ordered map from string
// keys to *hdoc.Node-shaped values, the storage backing a
// NormalizedDocument's node table. Cloning a Map is O(1): the clone shares
// the parent's backing array/index until the first write, at which point
// only that Map's own view is copied (grounded on the mark-shared/clone-on
// write discipline of a copy-on-write tree, not a full structural-sharing
// trie).
package omap

// entry pairs a key with its value and records whether it has been
// tombstoned (deleted without physically removing it from order, so
// indices already handed out to other iterators remain stable).
type entry struct {
	key     string
	value   interface{}
	deleted bool
}

// Map is an insertion-ordered string-keyed map with copy-on-write clone
// semantics and delta tracking relative to the Map it was cloned from.
type Map struct {
	entries []*entry
	index   map[string]int
	shared  bool

	added   map[string]bool
	changed map[string]bool
	deleted map[string]bool
}

// New returns an empty Map.
func New() *Map {
	return &Map{
		index:   map[string]int{},
		added:   map[string]bool{},
		changed: map[string]bool{},
		deleted: map[string]bool{},
	}
}

// Clone returns a Map sharing this Map's current entries until the clone's
// first mutating call, at which point it copies its own entries/index
// slices. The clone starts with an empty delta (Added/Changed/Deleted
// report changes relative to the clone's base, not the whole lineage).
func (m *Map) Clone() *Map {
	m.shared = true
	return &Map{
		entries: m.entries,
		index:   m.index,
		shared:  true,
		added:   map[string]bool{},
		changed: map[string]bool{},
		deleted: map[string]bool{},
	}
}

// detach copies the backing slice/index the first time this Map instance
// is about to mutate them, so that mutation never affects a Map it was
// cloned from or that was cloned from it.
func (m *Map) detach() {
	if !m.shared {
		return
	}
	entries := make([]*entry, len(m.entries))
	for i, e := range m.entries {
		c := *e
		entries[i] = &c
	}
	index := make(map[string]int, len(m.index))
	for k, v := range m.index {
		index[k] = v
	}
	m.entries = entries
	m.index = index
	m.shared = false
}

// Get returns the value for key and whether it is present and not deleted.
func (m *Map) Get(key string) (interface{}, bool) {
	i, ok := m.index[key]
	if !ok || m.entries[i].deleted {
		return nil, false
	}
	return m.entries[i].value, true
}

// Has reports whether key is present and not deleted.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set inserts or overwrites key's value, appending it to iteration order
// if new.
func (m *Map) Set(key string, value interface{}) {
	m.detach()
	if i, ok := m.index[key]; ok {
		wasDeleted := m.entries[i].deleted
		m.entries[i].value = value
		m.entries[i].deleted = false
		if wasDeleted {
			m.added[key] = true
			delete(m.deleted, key)
		} else if !m.added[key] {
			m.changed[key] = true
		}
		return
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, &entry{key: key, value: value})
	m.added[key] = true
}

// Delete tombstones key. Returns false if key was already absent.
func (m *Map) Delete(key string) bool {
	i, ok := m.index[key]
	if !ok || m.entries[i].deleted {
		return false
	}
	m.detach()
	m.entries[i].deleted = true
	if m.added[key] {
		delete(m.added, key)
	} else {
		m.deleted[key] = true
	}
	delete(m.changed, key)
	return true
}

// Keys returns live keys in insertion order.
func (m *Map) Keys() []string {
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		if !e.deleted {
			out = append(out, e.key)
		}
	}
	return out
}

// Len returns the number of live entries.
func (m *Map) Len() int {
	n := 0
	for _, e := range m.entries {
		if !e.deleted {
			n++
		}
	}
	return n
}

// Range calls fn for every live entry in insertion order, stopping early
// if fn returns false.
func (m *Map) Range(fn func(key string, value interface{}) bool) {
	for _, e := range m.entries {
		if e.deleted {
			continue
		}
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Delta reports the keys added, changed, or deleted on this Map instance
// since it was cloned (spec.md's copy-on-write node store). Nothing in
// hdoc reads it.
type Delta struct {
	Added   []string
	Changed []string
	Deleted []string
}

// Delta returns this Map's changes relative to its clone base.
func (m *Map) Delta() Delta {
	d := Delta{}
	for k := range m.added {
		d.Added = append(d.Added, k)
	}
	for k := range m.changed {
		d.Changed = append(d.Changed, k)
	}
	for k := range m.deleted {
		d.Deleted = append(d.Deleted, k)
	}
	return d
}
