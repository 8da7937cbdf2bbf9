package obj

const (
	tableMinCapacity = 8
	tableMaxLoad     = 0.75
)

type tableEntry struct {
	key   *String
	value Value
}

// Table is an open-addressing hash table with linear probing, keyed by
// interned-string identity. It backs globals, instance fields, class method
// tables, and (keyed to a constant Nil value) the string intern set.
//
// A nil key paired with a nil value marks an empty slot; a nil key paired
// with a non-nil value (conventionally Bool(true)) marks a tombstone: a
// deleted entry that still occupies probe space but is reused on insert.
// Tombstones count toward Count for load-factor purposes, the same as live
// entries, matching the table's C ancestor exactly.
type Table struct {
	count   int
	entries []tableEntry
}

// Count returns the number of live entries plus tombstones.
func (t *Table) Count() int { return t.count }

// Get looks up key by identity and reports whether it was found.
func (t *Table) Get(key *String) (Value, bool) {
	if len(t.entries) == 0 {
		return nil, false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return nil, false
	}
	return e.value, true
}

// Set inserts or updates key -> value, growing the table first if needed.
// It returns true if this inserted a brand new key (not previously present,
// including as a tombstone), which callers use to detect e.g. assignment to
// an undefined global.
func (t *Table) Set(key *String, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow()
	}

	e := findEntry(t.entries, key)
	isNewKey := e.key == nil
	if isNewKey && e.value == nil {
		// a fresh empty slot (not a reused tombstone) grows the live count
		t.count++
	}
	e.key = key
	e.value = value
	return isNewKey
}

// Delete removes key by replacing its slot with a tombstone. It reports
// whether the key was present.
func (t *Table) Delete(key *String) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = Bool(true) // tombstone
	return true
}

// FindString is the intern-set probe: unlike Get, it compares by content
// (length, hash, then bytes) rather than identity, since the point of
// calling it is to find the canonical *String for some content that may not
// yet have a String object of its own.
func (t *Table) FindString(chars string, hash uint32) *String {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	index := hash & mask
	for {
		e := &t.entries[index]
		if e.key == nil {
			if e.value == nil {
				// empty, not a tombstone: string is not interned
				return nil
			}
		} else if e.key.hash == hash && e.key.Chars == chars {
			return e.key
		}
		index = (index + 1) & mask
	}
}

// findEntry probes linearly from hash(key) % capacity. It returns the slot
// holding key, or, if key is absent, the first empty slot encountered (or
// the first tombstone seen along the way, to encourage tombstone reuse).
func findEntry(entries []tableEntry, key *String) *tableEntry {
	mask := uint32(len(entries) - 1)
	index := key.hash & mask
	var tombstone *tableEntry
	for {
		e := &entries[index]
		if e.key == nil {
			if e.value == nil {
				// empty slot
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			// tombstone
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		index = (index + 1) & mask
	}
}

// grow doubles the table's capacity (from a minimum of tableMinCapacity),
// re-probing every live entry into the fresh array and discarding
// tombstones, then recomputes count from live entries only so that a
// delete-then-reinsert cycle never forces spurious growth.
func (t *Table) grow() {
	newCap := tableMinCapacity
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	fresh := make([]tableEntry, newCap)

	liveCount := 0
	for _, e := range t.entries {
		if e.key == nil {
			continue // skip empty slots and tombstones alike
		}
		dst := findEntry(fresh, e.key)
		dst.key = e.key
		dst.value = e.value
		liveCount++
	}
	t.entries = fresh
	t.count = liveCount
}

// AddAll copies every live entry of src into t (used by OP_INHERIT to copy a
// superclass's method table into a subclass).
func (t *Table) AddAll(src *Table) {
	for _, e := range src.entries {
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// Mark grays every live key and value for the GC.
func (t *Table) Mark(h *Heap) {
	for _, e := range t.entries {
		if e.key != nil {
			h.markObject(e.key)
			h.markValue(e.value)
		}
	}
}

// sweepUnmarked removes entries whose key is unmarked. Used on the intern
// set after tracing so that the intern table holds only weak references and
// does not itself keep otherwise-dead strings alive.
func (t *Table) sweepUnmarked() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.mark {
			e.key = nil
			e.value = Bool(true)
		}
	}
}
