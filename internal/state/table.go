// Package state implements the per-room state table: the authoritative
// mapping from (event type, state key) to the most recent state event
// the homeserver has pushed. Updates produce diffs which the room layer
// routes to the membership and naming machinery.
package state

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/quilt-im/quilt/internal/event"
)

// Entry is one stored state event.
type Entry struct {
	Type     string
	StateKey string
	Content  json.RawMessage
}

// DiffFunc is called once per changed (type, state_key) pair. prev is
// nil on first-time creation of a state key.
type DiffFunc func(eventType, stateKey string, prev, new *Entry)

// Table stores the room state. It is owned by a single room session and
// mutated only from the session's run loop, so it carries no locking.
type Table struct {
	entries map[string]map[string]*Entry // type -> state_key -> entry
}

// NewTable creates an empty state table.
func NewTable() *Table {
	return &Table{entries: make(map[string]map[string]*Entry)}
}

// Update applies a raw state event to the table and reports the change
// through onDiff. Events without a type, or with a missing state_key
// member, are rejected; a state_key of "" is valid and common
// (m.room.name and friends use it).
func (t *Table) Update(raw []byte, onDiff DiffFunc) error {
	evType := event.Type(raw)
	if evType == "" {
		return fmt.Errorf("state: event missing type field")
	}
	if !gjson.GetBytes(raw, "state_key").Exists() {
		return fmt.Errorf("state: %s event missing state_key field", evType)
	}
	stateKey := event.StateKey(raw)

	entry := &Entry{
		Type:     evType,
		StateKey: stateKey,
		Content:  event.Content(raw),
	}

	keys, ok := t.entries[evType]
	if !ok {
		keys = make(map[string]*Entry)
		t.entries[evType] = keys
	}
	prev := keys[stateKey]
	keys[stateKey] = entry

	if onDiff != nil {
		onDiff(evType, stateKey, prev, entry)
	}
	return nil
}

// Get returns the stored entry for (eventType, stateKey), or nil.
func (t *Table) Get(eventType, stateKey string) *Entry {
	return t.entries[eventType][stateKey]
}

// RoomAlias returns the room's explicit name if one is set, preferring
// m.room.name over m.room.canonical_alias over the first entry of
// m.room.aliases. Returns "" if the room has no explicit naming state.
func (t *Table) RoomAlias() string {
	if e := t.Get(event.TypeName, ""); e != nil {
		if name := event.StringMember(e.Content, "name"); name != "" {
			return name
		}
	}
	if e := t.Get(event.TypeCanonicalAlias, ""); e != nil {
		if alias := event.StringMember(e.Content, "alias"); alias != "" {
			return alias
		}
	}
	for _, e := range t.entries[event.TypeAlias] {
		aliases := gjson.GetBytes(e.Content, "aliases")
		if aliases.IsArray() {
			arr := aliases.Array()
			if len(arr) > 0 && arr[0].Type == gjson.String {
				return arr[0].String()
			}
		}
	}
	return ""
}
