// Package member tracks the participants of a room. The table records
// the authoritative membership pushed by the homeserver and accumulates
// lists of arrivals, renames and departures between reconciliation
// passes, so that the UI layer can be told about a whole sync batch at
// once instead of being churned per event.
package member

import (
	"encoding/json"

	"github.com/quilt-im/quilt/internal/event"
)

// Member is one room participant.
//
// LastAnnounced is the display name the UI sink was last told for this
// member. It is set when the member's arrival is flushed, rewritten on
// rename, and cleared on departure; it is empty exactly when the member
// has not been announced as present. Only the reconciler mutates it.
type Member struct {
	UserID        string
	DisplayName   string
	Membership    string
	LastAnnounced string
}

// Table holds the members of one room. It is owned by a single room
// session and mutated only from the session's run loop.
type Table struct {
	members map[string]*Member
	order   []string // user ids in first-seen order

	arrived []string
	renamed []string
	left    []string
}

// NewTable creates an empty member table.
func NewTable() *Table {
	return &Table{members: make(map[string]*Member)}
}

// UpdateMember applies an m.room.member content object for the given
// user, recording the transition in the pending arrival/rename/departure
// lists. A missing membership member is treated as leave; a missing
// displayname falls back to the user id.
func (t *Table) UpdateMember(userID string, content json.RawMessage) {
	m, ok := t.members[userID]
	if !ok {
		m = &Member{UserID: userID, Membership: event.MembershipLeave}
		t.members[userID] = m
		t.order = append(t.order, userID)
	}

	membership := event.StringMember(content, "membership")
	if membership == "" {
		membership = event.MembershipLeave
	}
	name := event.StringMember(content, "displayname")
	if name == "" {
		name = userID
	}

	wasJoined := m.Membership == event.MembershipJoin
	oldName := m.DisplayName
	m.Membership = membership
	m.DisplayName = name

	nowJoined := membership == event.MembershipJoin
	switch {
	case !wasJoined && nowJoined:
		if contains(t.left, userID) {
			// Rejoined before the departure was flushed; the member is
			// still announced, so at most a rename is needed.
			t.left = remove(t.left, userID)
			if m.LastAnnounced != "" && m.LastAnnounced != name && !contains(t.renamed, userID) {
				t.renamed = append(t.renamed, userID)
			}
		} else if !contains(t.arrived, userID) {
			t.arrived = append(t.arrived, userID)
		}
	case wasJoined && !nowJoined:
		if contains(t.arrived, userID) {
			// Joined and left within one batch; never announced.
			t.arrived = remove(t.arrived, userID)
		} else {
			t.renamed = remove(t.renamed, userID)
			if !contains(t.left, userID) {
				t.left = append(t.left, userID)
			}
		}
	case wasJoined && nowJoined && oldName != name:
		if !contains(t.arrived, userID) && !contains(t.renamed, userID) {
			t.renamed = append(t.renamed, userID)
		}
	}
}

// Lookup returns the member for the given user id, or nil.
func (t *Table) Lookup(userID string) *Member {
	return t.members[userID]
}

// ActiveMembers returns the non-departed members in first-seen order.
// Invited members are included only when includeInvited is set; they
// count towards room naming but are not shown in the user list.
func (t *Table) ActiveMembers(includeInvited bool) []*Member {
	var out []*Member
	for _, id := range t.order {
		m := t.members[id]
		switch m.Membership {
		case event.MembershipJoin:
			out = append(out, m)
		case event.MembershipInvite:
			if includeInvited {
				out = append(out, m)
			}
		}
	}
	return out
}

// NewMembers pops the list of members that arrived since the last call.
// The returned slice is the caller's to consume; the internal list is
// reset.
func (t *Table) NewMembers() []*Member {
	return t.pop(&t.arrived)
}

// RenamedMembers pops the list of members renamed since the last call.
func (t *Table) RenamedMembers() []*Member {
	return t.pop(&t.renamed)
}

// LeftMembers pops the list of members departed since the last call.
func (t *Table) LeftMembers() []*Member {
	return t.pop(&t.left)
}

func (t *Table) pop(list *[]string) []*Member {
	ids := *list
	*list = nil
	out := make([]*Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.members[id])
	}
	return out
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func remove(list []string, id string) []string {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
