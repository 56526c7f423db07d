package room

import (
	"fmt"
	"log"
)

// scheduleNameUpdate marks the room name as stale. Recomputation is
// deferred to applyPendingNameUpdate so a batch of state changes
// triggers at most one recompute.
func (s *Session) scheduleNameUpdate() {
	s.needsNameUpdate = true
}

// ComputeName returns the best display name for the room: the explicit
// name or alias from the state table when one is set, otherwise a
// summary of the other active members, otherwise the bare room id.
func (s *Session) ComputeName() string {
	if alias := s.state.RoomAlias(); alias != "" {
		return alias
	}
	if name := s.nameFromMembers(); name != "" {
		return name
	}
	return s.roomID
}

// nameFromMembers summarizes the active members other than ourselves:
// one other gives their name, two gives "A and B", more gives
// "A and N others" where N counts all the others. Returns "" for a room
// we are alone in.
func (s *Session) nameFromMembers() string {
	var others []string
	for _, m := range s.members.ActiveMembers(true) {
		if m.UserID == s.deps.UserID {
			continue
		}
		others = append(others, m.DisplayName)
	}

	switch len(others) {
	case 0:
		return ""
	case 1:
		return others[0]
	case 2:
		return fmt.Sprintf("%s and %s", others[0], others[1])
	default:
		return fmt.Sprintf("%s and %d others", others[0], len(others))
	}
}

// applyPendingNameUpdate recomputes the room name and pushes it to the
// UI sink, if a state change since the last pass scheduled an update.
func (s *Session) applyPendingNameUpdate() {
	if !s.needsNameUpdate {
		return
	}
	name := s.ComputeName()
	log.Printf("room: %s: name is now %q", s.roomID, name)
	s.deps.Sink.SetRoomName(s.roomID, name)
	s.needsNameUpdate = false
}
