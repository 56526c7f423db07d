package room

import (
	"log"

	"github.com/quilt-im/quilt/internal/event"
	"github.com/quilt-im/quilt/internal/state"
)

// HandleStateEvent applies a raw state event to the room's state table
// and routes the resulting diff: member events update the member table,
// and any event that can affect the room name schedules a deferred name
// update. Malformed state events are logged and dropped.
func (s *Session) HandleStateEvent(raw []byte) {
	if s.left {
		return
	}
	if err := s.state.Update(raw, s.onStateDiff); err != nil {
		log.Printf("room: %s: dropping state event: %v", s.roomID, err)
	}
}

// onStateDiff is invoked once per changed (type, state_key) pair. prev
// is nil on first-time creation of a key; creation and update are
// routed identically.
func (s *Session) onStateDiff(eventType, stateKey string, prev, new *state.Entry) {
	switch eventType {
	case event.TypeMember:
		s.members.UpdateMember(stateKey, new.Content)
		// Any membership change can affect the room name heuristic,
		// including changes to invited members.
		s.scheduleNameUpdate()
	case event.TypeAlias, event.TypeCanonicalAlias, event.TypeName:
		s.scheduleNameUpdate()
	}
}
