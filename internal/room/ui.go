package room

import "time"

// UISink is the presentation boundary. The session pushes incremental,
// ordered updates into it; it never calls back into the session. A sink
// implementation might drive a buddy list and conversation windows, or
// publish the operations onto a message bus for remote frontends.
type UISink interface {
	// RoomJoined announces that a room session now exists.
	RoomJoined(roomID string)

	// AddMembers registers a batch of newly-present members. announce
	// controls whether the arrival is surfaced to the user; the members
	// are registered either way.
	AddMembers(roomID string, names []string, announce bool)

	// RenameMember replaces a previously-announced member name.
	RenameMember(roomID, oldName, newName string)

	// RemoveMember removes a previously-announced member.
	RemoveMember(roomID, name string)

	// SetRoomName updates the room's display name (conversation title
	// and buddy-list alias).
	SetRoomName(roomID, name string)

	// WriteMessage delivers a message to the room's conversation.
	// local marks our own optimistic echo of an outbound message.
	WriteMessage(roomID, sender, body string, ts time.Time, local bool)
}
