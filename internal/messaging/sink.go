package messaging

import (
	"encoding/json"
	"log"
	"time"
)

// Sink publishes room UI operations to NATS, one subject per room and
// operation, so frontends can subscribe to just the rooms they render.
// It implements room.UISink. Publish failures are logged and dropped:
// the UI stream is best-effort by design, and frontends resubscribe
// with fresh state.
type Sink struct {
	client *NATSClient
}

// NewSink creates a sink publishing through the given NATS client.
func NewSink(client *NATSClient) *Sink {
	return &Sink{client: client}
}

// JoinedOp announces a new room session.
type JoinedOp struct {
	RoomID string `json:"room_id"`
}

// MembersAddedOp registers a batch of newly-present members.
type MembersAddedOp struct {
	RoomID   string   `json:"room_id"`
	Names    []string `json:"names"`
	Announce bool     `json:"announce"`
}

// MemberRenamedOp replaces a previously-announced member name.
type MemberRenamedOp struct {
	RoomID  string `json:"room_id"`
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

// MemberRemovedOp removes a previously-announced member.
type MemberRemovedOp struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

// NameOp updates the room display name.
type NameOp struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

// MessageOp delivers a conversation message.
type MessageOp struct {
	RoomID string `json:"room_id"`
	Sender string `json:"sender"`
	Body   string `json:"body"`
	Ts     int64  `json:"ts"`    // unix milliseconds
	Local  bool   `json:"local"` // our own optimistic echo
}

// SendCmd is the payload frontends publish on SubjectSend.
type SendCmd struct {
	RoomID  string `json:"room_id"`
	Message string `json:"message"`
}

// LeaveCmd is the payload frontends publish on SubjectLeave.
type LeaveCmd struct {
	RoomID string `json:"room_id"`
}

// RoomJoined implements room.UISink.
func (s *Sink) RoomJoined(roomID string) {
	s.publish(roomID, "joined", JoinedOp{RoomID: roomID})
}

// AddMembers implements room.UISink.
func (s *Sink) AddMembers(roomID string, names []string, announce bool) {
	s.publish(roomID, "members_added", MembersAddedOp{
		RoomID:   roomID,
		Names:    names,
		Announce: announce,
	})
}

// RenameMember implements room.UISink.
func (s *Sink) RenameMember(roomID, oldName, newName string) {
	s.publish(roomID, "member_renamed", MemberRenamedOp{
		RoomID:  roomID,
		OldName: oldName,
		NewName: newName,
	})
}

// RemoveMember implements room.UISink.
func (s *Sink) RemoveMember(roomID, name string) {
	s.publish(roomID, "member_removed", MemberRemovedOp{RoomID: roomID, Name: name})
}

// SetRoomName implements room.UISink.
func (s *Sink) SetRoomName(roomID, name string) {
	s.publish(roomID, "name", NameOp{RoomID: roomID, Name: name})
}

// WriteMessage implements room.UISink.
func (s *Sink) WriteMessage(roomID, sender, body string, ts time.Time, local bool) {
	s.publish(roomID, "message", MessageOp{
		RoomID: roomID,
		Sender: sender,
		Body:   body,
		Ts:     ts.UnixMilli(),
		Local:  local,
	})
}

func (s *Sink) publish(roomID, op string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[sink] marshal %s for %s: %v", op, roomID, err)
		return
	}
	if err := s.client.Publish(RoomSubject(roomID, op), data); err != nil {
		log.Printf("[sink] publish %s for %s: %v", op, roomID, err)
	}
}
