// Package event defines the Matrix room event types and structures used
// on the wire between the client and the homeserver, plus the queued
// outbound event representation. All payloads are JSON; incoming events
// are read through lenient accessors that tolerate missing or
// mistyped members rather than failing the whole payload.
package event

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/tidwall/gjson"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Room state event types.
const (
	TypeMember         = "m.room.member"
	TypeName           = "m.room.name"
	TypeAlias          = "m.room.alias"
	TypeCanonicalAlias = "m.room.canonical_alias"
)

// Room timeline event types.
const (
	TypeMessage = "m.room.message"
)

// Message content msgtypes.
const (
	MsgText  = "m.text"
	MsgEmote = "m.emote"
	MsgImage = "m.image"
)

// Membership values carried in m.room.member content.
const (
	MembershipJoin   = "join"
	MembershipInvite = "invite"
	MembershipLeave  = "leave"
	MembershipBan    = "ban"
)

// ---------------------------------------------------------------------------
// Queued outbound events
// ---------------------------------------------------------------------------

// Phase is the lifecycle of a queued outbound event.
type Phase int

const (
	PhasePending Phase = iota
	PhaseUploading
	PhaseSending
	PhaseDone
	PhaseFailed
)

// String returns the lowercase phase name for logging.
func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseUploading:
		return "uploading"
	case PhaseSending:
		return "sending"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Queued is a not-yet-acknowledged outbound room event. It is owned
// exclusively by the room's send queue from enqueue until completion or
// cancellation. Hook and HookData support multi-phase sends (such as
// upload-then-send for images): when Hook is non-nil the queue hands
// control to it instead of issuing the default transport send.
type Queued struct {
	Type     string
	TxnID    string
	Content  json.RawMessage
	Phase    Phase
	Hook     func(q *Queued)
	HookData interface{}
}

// NewQueued creates a queued event in the pending phase with a fresh
// transaction id.
func NewQueued(eventType string, content json.RawMessage) *Queued {
	return &Queued{
		Type:    eventType,
		TxnID:   NewTxnID(),
		Content: content,
		Phase:   PhasePending,
	}
}

// NewTxnID generates a process-unique transaction id from the monotonic
// clock plus a random salt. The salt keeps ids unique across client
// restarts and reconnects, where the clock alone could repeat.
func NewTxnID() string {
	return fmt.Sprintf("%d%d", time.Now().UnixNano(), rand.Uint32())
}

// ---------------------------------------------------------------------------
// Content constructors
// ---------------------------------------------------------------------------

// TextContent builds m.room.message content for a plain text or emote
// message. A message starting with "/me " is sent as an emote with the
// prefix stripped, matching the conventional IRC-style input.
func TextContent(body string) json.RawMessage {
	msgtype := MsgText
	if len(body) > 4 && body[:4] == "/me " {
		msgtype = MsgEmote
		body = body[4:]
	}
	raw, _ := json.Marshal(map[string]string{
		"msgtype": msgtype,
		"body":    body,
	})
	return raw
}

// ImageContent builds the initial m.image content for an image send.
// The "url" member is filled in later, once the media upload has
// returned a content URI.
func ImageContent(filename string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{
		"msgtype": MsgImage,
		"body":    filename,
	})
	return raw
}

// ---------------------------------------------------------------------------
// Lenient accessors over raw incoming events
// ---------------------------------------------------------------------------

// Room event wire fields.
const (
	fieldType     = "type"
	fieldStateKey = "state_key"
	fieldSender   = "sender"
	fieldTs       = "origin_server_ts"
	fieldContent  = "content"
	fieldTxnID    = "unsigned.transaction_id"
)

// Type returns the event's type member, or "" if absent.
func Type(raw []byte) string {
	return gjson.GetBytes(raw, fieldType).String()
}

// StateKey returns the event's state_key member, or "" if absent.
func StateKey(raw []byte) string {
	return gjson.GetBytes(raw, fieldStateKey).String()
}

// Sender returns the event's sender member, or "" if absent.
func Sender(raw []byte) string {
	return gjson.GetBytes(raw, fieldSender).String()
}

// Timestamp returns origin_server_ts in milliseconds, or 0 if absent.
func Timestamp(raw []byte) int64 {
	return gjson.GetBytes(raw, fieldTs).Int()
}

// Content returns the event's content object as raw JSON. Absent or
// non-object content yields nil.
func Content(raw []byte) json.RawMessage {
	c := gjson.GetBytes(raw, fieldContent)
	if !c.IsObject() {
		return nil
	}
	return json.RawMessage(c.Raw)
}

// TransactionID returns unsigned.transaction_id, or "" if absent. The
// homeserver attaches this only to echoes of the client's own sends.
func TransactionID(raw []byte) string {
	return gjson.GetBytes(raw, fieldTxnID).String()
}

// StringMember returns a string member of a content object, or "" if the
// member is absent or not a string.
func StringMember(content json.RawMessage, member string) string {
	v := gjson.GetBytes(content, member)
	if v.Type != gjson.String {
		return ""
	}
	return v.String()
}
