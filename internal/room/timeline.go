package room

import (
	"log"
	"time"

	"github.com/quilt-im/quilt/internal/event"
	"github.com/quilt-im/quilt/internal/metrics"
)

// HandleTimelineEvent delivers an incoming room timeline event to the
// UI sink. Events missing required fields are logged and dropped, as
// are echoes of our own sends, which the homeserver marks with
// unsigned.transaction_id. Receive-path problems never surface to the
// user.
func (s *Session) HandleTimelineEvent(raw []byte) {
	if s.left {
		return
	}

	evType := event.Type(raw)
	if evType == "" {
		log.Printf("room: %s: timeline event missing type field", s.roomID)
		return
	}
	if evType != event.TypeMessage {
		log.Printf("room: %s: ignoring %s timeline event", s.roomID, evType)
		return
	}

	content := event.Content(raw)
	body := event.StringMember(content, "body")
	if body == "" {
		log.Printf("room: %s: message event has no body", s.roomID)
		return
	}
	msgtype := event.StringMember(content, "msgtype")
	if msgtype == "" {
		log.Printf("room: %s: message event has no msgtype", s.roomID)
		return
	}

	// A transaction id means this is the echo of an event we sent
	// ourselves; it was already written optimistically.
	if txnID := event.TransactionID(raw); txnID != "" {
		log.Printf("room: %s: dropping echo txn=%s", s.roomID, txnID)
		return
	}

	senderName := "<unknown>"
	if senderID := event.Sender(raw); senderID != "" {
		if m := s.members.Lookup(senderID); m != nil {
			senderName = m.DisplayName
		}
	}

	if msgtype == event.MsgEmote {
		body = "/me " + body
	}

	metrics.MessagesReceived.Inc()
	s.deps.Sink.WriteMessage(s.roomID, senderName, body,
		time.UnixMilli(event.Timestamp(raw)), false)
}
