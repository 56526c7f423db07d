// Package room implements the per-room synchronization and dispatch
// core: it reconciles room state pushed by the homeserver into ordered
// UI updates, and runs the FIFO outbound event pipeline with at most
// one request in flight per room.
package room

import (
	"log"
	"time"

	"github.com/quilt-im/quilt/internal/event"
	"github.com/quilt-im/quilt/internal/member"
	"github.com/quilt-im/quilt/internal/metrics"
	"github.com/quilt-im/quilt/internal/state"
	"github.com/quilt-im/quilt/internal/transport"
)

// Deps are the collaborators a session needs. All callbacks are invoked
// on the owner's run loop; the session itself is not goroutine-safe.
type Deps struct {
	API    transport.API
	Sink   UISink
	Images ImageStore

	// UserID is the local user, excluded from the naming heuristic.
	UserID string

	// ShuttingDown gates the send queue: while it reports true, no new
	// transport requests are issued. May be nil.
	ShuttingDown func() bool

	// ReportError surfaces send-path failures at the connection level.
	// May be nil, in which case failures are only logged.
	ReportError func(roomID, message string)
}

// Session owns the state of one joined room: the authoritative state
// table, the member table, the outbound event queue and the in-flight
// send handle. All mutation happens through its methods, on one
// goroutine.
type Session struct {
	roomID string
	deps   Deps

	state   *state.Table
	members *member.Table

	queue      []*event.Queued
	activeSend transport.Handle

	needsNameUpdate bool
	left            bool
}

// NewSession creates the session for a newly-joined room and notifies
// the UI sink.
func NewSession(roomID string, deps Deps) *Session {
	log.Printf("room: joined %s", roomID)
	s := &Session{
		roomID:  roomID,
		deps:    deps,
		state:   state.NewTable(),
		members: member.NewTable(),
	}
	metrics.RoomsJoined.Inc()
	deps.Sink.RoomJoined(roomID)
	return s
}

// ID returns the room identifier.
func (s *Session) ID() string { return s.roomID }

// Leave tears the session down: any in-flight send is canceled, the
// homeserver is notified, and the queue and tables are released. A
// second Leave is a no-op.
func (s *Session) Leave() {
	if s.left {
		return
	}
	s.left = true

	s.CancelSend()
	s.deps.API.LeaveRoom(s.roomID)

	// The leave request may yet fail, but there is no way to report a
	// half-left room upward; a failure surfaces on the next sync.
	metrics.QueuedEvents.Sub(float64(len(s.queue)))
	s.queue = nil
	s.state = nil
	s.members = nil
	metrics.RoomsJoined.Dec()
	log.Printf("room: left %s", s.roomID)
}

// SendMessage queues a text message for the room and writes the local
// echo. A "/me " prefix is sent as an emote.
func (s *Session) SendMessage(message string) {
	if s.left {
		return
	}
	s.Enqueue(event.TypeMessage, event.TextContent(message), nil, nil)
	s.deps.Sink.WriteMessage(s.roomID, s.myDisplayName(), message, time.Now(), true)
}

// CompleteStateUpdate flushes the member changes accumulated since the
// last call into the UI sink — arrivals, then renames, then departures —
// and applies any pending room name update. It is called once per sync
// batch rather than per state event, so a large join burst becomes one
// batched UI operation. announceArrivals suppresses the arrival
// notification (used while replaying the initial sync).
func (s *Session) CompleteStateUpdate(announceArrivals bool) {
	if s.left {
		return
	}
	n := s.flushArrivals(announceArrivals)
	n += s.flushRenames()
	n += s.flushDepartures()
	if n > 0 {
		metrics.ReconcileBatchSize.Observe(float64(n))
	}
	s.applyPendingNameUpdate()
}

// UserIDForDisplayName finds the user id of the member the UI currently
// knows under the given name. Returns "" if no announced member matches.
func (s *Session) UserIDForDisplayName(name string) string {
	if s.left {
		return ""
	}
	for _, m := range s.members.ActiveMembers(true) {
		if m.LastAnnounced == name {
			return m.UserID
		}
	}
	return ""
}

// myDisplayName returns the local user's name in this room, falling
// back to the bare user id before our own member event has arrived.
func (s *Session) myDisplayName() string {
	if m := s.members.Lookup(s.deps.UserID); m != nil {
		return m.DisplayName
	}
	return s.deps.UserID
}

func (s *Session) reportError(message string) {
	if s.deps.ReportError != nil {
		s.deps.ReportError(s.roomID, message)
		return
	}
	log.Printf("room: %s: send failed: %s", s.roomID, message)
}
