// Package client ties the room sessions to the homeserver: it owns the
// room map, runs the single goroutine on which all session mutation
// happens, drives the long-poll sync loop, and carries the
// connection-level error surface and shutdown flag.
package client

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/quilt-im/quilt/internal/room"
	"github.com/quilt-im/quilt/internal/transport"
)

// Syncer performs one blocking sync long-poll and returns the raw
// response body plus the next_batch token.
type Syncer interface {
	Sync(ctx context.Context, since string, timeout time.Duration) ([]byte, string, error)
}

// Config holds connection settings.
type Config struct {
	UserID      string        // our own Matrix user id
	SyncTimeout time.Duration // homeserver-side long-poll timeout
	ErrorRetry  time.Duration // pause after a failed sync before retrying
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SyncTimeout: 30 * time.Second,
		ErrorRetry:  5 * time.Second,
	}
}

// Conn is one logged-in connection to a homeserver.
type Conn struct {
	config Config
	api    transport.API
	syncer Syncer
	sink   room.UISink
	images room.ImageStore

	// OnError receives send-path failures. Assigned before Run; a nil
	// value means failures are only logged.
	OnError func(roomID, message string)

	calls  chan func()
	rooms  map[string]*room.Session
	synced bool  // first sync applied; arrivals announced from then on
	closed int32 // atomic: connection is shutting down
}

// NewConn creates a connection. The transport is attached afterwards
// with SetTransport, since building the transport requires the
// connection's Schedule function.
func NewConn(config Config, sink room.UISink, images room.ImageStore) *Conn {
	return &Conn{
		config: config,
		sink:   sink,
		images: images,
		calls:  make(chan func(), 256),
		rooms:  make(map[string]*room.Session),
	}
}

// SetTransport attaches the homeserver API and syncer.
func (c *Conn) SetTransport(api transport.API, syncer Syncer) {
	c.api = api
	c.syncer = syncer
}

// Schedule queues fn for execution on the run loop. It is the delivery
// function handed to the transport, and the only way other goroutines
// may touch connection or room state.
func (c *Conn) Schedule(fn func()) {
	c.calls <- fn
}

// Run executes scheduled closures until ctx is done. All room session
// mutation happens here, giving the sessions their single-threaded,
// cooperative scheduling model.
func (c *Conn) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case fn := <-c.calls:
			fn()
		}
	}
}

// ShuttingDown reports whether the connection is closing. The room send
// queues consult it before issuing new requests.
func (c *Conn) ShuttingDown() bool {
	return atomic.LoadInt32(&c.closed) != 0
}

// Close marks the connection as shutting down. Safe to call from any
// goroutine; in-flight requests finish or time out on their own.
func (c *Conn) Close() {
	atomic.StoreInt32(&c.closed, 1)
}

// SendMessage queues a text message for the given room on the run loop.
// Unknown rooms are logged and ignored.
func (c *Conn) SendMessage(roomID, message string) {
	c.Schedule(func() {
		sess, ok := c.rooms[roomID]
		if !ok {
			log.Printf("client: send to unknown room %s", roomID)
			return
		}
		sess.SendMessage(message)
	})
}

// LeaveRoom tears down the given room on the run loop.
func (c *Conn) LeaveRoom(roomID string) {
	c.Schedule(func() {
		sess, ok := c.rooms[roomID]
		if !ok {
			return
		}
		sess.Leave()
		delete(c.rooms, roomID)
	})
}

// SyncLoop long-polls the homeserver and applies each sync payload on
// the run loop, in order. It blocks the next poll until the previous
// payload is fully applied, preserving the per-room ordering guarantee.
func (c *Conn) SyncLoop(ctx context.Context) {
	since := ""
	for ctx.Err() == nil {
		body, next, err := c.syncer.Sync(ctx, since, c.config.SyncTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("client: sync failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.config.ErrorRetry):
			}
			continue
		}
		since = next

		applied := make(chan struct{})
		c.Schedule(func() {
			c.applySync(body)
			close(applied)
		})
		select {
		case <-ctx.Done():
			return
		case <-applied:
		}
	}
}

// applySync walks one sync payload: per joined room, state events, then
// timeline events, then one reconciliation pass. Runs on the run loop.
func (c *Conn) applySync(body []byte) {
	announce := c.synced

	gjson.GetBytes(body, "rooms.join").ForEach(func(key, data gjson.Result) bool {
		roomID := key.String()
		sess, ok := c.rooms[roomID]
		if !ok {
			sess = room.NewSession(roomID, c.roomDeps())
			c.rooms[roomID] = sess
		}

		for _, ev := range data.Get("state.events").Array() {
			sess.HandleStateEvent([]byte(ev.Raw))
		}
		for _, ev := range data.Get("timeline.events").Array() {
			raw := []byte(ev.Raw)
			// State events also ride the timeline when they change
			// mid-stream.
			if gjson.GetBytes(raw, "state_key").Exists() {
				sess.HandleStateEvent(raw)
			} else {
				sess.HandleTimelineEvent(raw)
			}
		}

		sess.CompleteStateUpdate(announce)
		return true
	})

	gjson.GetBytes(body, "rooms.leave").ForEach(func(key, data gjson.Result) bool {
		roomID := key.String()
		if sess, ok := c.rooms[roomID]; ok {
			sess.Leave()
			delete(c.rooms, roomID)
		}
		return true
	})

	c.synced = true
}

// Room returns the session for roomID, or nil. Run-loop use only.
func (c *Conn) Room(roomID string) *room.Session {
	return c.rooms[roomID]
}

func (c *Conn) roomDeps() room.Deps {
	return room.Deps{
		API:          c.api,
		Sink:         c.sink,
		Images:       c.images,
		UserID:       c.config.UserID,
		ShuttingDown: c.ShuttingDown,
		ReportError:  c.reportError,
	}
}

func (c *Conn) reportError(roomID, message string) {
	log.Printf("client: %s: send failed: %s", roomID, message)
	if c.OnError != nil {
		c.OnError(roomID, message)
	}
}

// shutdown runs on the run loop when ctx ends: cancel whatever is in
// flight so no request outlives the connection.
func (c *Conn) shutdown() {
	atomic.StoreInt32(&c.closed, 1)
	for _, sess := range c.rooms {
		sess.CancelSend()
	}
}
