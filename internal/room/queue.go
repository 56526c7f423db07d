package room

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/quilt-im/quilt/internal/event"
	"github.com/quilt-im/quilt/internal/metrics"
	"github.com/quilt-im/quilt/internal/transport"
)

// Enqueue appends an outbound event to the room's FIFO queue and, if no
// send is in flight, starts dispatching immediately. It never blocks.
// hook, when non-nil, takes over dispatch of the event once it reaches
// the head of the queue; hookData travels with the event for the hook's
// use.
func (s *Session) Enqueue(eventType string, content json.RawMessage, hook func(*event.Queued), hookData interface{}) {
	if s.left {
		return
	}
	ev := event.NewQueued(eventType, content)
	ev.Hook = hook
	ev.HookData = hookData

	s.queue = append(s.queue, ev)
	metrics.QueuedEvents.Inc()
	log.Printf("room: %s: enqueued %s txn=%s", s.roomID, eventType, ev.TxnID)

	if s.activeSend != nil {
		log.Printf("room: %s: send already in progress", s.roomID)
		return
	}
	s.dispatch()
}

// dispatch starts sending the head of the queue. It does nothing when
// the queue is empty or the connection is shutting down. A head event
// with a hook is handed to the hook instead of the default transport
// send; that is how multi-phase pipelines splice into the queue.
func (s *Session) dispatch() {
	if len(s.queue) == 0 {
		return
	}
	if s.deps.ShuttingDown != nil && s.deps.ShuttingDown() {
		log.Printf("room: %s: not sending on a closing connection", s.roomID)
		return
	}

	ev := s.queue[0]
	if ev.Hook != nil {
		ev.Hook(ev)
		return
	}

	ev.Phase = event.PhaseSending
	log.Printf("room: %s: sending %s txn=%s", s.roomID, ev.Type, ev.TxnID)
	s.activeSend = s.deps.API.SendEvent(s.roomID, ev.Type, ev.TxnID, ev.Content, transport.SendCallbacks{
		OnSuccess:     s.onSendSuccess,
		OnError:       s.onSendError,
		OnBadResponse: s.onSendBadResponse,
	})
}

// Redrive restarts dispatch of a head event left queued by an earlier
// failure. The queue itself never retries; the decision to re-drive or
// abandon belongs to the caller.
func (s *Session) Redrive() {
	if s.left || s.activeSend != nil || len(s.queue) == 0 {
		return
	}
	s.queue[0].Phase = event.PhasePending
	s.dispatch()
}

// onSendSuccess removes the acknowledged head event and moves on to the
// next one, keeping the queue draining without an external driver.
func (s *Session) onSendSuccess(eventID string) {
	if s.left {
		return
	}
	log.Printf("room: %s: sent event id=%s", s.roomID, eventID)
	metrics.EventsSentTotal.WithLabelValues("sent").Inc()

	s.popHead()
	s.activeSend = nil
	s.dispatch()
}

// onSendError clears the in-flight handle and surfaces the failure. The
// head event deliberately stays queued: dropping it would silently lose
// the message, retrying it could duplicate it.
func (s *Session) onSendError(message string) {
	if s.left {
		return
	}
	metrics.EventsSentTotal.WithLabelValues("error").Inc()
	s.reportError(message)
	s.failHead()
}

// onSendBadResponse handles a non-success homeserver response the same
// way as a transport error.
func (s *Session) onSendBadResponse(status int, body []byte) {
	if s.left {
		return
	}
	metrics.EventsSentTotal.WithLabelValues("bad_response").Inc()
	s.reportError(badResponseMessage(status, body))
	s.failHead()
}

// CancelSend cancels any in-flight transport request. After it returns
// the in-flight handle is nil; cancellation is synchronous and total.
func (s *Session) CancelSend() {
	if s.activeSend == nil {
		return
	}
	log.Printf("room: %s: canceling in-flight send", s.roomID)
	s.deps.API.Cancel(s.activeSend)
	s.activeSend = nil
}

func (s *Session) popHead() {
	if len(s.queue) == 0 {
		return
	}
	s.queue[0].Phase = event.PhaseDone
	s.queue = s.queue[1:]
	metrics.QueuedEvents.Dec()
}

func (s *Session) failHead() {
	s.activeSend = nil
	if len(s.queue) > 0 {
		s.queue[0].Phase = event.PhaseFailed
	}
}

func badResponseMessage(status int, body []byte) string {
	const max = 128
	if len(body) > max {
		body = body[:max]
	}
	return fmt.Sprintf("homeserver returned status %d: %s", status, body)
}
