// Package transport issues the homeserver requests the room layer needs:
// event sends, media uploads, room leaves and the long-poll sync. All
// mutating calls are asynchronous and report through exactly one of
// their callbacks; callbacks are delivered on the client's run loop so
// the room layer never needs cross-goroutine synchronization.
package transport

import "encoding/json"

// SendCallbacks receives the outcome of an event send. Exactly one of
// the three is invoked, unless the request is canceled first.
type SendCallbacks struct {
	OnSuccess     func(eventID string)
	OnError       func(message string)
	OnBadResponse func(status int, body []byte)
}

// UploadCallbacks receives the outcome of a media upload. On success
// the homeserver-assigned content URI is passed through.
type UploadCallbacks struct {
	OnSuccess     func(contentURI string)
	OnError       func(message string)
	OnBadResponse func(status int, body []byte)
}

// Handle identifies one in-flight request for cancellation.
type Handle interface {
	// ID returns the request correlation id used in logs.
	ID() string
}

// API is the homeserver surface the room layer depends on. Cancel is
// synchronous: once it returns, no callback for the handle will fire.
type API interface {
	SendEvent(roomID, eventType, txnID string, content json.RawMessage, cb SendCallbacks) Handle
	Upload(contentType string, data []byte, cb UploadCallbacks) Handle
	LeaveRoom(roomID string)
	Cancel(h Handle)
}
