package room

import (
	"log"
	"time"

	"github.com/tidwall/sjson"

	"github.com/quilt-im/quilt/internal/event"
	"github.com/quilt-im/quilt/internal/metrics"
	"github.com/quilt-im/quilt/internal/transport"
)

// Image sends are a two-phase pipeline spliced into the ordinary send
// queue through the event hook: when the event reaches the head of the
// queue the hook uploads the media, and on success rewrites the event
// content with the homeserver's content URI and re-enters the normal
// send path. The store reference is released exactly once on every exit
// path: phase-2 completion, upload error, upload bad response, and
// phase-2 send error or bad response.

// imageSend is the pipeline state attached to one queued image event.
type imageSend struct {
	session  *Session
	event    *event.Queued
	imageID  int
	released bool
}

// release drops the image store reference; safe to call once per exit
// path, releases exactly once.
func (sid *imageSend) release() {
	if sid.released {
		return
	}
	sid.released = true
	sid.session.deps.Images.Release(sid.imageID)
}

// SendImage queues an image message for the room. The image must be
// present in the session's image store; the session takes over the
// caller's reference and releases it when the send concludes. caption
// is only written to the local echo.
func (s *Session) SendImage(imageID int, caption string) {
	if s.left {
		return
	}
	if s.deps.Images == nil {
		log.Printf("room: %s: no image store configured, dropping image send", s.roomID)
		return
	}

	sid := &imageSend{session: s, imageID: imageID}
	log.Printf("room: %s: queuing image id=%d", s.roomID, imageID)

	// The event content cannot be completed yet: the url member comes
	// from the upload response. The hook runs the upload when the event
	// reaches the head of the queue.
	s.Enqueue(event.TypeMessage, event.ImageContent(""), s.runImageHook, sid)
	s.deps.Sink.WriteMessage(s.roomID, s.myDisplayName(), caption, time.Now(), true)
}

// runImageHook starts phase 1: uploading the media. Called by dispatch
// with the image event at the head of the queue and no send in flight.
func (s *Session) runImageHook(ev *event.Queued) {
	sid, ok := ev.HookData.(*imageSend)
	if !ok {
		log.Printf("room: %s: image event txn=%s has no pipeline state", s.roomID, ev.TxnID)
		return
	}

	img := s.deps.Images.Find(sid.imageID)
	if img == nil {
		log.Printf("room: %s: image id=%d not in store", s.roomID, sid.imageID)
		return
	}

	sid.event = ev
	ev.Phase = event.PhaseUploading
	if content, err := sjson.SetBytes(ev.Content, "body", img.Filename); err == nil {
		ev.Content = content
	}

	ctype := contentTypeFor(img.Filename)
	log.Printf("room: %s: uploading image id=%d file=%s type=%s",
		s.roomID, sid.imageID, img.Filename, ctype)

	s.activeSend = s.deps.API.Upload(ctype, img.Data, transport.UploadCallbacks{
		OnSuccess:     sid.onUploadSuccess,
		OnError:       sid.onUploadError,
		OnBadResponse: sid.onUploadBadResponse,
	})
}

// onUploadSuccess starts phase 2: the event content is completed with
// the uploaded content URI and sent through the standard path. A
// success response without a content URI is a protocol error; the image
// is released and nothing is sent.
func (sid *imageSend) onUploadSuccess(contentURI string) {
	s := sid.session
	if s.left {
		return
	}

	if contentURI == "" {
		metrics.EventsSentTotal.WithLabelValues("bad_response").Inc()
		s.reportError("image upload succeeded but returned no content URI")
		sid.release()
		s.failHead()
		return
	}

	content, err := sjson.SetBytes(sid.event.Content, "url", contentURI)
	if err != nil {
		s.reportError("image event content rewrite failed: " + err.Error())
		sid.release()
		s.failHead()
		return
	}
	sid.event.Content = content
	sid.event.Phase = event.PhaseSending

	log.Printf("room: %s: image uploaded as %s, sending txn=%s",
		s.roomID, contentURI, sid.event.TxnID)

	s.activeSend = s.deps.API.SendEvent(s.roomID, sid.event.Type, sid.event.TxnID, sid.event.Content,
		transport.SendCallbacks{
			OnSuccess: func(eventID string) {
				sid.release()
				s.onSendSuccess(eventID)
			},
			OnError: func(message string) {
				sid.release()
				s.onSendError(message)
			},
			OnBadResponse: func(status int, body []byte) {
				sid.release()
				s.onSendBadResponse(status, body)
			},
		})
}

// onUploadError releases the image and leaves the event queued, like
// any other send failure.
func (sid *imageSend) onUploadError(message string) {
	s := sid.session
	if s.left {
		return
	}
	metrics.EventsSentTotal.WithLabelValues("error").Inc()
	s.reportError(message)
	sid.release()
	s.failHead()
}

// onUploadBadResponse handles a non-success upload response.
func (sid *imageSend) onUploadBadResponse(status int, body []byte) {
	s := sid.session
	if s.left {
		return
	}
	metrics.EventsSentTotal.WithLabelValues("bad_response").Inc()
	s.reportError(badResponseMessage(status, body))
	sid.release()
	s.failHead()
}
