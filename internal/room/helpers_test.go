package room

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/quilt-im/quilt/internal/transport"
)

// fakeSend is one pending event send issued against the fake API.
type fakeSend struct {
	roomID    string
	eventType string
	txnID     string
	content   json.RawMessage
	cb        transport.SendCallbacks
	canceled  bool
}

func (h *fakeSend) ID() string { return "send-" + h.txnID }

// fakeUpload is one pending media upload issued against the fake API.
type fakeUpload struct {
	contentType string
	data        []byte
	cb          transport.UploadCallbacks
	canceled    bool
}

func (h *fakeUpload) ID() string { return "upload" }

// fakeAPI implements transport.API with manually-completed requests, so
// tests control exactly when each callback fires — mirroring the
// cooperative, callbacks-on-the-same-thread model the session runs in.
type fakeAPI struct {
	sends    []*fakeSend
	uploads  []*fakeUpload
	leaves   []string
	canceled []string
}

func (f *fakeAPI) SendEvent(roomID, eventType, txnID string, content json.RawMessage, cb transport.SendCallbacks) transport.Handle {
	h := &fakeSend{roomID: roomID, eventType: eventType, txnID: txnID, content: content, cb: cb}
	f.sends = append(f.sends, h)
	return h
}

func (f *fakeAPI) Upload(contentType string, data []byte, cb transport.UploadCallbacks) transport.Handle {
	h := &fakeUpload{contentType: contentType, data: data, cb: cb}
	f.uploads = append(f.uploads, h)
	return h
}

func (f *fakeAPI) LeaveRoom(roomID string) {
	f.leaves = append(f.leaves, roomID)
}

func (f *fakeAPI) Cancel(h transport.Handle) {
	switch req := h.(type) {
	case *fakeSend:
		req.canceled = true
	case *fakeUpload:
		req.canceled = true
	}
	f.canceled = append(f.canceled, h.ID())
}

// lastSend returns the most recent send, or nil.
func (f *fakeAPI) lastSend() *fakeSend {
	if len(f.sends) == 0 {
		return nil
	}
	return f.sends[len(f.sends)-1]
}

// lastUpload returns the most recent upload, or nil.
func (f *fakeAPI) lastUpload() *fakeUpload {
	if len(f.uploads) == 0 {
		return nil
	}
	return f.uploads[len(f.uploads)-1]
}

// fakeSink records UI operations as readable strings.
type fakeSink struct {
	calls []string
}

func (s *fakeSink) RoomJoined(roomID string) {
	s.calls = append(s.calls, "joined")
}

func (s *fakeSink) AddMembers(roomID string, names []string, announce bool) {
	s.calls = append(s.calls, fmt.Sprintf("add[%s] announce=%v", strings.Join(names, ","), announce))
}

func (s *fakeSink) RenameMember(roomID, oldName, newName string) {
	s.calls = append(s.calls, fmt.Sprintf("rename %s->%s", oldName, newName))
}

func (s *fakeSink) RemoveMember(roomID, name string) {
	s.calls = append(s.calls, "remove "+name)
}

func (s *fakeSink) SetRoomName(roomID, name string) {
	s.calls = append(s.calls, "name="+name)
}

func (s *fakeSink) WriteMessage(roomID, sender, body string, ts time.Time, local bool) {
	s.calls = append(s.calls, fmt.Sprintf("msg from=%s body=%q local=%v", sender, body, local))
}

// since returns the calls recorded after the first n.
func (s *fakeSink) since(n int) []string {
	return s.calls[n:]
}

// testEnv bundles a session with its fakes.
type testEnv struct {
	session *Session
	api     *fakeAPI
	sink    *fakeSink
	images  *MemoryImageStore
	errors  []string
	closing bool
}

const (
	testRoomID = "!abc123:example.org"
	testUserID = "@me:example.org"
)

func newTestEnv() *testEnv {
	env := &testEnv{
		api:    &fakeAPI{},
		sink:   &fakeSink{},
		images: NewMemoryImageStore(),
	}
	env.session = NewSession(testRoomID, Deps{
		API:          env.api,
		Sink:         env.sink,
		Images:       env.images,
		UserID:       testUserID,
		ShuttingDown: func() bool { return env.closing },
		ReportError:  func(roomID, message string) { env.errors = append(env.errors, message) },
	})
	return env
}

// memberEvent builds an m.room.member state event.
func memberEvent(userID, membership, displayname string) []byte {
	content := map[string]string{"membership": membership}
	if displayname != "" {
		content["displayname"] = displayname
	}
	raw, _ := json.Marshal(map[string]interface{}{
		"type":      "m.room.member",
		"state_key": userID,
		"sender":    userID,
		"content":   content,
	})
	return raw
}

// messageEvent builds an m.room.message timeline event.
func messageEvent(sender, msgtype, body string, ts int64) []byte {
	raw, _ := json.Marshal(map[string]interface{}{
		"type":             "m.room.message",
		"sender":           sender,
		"origin_server_ts": ts,
		"content":          map[string]string{"msgtype": msgtype, "body": body},
	})
	return raw
}

// join is shorthand for applying a join and flushing it un-announced.
func (env *testEnv) join(userID, displayname string) {
	env.session.HandleStateEvent(memberEvent(userID, "join", displayname))
	env.session.CompleteStateUpdate(false)
}
