package room

import (
	"testing"

	"github.com/quilt-im/quilt/internal/event"
)

// countingStore wraps the memory store to count releases per image.
type countingStore struct {
	inner    *MemoryImageStore
	releases map[int]int
}

func newCountingStore() *countingStore {
	return &countingStore{inner: NewMemoryImageStore(), releases: make(map[int]int)}
}

func (c *countingStore) Find(id int) *Image { return c.inner.Find(id) }

func (c *countingStore) Release(id int) {
	c.releases[id]++
	c.inner.Release(id)
}

func newImageEnv() (*testEnv, *countingStore, int) {
	env := newTestEnv()
	store := newCountingStore()
	env.session.deps.Images = store
	id := store.inner.Add(&Image{Filename: "cat.png", Data: []byte("pngbytes")})
	return env, store, id
}

func TestImagePipelineSuccess(t *testing.T) {
	env, store, id := newImageEnv()

	env.session.SendImage(id, "a cat")

	// Phase 1: the hook runs at the head of the queue and uploads.
	if len(env.api.uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(env.api.uploads))
	}
	if len(env.api.sends) != 0 {
		t.Fatalf("no event send before the upload completes, got %d", len(env.api.sends))
	}
	up := env.api.uploads[0]
	if up.contentType != "image/png" {
		t.Errorf("unexpected content type: %s", up.contentType)
	}
	if string(up.data) != "pngbytes" {
		t.Errorf("unexpected upload payload: %q", up.data)
	}

	// Phase 2: content is rewritten with the content URI and sent.
	up.cb.OnSuccess("mxc://example.org/abcd")

	if len(env.api.sends) != 1 {
		t.Fatalf("expected the event send after upload, got %d", len(env.api.sends))
	}
	send := env.api.sends[0]
	if got := event.StringMember(send.content, "url"); got != "mxc://example.org/abcd" {
		t.Errorf("content url not rewritten: %q", got)
	}
	if got := event.StringMember(send.content, "body"); got != "cat.png" {
		t.Errorf("content body should carry the filename: %q", got)
	}
	if got := event.StringMember(send.content, "msgtype"); got != event.MsgImage {
		t.Errorf("unexpected msgtype: %q", got)
	}

	send.cb.OnSuccess("$done")

	if store.releases[id] != 1 {
		t.Errorf("image must be released exactly once, got %d", store.releases[id])
	}
	if len(env.session.queue) != 0 {
		t.Errorf("queue should have drained, has %d", len(env.session.queue))
	}
}

func TestImageReleaseOnUploadError(t *testing.T) {
	env, store, id := newImageEnv()

	env.session.SendImage(id, "a cat")
	env.api.uploads[0].cb.OnError("network down")

	if store.releases[id] != 1 {
		t.Errorf("image must be released exactly once, got %d", store.releases[id])
	}
	if env.session.activeSend != nil {
		t.Error("in-flight handle must be cleared")
	}
	if len(env.session.queue) != 1 {
		t.Errorf("event stays queued on upload error, queue has %d", len(env.session.queue))
	}
	if len(env.errors) != 1 {
		t.Errorf("upload error should surface, got %v", env.errors)
	}
}

func TestImageReleaseOnUploadBadResponse(t *testing.T) {
	env, store, id := newImageEnv()

	env.session.SendImage(id, "a cat")
	env.api.uploads[0].cb.OnBadResponse(413, []byte(`{"error":"too large"}`))

	if store.releases[id] != 1 {
		t.Errorf("image must be released exactly once, got %d", store.releases[id])
	}
	if env.session.activeSend != nil {
		t.Error("in-flight handle must be cleared")
	}
}

func TestImageReleaseOnSendError(t *testing.T) {
	env, store, id := newImageEnv()

	env.session.SendImage(id, "a cat")
	env.api.uploads[0].cb.OnSuccess("mxc://example.org/abcd")
	env.api.sends[0].cb.OnError("connection reset")

	if store.releases[id] != 1 {
		t.Errorf("image must be released exactly once, got %d", store.releases[id])
	}
	if len(env.session.queue) != 1 {
		t.Errorf("event stays queued on send error, queue has %d", len(env.session.queue))
	}
}

func TestImageReleaseOnSendBadResponse(t *testing.T) {
	env, store, id := newImageEnv()

	env.session.SendImage(id, "a cat")
	env.api.uploads[0].cb.OnSuccess("mxc://example.org/abcd")
	env.api.sends[0].cb.OnBadResponse(403, []byte(`{"error":"forbidden"}`))

	if store.releases[id] != 1 {
		t.Errorf("image must be released exactly once, got %d", store.releases[id])
	}
}

func TestUploadWithoutContentURI(t *testing.T) {
	env, store, id := newImageEnv()

	env.session.SendImage(id, "a cat")
	env.api.uploads[0].cb.OnSuccess("")

	if len(env.api.sends) != 0 {
		t.Errorf("send must not be attempted without a content URI")
	}
	if store.releases[id] != 1 {
		t.Errorf("image must be released exactly once, got %d", store.releases[id])
	}
	if len(env.errors) != 1 {
		t.Errorf("missing content URI is a protocol error, got %v", env.errors)
	}
}

func TestImageThenTextOrdering(t *testing.T) {
	env, store, id := newImageEnv()

	env.session.SendImage(id, "a cat")
	env.session.SendMessage("and a caption")

	// The text send must not start until the image upload and send
	// have both completed.
	if len(env.api.sends) != 0 {
		t.Fatalf("text sent before image upload finished")
	}

	env.api.uploads[0].cb.OnSuccess("mxc://example.org/abcd")
	if len(env.api.sends) != 1 {
		t.Fatalf("expected only the image send, got %d", len(env.api.sends))
	}
	if event.StringMember(env.api.sends[0].content, "msgtype") != event.MsgImage {
		t.Fatal("first send must be the image event")
	}

	env.api.sends[0].cb.OnSuccess("$image")
	if len(env.api.sends) != 2 {
		t.Fatalf("text send should follow image completion, got %d", len(env.api.sends))
	}
	if event.StringMember(env.api.sends[1].content, "msgtype") != event.MsgText {
		t.Error("second send must be the text event")
	}

	_ = store
}

func TestImageMissingFromStoreStallsQueue(t *testing.T) {
	env := newTestEnv()
	store := newCountingStore()
	env.session.deps.Images = store

	env.session.SendImage(99, "ghost")

	if len(env.api.uploads) != 0 {
		t.Errorf("no upload may start for an unknown image")
	}
	if len(env.session.queue) != 1 {
		t.Errorf("event stays queued, got %d", len(env.session.queue))
	}
}
