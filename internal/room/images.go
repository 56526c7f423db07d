package room

import (
	"strings"
	"sync"
)

// Image is one media resource held by an ImageStore.
type Image struct {
	Filename string
	Data     []byte
}

// ImageStore hands out image data for outbound sends. Release drops the
// sender's reference; the image pipeline calls it exactly once per send,
// on every exit path.
type ImageStore interface {
	Find(id int) *Image
	Release(id int)
}

// MemoryImageStore is a reference-counted in-memory ImageStore.
type MemoryImageStore struct {
	mu     sync.Mutex
	nextID int
	images map[int]*storedImage
}

type storedImage struct {
	img  *Image
	refs int
}

// NewMemoryImageStore creates an empty store.
func NewMemoryImageStore() *MemoryImageStore {
	return &MemoryImageStore{nextID: 1, images: make(map[int]*storedImage)}
}

// Add stores an image with one reference and returns its id.
func (st *MemoryImageStore) Add(img *Image) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	id := st.nextID
	st.nextID++
	st.images[id] = &storedImage{img: img, refs: 1}
	return id
}

// Find returns the image for id, or nil.
func (st *MemoryImageStore) Find(id int) *Image {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.images[id]; ok {
		return s.img
	}
	return nil
}

// Release drops one reference; the image is discarded at zero.
func (st *MemoryImageStore) Release(id int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.images[id]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(st.images, id)
	}
}

// contentTypeFor guesses a MIME type from the image filename extension.
func contentTypeFor(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return "application/octet-stream"
	}
	switch strings.ToLower(filename[idx+1:]) {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "tif", "tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
