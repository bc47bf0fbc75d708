package services

import (
	"github.com/google/uuid"
)

const blobPrefix = "blob:"

type Blob struct {
	Handle string
	Mime   string
	Data   []byte
}

// BlobStore keeps reassembled attachments in memory for as long as their
// conversation is open.
type BlobStore struct {
	blobs map[string]Blob
}

func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]Blob)}
}

func (v *BlobStore) Put(mime string, data []byte) string {
	handle := blobPrefix + uuid.NewString()
	v.blobs[handle] = Blob{Handle: handle, Mime: mime, Data: data}
	return handle
}

func (v *BlobStore) Get(handle string) (Blob, bool) {
	blob, ok := v.blobs[handle]
	return blob, ok
}

func (v *BlobStore) Release(handle string) {
	delete(v.blobs, handle)
}

func (v *BlobStore) Len() int {
	return len(v.blobs)
}

func (v *BlobStore) Clear() {
	clear(v.blobs)
}
