package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type blob struct {
	data        []byte
	contentType string
}

// Blobs keeps artifacts in process memory and serves them under BasePath.
// Contents do not survive a restart.
type Blobs struct {
	basePath string

	mu    sync.RWMutex
	items map[string]blob
}

func NewBlobs(basePath string) *Blobs {
	return &Blobs{
		basePath: strings.TrimRight(basePath, "/"),
		items:    make(map[string]blob),
	}
}

func (b *Blobs) Store(_ context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to store")
	}
	id := uuid.NewString()
	b.mu.Lock()
	b.items[id] = blob{data: data, contentType: contentType}
	b.mu.Unlock()
	return b.basePath + "/" + id, nil
}

// Get returns the stored bytes and content type for id.
func (b *Blobs) Get(id string) ([]byte, string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	item, ok := b.items[id]
	if !ok {
		return nil, "", false
	}
	return item.data, item.contentType, true
}
