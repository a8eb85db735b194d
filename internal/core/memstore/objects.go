package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	objectclient "github.com/markdave123-py/contexta-ingest/internal/core/object-client"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Objects is an in-memory storage gateway. Presigned URLs point nowhere;
// tests place the uploaded bytes with Put.
type Objects struct {
	store *Store
}

func (s *Store) Objects() *Objects { return &Objects{store: s} }

func (o *Objects) GeneratePresignedUploadURL(_ context.Context, fileName, _, category, ownerID string, expiry time.Duration) (*models.PresignedUpload, error) {
	key := objectclient.NewKey(category, ownerID, fileName)
	return &models.PresignedUpload{
		UploadURL: "memory://uploads/" + key,
		Key:       key,
		ExpiresIn: int64(expiry.Seconds()),
	}, nil
}

// Put stores data under key, standing in for a client's presigned PUT.
func (o *Objects) Put(key string, data []byte, contentType string) {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	o.store.objects[key] = object{data: append([]byte(nil), data...), contentType: contentType}
}

func (o *Objects) GetFileStream(_ context.Context, key string) (io.ReadCloser, error) {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	obj, ok := o.store.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (o *Objects) UploadFile(_ context.Context, r io.Reader, fileName, contentType string, _ int64, category, ownerID string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", fileName, err)
	}
	key := objectclient.NewKey(category, ownerID, fileName)
	o.Put(key, data, contentType)
	return key, nil
}

func (o *Objects) DeleteFile(_ context.Context, key string) error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	delete(o.store.objects, key)
	return nil
}

// Keys lists stored object keys with the given prefix.
func (o *Objects) Keys(prefix string) []string {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	var out []string
	for k := range o.store.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}
