package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and when no S3 endpoint is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	data     []byte
	modified time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject), now: time.Now}
}

func (s *MemoryStore) Upload(ctx context.Context, ownerID string, kind Kind, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now()
	key := ObjectKey(ownerID, kind, t)
	// keys are millisecond stamps; bump on collision
	for {
		if _, taken := s.objects[key]; !taken {
			break
		}
		t = t.Add(time.Millisecond)
		key = ObjectKey(ownerID, kind, t)
	}
	s.objects[key] = memoryObject{data: data, modified: t}
	return key, nil
}

func (s *MemoryStore) SignedURL(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	return "memory://" + key, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, ownerID string, kind Kind, limit int) ([]string, error) {
	prefix := Prefix(ownerID, kind)
	s.mu.RLock()
	var objs []objectInfo
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			objs = append(objs, objectInfo{key: key, modified: obj.modified})
		}
	}
	s.mu.RUnlock()
	return newestKeys(objs, limit), nil
}

// Get returns the stored bytes for key.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}
