package blob

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryObject struct {
	obj   Object
	token string
}

// MemoryStore はプロセス内で完結するStore実装。
type MemoryStore struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]memoryObject
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: baseURL,
		objects: make(map[string]memoryObject),
	}
}

func (s *MemoryStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	copied := make([]byte, len(data))
	copy(copied, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = memoryObject{
		obj: Object{
			Path:        path,
			Data:        copied,
			ContentType: contentType,
			UpdatedAt:   time.Now(),
		},
		token: uuid.NewString(),
	}
	return nil
}

func (s *MemoryStore) URL(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[path]
	if !ok {
		return "", ErrNotFound
	}
	return downloadURL(s.baseURL, path, o.token), nil
}

func (s *MemoryStore) Get(ctx context.Context, path, token string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[path]
	if !ok || o.token != token {
		return nil, ErrNotFound
	}
	obj := o.obj
	return &obj, nil
}
