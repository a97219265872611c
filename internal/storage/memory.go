package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

type memObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

// MemoryStorage is an in-process BlobStore. Listing order follows Go map
// iteration and is deliberately unspecified, like a real object store.
type MemoryStorage struct {
	mu         sync.RWMutex
	objects    map[string]*memObject
	publicBase string
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage(publicBase string) *MemoryStorage {
	if publicBase == "" {
		publicBase = "memory://pdflibrary"
	}
	return &MemoryStorage{
		objects:    make(map[string]*memObject),
		publicBase: publicBase,
	}
}

func (m *MemoryStorage) EnsureContainer(ctx context.Context) error {
	return nil
}

func (m *MemoryStorage) List(ctx context.Context) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	objects := make([]Object, 0, len(m.objects))
	for name, o := range m.objects {
		objects = append(objects, m.toObject(name, o))
	}
	return objects, nil
}

func (m *MemoryStorage) Stat(ctx context.Context, name string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.objects[name]
	if !ok {
		return nil, fmt.Errorf("stat object %q: %w", name, ErrNotFound)
	}
	obj := m.toObject(name, o)
	return &obj, nil
}

func (m *MemoryStorage) Exists(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[name]
	return ok, nil
}

func (m *MemoryStorage) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[name] = &memObject{
		data:        data,
		contentType: contentType,
		metadata:    copyMetadata(metadata),
	}
	return nil
}

func (m *MemoryStorage) Download(ctx context.Context, name string) (io.ReadCloser, *Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.objects[name]
	if !ok {
		return nil, nil, fmt.Errorf("get object %q: %w", name, ErrNotFound)
	}
	obj := m.toObject(name, o)
	return io.NopCloser(bytes.NewReader(o.data)), &obj, nil
}

func (m *MemoryStorage) SetMetadata(ctx context.Context, name string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.objects[name]
	if !ok {
		return fmt.Errorf("replace metadata %q: %w", name, ErrNotFound)
	}
	o.metadata = copyMetadata(metadata)
	return nil
}

func (m *MemoryStorage) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[name]; !ok {
		return fmt.Errorf("delete object %q: %w", name, ErrNotFound)
	}
	delete(m.objects, name)
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) toObject(name string, o *memObject) Object {
	return Object{
		Name:        name,
		Size:        int64(len(o.data)),
		ContentType: o.contentType,
		Metadata:    copyMetadata(o.metadata),
		Location:    publicURL(m.publicBase, name),
	}
}
