package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrInvalidName is returned by the local backend for names that cannot be
// mapped onto a single file in the container directory.
var ErrInvalidName = errors.New("object name contains invalid characters")

const metaDir = ".meta"

// localMeta is the JSON sidecar stored next to each object.
type localMeta struct {
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata"`
}

// LocalStorage implements BlobStore on the local filesystem. Each object is
// a file in the container directory, with its content type and metadata in
// a JSON sidecar under .meta/.
type LocalStorage struct {
	dir        string
	publicBase string
	mu         sync.RWMutex
}

// NewLocalStorage creates a filesystem backend rooted at basePath/container.
func NewLocalStorage(basePath, container, publicBase string) (*LocalStorage, error) {
	dir, err := filepath.Abs(filepath.Join(basePath, container))
	if err != nil {
		return nil, fmt.Errorf("resolve base path: %w", err)
	}
	if publicBase == "" {
		publicBase = (&url.URL{Scheme: "file", Path: filepath.ToSlash(dir)}).String()
	}
	return &LocalStorage{dir: dir, publicBase: publicBase}, nil
}

// EnsureContainer creates the container and sidecar directories.
func (l *LocalStorage) EnsureContainer(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(l.dir, metaDir), 0o755); err != nil {
		return fmt.Errorf("create container directory: %w", err)
	}
	return nil
}

// List reads the container directory. Dot-files (sidecars, temp files) are
// skipped.
func (l *LocalStorage) List(ctx context.Context) ([]Object, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read container directory: %w", err)
	}

	var objects []Object
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		obj, err := l.stat(e.Name())
		if err != nil {
			return nil, err
		}
		objects = append(objects, *obj)
	}
	return objects, nil
}

// Stat returns the object's attributes.
func (l *LocalStorage) Stat(ctx context.Context, name string) (*Object, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stat(name)
}

// Exists checks if the object file exists. Names the backend cannot store
// never exist.
func (l *LocalStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, err := os.Stat(l.contentPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("check existence: %w", err)
	}
	return true, nil
}

// Upload writes content and sidecar, each through a temp file and rename.
func (l *LocalStorage) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	if err := validateName(name); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writeAtomic(l.contentPath(name), r); err != nil {
		return fmt.Errorf("write object %q: %w", name, err)
	}
	return l.writeMeta(name, localMeta{ContentType: contentType, Metadata: copyMetadata(metadata)})
}

// Download opens the object file.
func (l *LocalStorage) Download(ctx context.Context, name string) (io.ReadCloser, *Object, error) {
	if err := validateName(name); err != nil {
		return nil, nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	obj, err := l.stat(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(l.contentPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("open object %q: %w", name, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("open object %q: %w", name, err)
	}
	return f, obj, nil
}

// SetMetadata rewrites the sidecar.
func (l *LocalStorage) SetMetadata(ctx context.Context, name string, metadata map[string]string) error {
	if err := validateName(name); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	obj, err := l.stat(name)
	if err != nil {
		return err
	}
	return l.writeMeta(name, localMeta{ContentType: obj.ContentType, Metadata: copyMetadata(metadata)})
}

// Delete removes the object and its sidecar.
func (l *LocalStorage) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.contentPath(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete object %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("delete object %q: %w", name, err)
	}
	if err := os.Remove(l.metaPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete metadata %q: %w", name, err)
	}
	return nil
}

// Close cleans up any resources
func (l *LocalStorage) Close() error {
	return nil
}

func (l *LocalStorage) stat(name string) (*Object, error) {
	info, err := os.Stat(l.contentPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("stat object %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("stat object %q: %w", name, err)
	}

	var meta localMeta
	data, err := os.ReadFile(l.metaPath(name))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("decode metadata %q: %w", name, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read metadata %q: %w", name, err)
	}

	return &Object{
		Name:        name,
		Size:        info.Size(),
		ContentType: meta.ContentType,
		Metadata:    copyMetadata(meta.Metadata),
		Location:    publicURL(l.publicBase, name),
	}, nil
}

func (l *LocalStorage) writeMeta(name string, meta localMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata %q: %w", name, err)
	}
	if err := l.writeAtomic(l.metaPath(name), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write metadata %q: %w", name, err)
	}
	return nil
}

// writeAtomic copies r into a temp file in the target's directory and
// renames it into place, so readers never observe a partial file.
func (l *LocalStorage) writeAtomic(path string, r io.Reader) error {
	tmp := filepath.Join(filepath.Dir(path), ".tmp-"+uuid.NewString())
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (l *LocalStorage) contentPath(name string) string {
	return filepath.Join(l.dir, name)
}

func (l *LocalStorage) metaPath(name string) string {
	return filepath.Join(l.dir, metaDir, name+".json")
}

// validateName rejects names that would escape the container directory or
// collide with sidecar and temp files.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name: %w", ErrInvalidName)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("leading dot not allowed: %w", ErrInvalidName)
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "\x00") {
		return fmt.Errorf("invalid character in %q: %w", name, ErrInvalidName)
	}
	return nil
}
