// Package library keeps a user-ordered collection of PDF files in a blob
// store. The order lives on each object as an OrderIndex metadata entry;
// the store itself is unordered.
package library

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pdflibrary/service/internal/storage"
)

// orderIndexKey is the metadata entry holding a file's position.
const orderIndexKey = "OrderIndex"

// ErrUnknownFile is returned by Reorder when a name is not in the store.
var ErrUnknownFile = fmt.Errorf("file not in library: %w", storage.ErrNotFound)

// StoredFile is a file's content and attributes.
type StoredFile struct {
	Name        string
	ContentType string
	Size        int64
	// Content is owned by the caller, who must close it.
	Content io.ReadCloser
}

// FileListItem is the listing projection of a stored file.
type FileListItem struct {
	Name      string `json:"name"`
	Location  string `json:"location"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Repository maps ordered file operations onto a BlobStore. It keeps no
// state between calls; every operation re-reads the store.
type Repository struct {
	store storage.BlobStore

	// mu serializes Add and Reorder within this process. Instances sharing a
	// store can still race on index assignment.
	mu sync.Mutex
}

// NewRepository creates a Repository over store.
func NewRepository(store storage.BlobStore) *Repository {
	return &Repository{store: store}
}

// List returns all files sorted ascending by OrderIndex.
func (r *Repository) List(ctx context.Context) ([]FileListItem, error) {
	objects, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sortByOrder(objects)

	items := make([]FileListItem, 0, len(objects))
	for _, o := range objects {
		items = append(items, FileListItem{
			Name:      o.Name,
			Location:  o.Location,
			SizeBytes: o.Size,
		})
	}
	return items, nil
}

// Exists reports whether a file with name is stored.
func (r *Repository) Exists(ctx context.Context, name string) (bool, error) {
	return r.store.Exists(ctx, name)
}

// Add stores f after every existing file: its OrderIndex is one past the
// current maximum, or 0 for an empty collection. Add does not check for an
// existing file of the same name.
func (r *Repository) Add(ctx context.Context, f *StoredFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	objects, err := r.store.List(ctx)
	if err != nil {
		return err
	}

	meta := map[string]string{orderIndexKey: strconv.Itoa(nextOrderIndex(objects))}
	return r.store.Upload(ctx, f.Name, f.Content, f.Size, f.ContentType, meta)
}

// Download opens the named file.
func (r *Repository) Download(ctx context.Context, name string) (*StoredFile, error) {
	rc, obj, err := r.store.Download(ctx, name)
	if err != nil {
		return nil, err
	}
	return &StoredFile{
		Name:        obj.Name,
		ContentType: obj.ContentType,
		Size:        obj.Size,
		Content:     rc,
	}, nil
}

// Delete removes the named file.
func (r *Repository) Delete(ctx context.Context, name string) error {
	return r.store.Delete(ctx, name)
}

// Reorder sets each named file's OrderIndex to its position in names.
// Files not named keep their index. Every name must exist; this is checked
// against a single listing before any metadata is written, after which
// writes happen one object at a time.
func (r *Repository) Reorder(ctx context.Context, names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	objects, err := r.store.List(ctx)
	if err != nil {
		return err
	}

	byName := make(map[string]storage.Object, len(objects))
	for _, o := range objects {
		byName[o.Name] = o
	}
	for _, name := range names {
		if _, ok := byName[name]; !ok {
			return fmt.Errorf("reorder %q: %w", name, ErrUnknownFile)
		}
	}

	for i, name := range names {
		meta := withOrderIndex(byName[name].Metadata, i)
		if err := r.store.SetMetadata(ctx, name, meta); err != nil {
			return err
		}
	}
	return nil
}

// orderIndex reads an object's OrderIndex. Missing or malformed values
// count as 0.
func orderIndex(o *storage.Object) int {
	v, ok := o.MetaValue(orderIndexKey)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}

func nextOrderIndex(objects []storage.Object) int {
	if len(objects) == 0 {
		return 0
	}
	highest := orderIndex(&objects[0])
	for i := 1; i < len(objects); i++ {
		if n := orderIndex(&objects[i]); n > highest {
			highest = n
		}
	}
	return highest + 1
}

// sortByOrder sorts by OrderIndex, breaking ties by name so the listing does
// not depend on store enumeration order.
func sortByOrder(objects []storage.Object) {
	sort.Slice(objects, func(i, j int) bool {
		oi, oj := orderIndex(&objects[i]), orderIndex(&objects[j])
		if oi != oj {
			return oi < oj
		}
		return objects[i].Name < objects[j].Name
	})
}

// withOrderIndex copies meta with OrderIndex set to n, dropping any
// differently-cased copy of the key a backend may have returned.
func withOrderIndex(meta map[string]string, n int) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		if strings.EqualFold(k, orderIndexKey) {
			continue
		}
		out[k] = v
	}
	out[orderIndexKey] = strconv.Itoa(n)
	return out
}
