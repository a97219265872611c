// Package storage defines the blob store contract the library is built on.
// The backend is chosen at startup; MinIO is the default and also fronts
// any S3-compatible provider.
package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
)

// ErrNotFound is returned when an object does not exist in the container.
var ErrNotFound = errors.New("object not found")

// Object describes a stored blob and its user metadata.
type Object struct {
	Name        string
	Size        int64
	ContentType string
	Metadata    map[string]string
	// Location is a resolvable address for the object, e.g. its public URL.
	Location string
}

// MetaValue looks up a metadata entry case-insensitively. Backends differ in
// how they canonicalize metadata keys (S3 lowercases, MinIO title-cases).
func (o *Object) MetaValue(key string) (string, bool) {
	if v, ok := o.Metadata[key]; ok {
		return v, true
	}
	for k, v := range o.Metadata {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// BlobStore is the interface for an unordered, metadata-capable object store
// scoped to a single container (bucket).
type BlobStore interface {
	// EnsureContainer creates the container if it does not exist yet.
	EnsureContainer(ctx context.Context) error
	// List returns every object in the container with its metadata.
	// Paginated backends aggregate all pages.
	List(ctx context.Context) ([]Object, error)
	// Stat returns the object's attributes. Returns ErrNotFound if absent.
	Stat(ctx context.Context, name string) (*Object, error)
	// Exists reports whether the object exists. Only transport or store
	// failures produce an error.
	Exists(ctx context.Context, name string) (bool, error)
	// Upload writes content, content type and user metadata under name.
	// size is the exact byte count, or -1 when unknown.
	Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string, metadata map[string]string) error
	// Download opens the object's content. The caller must close it.
	Download(ctx context.Context, name string) (io.ReadCloser, *Object, error)
	// SetMetadata replaces the object's user metadata, leaving content and
	// content type untouched.
	SetMetadata(ctx context.Context, name string, metadata map[string]string) error
	// Delete removes the object.
	Delete(ctx context.Context, name string) error
	// Close releases client resources.
	Close() error
}

// publicURL joins a base URL and an object name, escaping the name.
func publicURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(name)
}

// normalizeMetadata strips the S3 user-metadata header prefix some clients
// leave on keys.
func normalizeMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if len(k) > len(amzMetaPrefix) && strings.EqualFold(k[:len(amzMetaPrefix)], amzMetaPrefix) {
			k = k[len(amzMetaPrefix):]
		}
		out[k] = v
	}
	return out
}

const amzMetaPrefix = "X-Amz-Meta-"

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
