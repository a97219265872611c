package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
)

// MaxFileSize is the largest accepted upload, in bytes.
const MaxFileSize = 5242880

const pdfExtension = ".pdf"

// ErrNotFound is returned when a requested file is not in the library.
var ErrNotFound = errors.New("file not found")

// ValidationError reports a request that was rejected before reaching the
// store.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Store is the ordered file store the Service sequences calls against.
// *Repository implements it.
type Store interface {
	List(ctx context.Context) ([]FileListItem, error)
	Exists(ctx context.Context, name string) (bool, error)
	Add(ctx context.Context, f *StoredFile) error
	Download(ctx context.Context, name string) (*StoredFile, error)
	Delete(ctx context.Context, name string) error
	Reorder(ctx context.Context, names []string) error
}

// Upload is an inbound file.
type Upload struct {
	Name        string
	Size        int64
	ContentType string
	Content     io.ReadCloser
}

// Service validates requests and runs existence checks before handing
// them to the store. Validation failures come back as *ValidationError or
// ErrNotFound. Store failures are logged once and returned unchanged.
type Service struct {
	store Store
}

// NewService creates a new library Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns the library in user order.
func (s *Service) List(ctx context.Context) ([]FileListItem, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		logFailure("list", err)
		return nil, err
	}
	return items, nil
}

// Get opens the named file for download.
func (s *Service) Get(ctx context.Context, name string) (*StoredFile, error) {
	if name == "" {
		return nil, invalid("fileName parameter was empty")
	}

	exists, err := s.store.Exists(ctx, name)
	if err != nil {
		logFailure("get "+name, err)
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	f, err := s.store.Download(ctx, name)
	if err != nil {
		logFailure("get "+name, err)
		return nil, err
	}
	return f, nil
}

// Upload adds a new PDF at the end of the library. Existing files are never
// overwritten.
func (s *Service) Upload(ctx context.Context, u *Upload) error {
	if u == nil {
		return invalid("file parameter was empty")
	}
	if u.Size > MaxFileSize {
		return invalid("the maximum file size is %d bytes", MaxFileSize)
	}
	if !strings.EqualFold(filepath.Ext(u.Name), pdfExtension) {
		return invalid("the uploaded file must be a PDF")
	}
	if strings.TrimSuffix(u.Name, filepath.Ext(u.Name)) == "" {
		return invalid("file name was empty")
	}

	exists, err := s.store.Exists(ctx, u.Name)
	if err != nil {
		logFailure("upload "+u.Name, err)
		return err
	}
	if exists {
		return invalid("a file with a matching name already exists")
	}

	err = s.store.Add(ctx, &StoredFile{
		Name:        u.Name,
		ContentType: u.ContentType,
		Size:        u.Size,
		Content:     u.Content,
	})
	if err != nil {
		logFailure("upload "+u.Name, err)
		return err
	}
	return nil
}

// Reorder applies a new order. A nil list is rejected; an empty one is a
// no-op.
func (s *Service) Reorder(ctx context.Context, names []string) error {
	if names == nil {
		return invalid("newOrder parameter was empty")
	}
	if err := s.store.Reorder(ctx, names); err != nil {
		logFailure("reorder", err)
		return err
	}
	return nil
}

// Delete removes the named file.
func (s *Service) Delete(ctx context.Context, name string) error {
	if name == "" {
		return invalid("fileName parameter was empty")
	}

	exists, err := s.store.Exists(ctx, name)
	if err != nil {
		logFailure("delete "+name, err)
		return err
	}
	if !exists {
		return ErrNotFound
	}

	if err := s.store.Delete(ctx, name); err != nil {
		logFailure("delete "+name, err)
		return err
	}
	return nil
}

func logFailure(op string, err error) {
	log.Printf("library: %s: %v", op, err)
}
