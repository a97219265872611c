package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSOptions configures a GCSStorage.
type GCSOptions struct {
	CredentialsFile string // empty uses application default credentials
	ProjectID       string // required only when the bucket has to be created
	Bucket          string
	PublicBase      string
}

// GCSStorage implements BlobStore on Google Cloud Storage. GCS lists user
// metadata inline and patches it in place, so no per-object round trips
// are needed for ordering.
type GCSStorage struct {
	client     *gcs.Client
	bucket     *gcs.BucketHandle
	bucketName string
	projectID  string
	publicBase string
}

// NewGCSStorage creates a GCS client for the bucket.
func NewGCSStorage(ctx context.Context, opts GCSOptions) (*GCSStorage, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	publicBase := opts.PublicBase
	if publicBase == "" {
		publicBase = "https://storage.googleapis.com/" + opts.Bucket
	}

	return &GCSStorage{
		client:     client,
		bucket:     client.Bucket(opts.Bucket),
		bucketName: opts.Bucket,
		projectID:  opts.ProjectID,
		publicBase: publicBase,
	}, nil
}

// EnsureContainer creates the bucket in the configured project if missing.
func (s *GCSStorage) EnsureContainer(ctx context.Context) error {
	_, err := s.bucket.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gcs.ErrBucketNotExist) {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if s.projectID == "" {
		return fmt.Errorf("bucket %q does not exist and no project id is configured", s.bucketName)
	}
	if err := s.bucket.Create(ctx, s.projectID, nil); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucketName, err)
	}
	return nil
}

// List iterates every object in the bucket.
func (s *GCSStorage) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	it := s.bucket.Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		objects = append(objects, s.toObject(attrs))
	}
	return objects, nil
}

// Stat fetches the object's attributes.
func (s *GCSStorage) Stat(ctx context.Context, name string) (*Object, error) {
	attrs, err := s.bucket.Object(name).Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("object attrs %q: %w", name, mapGCSErr(err))
	}
	obj := s.toObject(attrs)
	return &obj, nil
}

// Exists reports whether the object exists.
func (s *GCSStorage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.Stat(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Upload writes the object. The write is committed on Close.
func (s *GCSStorage) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %q: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit object %q: %w", name, err)
	}
	return nil
}

// Download opens a reader on the object.
func (s *GCSStorage) Download(ctx context.Context, name string) (io.ReadCloser, *Object, error) {
	obj, err := s.Stat(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read object %q: %w", name, mapGCSErr(err))
	}
	return rc, obj, nil
}

// SetMetadata replaces the object's user metadata. GCS merges the update
// map into the existing one, so dropped keys are sent with empty values,
// which deletes them. The patch is conditional on the metageneration read.
func (s *GCSStorage) SetMetadata(ctx context.Context, name string, metadata map[string]string) error {
	obj := s.bucket.Object(name)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return fmt.Errorf("object attrs %q: %w", name, mapGCSErr(err))
	}

	_, err = obj.If(gcs.Conditions{MetagenerationMatch: attrs.Metageneration}).
		Update(ctx, gcs.ObjectAttrsToUpdate{Metadata: metadataPatch(attrs.Metadata, metadata)})
	if err != nil {
		return fmt.Errorf("update metadata %q: %w", name, mapGCSErr(err))
	}
	return nil
}

// Delete removes the object.
func (s *GCSStorage) Delete(ctx context.Context, name string) error {
	if err := s.bucket.Object(name).Delete(ctx); err != nil {
		return fmt.Errorf("delete object %q: %w", name, mapGCSErr(err))
	}
	return nil
}

// Close closes the underlying client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

func (s *GCSStorage) toObject(attrs *gcs.ObjectAttrs) Object {
	return Object{
		Name:        attrs.Name,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Metadata:    copyMetadata(attrs.Metadata),
		Location:    publicURL(s.publicBase, attrs.Name),
	}
}

func mapGCSErr(err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ErrNotFound
	}
	return err
}

// metadataPatch turns a full replacement into a GCS merge patch: every key
// of current missing from next maps to "".
func metadataPatch(current, next map[string]string) map[string]string {
	patch := make(map[string]string, len(current)+len(next))
	for k := range current {
		if _, ok := next[k]; !ok {
			patch[k] = ""
		}
	}
	for k, v := range next {
		patch[k] = v
	}
	return patch
}
