package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions configures a MinioStorage.
type MinioOptions struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Region     string
	Bucket     string
	UseSSL     bool
	PublicBase string // browser-accessible base URL, e.g. "http://localhost:9000/pdflibrary"
	PublicRead bool   // apply an anonymous-read bucket policy on EnsureContainer
}

// MinioStorage implements BlobStore using a MinIO (or any S3-compatible) backend.
type MinioStorage struct {
	client     *minio.Client
	bucket     string
	publicBase string
	publicRead bool
}

// NewMinioStorage creates a MinIO client. Call EnsureContainer before use.
func NewMinioStorage(opts MinioOptions) (*MinioStorage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	publicBase := opts.PublicBase
	if publicBase == "" {
		publicBase = client.EndpointURL().String() + "/" + opts.Bucket
	}

	return &MinioStorage{
		client:     client,
		bucket:     opts.Bucket,
		publicBase: publicBase,
		publicRead: opts.PublicRead,
	}, nil
}

// EnsureContainer creates the bucket if missing and, when configured, sets a
// public-read policy so object locations resolve without credentials.
func (s *MinioStorage) EnsureContainer(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %q: %w", s.bucket, err)
		}
		log.Printf("storage: created bucket %q", s.bucket)
	}

	if s.publicRead {
		if err := s.client.SetBucketPolicy(ctx, s.bucket, publicReadPolicy(s.bucket)); err != nil {
			return fmt.Errorf("set bucket policy: %w", err)
		}
	}
	return nil
}

// List walks the whole bucket. MinIO returns user metadata inline when
// WithMetadata is set; other S3 providers ignore it, so objects that come
// back without metadata are stat'ed individually.
func (s *MinioStorage) List(ctx context.Context) ([]Object, error) {
	// Stops the listing goroutine on early return.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var objects []Object
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Recursive:    true,
		WithMetadata: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list objects: %w", info.Err)
		}
		if info.UserMetadata == nil {
			stat, err := s.client.StatObject(ctx, s.bucket, info.Key, minio.StatObjectOptions{})
			if err != nil {
				return nil, fmt.Errorf("stat object %q: %w", info.Key, s.mapErr(err))
			}
			info = stat
		}
		objects = append(objects, s.toObject(info))
	}
	return objects, nil
}

// Stat returns the object's attributes.
func (s *MinioStorage) Stat(ctx context.Context, name string) (*Object, error) {
	info, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("stat object %q: %w", name, s.mapErr(err))
	}
	obj := s.toObject(info)
	return &obj, nil
}

// Exists reports whether name is present in the bucket.
func (s *MinioStorage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.Stat(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Upload streams r to MinIO under name. A size of -1 makes the client
// buffer the whole object.
func (s *MinioStorage) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", name, err)
	}
	return nil
}

// Download opens the object for reading.
func (s *MinioStorage) Download(ctx context.Context, name string) (io.ReadCloser, *Object, error) {
	obj, err := s.Stat(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("get object %q: %w", name, s.mapErr(err))
	}
	return rc, obj, nil
}

// SetMetadata rewrites the object's user metadata with a server-side copy
// onto itself. The content type is carried over explicitly because
// ReplaceMetadata drops it otherwise.
func (s *MinioStorage) SetMetadata(ctx context.Context, name string, metadata map[string]string) error {
	obj, err := s.Stat(ctx, name)
	if err != nil {
		return err
	}

	meta := copyMetadata(metadata)
	if obj.ContentType != "" {
		meta["Content-Type"] = obj.ContentType
	}

	_, err = s.client.CopyObject(ctx,
		minio.CopyDestOptions{
			Bucket:          s.bucket,
			Object:          name,
			UserMetadata:    meta,
			ReplaceMetadata: true,
		},
		minio.CopySrcOptions{Bucket: s.bucket, Object: name},
	)
	if err != nil {
		return fmt.Errorf("replace metadata %q: %w", name, s.mapErr(err))
	}
	return nil
}

// Delete removes the object at name from the bucket.
func (s *MinioStorage) Delete(ctx context.Context, name string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", name, s.mapErr(err))
	}
	return nil
}

// Close is a no-op; the MinIO client holds no resources that need releasing.
func (s *MinioStorage) Close() error {
	return nil
}

func (s *MinioStorage) toObject(info minio.ObjectInfo) Object {
	return Object{
		Name:        info.Key,
		Size:        info.Size,
		ContentType: info.ContentType,
		Metadata:    normalizeMetadata(info.UserMetadata),
		Location:    publicURL(s.publicBase, info.Key),
	}
}

func (s *MinioStorage) mapErr(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return err
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
