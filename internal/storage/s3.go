package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Options holds S3 backend configuration.
type S3Options struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBase      string
}

// S3Storage implements BlobStore on AWS S3 (or a compatible endpoint) using
// the AWS SDK.
type S3Storage struct {
	client     *s3.Client
	bucket     string
	region     string
	publicBase string
}

// NewS3Storage creates a new S3 backend.
func NewS3Storage(ctx context.Context, opts S3Options) (*S3Storage, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	publicBase := opts.PublicBase
	switch {
	case publicBase != "":
	case opts.Endpoint != "":
		publicBase = strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket
	default:
		publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	}

	return &S3Storage{
		client:     s3.NewFromConfig(cfg, clientOpts...),
		bucket:     opts.Bucket,
		region:     opts.Region,
		publicBase: publicBase,
	}, nil
}

// EnsureContainer creates the bucket if HeadBucket reports it missing.
func (s *S3Storage) EnsureContainer(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if !isS3NotFound(err) {
		return fmt.Errorf("check bucket existence: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// List pages through the bucket and heads each object, since S3 listings
// carry no user metadata.
func (s *S3Storage) List(ctx context.Context) ([]Object, error) {
	var objects []Object

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, item := range page.Contents {
			if item.Key == nil {
				continue
			}
			obj, err := s.Stat(ctx, *item.Key)
			if err != nil {
				return nil, err
			}
			objects = append(objects, *obj)
		}
	}
	return objects, nil
}

// Stat heads the object.
func (s *S3Storage) Stat(ctx context.Context, name string) (*Object, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("head object %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("head object %q: %w", name, err)
	}
	return &Object{
		Name:        name,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		Metadata:    normalizeMetadata(out.Metadata),
		Location:    publicURL(s.publicBase, name),
	}, nil
}

// Exists checks whether the object exists.
func (s *S3Storage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.Stat(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Upload buffers the content so the request body is seekable for signing.
// Uploads are capped well below the single-part limit.
func (s *S3Storage) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(buf),
		ContentLength: aws.Int64(int64(len(buf))),
		Metadata:      metadata,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object %q: %w", name, err)
	}
	return nil
}

// Download retrieves the object's body.
func (s *S3Storage) Download(ctx context.Context, name string) (io.ReadCloser, *Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil, fmt.Errorf("get object %q: %w", name, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("get object %q: %w", name, err)
	}
	return out.Body, &Object{
		Name:        name,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		Metadata:    normalizeMetadata(out.Metadata),
		Location:    publicURL(s.publicBase, name),
	}, nil
}

// SetMetadata copies the object onto itself with a replaced metadata set.
func (s *S3Storage) SetMetadata(ctx context.Context, name string, metadata map[string]string) error {
	obj, err := s.Stat(ctx, name)
	if err != nil {
		return err
	}

	input := &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(name),
		CopySource:        aws.String(s.bucket + "/" + url.PathEscape(name)),
		Metadata:          metadata,
		MetadataDirective: types.MetadataDirectiveReplace,
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if _, err := s.client.CopyObject(ctx, input); err != nil {
		return fmt.Errorf("replace metadata %q: %w", name, err)
	}
	return nil
}

// Delete removes the object.
func (s *S3Storage) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("delete object %q: %w", name, err)
	}
	return nil
}

// Close cleans up any resources
func (s *S3Storage) Close() error {
	return nil
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	var nsb *types.NoSuchBucket
	if errors.As(err, &nf) || errors.As(err, &nsk) || errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}
