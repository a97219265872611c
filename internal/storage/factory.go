package storage

import (
	"context"
	"fmt"
	"log"

	"github.com/pdflibrary/service/internal/config"
	"github.com/pdflibrary/service/internal/db"
)

// New builds the backend selected in cfg and makes sure its container
// exists.
func New(ctx context.Context, cfg config.Storage) (BlobStore, error) {
	store, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureContainer(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ensure container %q: %w", cfg.Container, err)
	}
	log.Printf("storage: %s backend ready (container=%s)", cfg.Backend, cfg.Container)
	return store, nil
}

func newBackend(ctx context.Context, cfg config.Storage) (BlobStore, error) {
	switch cfg.Backend {
	case config.BackendMinio:
		return NewMinioStorage(MinioOptions{
			Endpoint:   cfg.Endpoint,
			AccessKey:  cfg.AccessKey,
			SecretKey:  cfg.SecretKey,
			Region:     cfg.Region,
			Bucket:     cfg.Container,
			UseSSL:     cfg.UseSSL,
			PublicBase: cfg.PublicBase,
			PublicRead: cfg.PublicRead,
		})
	case config.BackendS3:
		return NewS3Storage(ctx, S3Options{
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			Bucket:          cfg.Container,
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
			PublicBase:      cfg.PublicBase,
		})
	case config.BackendGCS:
		return NewGCSStorage(ctx, GCSOptions{
			CredentialsFile: cfg.GCSCredentialsFile,
			ProjectID:       cfg.GCSProjectID,
			Bucket:          cfg.Container,
			PublicBase:      cfg.PublicBase,
		})
	case config.BackendLocal:
		return NewLocalStorage(cfg.LocalPath, cfg.Container, cfg.PublicBase)
	case config.BackendPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgresStorage(pool, cfg.Container, cfg.PublicBase), nil
	case config.BackendMemory:
		return NewMemoryStorage(cfg.PublicBase), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
