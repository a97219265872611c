package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage implements BlobStore on a PostgreSQL table, storing
// content as bytea and user metadata as jsonb. Useful where a database is
// already operated and an object store is not.
type PostgresStorage struct {
	db         *pgxpool.Pool
	container  string
	publicBase string
}

// NewPostgresStorage creates a backend over an already migrated pool. The
// storage takes ownership of the pool and closes it on Close.
func NewPostgresStorage(db *pgxpool.Pool, container, publicBase string) *PostgresStorage {
	if publicBase == "" {
		publicBase = "postgres:///blobs/" + container
	}
	return &PostgresStorage{db: db, container: container, publicBase: publicBase}
}

// EnsureContainer registers the container row if absent.
func (p *PostgresStorage) EnsureContainer(ctx context.Context) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO containers (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
		p.container,
	)
	if err != nil {
		return fmt.Errorf("create container %q: %w", p.container, err)
	}
	return nil
}

// List returns every object in the container without loading content.
func (p *PostgresStorage) List(ctx context.Context) ([]Object, error) {
	rows, err := p.db.Query(ctx,
		`SELECT name, size, content_type, metadata
		 FROM blobs WHERE container = $1`,
		p.container,
	)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	defer rows.Close()

	var objects []Object
	for rows.Next() {
		o := Object{}
		if err := rows.Scan(&o.Name, &o.Size, &o.ContentType, &o.Metadata); err != nil {
			return nil, fmt.Errorf("scan blob: %w", err)
		}
		o.Location = publicURL(p.publicBase, o.Name)
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	return objects, nil
}

// Stat fetches a single object's attributes.
func (p *PostgresStorage) Stat(ctx context.Context, name string) (*Object, error) {
	o := &Object{Name: name, Location: publicURL(p.publicBase, name)}
	err := p.db.QueryRow(ctx,
		`SELECT size, content_type, metadata
		 FROM blobs WHERE container = $1 AND name = $2`,
		p.container, name,
	).Scan(&o.Size, &o.ContentType, &o.Metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("stat blob %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("stat blob %q: %w", name, err)
	}
	return o, nil
}

// Exists returns true if the object is stored.
func (p *PostgresStorage) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := p.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM blobs WHERE container = $1 AND name = $2)`,
		p.container, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check blob existence: %w", err)
	}
	return exists, nil
}

// Upload inserts or overwrites the object.
func (p *PostgresStorage) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	_, err = p.db.Exec(ctx,
		`INSERT INTO blobs (container, name, content, content_type, size, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (container, name) DO UPDATE
		 SET content = EXCLUDED.content,
		     content_type = EXCLUDED.content_type,
		     size = EXCLUDED.size,
		     metadata = EXCLUDED.metadata,
		     updated_at = NOW()`,
		p.container, name, data, contentType, int64(len(data)), metadata,
	)
	if err != nil {
		return fmt.Errorf("insert blob %q: %w", name, err)
	}
	return nil
}

// Download loads the object's content into memory.
func (p *PostgresStorage) Download(ctx context.Context, name string) (io.ReadCloser, *Object, error) {
	var data []byte
	o := &Object{Name: name, Location: publicURL(p.publicBase, name)}
	err := p.db.QueryRow(ctx,
		`SELECT content, size, content_type, metadata
		 FROM blobs WHERE container = $1 AND name = $2`,
		p.container, name,
	).Scan(&data, &o.Size, &o.ContentType, &o.Metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("get blob %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get blob %q: %w", name, err)
	}
	return io.NopCloser(bytes.NewReader(data)), o, nil
}

// SetMetadata replaces the object's metadata document.
func (p *PostgresStorage) SetMetadata(ctx context.Context, name string, metadata map[string]string) error {
	if metadata == nil {
		metadata = map[string]string{}
	}
	tag, err := p.db.Exec(ctx,
		`UPDATE blobs SET metadata = $3, updated_at = NOW()
		 WHERE container = $1 AND name = $2`,
		p.container, name, metadata,
	)
	if err != nil {
		return fmt.Errorf("update blob metadata %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update blob metadata %q: %w", name, ErrNotFound)
	}
	return nil
}

// Delete removes the object row.
func (p *PostgresStorage) Delete(ctx context.Context, name string) error {
	tag, err := p.db.Exec(ctx,
		`DELETE FROM blobs WHERE container = $1 AND name = $2`,
		p.container, name,
	)
	if err != nil {
		return fmt.Errorf("delete blob %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete blob %q: %w", name, ErrNotFound)
	}
	return nil
}

// Close closes the connection pool.
func (p *PostgresStorage) Close() error {
	p.db.Close()
	return nil
}
