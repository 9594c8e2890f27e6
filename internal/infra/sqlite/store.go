// Package sqlite provides a DocumentStore backed by a single SQLite file.
// Documents are JSON text rows keyed by (collection, id).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

var sqliteTracer = otel.Tracer("infra/sqlite")

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store implements port.DocumentStore on SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore opens (creating if needed) the database at dbPath and migrates it.
func NewStore(dbPath string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite store ready", zap.String("path", dbPath))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the document or ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (*port.Document, error) {
	ctx, span := sqliteTracer.Start(ctx, "SQLite.Get")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: collection, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return &port.Document{ID: id, Data: json.RawMessage(data)}, nil
}

// Query returns documents matching every filter, oldest first.
func (s *Store) Query(ctx context.Context, collection string, filters ...port.Filter) ([]port.Document, error) {
	ctx, span := sqliteTracer.Start(ctx, "SQLite.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("filters", len(filters)),
	)

	var (
		where strings.Builder
		args  = []any{collection}
	)
	where.WriteString("collection = ?")
	for _, f := range filters {
		if !fieldName.MatchString(f.Field) {
			return nil, fmt.Errorf("query %s: invalid field %q", collection, f.Field)
		}
		where.WriteString(" AND json_extract(data, '$." + f.Field + "') = ?")
		args = append(args, bindValue(f.Value))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE `+where.String()+` ORDER BY seq`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	docs := make([]port.Document, 0)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		docs = append(docs, port.Document{ID: id, Data: json.RawMessage(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

// Set overwrites or creates the document. An existing row keeps its position.
func (s *Store) Set(ctx context.Context, collection, id string, data json.RawMessage) error {
	ctx, span := sqliteTracer.Start(ctx, "SQLite.Set")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	if !json.Valid(data) {
		return fmt.Errorf("set %s/%s: invalid json", collection, id)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, seq)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM documents WHERE collection = ?))
		ON CONFLICT (collection, id) DO UPDATE SET
			data = excluded.data,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		collection, id, string(data), collection,
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Add stores the document under a new uuid.
func (s *Store) Add(ctx context.Context, collection string, data json.RawMessage) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	s.logger.Debug("document added", zap.String("collection", collection), zap.String("id", id))
	return id, nil
}

// Delete removes the document. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	ctx, span := sqliteTracer.Start(ctx, "SQLite.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// json_extract yields 1/0 for JSON booleans.
func bindValue(v any) any {
	switch b := v.(type) {
	case bool:
		if b {
			return 1
		}
		return 0
	default:
		return v
	}
}
