// Package store provides record store implementations: the Firebase RTDB
// REST backend used in production, plus SQLite and PostgreSQL document
// stores for local and self-hosted deployments. All drivers expose the same
// two operations the engine needs: read everything under a path, and apply
// a multi-location slash-keyed patch.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// New creates a record store based on configuration.
func New(cfg domain.StoreConfig) (domain.RecordStore, error) {
	switch cfg.Driver {
	case "rtdb":
		return NewRTDBStore(cfg)
	case "sqlite":
		db, err := openSQLite(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return newSQLStore(db, "sqlite")
	case "postgres":
		db, err := openPostgres(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return newSQLStore(db, "postgres")
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

// SQLStore implements domain.RecordStore over database/sql, storing each
// record as one JSON document row keyed by (path, id).
type SQLStore struct {
	db     *sql.DB
	driver string
}

func newSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	path TEXT NOT NULL,
	id   TEXT NOT NULL,
	doc  TEXT NOT NULL,
	PRIMARY KEY (path, id)
);
`

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// GetAll returns every record under path keyed by record ID. A path with no
// rows yields an empty map.
func (s *SQLStore) GetAll(ctx context.Context, path string) (map[string]any, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, doc FROM records WHERE path = ?`), path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("corrupt document %s/%s: %w", path, id, err)
		}
		out[id] = v
	}
	return out, rows.Err()
}

// Update applies a multi-location patch. Patch keys are either a bare record
// ID (whole-document replace) or id/field[/field...] leaf addresses; leaf
// patches only touch the addressed field and leave siblings intact. The
// whole patch applies in one transaction.
func (s *SQLStore) Update(ctx context.Context, path string, patch map[string]any) error {
	if path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidInput)
	}
	if len(patch) == 0 {
		return nil
	}

	// Group leaf writes per record so each document is rewritten once.
	perRecord := make(map[string]map[string]any)
	for key, value := range patch {
		id, fieldPath, found := strings.Cut(key, "/")
		if id == "" {
			return fmt.Errorf("%w: empty record id in patch key %q", ErrInvalidInput, key)
		}
		if !found {
			perRecord[id] = map[string]any{"": value}
			continue
		}
		if perRecord[id] == nil {
			perRecord[id] = make(map[string]any)
		}
		perRecord[id][fieldPath] = value
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for id, fields := range perRecord {
		if err := s.patchRecord(ctx, tx, path, id, fields); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLStore) patchRecord(ctx context.Context, tx *sql.Tx, path, id string, fields map[string]any) error {
	var doc map[string]any

	var raw string
	err := tx.QueryRowContext(ctx, s.rebind(`SELECT doc FROM records WHERE path = ? AND id = ?`), path, id).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		doc = make(map[string]any)
	case err != nil:
		return err
	default:
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			doc = make(map[string]any)
		}
	}

	for fieldPath, value := range fields {
		if fieldPath == "" {
			// Whole-document replace.
			if m, ok := value.(map[string]any); ok {
				doc = m
			} else {
				return fmt.Errorf("%w: record %s replace value must be an object", ErrInvalidInput, id)
			}
			continue
		}
		setLeaf(doc, strings.Split(fieldPath, "/"), value)
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, s.upsertQuery(), path, id, string(encoded))
	return err
}

// setLeaf writes value at the nested address, creating intermediate objects
// as needed and overwriting non-object intermediates.
func setLeaf(doc map[string]any, parts []string, value any) {
	for i, part := range parts {
		if i == len(parts)-1 {
			doc[part] = value
			return
		}
		next, ok := doc[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			doc[part] = next
		}
		doc = next
	}
}

func (s *SQLStore) upsertQuery() string {
	q := `INSERT INTO records (path, id, doc) VALUES (?, ?, ?)
		ON CONFLICT (path, id) DO UPDATE SET doc = excluded.doc`
	return s.rebind(q)
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
