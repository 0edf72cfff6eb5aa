// Package sqlite persists item state to a local SQLite file, reusing the
// in-memory engine for identity/lookup and writing one JSON-blob row per
// node, property, and reference bundle touched by a commit — an
// upsert-a-JSON-payload idiom applied per row rather than per whole-state
// snapshot.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"jcrcore/internal/changelog"
	"jcrcore/internal/itemid"
	"jcrcore/internal/itemstate"
	"jcrcore/internal/persistence"
	"jcrcore/internal/persistence/memory"
	"jcrcore/internal/refs"
)

// Store persists item state to a single SQLite database, reusing an
// in-memory engine for identity and lookup and adding a durable row per
// node, property, and reference bundle underneath it.
type Store struct {
	mem  *memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (creating if necessary) a SQLite-backed persistence
// engine at path, hydrating the embedded in-memory engine from any
// existing rows.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "jcrcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, ddl := range createTableStatements {
		if _, err := db.Exec(ddl); err != nil {
			return nil, fmt.Errorf("create table: %w", err)
		}
	}
	s := &Store{mem: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS nodes (id TEXT PRIMARY KEY, payload BLOB NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS properties (parent_uuid TEXT NOT NULL, name_uri TEXT NOT NULL, name_local TEXT NOT NULL, payload BLOB NOT NULL, PRIMARY KEY (parent_uuid, name_uri, name_local))`,
	`CREATE TABLE IF NOT EXISTS node_references (target_uuid TEXT PRIMARY KEY, payload BLOB NOT NULL)`,
}

func (s *Store) load() error {
	if err := s.loadNodes(); err != nil {
		return err
	}
	if err := s.loadProperties(); err != nil {
		return err
	}
	return s.loadReferences()
}

func (s *Store) loadNodes() error {
	rows, err := s.db.Query(`SELECT payload FROM nodes`)
	if err != nil {
		return fmt.Errorf("select nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan node: %w", err)
		}
		n, err := decodeNode(payload)
		if err != nil {
			return err
		}
		s.mem.ImportNode(n)
	}
	return rows.Err()
}

func (s *Store) loadProperties() error {
	rows, err := s.db.Query(`SELECT payload FROM properties`)
	if err != nil {
		return fmt.Errorf("select properties: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan property: %w", err)
		}
		p, err := decodeProperty(payload)
		if err != nil {
			return err
		}
		s.mem.ImportProperty(p)
	}
	return rows.Err()
}

func (s *Store) loadReferences() error {
	rows, err := s.db.Query(`SELECT payload FROM node_references`)
	if err != nil {
		return fmt.Errorf("select node_references: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan reference bundle: %w", err)
		}
		r, err := decodeReferences(payload)
		if err != nil {
			return err
		}
		s.mem.ImportReferences(r)
	}
	return rows.Err()
}

func (s *Store) LoadNode(ctx context.Context, id uuid.UUID) (*itemstate.NodeState, error) {
	return s.mem.LoadNode(ctx, id)
}

func (s *Store) LoadProperty(ctx context.Context, id itemid.ItemId) (*itemstate.PropertyState, error) {
	return s.mem.LoadProperty(ctx, id)
}

func (s *Store) LoadReferences(ctx context.Context, id itemid.NodeReferencesId) (*refs.NodeReferences, error) {
	return s.mem.LoadReferences(ctx, id)
}

func (s *Store) ExistsNode(ctx context.Context, id uuid.UUID) bool {
	return s.mem.ExistsNode(ctx, id)
}

func (s *Store) ExistsProperty(ctx context.Context, id itemid.ItemId) bool {
	return s.mem.ExistsProperty(ctx, id)
}

func (s *Store) CreateNewNode(id uuid.UUID) *itemstate.NodeState {
	return s.mem.CreateNewNode(id)
}

func (s *Store) CreateNewProperty(id itemid.ItemId) *itemstate.PropertyState {
	return s.mem.CreateNewProperty(id)
}

// Store persists the touched rows to SQLite within one transaction and,
// once that commits, applies log to the embedded in-memory engine.
func (s *Store) Store(ctx context.Context, log *changelog.ChangeLog) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, st := range log.AddedStates() {
		if err := upsertState(ctx, tx, st); err != nil {
			retErr = err
			return retErr
		}
	}
	for _, st := range log.ModifiedStates() {
		if err := upsertState(ctx, tx, st); err != nil {
			retErr = err
			return retErr
		}
	}
	for _, st := range log.DeletedStates() {
		if err := deleteState(ctx, tx, st); err != nil {
			retErr = err
			return retErr
		}
	}
	for _, r := range log.ModifiedRefsList() {
		if err := upsertReferences(ctx, tx, r); err != nil {
			retErr = err
			return retErr
		}
	}

	if err := tx.Commit(); err != nil {
		retErr = fmt.Errorf("commit: %w", err)
		return retErr
	}
	return s.mem.Store(ctx, log)
}

func upsertState(ctx context.Context, tx *sql.Tx, st itemstate.ItemState) error {
	switch v := st.(type) {
	case *itemstate.NodeState:
		payload, err := json.Marshal(encodeNode(v))
		if err != nil {
			return fmt.Errorf("encode node: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO nodes(id, payload) VALUES(?, ?) ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`, v.UUID.String(), payload)
		if err != nil {
			return fmt.Errorf("upsert node: %w", err)
		}
	case *itemstate.PropertyState:
		payload, err := json.Marshal(encodeProperty(v))
		if err != nil {
			return fmt.Errorf("encode property: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO properties(parent_uuid, name_uri, name_local, payload) VALUES(?, ?, ?, ?) ON CONFLICT(parent_uuid, name_uri, name_local) DO UPDATE SET payload = excluded.payload`,
			v.ParentUUID.String(), v.QName.URI, v.QName.Local, payload)
		if err != nil {
			return fmt.Errorf("upsert property: %w", err)
		}
	}
	return nil
}

func deleteState(ctx context.Context, tx *sql.Tx, st itemstate.ItemState) error {
	switch v := st.(type) {
	case *itemstate.NodeState:
		_, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, v.UUID.String())
		return err
	case *itemstate.PropertyState:
		_, err := tx.ExecContext(ctx, `DELETE FROM properties WHERE parent_uuid = ? AND name_uri = ? AND name_local = ?`, v.ParentUUID.String(), v.QName.URI, v.QName.Local)
		return err
	}
	return nil
}

func upsertReferences(ctx context.Context, tx *sql.Tx, r *refs.NodeReferences) error {
	if !r.HasReferences() {
		_, err := tx.ExecContext(ctx, `DELETE FROM node_references WHERE target_uuid = ?`, r.ID.TargetUUID.String())
		return err
	}
	payload, err := json.Marshal(encodeReferences(r))
	if err != nil {
		return fmt.Errorf("encode references: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO node_references(target_uuid, payload) VALUES(?, ?) ON CONFLICT(target_uuid) DO UPDATE SET payload = excluded.payload`, r.ID.TargetUUID.String(), payload)
	if err != nil {
		return fmt.Errorf("upsert references: %w", err)
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

var _ persistence.Engine = (*Store)(nil)
