package memstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/flicky/agrichain-api/internal/model"
	"github.com/flicky/agrichain-api/internal/repository"
)

// Store keeps the five entity collections in memory. When opened with a path it
// snapshots every collection to SQLite after each successful mutation and
// reloads them on open.
type Store struct {
	mu    sync.RWMutex
	state state
	db    *sql.DB
	path  string
}

type state struct {
	Users         Collection[model.User]
	Products      Collection[model.Product]
	TransportLogs Collection[model.TransportLog]
	RetailLogs    Collection[model.RetailLog]
	Approvals     Collection[model.ApprovalRequest]
}

func (st state) clone() state {
	return state{
		Users:         st.Users.clone(),
		Products:      st.Products.clone(),
		TransportLogs: st.TransportLogs.clone(),
		RetailLogs:    st.RetailLogs.clone(),
		Approvals:     st.Approvals.clone(),
	}
}

// New returns a volatile store.
func New() *Store {
	return &Store{}
}

// Open returns a store persisted to the SQLite file at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "agrichain.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the backing file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Path() string { return s.path }

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Users:         &userRepo{s: s},
		Products:      &productRepo{s: s},
		TransportLogs: &transportLogRepo{s: s},
		RetailLogs:    &retailLogRepo{s: s},
		Approvals:     &approvalRepo{s: s},
	}
}

// bucket binds a collection to its row in the state table.
type bucket struct {
	name string
	ptr  func(st *state) any
}

var buckets = []bucket{
	{"users", func(st *state) any { return &st.Users }},
	{"products", func(st *state) any { return &st.Products }},
	{"transport_logs", func(st *state) any { return &st.TransportLogs }},
	{"retail_logs", func(st *state) any { return &st.RetailLogs }},
	{"approval_requests", func(st *state) any { return &st.Approvals }},
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	payloads := make(map[string][]byte)
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		payloads[name] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}

	for _, b := range buckets {
		payload, ok := payloads[b.name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(payload, b.ptr(&s.state)); err != nil {
			return fmt.Errorf("decode %s: %w", b.name, err)
		}
	}
	return nil
}

func (s *Store) persist() (retErr error) {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, b := range buckets {
		data, err := json.Marshal(b.ptr(&s.state))
		if err != nil {
			return fmt.Errorf("encode %s: %w", b.name, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO state(bucket, payload) VALUES(?, ?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
			b.name, data,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", b.name, err)
		}
	}
	return tx.Commit()
}

// mutate runs fn against the live state. The change is kept only if fn succeeds
// and the snapshot is written; otherwise the previous state is restored.
func (s *Store) mutate(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state.clone()
	if err := fn(&s.state); err != nil {
		s.state = prev
		return err
	}
	if err := s.persist(); err != nil {
		s.state = prev
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.state)
}
