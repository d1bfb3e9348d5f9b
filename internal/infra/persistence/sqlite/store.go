// Package sqlite provides an embedded SQLite-backed persistent store. It
// reuses the in-memory store for transactional semantics and snapshots the
// full state to a single table as JSON blobs after every successful commit.
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

	"searchcore/internal/infra/persistence/memory"
	"searchcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store persists the in-memory state to a single SQLite table as JSON blobs.
// It snapshots the full state after every successful transaction.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "searchcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	mem := memory.NewStore(engine)
	s := &Store{Store: mem, db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var sqliteBuckets = []string{"experiments", "trials", "workers", "resources", "trial_seq"}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	type raw struct {
		bucket  string
		payload []byte
	}
	var raws []raw
	for rows.Next() {
		var r raw
		if err := rows.Scan(&r.bucket, &r.payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(raws) == 0 {
		return nil
	}
	snapshot := memory.Snapshot{}
	for _, r := range raws {
		switch r.bucket {
		case "experiments":
			if err := json.Unmarshal(r.payload, &snapshot.Experiments); err != nil {
				return fmt.Errorf("decode experiments: %w", err)
			}
		case "trials":
			if err := json.Unmarshal(r.payload, &snapshot.Trials); err != nil {
				return fmt.Errorf("decode trials: %w", err)
			}
		case "workers":
			if err := json.Unmarshal(r.payload, &snapshot.Workers); err != nil {
				return fmt.Errorf("decode workers: %w", err)
			}
		case "resources":
			if err := json.Unmarshal(r.payload, &snapshot.Resources); err != nil {
				return fmt.Errorf("decode resources: %w", err)
			}
		case "trial_seq":
			if err := json.Unmarshal(r.payload, &snapshot.TrialSeq); err != nil {
				return fmt.Errorf("decode trial_seq: %w", err)
			}
		}
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case "experiments":
			data, err = json.Marshal(snapshot.Experiments)
		case "trials":
			data, err = json.Marshal(snapshot.Trials)
		case "workers":
			data, err = json.Marshal(snapshot.Workers)
		case "resources":
			data, err = json.Marshal(snapshot.Resources)
		case "trial_seq":
			data, err = json.Marshal(snapshot.TrialSeq)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// RunInTransaction applies the provided function within a transaction, then snapshots state to SQLite if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		return res, pErr
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
