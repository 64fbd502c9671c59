package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SQLiteStore keeps documents as JSON rows in the application database and
// pushes changes to subscribers of the same process.
type SQLiteStore struct {
	db  *sql.DB
	hub *hub
	log logrus.FieldLogger

	// Serializes writes with their publication and with the initial read
	// of new subscribers, so no subscriber observes an older state last.
	mu sync.Mutex
}

// NewSQLiteStore creates a store on an already migrated database.
func NewSQLiteStore(db *sql.DB, log logrus.FieldLogger) *SQLiteStore {
	return &SQLiteStore{db: db, hub: newHub(), log: log}
}

// Subscribe sends the current document, then every committed change.
func (s *SQLiteStore) Subscribe(ctx context.Context, path Path) (<-chan Snapshot, error) {
	if !path.Complete() {
		return nil, fmt.Errorf("incomplete document path %q", path)
	}
	key := path.String()

	s.mu.Lock()
	doc, exists, err := s.read(ctx, s.db, key)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	sub := s.hub.add(key)
	sub.offer(Snapshot{Document: doc, Exists: exists})
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.hub.remove(key, sub)
	}()

	return sub.ch, nil
}

// MergeWrite merges the fields into the stored document inside a transaction.
func (s *SQLiteStore) MergeWrite(ctx context.Context, path Path, doc Document) error {
	return s.mutate(ctx, path, func(current Document, exists bool) (Document, bool) {
		if current == nil {
			current = Document{}
		}
		for k, r := range doc {
			current[k] = r.Clone()
		}
		return current, true
	})
}

// DeleteField removes one field from the stored document.
func (s *SQLiteStore) DeleteField(ctx context.Context, path Path, key string) error {
	return s.mutate(ctx, path, func(current Document, exists bool) (Document, bool) {
		if !exists {
			return nil, false
		}
		delete(current, key)
		return current, true
	})
}

// Close releases all subscribers. The database is owned by the caller.
func (s *SQLiteStore) Close() error {
	s.hub.closeAll()
	return nil
}

func (s *SQLiteStore) mutate(ctx context.Context, path Path, apply func(Document, bool) (Document, bool)) error {
	if !path.Complete() {
		return fmt.Errorf("incomplete document path %q", path)
	}
	key := path.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, exists, err := s.read(ctx, tx, key)
	if err != nil {
		return err
	}

	next, changed := apply(current, exists)
	if !changed {
		return nil
	}

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (path, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", key, err)
	}

	n := s.hub.publish(key, Snapshot{Document: next, Exists: true})
	s.log.WithFields(logrus.Fields{"path": key, "subscribers": n}).Debug("document updated")
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *SQLiteStore) read(ctx context.Context, q queryer, key string) (Document, bool, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	doc := Document{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return doc, true, nil
}
