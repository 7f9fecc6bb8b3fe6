// Package store persists completed roasts. The log is append-only and
// ordered oldest first.
package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/roast-timer/internal/logic"
)

// Store is the roast log.
type Store interface {
	// All returns every record, oldest first.
	All(ctx context.Context) ([]logic.SessionRecord, error)

	// Append adds one completed roast.
	Append(ctx context.Context, rec logic.SessionRecord) error

	Close() error
}

// Open picks the backend from the file extension: .db, .sqlite and
// .sqlite3 open SQLite, anything else is CSV.
func Open(path string, log logrus.FieldLogger) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(path)
	default:
		return NewCSV(path, log), nil
	}
}

// ErrClosed is returned by a FakeStore after Close.
var ErrClosed = errors.New("store closed")

// FakeStore is an in-memory Store for tests.
type FakeStore struct {
	mu      sync.Mutex
	records []logic.SessionRecord
	closed  bool

	// AllError and AppendError, if set, are returned by All and Append.
	AllError    error
	AppendError error
}

// NewFakeStore creates a FakeStore holding records.
func NewFakeStore(records ...logic.SessionRecord) *FakeStore {
	return &FakeStore{records: records}
}

// All returns a copy of the records.
func (f *FakeStore) All(_ context.Context) ([]logic.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	if f.AllError != nil {
		return nil, f.AllError
	}
	return append([]logic.SessionRecord(nil), f.records...), nil
}

// Append stores rec.
func (f *FakeStore) Append(_ context.Context, rec logic.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.AppendError != nil {
		return f.AppendError
	}
	f.records = append(f.records, rec)
	return nil
}

// Close marks the store closed.
func (f *FakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
