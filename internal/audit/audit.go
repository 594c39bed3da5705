// Package audit keeps an append-only log of API requests in Badger.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	jsoniter "github.com/json-iterator/go"

	"github.com/libris/libris-server/internal/id"
)

// Key layout.
// Records are keyed by inverted timestamp so forward iteration yields the newest first.
const (
	recordPrefix = "audit:rec:"
)

// DefaultListLimit applies when List is called with a non-positive limit.
const DefaultListLimit = 50

// MaxListLimit caps List.
const MaxListLimit = 1000

var json = jsoniter.ConfigFastest

// Record is one handled API request.
type Record struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	RequestID  string    `json:"request_id,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Query      string    `json:"query,omitempty"`
	Status     int       `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	RemoteIP   string    `json:"remote_ip,omitempty"`
	ActorRole  string    `json:"actor_role,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
}

// Options configures the audit log.
type Options struct {
	Path     string       // Directory for the Badger files; ignored when InMemory
	InMemory bool         // Keep records in memory only
	Logger   *slog.Logger // Uses a discarding logger if nil
}

// Log is the audit log.
type Log struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens or creates the audit log.
func Open(opts Options) (*Log, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("audit log path is required")
		}
		bopts = badger.DefaultOptions(opts.Path)
		bopts.CompactL0OnClose = true
	}
	bopts.Logger = nil // Badger's own logging is noisy

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	logger.Info("audit log opened", "path", opts.Path, "in_memory", opts.InMemory)
	return &Log{db: db, logger: logger, now: time.Now}, nil
}

// Close flushes and closes the log.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append stores a record. ID and At are filled in when empty.
func (l *Log) Append(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = id.MustGenerate("aud")
	}
	if rec.At.IsZero() {
		rec.At = l.now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec), data)
	})
}

// List returns up to limit records, newest first.
func (l *Log) List(ctx context.Context, limit int) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	records := make([]*Record, 0, limit)
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid() && len(records) < limit; it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				l.logger.Warn("skipping unreadable audit record", "key", string(it.Item().Key()), "error", err)
				continue
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	return records, nil
}

// Prune deletes records older than cutoff and returns how many were removed.
func (l *Log) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// Older records sort after the cutoff key.
	seek := []byte(recordPrefix + invertedTimestamp(cutoff))
	var keys [][]byte
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan audit records: %w", err)
	}

	wb := l.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("delete audit record: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush audit prune: %w", err)
	}
	return len(keys), nil
}

func recordKey(rec *Record) []byte {
	var b strings.Builder
	b.WriteString(recordPrefix)
	b.WriteString(invertedTimestamp(rec.At))
	b.WriteByte(':')
	b.WriteString(rec.ID)
	return []byte(b.String())
}

// invertedTimestamp returns a string that sorts newest first.
func invertedTimestamp(t time.Time) string {
	return fmt.Sprintf("%019d", math.MaxInt64-t.UnixNano())
}
