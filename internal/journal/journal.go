// Package journal records namespace lifecycle changes in SQLite.
//
// The journal is a diagnostic history fed from the store's change events.
// It is never replayed into a store.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/nsstore/internal/log"
	"github.com/zjrosen/nsstore/internal/namespace"
	"github.com/zjrosen/nsstore/internal/pubsub"
)

const schema = `
CREATE TABLE IF NOT EXISTS journal (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	namespace   TEXT NOT NULL,
	key_seq     INTEGER NOT NULL DEFAULT 0,
	type_name   TEXT NOT NULL DEFAULT '',
	token       TEXT NOT NULL DEFAULT '',
	owners      INTEGER NOT NULL DEFAULT 0,
	action_type TEXT NOT NULL DEFAULT '',
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_namespace ON journal(namespace);
`

const entryColumns = `id, kind, namespace, key_seq, type_name, token, owners, action_type, recorded_at`

// Entry is one recorded change.
type Entry struct {
	ID         string
	Kind       namespace.ChangeKind
	Namespace  string
	KeySeq     uint64
	TypeName   string
	Token      string
	Owners     int
	ActionType namespace.ActionType
	RecordedAt time.Time
}

// Query filters List. Zero fields match everything.
type Query struct {
	Namespace string
	Kind      namespace.ChangeKind
	// Limit caps the number of entries, newest last. Zero means no limit.
	Limit int
}

// Option configures a Journal.
type Option func(*Journal)

// WithUpdates also records business action updates. By default only
// lifecycle changes are kept.
func WithUpdates() Option {
	return func(j *Journal) {
		j.updates = true
	}
}

// Journal appends change entries to a SQLite table.
type Journal struct {
	db      *sql.DB
	ownsDB  bool
	updates bool
}

// New creates the journal table in db if missing. The caller keeps
// ownership of db.
func New(db *sql.DB, opts ...Option) (*Journal, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}
	j := &Journal{db: db}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Open opens or creates the journal database at path, creating parent
// directories with 0700 permissions.
func Open(path string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	j, err := New(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	j.ownsDB = true
	return j, nil
}

// Close closes the database if Open created it.
func (j *Journal) Close() error {
	if j.ownsDB {
		return j.db.Close()
	}
	return nil
}

// Accepts reports whether change would be recorded.
func (j *Journal) Accepts(change namespace.Change) bool {
	switch change.Kind {
	case namespace.ChangeCreated, namespace.ChangeReferenced,
		namespace.ChangeUnreferenced, namespace.ChangeDeleted:
		return true
	case namespace.ChangeUpdated:
		return j.updates
	default:
		return false
	}
}

// Record stores change with timestamp at. Changes the journal does not
// accept are ignored and return a zero Entry.
func (j *Journal) Record(ctx context.Context, change namespace.Change, at time.Time) (Entry, error) {
	if !j.Accepts(change) {
		return Entry{}, nil
	}

	entry := Entry{
		ID:         uuid.NewString(),
		Kind:       change.Kind,
		Namespace:  change.Key.String(),
		KeySeq:     change.Key.Seq(),
		TypeName:   change.TypeName,
		Owners:     change.Owners,
		ActionType: change.Action,
		RecordedAt: at,
	}
	if change.Token != nil {
		entry.Token = fmt.Sprint(change.Token)
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO journal (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Kind), entry.Namespace, int64(entry.KeySeq), entry.TypeName,
		entry.Token, entry.Owners, string(entry.ActionType), at.UnixNano(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return entry, nil
}

// List returns entries matching q in recording order.
func (j *Journal) List(ctx context.Context, q Query) ([]Entry, error) {
	where := ` WHERE 1 = 1`
	var args []any
	if q.Namespace != "" {
		where += ` AND namespace = ?`
		args = append(args, q.Namespace)
	}
	if q.Kind != namespace.ChangeNone {
		where += ` AND kind = ?`
		args = append(args, string(q.Kind))
	}

	query := `SELECT ` + entryColumns + ` FROM journal` + where + ` ORDER BY rowid ASC`
	if q.Limit > 0 {
		// Take the newest Limit rows, then restore recording order.
		query = `SELECT ` + entryColumns + ` FROM (SELECT rowid AS rid, ` + entryColumns +
			` FROM journal` + where + ` ORDER BY rowid DESC LIMIT ?) ORDER BY rid ASC`
		args = append(args, q.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of recorded entries.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return n, nil
}

// Follow records every event from events until ctx is done or the channel
// closes. Insert failures are logged and do not stop the loop.
func (j *Journal) Follow(ctx context.Context, events <-chan pubsub.Event[namespace.Change]) {
	for {
		event, ok := pubsub.Next(ctx, events)
		if !ok {
			return
		}
		if _, err := j.Record(ctx, event.Payload, event.Timestamp); err != nil {
			log.ErrorErr(log.CatJournal, "journal write failed", err,
				"namespace", event.Payload.Key,
				"kind", string(event.Payload.Kind),
			)
		}
	}
}

func scanEntry(scanner interface{ Scan(...any) error }) (Entry, error) {
	var (
		entry      Entry
		kind       string
		keySeq     int64
		actionType string
		recordedAt int64
	)
	err := scanner.Scan(
		&entry.ID, &kind, &entry.Namespace, &keySeq, &entry.TypeName,
		&entry.Token, &entry.Owners, &actionType, &recordedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	entry.Kind = namespace.ChangeKind(kind)
	entry.KeySeq = uint64(keySeq) // #nosec G115 -- written from a uint64 sequence
	entry.ActionType = namespace.ActionType(actionType)
	entry.RecordedAt = time.Unix(0, recordedAt)
	return entry, nil
}
