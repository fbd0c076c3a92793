// Package journal keeps an append-only SQLite history of dispatched
// commands. It exists for operators and for the get_command_history method;
// it never re-queues anything across restarts.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ifBars/S1MCPServer-sub001/pkg/bridge"
)

// Entry is one recorded command.
type Entry struct {
	Seq       int64  `json:"seq"`
	Session   string `json:"session"`
	Epoch     int64  `json:"epoch"`
	RequestID int64  `json:"request_id"`
	Method    string `json:"method"`
	OK        bool   `json:"ok"`
	ErrorCode int32  `json:"error_code,omitempty"`
	DurationU int64  `json:"duration_us"`
	CreatedAt int64  `json:"created_at"`
}

// Store owns the journal database. Record hands entries to a background
// writer over a buffered channel so the caller (the host tick) never blocks
// on disk; when the buffer is full the entry is dropped and counted.
type Store struct {
	db      *sql.DB
	path    string
	pending chan Entry
	dropped int64
	mu      sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// Open initializes the journal database at path and starts the writer.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:      db,
		path:    path,
		pending: make(chan Entry, 256),
		done:    make(chan struct{}),
	}
	return s, nil
}

// Path returns the underlying SQLite file path.
func (s *Store) Path() string {
	return s.path
}

// Init applies pragmas and schema, then launches the background writer.
func (s *Store) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("nil store")
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES ('schemaVersion','1');`,
		`CREATE TABLE IF NOT EXISTS commands (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			epoch INTEGER NOT NULL,
			request_id INTEGER NOT NULL,
			method TEXT NOT NULL,
			ok INTEGER NOT NULL,
			error_code INTEGER NOT NULL DEFAULT 0,
			duration_us INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_session ON commands(session, seq);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	go s.writeLoop()
	return nil
}

// Record implements bridge.Recorder. Non-blocking by contract.
func (s *Store) Record(rec bridge.CommandRecord) {
	entry := Entry{
		Session:   rec.Session,
		Epoch:     rec.Epoch,
		RequestID: rec.RequestID,
		Method:    rec.Method,
		OK:        rec.OK,
		ErrorCode: rec.ErrorCode,
		DurationU: rec.Duration.Microseconds(),
		CreatedAt: time.Now().UnixMilli(),
	}
	select {
	case s.pending <- entry:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Dropped reports how many records were lost, to a full buffer or a failed
// insert.
func (s *Store) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Store) writeLoop() {
	for {
		select {
		case entry := <-s.pending:
			s.insert(entry)
		case <-s.done:
			// Drain what is already buffered before exiting.
			for {
				select {
				case entry := <-s.pending:
					s.insert(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) insert(entry Entry) {
	okVal := 0
	if entry.OK {
		okVal = 1
	}
	_, err := s.db.Exec(`INSERT INTO commands(session, epoch, request_id, method, ok, error_code, duration_us, created_at)
		VALUES(?,?,?,?,?,?,?,?)`,
		entry.Session, entry.Epoch, entry.RequestID, entry.Method, okVal,
		entry.ErrorCode, entry.DurationU, entry.CreatedAt)
	if err != nil {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, session, epoch, request_id, method, ok, error_code, duration_us, created_at
		FROM commands ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var okVal int
		if err := rows.Scan(&entry.Seq, &entry.Session, &entry.Epoch, &entry.RequestID,
			&entry.Method, &okVal, &entry.ErrorCode, &entry.DurationU, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.OK = okVal == 1
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Flush blocks until the pending buffer has been written out. Test helper
// and shutdown aid; records arriving concurrently may still be pending after
// it returns.
func (s *Store) Flush() {
	for len(s.pending) > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	// The writer may still be inside the insert for the last popped entry.
	time.Sleep(10 * time.Millisecond)
}

// Close stops the writer and releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.once.Do(func() { close(s.done) })
	s.Flush()
	return s.db.Close()
}
