// Package journal records model calls and action dispatches in SQLite.
// Records are append-only. Writers log failures instead of returning
// them so a broken journal never affects a chat.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// tsLayout is fixed width so timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Model call purposes.
const (
	PurposeChat         = "chat"
	PurposeNarrate      = "narrate"
	PurposeNarrateError = "narrate_error"
)

// Entry kinds.
const (
	KindCall     = "call"
	KindDispatch = "dispatch"
)

// Call is one model round-trip.
type Call struct {
	ConversationID string
	Purpose        string
	Model          string
	Elapsed        time.Duration
	InputTokens    int
	OutputTokens   int
	Error          string
}

// Dispatch is one action execution.
type Dispatch struct {
	ConversationID string
	Action         string
	Succeeded      bool
	Error          string
	Elapsed        time.Duration
}

// Entry is a journal row as returned by Recent.
type Entry struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Kind           string    `json:"kind"`
	ConversationID string    `json:"conversation_id"`
	Name           string    `json:"name"`
	Model          string    `json:"model,omitempty"`
	Succeeded      bool      `json:"succeeded"`
	Error          string    `json:"error,omitempty"`
	ElapsedMS      int64     `json:"elapsed_ms"`
	InputTokens    int       `json:"input_tokens,omitempty"`
	OutputTokens   int       `json:"output_tokens,omitempty"`
}

// Store is a SQLite journal. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the journal database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	s, err := NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an open database and creates the schema.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate journal schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS journal (
		id              TEXT PRIMARY KEY,
		timestamp       TEXT NOT NULL,
		kind            TEXT NOT NULL,
		conversation_id TEXT,
		name            TEXT NOT NULL,
		model           TEXT,
		succeeded       INTEGER NOT NULL,
		error           TEXT,
		elapsed_ms      INTEGER NOT NULL,
		input_tokens    INTEGER NOT NULL DEFAULT 0,
		output_tokens   INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_journal_timestamp ON journal(timestamp);
	CREATE INDEX IF NOT EXISTS idx_journal_conversation ON journal(conversation_id);
	`)
	return err
}

// RecordCall journals a model round-trip.
func (s *Store) RecordCall(ctx context.Context, c Call) {
	s.insert(ctx, Entry{
		Kind:           KindCall,
		ConversationID: c.ConversationID,
		Name:           c.Purpose,
		Model:          c.Model,
		Succeeded:      c.Error == "",
		Error:          c.Error,
		ElapsedMS:      c.Elapsed.Milliseconds(),
		InputTokens:    c.InputTokens,
		OutputTokens:   c.OutputTokens,
	})
}

// RecordDispatch journals an action execution.
func (s *Store) RecordDispatch(ctx context.Context, d Dispatch) {
	s.insert(ctx, Entry{
		Kind:           KindDispatch,
		ConversationID: d.ConversationID,
		Name:           d.Action,
		Succeeded:      d.Succeeded,
		Error:          d.Error,
		ElapsedMS:      d.Elapsed.Milliseconds(),
	})
}

func (s *Store) insert(ctx context.Context, e Entry) {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO journal
			(id, timestamp, kind, conversation_id, name, model, succeeded, error,
			 elapsed_ms, input_tokens, output_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(),
		s.now().UTC().Format(tsLayout),
		e.Kind,
		e.ConversationID,
		e.Name,
		e.Model,
		e.Succeeded,
		e.Error,
		e.ElapsedMS,
		e.InputTokens,
		e.OutputTokens,
	)
	if err != nil {
		s.logger.Warn("journal write failed", "kind", e.Kind, "name", e.Name, "error", err)
	}
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, kind, COALESCE(conversation_id, ''), name, COALESCE(model, ''),
			succeeded, COALESCE(error, ''), elapsed_ms, input_tokens, output_tokens
		 FROM journal
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.ConversationID, &e.Name, &e.Model,
			&e.Succeeded, &e.Error, &e.ElapsedMS, &e.InputTokens, &e.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		e.Timestamp, _ = time.Parse(tsLayout, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Totals summarizes model token usage since the given time.
func (s *Store) Totals(ctx context.Context, since time.Time) (calls int, input, output int64, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		 FROM journal
		 WHERE kind = ? AND timestamp >= ?`,
		KindCall, since.UTC().Format(tsLayout))
	if err = row.Scan(&calls, &input, &output); err != nil {
		return 0, 0, 0, fmt.Errorf("query journal totals: %w", err)
	}
	return calls, input, output, nil
}
