// Package repository is the SQLite persistence collaborator for sessions,
// emotion events and communication messages.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/okian/classvoice/internal/domain/emotion"
	"github.com/okian/classvoice/internal/domain/model"
	"github.com/okian/classvoice/pkg/logger"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout is fixed width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore persists the session data model.
type SQLiteStore struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
	log   logger.Logger
}

// Open opens or creates the database at path and applies migrations.
// ":memory:" gives a private in-memory database.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOpen, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	// one connection serialises writers and keeps :memory: a single database
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
		log:   logger.Get().Named("repository"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS communication_sessions (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			language_code TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			session_duration INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS emotion_logs (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			emotion_type TEXT NOT NULL,
			confidence_score REAL NOT NULL,
			context TEXT NOT NULL,
			detected_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS communication_messages (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			session_id TEXT,
			message_type TEXT NOT NULL,
			original_text TEXT NOT NULL,
			simplified_text TEXT,
			translated_text TEXT,
			visual_card_data TEXT,
			language_code TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_open ON communication_sessions(ended_at, started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_emotion_logs_session ON emotion_logs(session_id, detected_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_student ON communication_messages(student_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateSession inserts in with a fresh ID and returns the stored session.
func (s *SQLiteStore) CreateSession(ctx context.Context, in model.Session) (model.Session, error) {
	if in.StudentID == "" {
		return model.Session{}, fmt.Errorf("%w: student id is required", ErrInvalidRecord)
	}
	if in.ID == "" {
		in.ID = s.newID()
	}
	if in.StartedAt.IsZero() {
		in.StartedAt = s.now()
	}
	in.EndedAt, in.DurationSeconds = nil, nil

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO communication_sessions (id, student_id, language_code, started_at)
		 VALUES (?, ?, ?, ?)`,
		in.ID, in.StudentID, in.LanguageCode, formatTime(in.StartedAt))
	if err != nil {
		return model.Session{}, fmt.Errorf("create session: %w", err)
	}
	return in, nil
}

// CloseSession stamps the end time and duration. Closing an already closed
// session is a no-op.
func (s *SQLiteStore) CloseSession(ctx context.Context, sessionID string, endedAt time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var started string
	var ended sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT started_at, ended_at FROM communication_sessions WHERE id = ?`, sessionID).
		Scan(&started, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if ended.Valid {
		return tx.Commit()
	}

	startedAt, err := parseTime(started)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE communication_sessions SET ended_at = ?, session_duration = ? WHERE id = ?`,
		formatTime(endedAt), durationSeconds(startedAt, endedAt), sessionID); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return tx.Commit()
}

// GetSession returns a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, language_code, started_at, ended_at, session_duration
		 FROM communication_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	return sess, err
}

// CloseStaleSessions ends every open session started more than olderThan
// ago, except the live ones still owned by a mounted interface, and returns
// how many were closed.
func (s *SQLiteStore) CloseStaleSessions(ctx context.Context, olderThan time.Duration, live []string) (int, error) {
	now := s.now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at FROM communication_sessions
		 WHERE ended_at IS NULL AND started_at < ?`, formatTime(now.Add(-olderThan)))
	if err != nil {
		return 0, fmt.Errorf("list stale sessions: %w", err)
	}
	type stale struct {
		id      string
		started time.Time
	}
	var found []stale
	for rows.Next() {
		var id, started string
		if err := rows.Scan(&id, &started); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("list stale sessions: %w", err)
		}
		t, err := parseTime(started)
		if err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("list stale sessions: %w", err)
		}
		found = append(found, stale{id: id, started: t})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("list stale sessions: %w", err)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}

	keep := make(map[string]struct{}, len(live))
	for _, id := range live {
		keep[id] = struct{}{}
	}

	closed := 0
	for _, st := range found {
		if _, ok := keep[st.id]; ok {
			continue
		}
		res, err := s.db.ExecContext(ctx,
			`UPDATE communication_sessions SET ended_at = ?, session_duration = ?
			 WHERE id = ? AND ended_at IS NULL`,
			formatTime(now), durationSeconds(st.started, now), st.id)
		if err != nil {
			return closed, fmt.Errorf("close stale session: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			closed++
		}
	}
	if closed > 0 {
		s.log.Info(ctx, "closed stale sessions", logger.Int("count", closed), logger.Duration("older_than", olderThan))
	}
	return closed, nil
}

// AppendEmotionEvent inserts one emotion event.
func (s *SQLiteStore) AppendEmotionEvent(ctx context.Context, e model.EmotionEvent) error {
	if e.SessionID == "" || e.StudentID == "" {
		return fmt.Errorf("%w: emotion event needs student and session", ErrInvalidRecord)
	}
	if !e.Label.Valid() || e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("%w: emotion %q confidence %v", ErrInvalidRecord, e.Label, e.Confidence)
	}
	if e.ID == "" {
		e.ID = s.newID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO emotion_logs (id, student_id, session_id, emotion_type, confidence_score, context, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.StudentID, e.SessionID, string(e.Label), e.Confidence, string(e.Context), formatTime(e.DetectedAt))
	if err != nil {
		return fmt.Errorf("append emotion event: %w", err)
	}
	return nil
}

// ListEmotionEvents returns a session's events in detection order.
func (s *SQLiteStore) ListEmotionEvents(ctx context.Context, sessionID string) ([]model.EmotionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, session_id, emotion_type, confidence_score, context, detected_at
		 FROM emotion_logs WHERE session_id = ? ORDER BY detected_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list emotion events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.EmotionEvent
	for rows.Next() {
		var e model.EmotionEvent
		var label, ctxTag, detected string
		if err := rows.Scan(&e.ID, &e.StudentID, &e.SessionID, &label, &e.Confidence, &ctxTag, &detected); err != nil {
			return nil, fmt.Errorf("list emotion events: %w", err)
		}
		e.Label = emotion.Label(label)
		e.Context = model.ContextTag(ctxTag)
		if e.DetectedAt, err = parseTime(detected); err != nil {
			return nil, fmt.Errorf("list emotion events: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendMessage inserts one communication message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, m model.Message) error {
	if m.StudentID == "" {
		return fmt.Errorf("%w: message needs a student", ErrInvalidRecord)
	}
	if m.ID == "" {
		m.ID = s.newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	var card sql.NullString
	if m.Symbol != nil {
		b, err := json.Marshal(m.Symbol)
		if err != nil {
			return fmt.Errorf("append message: %w", err)
		}
		card = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO communication_messages
		 (id, student_id, session_id, message_type, original_text, simplified_text, translated_text, visual_card_data, language_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.StudentID, nullable(m.SessionID), string(m.Type), m.OriginalText,
		nullable(m.SimplifiedText), nullable(m.TranslatedText), card, m.LanguageCode, formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListMessages returns a student's most recent messages, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, studentID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, session_id, message_type, original_text, simplified_text, translated_text,
		        visual_card_data, language_code, created_at
		 FROM communication_messages WHERE student_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Message
	for rows.Next() {
		var (
			m                               model.Message
			msgType, created                string
			session, simplified, translated sql.NullString
			card                            sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.StudentID, &session, &msgType, &m.OriginalText, &simplified,
			&translated, &card, &m.LanguageCode, &created); err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		m.SessionID = session.String
		m.Type = model.MessageType(msgType)
		m.SimplifiedText = simplified.String
		m.TranslatedText = translated.String
		if card.Valid {
			m.Symbol = &model.SymbolCard{}
			if err := json.Unmarshal([]byte(card.String), m.Symbol); err != nil {
				return nil, fmt.Errorf("list messages: visual card: %w", err)
			}
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.Session, error) {
	var (
		sess     model.Session
		started  string
		ended    sql.NullString
		duration sql.NullInt64
	)
	if err := row.Scan(&sess.ID, &sess.StudentID, &sess.LanguageCode, &started, &ended, &duration); err != nil {
		return model.Session{}, err
	}
	var err error
	if sess.StartedAt, err = parseTime(started); err != nil {
		return model.Session{}, err
	}
	if ended.Valid {
		t, err := parseTime(ended.String)
		if err != nil {
			return model.Session{}, err
		}
		sess.EndedAt = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		sess.DurationSeconds = &d
	}
	return sess, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func durationSeconds(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
