package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages session persistence on a PostgreSQL pool.
//
// Store is safe for concurrent use. Every mutating operation that takes
// a browserID enforces ownership: a session belonging to a different
// browser behaves as if it did not exist.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a store over the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{pool: pool, logger: logger}
}

const sessionColumns = "id, browser_id, title, pinned, message_count, created_at, updated_at"

// CreateSession creates a session for the browser. An empty title
// becomes DefaultTitle.
func (s *Store) CreateSession(ctx context.Context, browserID, title string) (*Session, error) {
	if title == "" {
		title = DefaultTitle
	}

	row := s.pool.QueryRow(ctx,
		"INSERT INTO sessions (browser_id, title) VALUES ($1, $2) RETURNING "+sessionColumns,
		browserID, title)

	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "browser_id", browserID)
	return sess, nil
}

// Session retrieves one session owned by the browser.
func (s *Store) Session(ctx context.Context, id uuid.UUID, browserID string) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = $1 AND browser_id = $2",
		id, browserID)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// Sessions lists the browser's sessions ordered by last activity,
// newest first.
func (s *Store) Sessions(ctx context.Context, browserID string, limit, offset int32) ([]*Session, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE browser_id = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3",
		browserID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	s.logger.Debug("listed sessions", "browser_id", browserID, "count", len(sessions))
	return sessions, nil
}

// UpdateSession applies a partial update to a session the browser owns.
func (s *Store) UpdateSession(ctx context.Context, id uuid.UUID, browserID string, update Update) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE sessions
		 SET title = COALESCE($3, title),
		     pinned = COALESCE($4, pinned),
		     updated_at = now()
		 WHERE id = $1 AND browser_id = $2
		 RETURNING `+sessionColumns,
		id, browserID, update.Title, update.Pinned)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update session %s: %w", id, err)
	}

	s.logger.Debug("updated session", "id", id)
	return sess, nil
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID, browserID string) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM sessions WHERE id = $1 AND browser_id = $2", id, browserID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	s.logger.Debug("deleted session", "id", id)
	return nil
}

// AddMessage appends a message to the session, assigning the next
// sequence number. The session row is locked for the duration so
// concurrent appends cannot collide on sequence numbers. When the
// session still carries the default title and the message is the first
// user message, the title is derived from its content.
func (s *Store) AddMessage(ctx context.Context, sessionID uuid.UUID, browserID string, msg Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("rollback failed", "error", err)
		}
	}()

	var title string
	err = tx.QueryRow(ctx,
		"SELECT title FROM sessions WHERE id = $1 AND browser_id = $2 FOR UPDATE",
		sessionID, browserID).Scan(&title)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("lock session %s: %w", sessionID, err)
	}

	var seq int
	err = tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM session_messages WHERE session_id = $1",
		sessionID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next sequence number: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO session_messages (session_id, role, content, model, sequence_number)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
		sessionID, msg.Role, msg.Content, msg.Model, seq)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	newTitle := title
	if title == DefaultTitle && msg.Role == RoleUser {
		newTitle = AutoTitle(msg.Content)
	}

	_, err = tx.Exec(ctx,
		"UPDATE sessions SET message_count = $2, title = $3, updated_at = now() WHERE id = $1",
		sessionID, seq, newTitle)
	if err != nil {
		return fmt.Errorf("update session metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debug("added message", "session_id", sessionID, "sequence", seq, "role", msg.Role)
	return nil
}

// Messages retrieves a session's messages in sequence order.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID, browserID string, limit, offset int32) ([]*Message, error) {
	// Ownership check first so a foreign session reads as missing, not
	// merely empty.
	if _, err := s.Session(ctx, sessionID, browserID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, COALESCE(model, ''), sequence_number, created_at
		 FROM session_messages
		 WHERE session_id = $1
		 ORDER BY sequence_number
		 LIMIT $2 OFFSET $3`,
		sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Model, &m.Sequence, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	return messages, nil
}

// likeEscaper neutralizes LIKE metacharacters so the query matches them
// literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchMessages finds the browser's messages whose content matches the
// query, newest first. Matching is case-insensitive substring search;
// %, _ and \ in the query match themselves.
func (s *Store) SearchMessages(ctx context.Context, browserID, query string, limit int32) ([]*Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.session_id, m.role, m.content, COALESCE(m.model, ''), m.sequence_number, m.created_at
		 FROM session_messages m
		 JOIN sessions s ON s.id = m.session_id
		 WHERE s.browser_id = $1 AND m.content ILIKE '%' || $2 || '%'
		 ORDER BY m.created_at DESC
		 LIMIT $3`,
		browserID, likeEscaper.Replace(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Model, &m.Sequence, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	s.logger.Debug("searched messages", "browser_id", browserID, "count", len(messages))
	return messages, nil
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.BrowserID, &s.Title, &s.Pinned, &s.MessageCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
