package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/helmsman/pkg/models"
)

// SessionStatus represents the lifecycle state of a stored session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionAborted   SessionStatus = "aborted"
)

// Session is one logical conversation as persisted.
type Session struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Task      string        `json:"task"`
	WorkDir   string        `json:"work_dir"`
	Status    SessionStatus `json:"status"`
	// Managed is true for sessions created and driven by the dispatcher.
	// Only plain (non-managed) sessions may be reused for a new dispatch.
	Managed   bool      `json:"managed"`
	ResumeID  string    `json:"resume_id"`
	Artifact  string    `json:"artifact"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateSession persists a new session.
func (db *DB) CreateSession(s *Session) error {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err := db.conn.Exec(`
		INSERT INTO sessions (id, title, task, work_dir, status, managed, resume_id, artifact, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Title, s.Task, s.WorkDir, string(s.Status), boolToInt(s.Managed), s.ResumeID, s.Artifact,
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id, or nil when absent.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.conn.QueryRow(`
		SELECT id, title, task, work_dir, status, managed, resume_id, artifact, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListSessions lists sessions, newest first, optionally filtered by status.
func (db *DB) ListSessions(status *SessionStatus) ([]Session, error) {
	query := `
		SELECT id, title, task, work_dir, status, managed, resume_id, artifact, created_at, updated_at
		FROM sessions`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, nil
}

// UpdateStatus sets a session's lifecycle status.
func (db *DB) UpdateStatus(id string, status SessionStatus) error {
	return db.updateSessionField(id, "status", string(status))
}

// UpdateArtifact replaces the session's task artifact wholesale.
func (db *DB) UpdateArtifact(id, artifact string) error {
	return db.updateSessionField(id, "artifact", artifact)
}

// UpdateResumeID records the agent's correlation id for later resumes.
func (db *DB) UpdateResumeID(id, resumeID string) error {
	return db.updateSessionField(id, "resume_id", resumeID)
}

func (db *DB) updateSessionField(id, column, value string) error {
	_, err := db.conn.Exec(
		fmt.Sprintf("UPDATE sessions SET %s = ?, updated_at = ? WHERE id = ?", column),
		value, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update session %s: %w", column, err)
	}
	return nil
}

// DeleteSession removes a session and, via cascade, its messages.
func (db *DB) DeleteSession(id string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// AppendMessage appends one transcript message to a session.
func (db *DB) AppendMessage(sessionID string, m models.Message) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO messages (session_id, role, source, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, string(m.Role), string(m.Source), m.Text, formatTime(ts))
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages in append order.
func (db *DB) ListMessages(sessionID string) ([]models.Message, error) {
	rows, err := db.conn.Query(`
		SELECT role, source, text, created_at
		FROM messages WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var role, source, createdAt string
		if err := rows.Scan(&role, &source, &m.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = models.Role(role)
		m.Source = models.Source(source)
		m.Timestamp, _ = parseTime(createdAt)
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// CountMessages returns how many messages a session holds.
func (db *DB) CountMessages(sessionID string) (int, error) {
	var n int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var managed int
	var title, task, workDir, resumeID, artifact sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&s.ID, &title, &task, &workDir, &s.Status, &managed,
		&resumeID, &artifact, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.Title = title.String
	s.Task = task.String
	s.WorkDir = workDir.String
	s.ResumeID = resumeID.String
	s.Artifact = artifact.String
	s.Managed = managed != 0
	s.CreatedAt, _ = parseTime(createdAt)
	s.UpdatedAt, _ = parseTime(updatedAt)
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
