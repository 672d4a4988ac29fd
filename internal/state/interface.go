package state

import (
	"io"

	"github.com/ShayCichocki/helmsman/pkg/models"
)

// SessionStore handles session-level persistence.
type SessionStore interface {
	CreateSession(s *Session) error
	GetSession(id string) (*Session, error)
	ListSessions(status *SessionStatus) ([]Session, error)
	UpdateStatus(id string, status SessionStatus) error
	UpdateArtifact(id, artifact string) error
	UpdateResumeID(id, resumeID string) error
	DeleteSession(id string) error
}

// MessageStore handles transcript persistence.
type MessageStore interface {
	AppendMessage(sessionID string, m models.Message) error
	ListMessages(sessionID string) ([]models.Message, error)
	CountMessages(sessionID string) (int, error)
}

// Migrator applies pending schema migrations.
type Migrator interface {
	Migrate() error
}

// Store is the full persistence surface the orchestration core depends on.
// It composes focused sub-interfaces so components can declare only what
// they use.
type Store interface {
	io.Closer
	Migrator
	SessionStore
	MessageStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store        = (*DB)(nil)
	_ SessionStore = (*DB)(nil)
	_ MessageStore = (*DB)(nil)
)
