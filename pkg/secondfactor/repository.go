package secondfactor

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// SessionRepository stores named notes per login session. The flow only
// touches its two own notes through the SessionNotes view; hosts are free to
// keep their own notes in the same store.
type SessionRepository interface {
	GetNote(ctx context.Context, sessionID, name string) (string, error)
	SetNote(ctx context.Context, sessionID, name, value string) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// RepositoryConfig contains configuration for creating a session repository
type RepositoryConfig struct {
	// RedisClient is required for Redis repositories
	RedisClient *redis.Client
	// Pool is required for PostgreSQL repositories
	Pool *pgxpool.Pool
	// DataDir is required for file-based repositories
	DataDir string
}

// NewSessionRepository creates a session repository for the given persistence
// type: "memory", "file", "redis", or "postgres".
func NewSessionRepository(persistenceType string, config RepositoryConfig) (SessionRepository, error) {
	switch persistenceType {
	case "memory", "":
		return NewInMemorySessionRepository(), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("data directory required for file repository")
		}
		return NewFileSessionRepository(config.DataDir)
	case "redis":
		if config.RedisClient == nil {
			return nil, fmt.Errorf("redis client required for redis repository")
		}
		return NewRedisSessionRepository(config.RedisClient), nil
	case "postgres", "postgresql":
		if config.Pool == nil {
			return nil, fmt.Errorf("connection pool required for postgres repository")
		}
		return NewPostgresSessionRepository(config.Pool), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", persistenceType)
	}
}

// sessionNotes narrows a SessionRepository to one session, satisfying the
// SessionNotes interface the flow needs.
type sessionNotes struct {
	repository SessionRepository
	sessionID  string
}

// NotesForSession returns the SessionNotes view of one session in the
// repository.
func NotesForSession(repository SessionRepository, sessionID string) SessionNotes {
	return &sessionNotes{repository: repository, sessionID: sessionID}
}

func (n *sessionNotes) GetNote(ctx context.Context, name string) (string, error) {
	return n.repository.GetNote(ctx, n.sessionID, name)
}

func (n *sessionNotes) SetNote(ctx context.Context, name, value string) error {
	return n.repository.SetNote(ctx, n.sessionID, name, value)
}
