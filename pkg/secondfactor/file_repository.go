package secondfactor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSessionRepository implements SessionRepository using file-based storage.
// Meant for development setups where sessions should survive restarts without
// running a database.
type FileSessionRepository struct {
	dataDir  string
	sessions map[string]map[string]string
	mutex    sync.RWMutex
}

// sessionData represents the structure of data stored in the JSON file
type sessionData struct {
	Sessions map[string]map[string]string `json:"sessions"`
}

// NewFileSessionRepository creates a new file-based session repository
func NewFileSessionRepository(dataDir string) (*FileSessionRepository, error) {
	// Create data directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repository := &FileSessionRepository{
		dataDir:  dataDir,
		sessions: make(map[string]map[string]string),
	}

	if err := repository.load(); err != nil {
		return nil, err
	}

	return repository, nil
}

func (r *FileSessionRepository) GetNote(ctx context.Context, sessionID, name string) (string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.sessions[sessionID][name], nil
}

func (r *FileSessionRepository) SetNote(ctx context.Context, sessionID, name, value string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	notes, ok := r.sessions[sessionID]
	if !ok {
		notes = make(map[string]string)
		r.sessions[sessionID] = notes
	}
	notes[name] = value

	return r.save()
}

func (r *FileSessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.sessions, sessionID)
	return r.save()
}

func (r *FileSessionRepository) filePath() string {
	return filepath.Join(r.dataDir, "sessions.json")
}

// load reads session data from the JSON file; a missing file is an empty
// store. Caller does not hold the mutex (construction time only).
func (r *FileSessionRepository) load() error {
	data, err := os.ReadFile(r.filePath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session data: %w", err)
	}

	var stored sessionData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse session data: %w", err)
	}
	if stored.Sessions != nil {
		r.sessions = stored.Sessions
	}

	return nil
}

// save writes session data to the JSON file. Caller must hold the mutex.
func (r *FileSessionRepository) save() error {
	data, err := json.MarshalIndent(sessionData{Sessions: r.sessions}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	if err := os.WriteFile(r.filePath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write session data: %w", err)
	}

	return nil
}
