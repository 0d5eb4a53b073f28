package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sha5b/DynamiCrafter/pkg/logger"
)

// SessionFileName is the ledger file written into each variant directory.
const SessionFileName = ".session.json"

// FileState records what we knew about a remote file when its download began
type FileState struct {
	ETag      string `json:"etag"`
	Size      int64  `json:"size"`
	Completed bool   `json:"completed"`
}

// Session represents the state of a variant download session
type Session struct {
	Variant   string                `json:"variant"`
	Repo      string                `json:"repo"`
	Revision  string                `json:"revision"`
	Files     map[string]*FileState `json:"files"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
	Version   int                   `json:"version"`
}

// File returns the recorded state for a file, creating an empty entry on
// first use
func (s *Session) File(name string) *FileState {
	if s.Files == nil {
		s.Files = make(map[string]*FileState)
	}
	st, ok := s.Files[name]
	if !ok {
		st = &FileState{}
		s.Files[name] = st
	}
	return st
}

// IsFileCompleted checks if a file finished in an earlier run
func (s *Session) IsFileCompleted(name string) bool {
	st, ok := s.Files[name]
	return ok && st.Completed
}

// CompletedCount returns how many files of the session are done
func (s *Session) CompletedCount() int {
	n := 0
	for _, st := range s.Files {
		if st.Completed {
			n++
		}
	}
	return n
}

// Manager handles session ledger operations for one variant directory
type Manager struct {
	sessionPath string
	logger      logger.Logger
}

// NewManager creates a session manager for a variant directory
func NewManager(variantDir string) (*Manager, error) {
	if err := os.MkdirAll(variantDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create variant directory: %w", err)
	}

	return &Manager{
		sessionPath: filepath.Join(variantDir, SessionFileName),
		logger:      logger.GetLogger(),
	}, nil
}

// Create starts a fresh session ledger
func (m *Manager) Create(variant, repo, revision string) (*Session, error) {
	session := &Session{
		Variant:   variant,
		Repo:      repo,
		Revision:  revision,
		Files:     make(map[string]*FileState),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Version:   1,
	}

	if err := m.Save(session); err != nil {
		return nil, fmt.Errorf("failed to save initial session: %w", err)
	}

	m.logger.InfoWithFields("download session created", map[string]interface{}{
		"variant": variant,
		"repo":    repo,
		"path":    m.sessionPath,
	})

	return session, nil
}

// Load loads an existing session, returning nil if none exists
func (m *Manager) Load() (*Session, error) {
	file, err := os.Open(m.sessionPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	var session Session
	if err := json.NewDecoder(file).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	m.logger.DebugWithFields("download session loaded", map[string]interface{}{
		"variant":    session.Variant,
		"completed":  session.CompletedCount(),
		"updated_at": session.UpdatedAt,
	})

	return &session, nil
}

// LoadOrCreate loads an existing session or starts a new one. A session
// recorded for a different revision is discarded.
func (m *Manager) LoadOrCreate(variant, repo, revision string) (*Session, error) {
	session, err := m.Load()
	if err != nil {
		return nil, err
	}
	if session != nil && session.Revision == revision {
		return session, nil
	}
	if session != nil {
		m.logger.WarnWithFields("discarding session for different revision", map[string]interface{}{
			"variant": variant,
			"old":     session.Revision,
			"new":     revision,
		})
	}
	return m.Create(variant, repo, revision)
}

// Save saves the session to disk atomically
func (m *Manager) Save(session *Session) error {
	session.UpdatedAt = time.Now()

	tempPath := m.sessionPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(session); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync session file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tempPath, m.sessionPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// RecordStart records the remote identity of a file before its download
func (m *Manager) RecordStart(session *Session, name, etag string, size int64) error {
	st := session.File(name)
	st.ETag = etag
	st.Size = size
	st.Completed = false
	return m.Save(session)
}

// RecordCompleted marks a file as fully downloaded
func (m *Manager) RecordCompleted(session *Session, name string) error {
	session.File(name).Completed = true
	return m.Save(session)
}

// Delete removes the session file
func (m *Manager) Delete() error {
	if err := os.Remove(m.sessionPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Exists checks if a session file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.sessionPath)
	return err == nil
}
