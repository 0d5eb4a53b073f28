package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	errs "github.com/sha5b/DynamiCrafter/pkg/errors"
)

// PartialSuffix marks files whose download has not finished yet.
const PartialSuffix = ".partial"

// Manager handles the checkpoint directory tree and completed-file detection
type Manager struct {
	root      string
	completed map[string]bool
	mu        sync.RWMutex
}

// NewManager creates a storage manager rooted at the checkpoints directory
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	manager := &Manager{
		root:      root,
		completed: make(map[string]bool),
	}

	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan checkpoints directory: %w", err)
	}

	return manager, nil
}

// scanExistingFiles walks variant subdirectories for already completed files
func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		variant := entry.Name()

		files, err := os.ReadDir(filepath.Join(m.root, variant))
		if err != nil {
			return fmt.Errorf("failed to read variant directory %s: %w", variant, err)
		}
		for _, f := range files {
			if f.IsDir() || strings.HasSuffix(f.Name(), PartialSuffix) || strings.HasPrefix(f.Name(), ".") {
				continue
			}
			m.completed[key(variant, f.Name())] = true
		}
	}

	return nil
}

func key(variant, file string) string {
	return variant + "/" + file
}

// Root returns the checkpoints root directory
func (m *Manager) Root() string {
	return m.root
}

// VariantDir returns the directory for a variant, creating it if needed
func (m *Manager) VariantDir(variant string) (string, error) {
	dir := filepath.Join(m.root, variant)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create variant directory: %w", err)
	}
	return dir, nil
}

// FilePath returns the final path of a weight file
func (m *Manager) FilePath(variant, file string) string {
	return filepath.Join(m.root, variant, file)
}

// PartialPath returns the in-flight path of a weight file
func (m *Manager) PartialPath(variant, file string) string {
	return m.FilePath(variant, file) + PartialSuffix
}

// IsComplete checks if a weight file has already been fully downloaded
func (m *Manager) IsComplete(variant, file string) bool {
	m.mu.RLock()
	cached := m.completed[key(variant, file)]
	m.mu.RUnlock()
	if cached {
		return true
	}

	// Double-check file existence
	if _, err := os.Stat(m.FilePath(variant, file)); err == nil {
		m.mu.Lock()
		m.completed[key(variant, file)] = true
		m.mu.Unlock()
		return true
	}

	return false
}

// PartialSize reports how many bytes of a file are already on disk, zero if
// no partial file exists
func (m *Manager) PartialSize(variant, file string) int64 {
	info, err := os.Stat(m.PartialPath(variant, file))
	if err != nil {
		return 0
	}
	return info.Size()
}

// OpenPartial opens the partial file for appending, creating it if needed,
// and returns the handle together with the current size
func (m *Manager) OpenPartial(variant, file string) (*os.File, int64, error) {
	if _, err := m.VariantDir(variant); err != nil {
		return nil, 0, err
	}

	path := m.PartialPath(variant, file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open partial file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat partial file: %w", err)
	}

	return f, info.Size(), nil
}

// DiscardPartial removes a stale partial file, for restarting from scratch
func (m *Manager) DiscardPartial(variant, file string) error {
	err := os.Remove(m.PartialPath(variant, file))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove partial file: %w", err)
	}
	return nil
}

// Promote atomically renames a completed partial file to its final name
func (m *Manager) Promote(variant, file string) error {
	if err := os.Rename(m.PartialPath(variant, file), m.FilePath(variant, file)); err != nil {
		return fmt.Errorf("failed to promote partial file: %w", err)
	}

	m.mu.Lock()
	m.completed[key(variant, file)] = true
	m.mu.Unlock()

	return nil
}

// Save writes a whole file from the reader through a temporary file and an
// atomic rename. Used for files that skip the resume machinery, e.g. one-off
// files fetched by URI. The file name may contain repository subdirectories.
func (m *Manager) Save(r io.Reader, variant, file string) error {
	filename := m.FilePath(variant, file)
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write file data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.completed[key(variant, file)] = true
	m.mu.Unlock()

	return nil
}

// VerifySHA256 checks a completed file against an expected digest. An empty
// digest skips verification.
func (m *Manager) VerifySHA256(variant, file, want string) error {
	if want == "" {
		return nil
	}

	f, err := os.Open(m.FilePath(variant, file))
	if err != nil {
		return fmt.Errorf("failed to open file for verification: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("failed to hash file: %w", err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return errs.New(errs.ErrorTypeChecksum,
			fmt.Sprintf("sha256 mismatch for %s: got %s, want %s", key(variant, file), got, want))
	}

	return nil
}

// LockVariant takes the per-variant advisory lock, waiting until it is free
// or the context expires. The caller must Unlock the returned lock.
func (m *Manager) LockVariant(ctx context.Context, variant string) (*flock.Flock, error) {
	dir, err := m.VariantDir(variant)
	if err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLockContext(ctx, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to lock variant %s: %w", variant, err)
	}
	if !locked {
		return nil, fmt.Errorf("variant %s is locked by another process", variant)
	}

	return lock, nil
}

// CompletedCount returns the number of completed weight files across variants
func (m *Manager) CompletedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.completed)
}

// CompletedFiles lists completed variant/file keys, for the doctor report
func (m *Manager) CompletedFiles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := make([]string, 0, len(m.completed))
	for k := range m.completed {
		files = append(files, k)
	}
	return files
}
