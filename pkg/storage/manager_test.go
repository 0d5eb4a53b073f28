package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/sha5b/DynamiCrafter/pkg/errors"
)

func TestNewManagerCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "checkpoints")
	m, err := NewManager(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, root, m.Root())
}

func TestScanExistingFiles(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "dynamicrafter_256_v1")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.ckpt"), []byte("weights"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.ckpt.partial"), []byte("wei"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lock"), nil, 0644))

	m, err := NewManager(root)
	require.NoError(t, err)

	assert.True(t, m.IsComplete("dynamicrafter_256_v1", "model.ckpt"))
	assert.Equal(t, 1, m.CompletedCount())
}

func TestPartialLifecycle(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	f, size, err := m.OpenPartial("dynamicrafter_512_v1", "model.ckpt")
	require.NoError(t, err)
	assert.Zero(t, size)

	_, err = f.WriteString("first-")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// reopen resumes at the existing size
	f, size, err = m.OpenPartial("dynamicrafter_512_v1", "model.ckpt")
	require.NoError(t, err)
	assert.Equal(t, int64(6), size)
	assert.Equal(t, int64(6), m.PartialSize("dynamicrafter_512_v1", "model.ckpt"))

	_, err = f.WriteString("second")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.False(t, m.IsComplete("dynamicrafter_512_v1", "model.ckpt"))
	require.NoError(t, m.Promote("dynamicrafter_512_v1", "model.ckpt"))
	assert.True(t, m.IsComplete("dynamicrafter_512_v1", "model.ckpt"))

	data, err := os.ReadFile(m.FilePath("dynamicrafter_512_v1", "model.ckpt"))
	require.NoError(t, err)
	assert.Equal(t, "first-second", string(data))

	// partial is gone after promotion
	assert.Zero(t, m.PartialSize("dynamicrafter_512_v1", "model.ckpt"))
}

func TestDiscardPartial(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	f, _, err := m.OpenPartial("dynamicrafter_1024_v1", "model.ckpt")
	require.NoError(t, err)
	_, err = f.WriteString("stale")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, m.DiscardPartial("dynamicrafter_1024_v1", "model.ckpt"))
	assert.Zero(t, m.PartialSize("dynamicrafter_1024_v1", "model.ckpt"))

	// discarding a missing partial is not an error
	require.NoError(t, m.DiscardPartial("dynamicrafter_1024_v1", "model.ckpt"))
}

func TestSaveAtomic(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	err = m.Save(strings.NewReader("small file"), "dynamicrafter_256_v1", "config.yaml")
	require.NoError(t, err)

	assert.True(t, m.IsComplete("dynamicrafter_256_v1", "config.yaml"))
	data, err := os.ReadFile(m.FilePath("dynamicrafter_256_v1", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "small file", string(data))
}

func TestSaveNestedPath(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	err = m.Save(strings.NewReader("prompt config"), "Doubiiu_DynamiCrafter", "configs/inference_512_v1.0.yaml")
	require.NoError(t, err)

	assert.True(t, m.IsComplete("Doubiiu_DynamiCrafter", "configs/inference_512_v1.0.yaml"))
	data, err := os.ReadFile(m.FilePath("Doubiiu_DynamiCrafter", "configs/inference_512_v1.0.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "prompt config", string(data))
}

func TestVerifySHA256(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	content := []byte("checkpoint weights")
	require.NoError(t, m.Save(strings.NewReader(string(content)), "dynamicrafter_256_v1", "model.ckpt"))

	sum := sha256.Sum256(content)
	want := hex.EncodeToString(sum[:])

	assert.NoError(t, m.VerifySHA256("dynamicrafter_256_v1", "model.ckpt", want))
	assert.NoError(t, m.VerifySHA256("dynamicrafter_256_v1", "model.ckpt", strings.ToUpper(want)))

	// empty digest skips verification
	assert.NoError(t, m.VerifySHA256("dynamicrafter_256_v1", "model.ckpt", ""))

	err = m.VerifySHA256("dynamicrafter_256_v1", "model.ckpt", strings.Repeat("0", 64))
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.ErrorTypeChecksum, e.Type)
}

func TestLockVariant(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	lock, err := m.LockVariant(context.Background(), "dynamicrafter_512_v1")
	require.NoError(t, err)
	require.NoError(t, lock.Unlock())
}
