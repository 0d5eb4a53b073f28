package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "dynamicrafter_256_v1"))
	require.NoError(t, err)
	return m
}

func TestCreateAndLoad(t *testing.T) {
	m := newTestManager(t)

	created, err := m.Create("dynamicrafter_256_v1", "Doubiiu/DynamiCrafter", "main")
	require.NoError(t, err)
	assert.True(t, m.Exists())

	loaded, err := m.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, created.Variant, loaded.Variant)
	assert.Equal(t, "Doubiiu/DynamiCrafter", loaded.Repo)
	assert.Equal(t, "main", loaded.Revision)
	assert.Equal(t, 1, loaded.Version)
}

func TestLoadMissing(t *testing.T) {
	m := newTestManager(t)

	session, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.False(t, m.Exists())
}

func TestRecordProgress(t *testing.T) {
	m := newTestManager(t)

	session, err := m.Create("dynamicrafter_512_v1", "Doubiiu/DynamiCrafter_512", "main")
	require.NoError(t, err)

	require.NoError(t, m.RecordStart(session, "model.ckpt", "etag-1", 1024))
	assert.False(t, session.IsFileCompleted("model.ckpt"))

	require.NoError(t, m.RecordCompleted(session, "model.ckpt"))
	assert.True(t, session.IsFileCompleted("model.ckpt"))
	assert.Equal(t, 1, session.CompletedCount())

	// survives reload
	loaded, err := m.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.IsFileCompleted("model.ckpt"))
	assert.Equal(t, "etag-1", loaded.File("model.ckpt").ETag)
	assert.Equal(t, int64(1024), loaded.File("model.ckpt").Size)
}

func TestRecordStartResetsCompletion(t *testing.T) {
	m := newTestManager(t)

	session, err := m.Create("dynamicrafter_512_v1", "Doubiiu/DynamiCrafter_512", "main")
	require.NoError(t, err)

	require.NoError(t, m.RecordStart(session, "model.ckpt", "etag-1", 10))
	require.NoError(t, m.RecordCompleted(session, "model.ckpt"))

	// a new remote etag starts the file over
	require.NoError(t, m.RecordStart(session, "model.ckpt", "etag-2", 20))
	assert.False(t, session.IsFileCompleted("model.ckpt"))
}

func TestLoadOrCreate(t *testing.T) {
	m := newTestManager(t)

	first, err := m.LoadOrCreate("dynamicrafter_1024_v1", "Doubiiu/DynamiCrafter_1024", "main")
	require.NoError(t, err)
	require.NoError(t, m.RecordStart(first, "model.ckpt", "etag-1", 10))

	// same revision keeps the ledger
	again, err := m.LoadOrCreate("dynamicrafter_1024_v1", "Doubiiu/DynamiCrafter_1024", "main")
	require.NoError(t, err)
	assert.Equal(t, "etag-1", again.File("model.ckpt").ETag)

	// a new revision discards it
	fresh, err := m.LoadOrCreate("dynamicrafter_1024_v1", "Doubiiu/DynamiCrafter_1024", "v2")
	require.NoError(t, err)
	assert.Empty(t, fresh.Files)
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("dynamicrafter_256_v1", "Doubiiu/DynamiCrafter", "main")
	require.NoError(t, err)
	require.NoError(t, m.Delete())
	assert.False(t, m.Exists())

	// deleting again is not an error
	require.NoError(t, m.Delete())
}

func TestSaveAtomic(t *testing.T) {
	m := newTestManager(t)

	session, err := m.Create("dynamicrafter_256_v1", "Doubiiu/DynamiCrafter", "main")
	require.NoError(t, err)
	require.NoError(t, m.Save(session))

	// no temp file left behind
	_, err = os.Stat(m.sessionPath + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
