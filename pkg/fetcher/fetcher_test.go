package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sha5b/DynamiCrafter/pkg/checkpoint"
	"github.com/sha5b/DynamiCrafter/pkg/config"
	"github.com/sha5b/DynamiCrafter/pkg/hub"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
	"github.com/sha5b/DynamiCrafter/pkg/models"
	"github.com/sha5b/DynamiCrafter/pkg/ratelimit"
	"github.com/sha5b/DynamiCrafter/pkg/storage"
	"github.com/sha5b/DynamiCrafter/pkg/ui"
)

// fakeSource serves an in-memory weight file
type fakeSource struct {
	mu        sync.Mutex
	data      []byte
	etag      string
	rangeless bool
	stats     int
	opens     int
	offsets   []int64
}

func (f *fakeSource) info() hub.FileInfo {
	return hub.FileInfo{Size: int64(len(f.data)), ETag: f.etag, AcceptRanges: !f.rangeless}
}

func (f *fakeSource) Stat(ctx context.Context, repoID, revision, file string) (hub.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats++
	return f.info(), nil
}

func (f *fakeSource) Open(ctx context.Context, repoID, revision, file string, offset int64) (io.ReadCloser, hub.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	f.offsets = append(f.offsets, offset)
	if offset > 0 && f.rangeless {
		return nil, hub.FileInfo{}, hub.ErrRangeNotSupported
	}
	info := f.info()
	info.Size = int64(len(f.data)) - offset
	return io.NopCloser(strings.NewReader(string(f.data[offset:]))), info, nil
}

func (f *fakeSource) OpenRange(ctx context.Context, repoID, revision, file string, start, end int64) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return io.NopCloser(strings.NewReader(string(f.data[start : end+1]))), nil
}

// fakeTUI swallows all display calls
type fakeTUI struct{}

func (fakeTUI) StartDownload(id, variant, filename string, size int64)         {}
func (fakeTUI) UpdateDownloadProgress(id string, downloaded int64, speed float64) {}
func (fakeTUI) CompleteDownload(id string)                                     {}
func (fakeTUI) FailDownload(id string, err error)                              {}
func (fakeTUI) UpdateRateLimit(used, max int, resetAt time.Time)               {}
func (fakeTUI) LogInfo(format string, args ...interface{})                     {}
func (fakeTUI) LogSuccess(format string, args ...interface{})                  {}
func (fakeTUI) LogWarning(format string, args ...interface{})                  {}
func (fakeTUI) LogError(format string, args ...interface{})                    {}
func (fakeTUI) IsPaused() bool                                                 { return false }

func newTestFetcher(t *testing.T, src *fakeSource) *Fetcher {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Checkpoints.RootDirectory = t.TempDir()

	store, err := storage.NewManager(cfg.Checkpoints.RootDirectory)
	require.NoError(t, err)

	f := &Fetcher{
		client:      src,
		storage:     store,
		rateLimiter: ratelimit.NewTokenBucket(1000, time.Minute),
		notifier:    ui.NewNotifier(),
		config:      cfg,
		logger:      logger.NewTestLogger(),
	}
	f.SetTUI(fakeTUI{})
	return f
}

func testVariant() models.Variant {
	v, err := models.ByName("dynamicrafter_256_v1")
	if err != nil {
		panic(err)
	}
	return v
}

func TestFetchVariantDownloadsFile(t *testing.T) {
	src := &fakeSource{data: []byte("checkpoint bytes"), etag: "etag-1"}
	f := newTestFetcher(t, src)
	variant := testVariant()

	require.NoError(t, f.FetchVariant(context.Background(), variant, Options{}))

	data, err := os.ReadFile(f.storage.FilePath(variant.Name, "model.ckpt"))
	require.NoError(t, err)
	assert.Equal(t, src.data, data)

	// completion landed in the session ledger
	dir, err := f.storage.VariantDir(variant.Name)
	require.NoError(t, err)
	mgr, err := checkpoint.NewManager(dir)
	require.NoError(t, err)
	session, err := mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.True(t, session.IsFileCompleted("model.ckpt"))
	assert.Equal(t, "etag-1", session.File("model.ckpt").ETag)
}

func TestFetchVariantSecondRunIsNoop(t *testing.T) {
	src := &fakeSource{data: []byte("checkpoint bytes"), etag: "etag-1"}
	f := newTestFetcher(t, src)
	variant := testVariant()

	require.NoError(t, f.FetchVariant(context.Background(), variant, Options{}))
	statsAfterFirst := src.stats
	opensAfterFirst := src.opens

	require.NoError(t, f.FetchVariant(context.Background(), variant, Options{}))

	// the second run never went to the network
	assert.Equal(t, statsAfterFirst, src.stats)
	assert.Equal(t, opensAfterFirst, src.opens)
}

func TestFetchVariantResumesMatchingPartial(t *testing.T) {
	src := &fakeSource{data: []byte("0123456789abcdef"), etag: "etag-1"}
	f := newTestFetcher(t, src)
	variant := testVariant()

	// a previous run got halfway and recorded the etag
	pf, _, err := f.storage.OpenPartial(variant.Name, "model.ckpt")
	require.NoError(t, err)
	_, err = pf.Write(src.data[:8])
	require.NoError(t, err)
	require.NoError(t, pf.Close())

	dir, err := f.storage.VariantDir(variant.Name)
	require.NoError(t, err)
	mgr, err := checkpoint.NewManager(dir)
	require.NoError(t, err)
	session, err := mgr.Create(variant.Name, variant.Repo, "main")
	require.NoError(t, err)
	require.NoError(t, mgr.RecordStart(session, "model.ckpt", "etag-1", int64(len(src.data))))

	require.NoError(t, f.FetchVariant(context.Background(), variant, Options{}))

	data, err := os.ReadFile(f.storage.FilePath(variant.Name, "model.ckpt"))
	require.NoError(t, err)
	assert.Equal(t, src.data, data)

	// the transfer continued at the partial's size
	assert.Equal(t, []int64{8}, src.offsets)
}

func TestFetchVariantRestartsWithoutRangeSupport(t *testing.T) {
	src := &fakeSource{data: []byte("0123456789abcdef"), etag: "etag-1", rangeless: true}
	f := newTestFetcher(t, src)
	variant := testVariant()

	// leftover partial with a matching etag, but the server cannot resume it
	pf, _, err := f.storage.OpenPartial(variant.Name, "model.ckpt")
	require.NoError(t, err)
	_, err = pf.Write(src.data[:8])
	require.NoError(t, err)
	require.NoError(t, pf.Close())

	dir, err := f.storage.VariantDir(variant.Name)
	require.NoError(t, err)
	mgr, err := checkpoint.NewManager(dir)
	require.NoError(t, err)
	session, err := mgr.Create(variant.Name, variant.Repo, "main")
	require.NoError(t, err)
	require.NoError(t, mgr.RecordStart(session, "model.ckpt", "etag-1", int64(len(src.data))))

	require.NoError(t, f.FetchVariant(context.Background(), variant, Options{}))

	data, err := os.ReadFile(f.storage.FilePath(variant.Name, "model.ckpt"))
	require.NoError(t, err)
	assert.Equal(t, src.data, data)

	// the whole file came down in one unranged transfer
	assert.Equal(t, []int64{0}, src.offsets)
}

func TestFetchVariantRestartsOnEtagChange(t *testing.T) {
	src := &fakeSource{data: []byte("new checkpoint bytes"), etag: "etag-2"}
	f := newTestFetcher(t, src)
	variant := testVariant()

	// a stale partial from a run against the old revision of the file
	pf, _, err := f.storage.OpenPartial(variant.Name, "model.ckpt")
	require.NoError(t, err)
	_, err = pf.Write([]byte("OLD OLD OLD"))
	require.NoError(t, err)
	require.NoError(t, pf.Close())

	dir, err := f.storage.VariantDir(variant.Name)
	require.NoError(t, err)
	mgr, err := checkpoint.NewManager(dir)
	require.NoError(t, err)
	session, err := mgr.Create(variant.Name, variant.Repo, "main")
	require.NoError(t, err)
	require.NoError(t, mgr.RecordStart(session, "model.ckpt", "etag-1", 11))

	require.NoError(t, f.FetchVariant(context.Background(), variant, Options{}))

	// stale bytes are gone, the file matches the remote exactly
	data, err := os.ReadFile(f.storage.FilePath(variant.Name, "model.ckpt"))
	require.NoError(t, err)
	assert.Equal(t, src.data, data)
}

func TestFetchVariantForceRestart(t *testing.T) {
	src := &fakeSource{data: []byte("checkpoint bytes"), etag: "etag-1"}
	f := newTestFetcher(t, src)
	variant := testVariant()

	pf, _, err := f.storage.OpenPartial(variant.Name, "model.ckpt")
	require.NoError(t, err)
	_, err = pf.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, pf.Close())

	require.NoError(t, f.FetchVariant(context.Background(), variant, Options{ForceRestart: true}))

	dir, err := f.storage.VariantDir(variant.Name)
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "model.ckpt"+storage.PartialSuffix))
	assert.True(t, os.IsNotExist(statErr))

	data, err := os.ReadFile(f.storage.FilePath(variant.Name, "model.ckpt"))
	require.NoError(t, err)
	assert.Equal(t, src.data, data)
}

func TestFetchVariantAdoptsManuallyPlacedFile(t *testing.T) {
	src := &fakeSource{data: []byte("checkpoint bytes"), etag: "etag-1"}
	f := newTestFetcher(t, src)
	variant := testVariant()

	// file is on disk but there is no session ledger
	require.NoError(t, f.storage.Save(strings.NewReader(string(src.data)), variant.Name, "model.ckpt"))

	require.NoError(t, f.FetchVariant(context.Background(), variant, Options{}))

	// stat only, no bytes moved
	assert.Equal(t, 1, src.stats)
	assert.Equal(t, 0, src.opens)

	dir, err := f.storage.VariantDir(variant.Name)
	require.NoError(t, err)
	mgr, err := checkpoint.NewManager(dir)
	require.NoError(t, err)
	session, err := mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.True(t, session.IsFileCompleted("model.ckpt"))
}

func TestFetchFileByURI(t *testing.T) {
	src := &fakeSource{data: []byte("model:\n  target: lvdm\n"), etag: "etag-1"}
	f := newTestFetcher(t, src)

	uri, err := hub.ParseURI("huggingface://Doubiiu/DynamiCrafter/configs/inference_512_v1.0.yaml")
	require.NoError(t, err)

	require.NoError(t, f.FetchFile(context.Background(), uri))

	// the repo id becomes the directory, slashes in the path survive
	data, err := os.ReadFile(f.storage.FilePath("Doubiiu_DynamiCrafter", "configs/inference_512_v1.0.yaml"))
	require.NoError(t, err)
	assert.Equal(t, src.data, data)

	// a second fetch finds the file on disk and stays offline
	statsAfterFirst := src.stats
	opensAfterFirst := src.opens
	require.NoError(t, f.FetchFile(context.Background(), uri))
	assert.Equal(t, statsAfterFirst, src.stats)
	assert.Equal(t, opensAfterFirst, src.opens)
}

func TestEnsureVariant(t *testing.T) {
	src := &fakeSource{data: []byte("checkpoint bytes"), etag: "etag-1"}
	f := newTestFetcher(t, src)
	variant := testVariant()

	require.NoError(t, f.EnsureVariant(context.Background(), variant))
	assert.True(t, f.storage.IsComplete(variant.Name, "model.ckpt"))

	statsAfterFetch := src.stats
	require.NoError(t, f.EnsureVariant(context.Background(), variant))
	assert.Equal(t, statsAfterFetch, src.stats)
}
