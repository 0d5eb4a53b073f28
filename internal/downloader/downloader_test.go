package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/sha5b/DynamiCrafter/pkg/errors"
	"github.com/sha5b/DynamiCrafter/pkg/hub"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
	"github.com/sha5b/DynamiCrafter/pkg/storage"
)

// fakeSource serves an in-memory file with optional injected failures
type fakeSource struct {
	mu        sync.Mutex
	data      []byte
	ranges    bool
	failOpens int
	opens     int
}

func (f *fakeSource) info() hub.FileInfo {
	return hub.FileInfo{Size: int64(len(f.data)), ETag: "etag-1", AcceptRanges: f.ranges}
}

func (f *fakeSource) Stat(ctx context.Context, repoID, revision, file string) (hub.FileInfo, error) {
	return f.info(), nil
}

func (f *fakeSource) Open(ctx context.Context, repoID, revision, file string, offset int64) (io.ReadCloser, hub.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.failOpens > 0 {
		f.failOpens--
		return nil, hub.FileInfo{}, errs.New(errs.ErrorTypeNetwork, "connection reset")
	}
	info := f.info()
	info.Size = int64(len(f.data)) - offset
	return io.NopCloser(strings.NewReader(string(f.data[offset:]))), info, nil
}

func (f *fakeSource) OpenRange(ctx context.Context, repoID, revision, file string, start, end int64) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.failOpens > 0 {
		f.failOpens--
		return nil, errs.New(errs.ErrorTypeNetwork, "connection reset")
	}
	return io.NopCloser(strings.NewReader(string(f.data[start : end+1]))), nil
}

func newTestDownloader(t *testing.T, src *fakeSource, opts Options) (*Downloader, *storage.Manager) {
	t.Helper()
	store, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	return New(src, store, opts, logger.NewTestLogger()), store
}

func testJob(src *fakeSource) FileJob {
	return FileJob{
		Variant:  "dynamicrafter_256_v1",
		RepoID:   "Doubiiu/DynamiCrafter",
		Revision: "main",
		File:     "model.ckpt",
		Info:     src.info(),
		Resume:   true,
	}
}

func TestFetchSequential(t *testing.T) {
	src := &fakeSource{data: []byte("sequential checkpoint bytes")}
	d, store := newTestDownloader(t, src, Options{})

	require.NoError(t, d.Fetch(context.Background(), testJob(src)))

	data, err := os.ReadFile(store.FilePath("dynamicrafter_256_v1", "model.ckpt"))
	require.NoError(t, err)
	assert.Equal(t, src.data, data)
	assert.True(t, store.IsComplete("dynamicrafter_256_v1", "model.ckpt"))
}

func TestFetchSkipsCompleteFile(t *testing.T) {
	src := &fakeSource{data: []byte("bytes")}
	d, store := newTestDownloader(t, src, Options{})

	job := testJob(src)
	require.NoError(t, d.Fetch(context.Background(), job))
	require.NoError(t, d.Fetch(context.Background(), job))

	// the second fetch never touched the network
	assert.Equal(t, 1, src.opens)
	assert.True(t, store.IsComplete("dynamicrafter_256_v1", "model.ckpt"))
}

func TestFetchResumesPartial(t *testing.T) {
	src := &fakeSource{data: []byte("0123456789abcdef")}
	d, store := newTestDownloader(t, src, Options{})

	f, _, err := store.OpenPartial("dynamicrafter_256_v1", "model.ckpt")
	require.NoError(t, err)
	_, err = f.Write(src.data[:6])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, d.Fetch(context.Background(), testJob(src)))

	data, err := os.ReadFile(store.FilePath("dynamicrafter_256_v1", "model.ckpt"))
	require.NoError(t, err)
	assert.Equal(t, src.data, data)
}

func TestFetchDiscardsPartialWithoutResume(t *testing.T) {
	src := &fakeSource{data: []byte("fresh content")}
	d, store := newTestDownloader(t, src, Options{})

	f, _, err := store.OpenPartial("dynamicrafter_256_v1", "model.ckpt")
	require.NoError(t, err)
	_, err = f.WriteString("stale bytes from another etag")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	job := testJob(src)
	job.Resume = false
	require.NoError(t, d.Fetch(context.Background(), job))

	data, err := os.ReadFile(store.FilePath("dynamicrafter_256_v1", "model.ckpt"))
	require.NoError(t, err)
	assert.Equal(t, src.data, data)
}

func TestFetchDiscardsOversizedPartial(t *testing.T) {
	src := &fakeSource{data: []byte("short")}
	d, store := newTestDownloader(t, src, Options{})

	f, _, err := store.OpenPartial("dynamicrafter_256_v1", "model.ckpt")
	require.NoError(t, err)
	_, err = f.WriteString("much longer than the remote file")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, d.Fetch(context.Background(), testJob(src)))

	data, err := os.ReadFile(store.FilePath("dynamicrafter_256_v1", "model.ckpt"))
	require.NoError(t, err)
	assert.Equal(t, src.data, data)
}

func TestFetchRetriesNetworkErrors(t *testing.T) {
	src := &fakeSource{data: []byte("flaky network bytes"), failOpens: 2}
	d, store := newTestDownloader(t, src, Options{MaxRetries: 4})

	require.NoError(t, d.Fetch(context.Background(), testJob(src)))
	assert.True(t, store.IsComplete("dynamicrafter_256_v1", "model.ckpt"))
}

func TestFetchChunked(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	src := &fakeSource{data: data, ranges: true}

	d, store := newTestDownloader(t, src, Options{
		ChunkSize:    64,
		Concurrency:  4,
		FastTransfer: true,
	})

	var mu sync.Mutex
	var lastDone int64
	job := testJob(src)
	job.Progress = func(done, total int64) {
		mu.Lock()
		if done > lastDone {
			lastDone = done
		}
		mu.Unlock()
	}

	require.NoError(t, d.Fetch(context.Background(), job))

	got, err := os.ReadFile(store.FilePath("dynamicrafter_256_v1", "model.ckpt"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), lastDone)
	assert.Greater(t, src.opens, 1)
}

func TestFetchChunkedFallsBackForPartial(t *testing.T) {
	data := []byte(strings.Repeat("chunkable content ", 100))
	src := &fakeSource{data: data, ranges: true}
	d, store := newTestDownloader(t, src, Options{
		ChunkSize:    64,
		Concurrency:  4,
		FastTransfer: true,
	})

	// existing partial bytes force the sequential resume path
	f, _, err := store.OpenPartial("dynamicrafter_256_v1", "model.ckpt")
	require.NoError(t, err)
	_, err = f.Write(data[:100])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, d.Fetch(context.Background(), testJob(src)))

	got, err := os.ReadFile(store.FilePath("dynamicrafter_256_v1", "model.ckpt"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFetchVerifiesChecksum(t *testing.T) {
	src := &fakeSource{data: []byte("verified bytes")}
	d, _ := newTestDownloader(t, src, Options{})

	sum := sha256.Sum256(src.data)
	job := testJob(src)
	job.SHA256 = hex.EncodeToString(sum[:])
	require.NoError(t, d.Fetch(context.Background(), job))
}

func TestFetchRejectsBadChecksum(t *testing.T) {
	src := &fakeSource{data: []byte("corrupted bytes")}
	d, _ := newTestDownloader(t, src, Options{})

	job := testJob(src)
	job.SHA256 = strings.Repeat("0", 64)
	err := d.Fetch(context.Background(), job)
	require.Error(t, err)

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.ErrorTypeChecksum, e.Type)
}
