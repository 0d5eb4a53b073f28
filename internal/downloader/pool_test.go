package downloader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sha5b/DynamiCrafter/pkg/logger"
	"github.com/sha5b/DynamiCrafter/pkg/ratelimit"
	"github.com/sha5b/DynamiCrafter/pkg/storage"
)

func TestWorkerPoolDownloadsAllJobs(t *testing.T) {
	src := &fakeSource{data: []byte("pooled checkpoint bytes")}
	store, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)

	d := New(src, store, Options{}, logger.NewTestLogger())
	limiter := ratelimit.NewTokenBucket(100, time.Minute)
	pool := NewWorkerPool(3, d, limiter, logger.NewTestLogger())
	pool.Start()

	variants := []string{"dynamicrafter_256_v1", "dynamicrafter_512_v1", "dynamicrafter_1024_v1"}
	for _, v := range variants {
		job := testJob(src)
		job.Variant = v
		require.NoError(t, pool.Submit(job))
	}

	done := make(chan struct{})
	results := make([]FileResult, 0, len(variants))
	go func() {
		defer close(done)
		for r := range pool.Results() {
			results = append(results, r)
		}
	}()

	// wait for results before stopping so none are dropped
	deadline := time.After(5 * time.Second)
	for qsize := pool.GetQueueSize(); qsize > 0; qsize = pool.GetQueueSize() {
		select {
		case <-deadline:
			t.Fatal("jobs never drained")
		case <-time.After(10 * time.Millisecond):
		}
	}
	pool.Stop()
	<-done

	require.Len(t, results, len(variants))
	for _, r := range results {
		assert.True(t, r.Success, "job %s failed: %v", r.Job.name(), r.Error)
	}
	for _, v := range variants {
		assert.True(t, store.IsComplete(v, "model.ckpt"))
	}
}

func TestWorkerPoolReportsFailures(t *testing.T) {
	src := &fakeSource{data: []byte("bytes"), failOpens: 100}
	store, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)

	d := New(src, store, Options{MaxRetries: 2}, logger.NewTestLogger())
	pool := NewWorkerPool(1, d, nil, logger.NewTestLogger())
	pool.Start()

	require.NoError(t, pool.Submit(testJob(src)))

	result := <-pool.Results()
	assert.False(t, result.Success)
	assert.Error(t, result.Error)

	pool.Stop()
}

func TestWorkerPoolSubmitAfterStop(t *testing.T) {
	src := &fakeSource{data: []byte("bytes")}
	store, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)

	d := New(src, store, Options{}, logger.NewTestLogger())
	pool := NewWorkerPool(1, d, nil, logger.NewTestLogger())
	pool.Start()
	pool.Stop()

	err = pool.Submit(testJob(src))
	assert.Error(t, err)
}
