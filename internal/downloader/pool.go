package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sha5b/DynamiCrafter/pkg/logger"
	"github.com/sha5b/DynamiCrafter/pkg/ratelimit"
)

// FileResult represents the result of a download job
type FileResult struct {
	Job      FileJob
	Success  bool
	Error    error
	Duration time.Duration
}

// WorkerPool manages concurrent weight file downloads
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan FileJob
	resultQueue chan FileResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	downloader  *Downloader
	rateLimiter ratelimit.Limiter
	logger      logger.Logger
}

// NewWorkerPool creates a new download worker pool
func NewWorkerPool(
	numWorkers int,
	d *Downloader,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan FileJob, numWorkers*2),
		resultQueue: make(chan FileResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		downloader:  d,
		rateLimiter: rateLimiter,
		logger:      log,
	}
}

// Start initializes and starts all workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop gracefully shuts down the worker pool
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("worker pool stopped")
}

// Submit adds a new download job to the queue
func (wp *WorkerPool) Submit(job FileJob) error {
	select {
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	default:
	}

	select {
	case wp.jobQueue <- job:
		wp.logger.DebugWithFields("job submitted to queue", map[string]interface{}{
			"file": job.name(),
		})
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Results returns the result channel for consuming download results
func (wp *WorkerPool) Results() <-chan FileResult {
	return wp.resultQueue
}

// worker is the main worker routine
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

// processJob handles a single download job
func (wp *WorkerPool) processJob(job FileJob, workerID int) FileResult {
	start := time.Now()
	result := FileResult{Job: job}

	wp.logger.DebugWithFields("worker processing job", map[string]interface{}{
		"worker_id": workerID,
		"file":      job.name(),
	})

	if wp.rateLimiter != nil && !wp.rateLimiter.Allow() {
		wp.rateLimiter.Wait()
	}

	if err := wp.downloader.Fetch(wp.ctx, job); err != nil {
		result.Error = err
		result.Duration = time.Since(start)

		wp.logger.ErrorWithFields("worker failed to download file", map[string]interface{}{
			"worker_id": workerID,
			"file":      job.name(),
			"error":     err.Error(),
			"duration":  result.Duration,
		})

		return result
	}

	result.Success = true
	result.Duration = time.Since(start)

	return result
}

// GetQueueSize returns the current number of jobs in the queue
func (wp *WorkerPool) GetQueueSize() int {
	return len(wp.jobQueue)
}
