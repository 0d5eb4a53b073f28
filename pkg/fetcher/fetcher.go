package fetcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sha5b/DynamiCrafter/internal/downloader"
	"github.com/sha5b/DynamiCrafter/pkg/checkpoint"
	"github.com/sha5b/DynamiCrafter/pkg/config"
	"github.com/sha5b/DynamiCrafter/pkg/hub"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
	"github.com/sha5b/DynamiCrafter/pkg/models"
	"github.com/sha5b/DynamiCrafter/pkg/ratelimit"
	"github.com/sha5b/DynamiCrafter/pkg/storage"
	"github.com/sha5b/DynamiCrafter/pkg/ui"
)

// Options controls a fetch run
type Options struct {
	// ForceRestart discards partial files and the session ledger
	ForceRestart bool
}

// Fetcher orchestrates the checkpoint download process
type Fetcher struct {
	client      downloader.FileSource
	storage     *storage.Manager
	rateLimiter ratelimit.Limiter
	notifier    *ui.Notifier
	config      *config.Config
	logger      logger.Logger
	tui         ui.TUI
}

// New creates a new Fetcher instance
func New(cfg *config.Config) (*Fetcher, error) {
	log := logger.GetLogger()

	client := hub.NewClient(
		cfg.Hub.Endpoint,
		cfg.Hub.Token,
		cfg.Hub.UserAgent,
		cfg.Download.DownloadTimeout,
		log,
	)

	store, err := storage.NewManager(cfg.Checkpoints.RootDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}

	var rateLimiter ratelimit.Limiter
	if cfg.RateLimit.RequestsPerMinute > 0 {
		rateLimiter = ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	} else {
		rateLimiter = ratelimit.NewTokenBucket(60, time.Minute)
	}

	return &Fetcher{
		client:      client,
		storage:     store,
		rateLimiter: rateLimiter,
		notifier:    ui.NewNotifier(),
		config:      cfg,
		logger:      log,
	}, nil
}

// SetTUI sets the terminal UI for the fetcher
func (f *Fetcher) SetTUI(tui ui.TUI) {
	f.tui = tui
}

// Storage exposes the storage manager, for the doctor report
func (f *Fetcher) Storage() *storage.Manager {
	return f.storage
}

// FetchVariant downloads all weight files of one variant. Files already on
// disk are left alone, so a second run is a no-op.
func (f *Fetcher) FetchVariant(ctx context.Context, variant models.Variant, opts Options) error {
	f.logger.InfoWithFields("fetching variant", map[string]interface{}{
		"variant": variant.Name,
		"repo":    variant.Repo,
	})

	// one fetch per variant across processes
	lock, err := f.storage.LockVariant(ctx, variant.Name)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	variantDir, err := f.storage.VariantDir(variant.Name)
	if err != nil {
		return err
	}

	sessionMgr, err := checkpoint.NewManager(variantDir)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	if opts.ForceRestart {
		if err := sessionMgr.Delete(); err != nil {
			f.logger.WithError(err).Warn("failed to delete session ledger")
		}
		for _, file := range variant.Files {
			if err := f.storage.DiscardPartial(variant.Name, file.Name); err != nil {
				f.logger.WithError(err).Warn("failed to discard partial file")
			}
		}
	}

	revision := f.config.Hub.Revision
	session, err := sessionMgr.LoadOrCreate(variant.Name, variant.Repo, revision)
	if err != nil {
		return err
	}

	jobs, totalBytes, err := f.planJobs(ctx, variant, session, sessionMgr)
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		f.logger.InfoWithFields("variant already complete", map[string]interface{}{
			"variant": variant.Name,
		})
		if f.tui != nil {
			f.tui.LogSuccess("%s already complete", variant.Name)
		} else {
			ui.PrintInfo(variant.Name, "already complete")
		}
		return nil
	}

	return f.runJobs(ctx, variant, jobs, totalBytes, session, sessionMgr)
}

// planJobs stats the remote files and decides, per file, between skip,
// resume and restart
func (f *Fetcher) planJobs(ctx context.Context, variant models.Variant, session *checkpoint.Session, sessionMgr *checkpoint.Manager) ([]downloader.FileJob, int64, error) {
	var jobs []downloader.FileJob
	var totalBytes int64

	revision := f.config.Hub.Revision

	for _, file := range variant.Files {
		if f.storage.IsComplete(variant.Name, file.Name) && session.IsFileCompleted(file.Name) {
			f.logger.DebugWithFields("file already complete", map[string]interface{}{
				"variant": variant.Name,
				"file":    file.Name,
			})
			continue
		}

		if !f.rateLimiter.Allow() {
			f.rateLimiter.Wait()
		}

		info, err := f.client.Stat(ctx, variant.Repo, revision, file.Name)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to stat %s/%s: %w", variant.Repo, file.Name, err)
		}

		// a completed file without a ledger entry was placed manually,
		// trust it if the size matches
		if f.storage.IsComplete(variant.Name, file.Name) {
			if err := sessionMgr.RecordStart(session, file.Name, info.ETag, info.Size); err != nil {
				return nil, 0, err
			}
			if err := sessionMgr.RecordCompleted(session, file.Name); err != nil {
				return nil, 0, err
			}
			continue
		}

		// resuming needs range support and an unchanged remote file
		state := session.File(file.Name)
		resume := info.AcceptRanges && state.ETag != "" && state.ETag == info.ETag

		if !resume {
			if err := sessionMgr.RecordStart(session, file.Name, info.ETag, info.Size); err != nil {
				return nil, 0, err
			}
		}

		checksum := ""
		if f.config.Download.VerifyChecksums {
			checksum = file.SHA256
		}

		jobs = append(jobs, downloader.FileJob{
			Variant:  variant.Name,
			RepoID:   variant.Repo,
			Revision: revision,
			File:     file.Name,
			Info:     info,
			SHA256:   checksum,
			Resume:   resume,
		})
		totalBytes += info.Size
	}

	return jobs, totalBytes, nil
}

// runJobs pushes the planned jobs through the worker pool and records
// completions in the session ledger
func (f *Fetcher) runJobs(ctx context.Context, variant models.Variant, jobs []downloader.FileJob, totalBytes int64, session *checkpoint.Session, sessionMgr *checkpoint.Manager) error {
	d := downloader.New(f.client, f.storage, downloader.Options{
		ChunkSize:    f.config.Download.ChunkSize,
		Concurrency:  f.config.Download.ConcurrentDownloads,
		FastTransfer: f.config.Download.FastTransfer,
		MaxRetries:   f.config.Download.RetryAttempts,
	}, f.logger)

	pool := downloader.NewWorkerPool(f.config.Download.ConcurrentDownloads, d, f.rateLimiter, f.logger)
	pool.Start()

	var progress *ui.ProgressDisplay
	if f.tui == nil {
		debugMode := strings.EqualFold(f.config.Logging.Level, "debug")
		progress = ui.NewProgressDisplay(variant.Name, len(jobs), totalBytes, debugMode)
	}

	for i := range jobs {
		job := jobs[i]
		id := job.Variant + "/" + job.File

		if f.tui != nil {
			f.tui.StartDownload(id, job.Variant, job.File, job.Info.Size)
			start := time.Now()
			job.Progress = func(done, total int64) {
				elapsed := time.Since(start).Seconds()
				var speed float64
				if elapsed > 0 {
					speed = float64(done) / elapsed
				}
				f.tui.UpdateDownloadProgress(id, done, speed)
			}
		} else {
			progress.StartFile(job.File)
			job.Progress = func(done, total int64) {
				progress.UpdateBytes(done)
			}
		}

		if err := pool.Submit(job); err != nil {
			pool.Stop()
			return err
		}
	}

	// collect results
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []error

	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range pool.Results() {
			id := result.Job.Variant + "/" + result.Job.File

			if result.Success {
				mu.Lock()
				if err := sessionMgr.RecordCompleted(session, result.Job.File); err != nil {
					f.logger.WithError(err).Warn("failed to record completion")
				}
				mu.Unlock()

				if f.tui != nil {
					f.tui.CompleteDownload(id)
				} else {
					progress.CompleteFile(result.Job.File, result.Job.Info.Size)
				}
				continue
			}

			mu.Lock()
			failures = append(failures, fmt.Errorf("%s: %w", id, result.Error))
			mu.Unlock()

			if f.tui != nil {
				f.tui.FailDownload(id, result.Error)
			} else {
				progress.FailFile(result.Job.File, result.Error)
			}
		}
	}()

	// all jobs are submitted, wait for the queue to drain
	for pool.GetQueueSize() > 0 {
		select {
		case <-ctx.Done():
			pool.Stop()
			wg.Wait()
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	pool.Stop()
	wg.Wait()

	if len(failures) > 0 {
		if f.tui == nil {
			f.notifier.SendError("DOWNLOAD FAILED", fmt.Sprintf("%d file(s) failed for %s", len(failures), variant.Name))
		}
		return fmt.Errorf("failed to download %d file(s): %w", len(failures), failures[0])
	}

	if f.tui == nil {
		progress.Complete()
		f.notifier.SendSuccess("DOWNLOAD COMPLETE", variant.Name)
	} else {
		f.tui.LogSuccess("%s complete", variant.Name)
	}

	return nil
}

// FetchFile downloads a single file named by a hub URI into a directory
// derived from the repository id. Small one-off files like configs go
// through here, so there is no resume machinery, a retried fetch just
// starts over.
func (f *Fetcher) FetchFile(ctx context.Context, uri hub.URI) error {
	dir := strings.ReplaceAll(uri.RepoID(), "/", "_")

	if f.storage.IsComplete(dir, uri.File) {
		f.logger.DebugWithFields("file already complete", map[string]interface{}{
			"uri": uri.String(),
		})
		if f.tui != nil {
			f.tui.LogSuccess("%s already complete", uri.File)
		} else {
			ui.PrintInfo(uri.File, "already complete")
		}
		return nil
	}

	if !f.rateLimiter.Allow() {
		f.rateLimiter.Wait()
	}

	info, err := f.client.Stat(ctx, uri.RepoID(), uri.Revision, uri.File)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", uri.String(), err)
	}

	f.logger.InfoWithFields("fetching file", map[string]interface{}{
		"uri":  uri.String(),
		"size": info.Size,
	})

	body, _, err := f.client.Open(ctx, uri.RepoID(), uri.Revision, uri.File, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", uri.String(), err)
	}
	defer body.Close()

	if err := f.storage.Save(body, dir, uri.File); err != nil {
		return fmt.Errorf("failed to save %s: %w", uri.String(), err)
	}

	if f.tui != nil {
		f.tui.LogSuccess("%s complete", uri.File)
	} else {
		ui.PrintInfo(uri.File, "complete")
	}
	return nil
}

// FetchAll downloads every known variant
func (f *Fetcher) FetchAll(ctx context.Context, opts Options) error {
	for _, variant := range models.All() {
		if err := f.FetchVariant(ctx, variant, opts); err != nil {
			return fmt.Errorf("variant %s: %w", variant.Name, err)
		}
	}
	return nil
}

// EnsureVariant downloads a variant only when its files are not all on disk
// yet. Demo launches go through here.
func (f *Fetcher) EnsureVariant(ctx context.Context, variant models.Variant) error {
	complete := true
	for _, file := range variant.Files {
		if !f.storage.IsComplete(variant.Name, file.Name) {
			complete = false
			break
		}
	}
	if complete {
		return nil
	}

	f.logger.InfoWithFields("checkpoint missing, downloading before launch", map[string]interface{}{
		"variant": variant.Name,
	})

	return f.FetchVariant(ctx, variant, Options{})
}
