package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/sha5b/DynamiCrafter/pkg/hub"
	"github.com/sha5b/DynamiCrafter/pkg/logger"
	"github.com/sha5b/DynamiCrafter/pkg/retry"
)

// FileSource provides remote file access. Implemented by hub.Client.
type FileSource interface {
	Stat(ctx context.Context, repoID, revision, file string) (hub.FileInfo, error)
	Open(ctx context.Context, repoID, revision, file string, offset int64) (io.ReadCloser, hub.FileInfo, error)
	OpenRange(ctx context.Context, repoID, revision, file string, start, end int64) (io.ReadCloser, error)
}

// Store provides local checkpoint file access. Implemented by storage.Manager.
type Store interface {
	IsComplete(variant, file string) bool
	PartialSize(variant, file string) int64
	FilePath(variant, file string) string
	PartialPath(variant, file string) string
	OpenPartial(variant, file string) (*os.File, int64, error)
	DiscardPartial(variant, file string) error
	Promote(variant, file string) error
	VerifySHA256(variant, file, want string) error
	VariantDir(variant string) (string, error)
}

// FileJob describes one weight file to download
type FileJob struct {
	Variant  string
	RepoID   string
	Revision string
	File     string
	Info     hub.FileInfo
	SHA256   string
	Resume   bool
	Progress func(done, total int64)
}

func (j FileJob) name() string {
	return j.Variant + "/" + j.File
}

// Options tunes transfer behavior
type Options struct {
	ChunkSize    int64
	Concurrency  int
	FastTransfer bool
	MaxRetries   int
}

// Downloader moves single files from the hub onto disk with resume support
type Downloader struct {
	source  FileSource
	store   Store
	retrier *retry.HubRetrier
	opts    Options
	logger  logger.Logger
}

// New creates a downloader
func New(source FileSource, store Store, opts Options, log logger.Logger) *Downloader {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 8 * 1024 * 1024
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 4
	}

	return &Downloader{
		source:  source,
		store:   store,
		retrier: retry.NewHubRetrier(opts.MaxRetries, log),
		opts:    opts,
		logger:  log,
	}
}

// Fetch downloads one file to its final location. Already complete files are
// a no-op. A partial file left by an earlier run is resumed when the job
// allows it, otherwise discarded.
func (d *Downloader) Fetch(ctx context.Context, job FileJob) error {
	if d.store.IsComplete(job.Variant, job.File) {
		d.logger.DebugWithFields("file already downloaded", map[string]interface{}{
			"file": job.name(),
		})
		if job.Progress != nil {
			job.Progress(job.Info.Size, job.Info.Size)
		}
		return nil
	}

	if !job.Resume {
		if err := d.store.DiscardPartial(job.Variant, job.File); err != nil {
			return err
		}
	}

	offset := d.store.PartialSize(job.Variant, job.File)
	if job.Info.Size > 0 && offset > job.Info.Size {
		// partial is larger than the remote file, cannot belong to it
		if err := d.store.DiscardPartial(job.Variant, job.File); err != nil {
			return err
		}
		offset = 0
	}

	var err error
	if d.useChunked(job, offset) {
		err = d.fetchChunked(ctx, job)
	} else {
		err = d.fetchSequential(ctx, job)
	}
	if err != nil {
		return err
	}

	if err := d.store.Promote(job.Variant, job.File); err != nil {
		return err
	}

	if err := d.store.VerifySHA256(job.Variant, job.File, job.SHA256); err != nil {
		// remove the corrupt file so the next run starts clean
		os.Remove(d.store.FilePath(job.Variant, job.File))
		return err
	}

	d.logger.InfoWithFields("file downloaded", map[string]interface{}{
		"file": job.name(),
		"size": job.Info.Size,
	})

	return nil
}

// useChunked decides whether the parallel ranged path applies. It needs a
// known size, range support, and no partial bytes to honor.
func (d *Downloader) useChunked(job FileJob, offset int64) bool {
	return d.opts.FastTransfer &&
		job.Info.AcceptRanges &&
		job.Info.Size > d.opts.ChunkSize &&
		offset == 0
}

// fetchSequential streams the file into the partial, starting at offset.
// Retried attempts reopen the partial and continue from its new size.
func (d *Downloader) fetchSequential(ctx context.Context, job FileJob) error {
	return d.retrier.DoWithErrorType(func() error {
		out, written, err := d.store.OpenPartial(job.Variant, job.File)
		if err != nil {
			return err
		}
		defer out.Close()

		body, info, err := d.source.Open(ctx, job.RepoID, job.Revision, job.File, written)
		if err != nil {
			if written > 0 && errors.Is(err, hub.ErrRangeNotSupported) {
				// the server will only hand out whole files, drop the
				// partial so the retried attempt starts at zero
				out.Close()
				if derr := d.store.DiscardPartial(job.Variant, job.File); derr != nil {
					return derr
				}
			}
			return err
		}
		defer body.Close()

		total := job.Info.Size
		if total <= 0 {
			total = written + info.Size
		}

		buf := make([]byte, 128*1024)
		for {
			n, readErr := body.Read(buf)
			if n > 0 {
				if _, writeErr := out.Write(buf[:n]); writeErr != nil {
					return fmt.Errorf("failed to write partial file: %w", writeErr)
				}
				written += int64(n)
				if job.Progress != nil {
					job.Progress(written, total)
				}
			}
			if readErr == io.EOF {
				return nil
			}
			if readErr != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("transfer interrupted: %w", readErr)
			}
		}
	})
}

// fetchChunked downloads the file as parallel byte ranges written in place
func (d *Downloader) fetchChunked(ctx context.Context, job FileJob) error {
	path := d.store.PartialPath(job.Variant, job.File)
	if _, err := d.store.VariantDir(job.Variant); err != nil {
		return err
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create partial file: %w", err)
	}
	defer out.Close()

	if err := out.Truncate(job.Info.Size); err != nil {
		return fmt.Errorf("failed to preallocate partial file: %w", err)
	}

	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)

	for start := int64(0); start < job.Info.Size; start += d.opts.ChunkSize {
		start := start
		end := start + d.opts.ChunkSize - 1
		if end >= job.Info.Size {
			end = job.Info.Size - 1
		}

		g.Go(func() error {
			var chunkDone int64
			return d.retrier.DoWithErrorType(func() error {
				// a retried chunk starts over, roll back its progress
				if chunkDone > 0 {
					done.Add(-chunkDone)
					chunkDone = 0
				}

				body, err := d.source.OpenRange(gctx, job.RepoID, job.Revision, job.File, start, end)
				if err != nil {
					return err
				}
				defer body.Close()

				buf := make([]byte, 128*1024)
				pos := start
				for {
					n, readErr := body.Read(buf)
					if n > 0 {
						if _, writeErr := out.WriteAt(buf[:n], pos); writeErr != nil {
							return fmt.Errorf("failed to write chunk: %w", writeErr)
						}
						pos += int64(n)
						chunkDone += int64(n)
						if job.Progress != nil {
							job.Progress(done.Add(int64(n)), job.Info.Size)
						}
					}
					if readErr == io.EOF {
						if pos != end+1 {
							return fmt.Errorf("short chunk: got %d bytes, want %d", pos-start, end-start+1)
						}
						return nil
					}
					if readErr != nil {
						if gctx.Err() != nil {
							return gctx.Err()
						}
						return fmt.Errorf("transfer interrupted: %w", readErr)
					}
				}
			})
		})
	}

	if err := g.Wait(); err != nil {
		// a half-written preallocated file has holes, do not resume it
		os.Remove(path)
		return err
	}

	return out.Sync()
}
