// Package mirror implements the concurrent transfer engine: a listing
// driver feeding a bounded pool of workers that download objects to a local
// tree and optionally mirror them into a second bucket, with results flowing
// to a single aggregator.
package mirror

import (
	"context"
	"sync"
	"time"

	errorpkg "github.com/ilkerko/s3mirror/error"
	"github.com/ilkerko/s3mirror/storage"
)

const defaultWorkerCount = 30

// Options configures a single run of the engine.
type Options struct {
	// Bucket is the source bucket name.
	Bucket string

	// Prefix optionally restricts the listing to a key subtree.
	Prefix string

	// Destination is the local root directory downloads land under.
	Destination string

	// UploadBucket is the destination bucket name, used for log output
	// only; the destination client is already bound to it.
	UploadBucket string

	// Workers bounds the number of simultaneously in-flight transfers.
	Workers int

	// MaxAttempts bounds retries per object per stage.
	MaxAttempts int

	// RequestTimeout applies to each individual network operation.
	RequestTimeout time.Duration
}

// Mirror is the transfer engine. The source client is mandatory; a non-nil
// destination client enables sync mode.
type Mirror struct {
	src  storage.Storage
	dst  storage.Storage
	fs   *storage.Filesystem
	opts Options

	retrier *retrier

	// closed on fatal listing failure so workers stop dequeuing while
	// in-flight transfers run to completion
	quitch chan struct{}
}

// New creates a Mirror. dst may be nil to disable sync mode.
func New(src, dst storage.Storage, opts Options) *Mirror {
	if opts.Workers < 1 {
		opts.Workers = defaultWorkerCount
	}

	return &Mirror{
		src:     src,
		dst:     dst,
		fs:      storage.NewLocalClient(),
		opts:    opts,
		retrier: newRetrier(opts.MaxAttempts, opts.RequestTimeout),
		quitch:  make(chan struct{}),
	}
}

func (m *Mirror) mode() Mode {
	if m.dst != nil {
		return ModeDownloadAndSync
	}
	return ModeDownload
}

// Run lists the source bucket and transfers every object, blocking until
// all in-flight work has resolved. The returned summary is complete even
// when err is non-nil; a non-nil error means the listing could not be
// finished and the object set is incomplete.
func (m *Mirror) Run(ctx context.Context) (*Summary, error) {
	objch := make(chan *storage.Object, m.opts.Workers)
	resultch := make(chan *Result, m.opts.Workers)
	summarych := aggregate(resultch)

	var wg sync.WaitGroup
	for i := 0; i < m.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.worker(ctx, objch, resultch)
		}()
	}

	listErr := m.list(ctx, objch)
	close(objch)
	if listErr != nil {
		close(m.quitch)
	}

	wg.Wait()
	close(resultch)

	summary := <-summarych
	return summary, listErr
}

// worker draws descriptors from objch until it is closed or the run is
// canceled, producing exactly one Result per descriptor processed.
func (m *Mirror) worker(ctx context.Context, objch <-chan *storage.Object, resultch chan<- *Result) {
	for {
		// cancellation wins over a ready task
		select {
		case <-m.quitch:
			return
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-m.quitch:
			return
		case <-ctx.Done():
			return
		case obj, ok := <-objch:
			if !ok {
				return
			}
			resultch <- m.process(ctx, obj)
		}
	}
}

// process runs one object through its lifecycle: download, then, in sync
// mode, the destination existence check and upload. A download failure
// short-circuits the sync stage.
func (m *Mirror) process(ctx context.Context, obj *storage.Object) *Result {
	task := &Task{
		Object:    obj,
		LocalPath: LocalPath(m.opts.Destination, obj.Key),
		Mode:      m.mode(),
	}

	result := m.download(ctx, task)
	if result.Outcome == Failed || task.Mode == ModeDownload {
		return result
	}

	return m.syncObject(ctx, task, result)
}

// download fetches the object into a temporary file and renames it into
// place, so a failed attempt never leaves a truncated file at the final
// path. Pre-existing files are overwritten unconditionally.
func (m *Mirror) download(ctx context.Context, task *Task) *Result {
	var n int64
	attempts, err := m.retrier.Do(ctx, func(ctx context.Context) error {
		file, err := m.fs.CreateTemp(task.LocalPath)
		if err != nil {
			return err
		}

		var gerr error
		n, gerr = m.src.Get(ctx, task.Object.Key, file)
		file.Close()
		if gerr != nil {
			_ = m.fs.Remove(file.Name())
			return gerr
		}

		if rerr := m.fs.Rename(file, task.LocalPath); rerr != nil {
			_ = m.fs.Remove(file.Name())
			return rerr
		}
		return nil
	})

	result := &Result{
		Key:      task.Object.Key,
		Source:   m.srcURL(task.Object.Key),
		Op:       "download",
		Bytes:    n,
		Attempts: attempts,
	}
	if err != nil {
		result.Outcome = Failed
		result.Bytes = 0
		result.Err = &errorpkg.Error{Op: "download", Key: task.Object.Key, Err: err}
	}
	return result
}

// syncObject is the sync decision stage: a HEAD against the destination
// bucket decides between skipping and uploading. The head-then-put race with
// a concurrent writer is accepted; overwriting is not an error.
func (m *Mirror) syncObject(ctx context.Context, task *Task, downloaded *Result) *Result {
	result := &Result{
		Key:      task.Object.Key,
		Source:   m.dstURL(task.Object.Key),
		Op:       "sync",
		Bytes:    downloaded.Bytes,
		Attempts: downloaded.Attempts,
	}

	var exists bool
	attempts, err := m.retrier.Do(ctx, func(ctx context.Context) error {
		_, err := m.dst.Stat(ctx, task.Object.Key)
		if err == nil {
			exists = true
			return nil
		}
		if storage.NotFound(err) {
			exists = false
			return nil
		}
		return err
	})
	result.Attempts += attempts
	if err != nil {
		result.Outcome = Failed
		result.Err = &errorpkg.Error{Op: "sync", Key: task.Object.Key, Err: err}
		return result
	}

	if exists {
		result.Outcome = Skipped
		return result
	}

	result.Op = "upload"
	attempts, err = m.retrier.Do(ctx, func(ctx context.Context) error {
		file, err := m.fs.Open(task.LocalPath)
		if err != nil {
			return err
		}
		defer file.Close()

		return m.dst.Put(ctx, file, task.Object.Key)
	})
	result.Attempts += attempts
	if err != nil {
		result.Outcome = Failed
		result.Err = &errorpkg.Error{Op: "upload", Key: task.Object.Key, Err: err}
		return result
	}

	result.Outcome = Success
	result.Bytes += task.Object.Size
	return result
}

func (m *Mirror) srcURL(key string) string {
	return "s3://" + m.opts.Bucket + "/" + key
}

func (m *Mirror) dstURL(key string) string {
	return "s3://" + m.opts.UploadBucket + "/" + key
}
