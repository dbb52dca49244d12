package mirror

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	errorpkg "github.com/ilkerko/s3mirror/error"
	"github.com/ilkerko/s3mirror/storage"
)

// PushOptions configures an upload run from a local tree.
type PushOptions struct {
	// Bucket is the target bucket name, used for log output only.
	Bucket string

	// Root is the local directory whose files are uploaded. Keys are the
	// slash-mapped paths relative to it.
	Root string

	// Prefix is optionally prepended to every derived key.
	Prefix string

	Workers        int
	MaxAttempts    int
	RequestTimeout time.Duration
}

// Push uploads every file under a local tree whose key is missing from the
// target bucket. It shares the pool, retry and aggregation machinery with
// the download engine.
type Push struct {
	dst  storage.Storage
	fs   *storage.Filesystem
	opts PushOptions

	retrier *retrier
}

// NewPush creates a Push runner against the given destination client.
func NewPush(dst storage.Storage, opts PushOptions) *Push {
	if opts.Workers < 1 {
		opts.Workers = defaultWorkerCount
	}

	return &Push{
		dst:     dst,
		fs:      storage.NewLocalClient(),
		opts:    opts,
		retrier: newRetrier(opts.MaxAttempts, opts.RequestTimeout),
	}
}

// Run walks the local tree and uploads missing objects, blocking until all
// in-flight work has resolved.
func (p *Push) Run(ctx context.Context) (*Summary, error) {
	pathch := make(chan string, p.opts.Workers)
	resultch := make(chan *Result, p.opts.Workers)
	summarych := aggregate(resultch)

	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				// cancellation wins over a ready task
				select {
				case <-ctx.Done():
					return
				default:
				}

				select {
				case <-ctx.Done():
					return
				case path, ok := <-pathch:
					if !ok {
						return
					}
					resultch <- p.process(ctx, path)
				}
			}
		}()
	}

	walkErr := p.walk(ctx, pathch)
	close(pathch)

	wg.Wait()
	close(resultch)

	summary := <-summarych
	return summary, walkErr
}

// walk feeds every regular file under the root into pathch.
func (p *Push) walk(ctx context.Context, pathch chan<- string) error {
	err := p.fs.Walk(p.opts.Root, func(path string) error {
		select {
		case pathch <- path:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return &errorpkg.Error{Op: "walk", Key: p.opts.Root, Err: err}
	}
	return nil
}

// process uploads a single file unless the bucket already has its key.
func (p *Push) process(ctx context.Context, path string) *Result {
	key, err := p.keyFor(path)
	if err != nil {
		return &Result{
			Key:     path,
			Source:  path,
			Op:      "upload",
			Outcome: Failed,
			Err:     &errorpkg.Error{Op: "upload", Key: path, Err: err},
		}
	}

	result := &Result{
		Key:    key,
		Source: "s3://" + p.opts.Bucket + "/" + key,
		Op:     "sync",
	}

	var exists bool
	attempts, err := p.retrier.Do(ctx, func(ctx context.Context) error {
		_, err := p.dst.Stat(ctx, key)
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
		result.Err = &errorpkg.Error{Op: "sync", Key: key, Err: err}
		return result
	}

	if exists {
		result.Outcome = Skipped
		return result
	}

	result.Op = "upload"
	var size int64
	attempts, err = p.retrier.Do(ctx, func(ctx context.Context) error {
		file, err := p.fs.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		fi, err := file.Stat()
		if err != nil {
			return err
		}
		size = fi.Size()

		return p.dst.Put(ctx, file, key)
	})
	result.Attempts += attempts
	if err != nil {
		result.Outcome = Failed
		result.Err = &errorpkg.Error{Op: "upload", Key: key, Err: err}
		return result
	}

	result.Outcome = Success
	result.Bytes = size
	return result
}

// keyFor derives the object key for a local path: the slash-mapped path
// relative to the root, under the optional prefix.
func (p *Push) keyFor(path string) (string, error) {
	rel, err := filepath.Rel(p.opts.Root, path)
	if err != nil {
		return "", err
	}

	key := filepath.ToSlash(rel)
	if p.opts.Prefix != "" {
		key = strings.TrimSuffix(p.opts.Prefix, "/") + "/" + key
	}
	return key, nil
}
