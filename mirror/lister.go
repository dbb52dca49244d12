package mirror

import (
	"context"

	errorpkg "github.com/ilkerko/s3mirror/error"
	"github.com/ilkerko/s3mirror/storage"
)

// list paginates the source bucket and feeds object descriptors into objch.
// Page fetches are retried like any other transfer operation; exhausting
// retries on a page is fatal, since the engine cannot prove completeness
// from a partial listing.
func (m *Mirror) list(ctx context.Context, objch chan<- *storage.Object) error {
	var token string

	for {
		input := &storage.ListInput{
			Prefix:            m.opts.Prefix,
			ContinuationToken: token,
		}

		var page *storage.ListOutput
		_, err := m.retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			page, err = m.src.List(ctx, input)
			return err
		})
		if err != nil {
			return &errorpkg.Error{
				Op:  "list",
				Key: "s3://" + m.opts.Bucket + "/" + m.opts.Prefix,
				Err: err,
			}
		}

		for _, obj := range page.Objects {
			// zero-byte directory markers cannot be written as files
			if obj.IsMarker() {
				continue
			}

			select {
			case objch <- obj:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if page.NextContinuationToken == "" {
			return nil
		}
		token = page.NextContinuationToken
	}
}
