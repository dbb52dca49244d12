// Package storage implements object store and local filesystem operations
// consumed by the mirror engine.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Object is the descriptor of a single remote object, produced by List and
// Stat calls.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	Etag         string    `json:"etag,omitempty"`
}

// String returns the string representation of Object.
func (o *Object) String() string {
	return o.Key
}

// IsMarker reports whether the object is a zero-byte directory marker. Some
// tools create these to mimic folders; they cannot be written as local
// files.
func (o *Object) IsMarker() bool {
	return len(o.Key) > 0 && o.Key[len(o.Key)-1] == '/'
}

// ErrObjectNotFound indicates the requested object does not exist.
var ErrObjectNotFound = fmt.Errorf("object not found")

// ListInput is a single page request of a bucket listing.
type ListInput struct {
	// Prefix restricts the listing to keys that start with it. Empty lists
	// the whole bucket.
	Prefix string

	// ContinuationToken resumes a paginated listing. Empty requests the
	// first page.
	ContinuationToken string

	// MaxKeys caps the page size. Zero lets the service decide.
	MaxKeys int64
}

// ListOutput is a single page of a bucket listing.
type ListOutput struct {
	Objects []*Object

	// NextContinuationToken is empty when this is the last page.
	NextContinuationToken string
}

// Storage is the client contract the mirror engine runs against. A Storage
// instance is bound to a single bucket; source and destination sides are two
// independent instances so either can be substituted in tests.
type Storage interface {
	// List fetches one page of the bucket listing.
	List(ctx context.Context, input *ListInput) (*ListOutput, error)

	// Get downloads the object at key into to, returning the number of
	// bytes written.
	Get(ctx context.Context, key string, to io.WriterAt) (int64, error)

	// Stat retrieves object metadata without the body. It returns
	// ErrObjectNotFound if no object exists at key.
	Stat(ctx context.Context, key string) (*Object, error)

	// Put uploads the contents of reader to key.
	Put(ctx context.Context, reader io.Reader, key string) error
}

// NotFound reports whether the error indicates a missing object.
func NotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}
