package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"gotest.tools/v3/assert"

	"github.com/ilkerko/s3mirror/log"
	"github.com/ilkerko/s3mirror/storage"
)

func init() {
	log.Init("error", false)
}

// failPlan injects errors into fake client calls. A negative times value
// fails every call.
type failPlan struct {
	err   error
	times int32
	calls int32
}

func (p *failPlan) next() error {
	n := atomic.AddInt32(&p.calls, 1)
	if p.times < 0 || n <= p.times {
		return p.err
	}
	return nil
}

// fakeStorage is an in-memory bucket implementing storage.Storage with call
// counting, fault injection and an in-flight gauge.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte

	pageSize int
	delay    time.Duration

	listPlan map[int]*failPlan // page index -> plan
	getPlan  map[string]*failPlan
	statPlan map[string]*failPlan
	putPlan  map[string]*failPlan

	// when set, every Get announces its key and blocks until release
	getStarted chan string
	getRelease chan struct{}

	listCalls int64
	getCalls  int64
	statCalls int64
	putCalls  int64

	inflight    int64
	maxInflight int64
}

func newFakeStorage(objects map[string][]byte) *fakeStorage {
	if objects == nil {
		objects = map[string][]byte{}
	}
	return &fakeStorage{
		objects:  objects,
		listPlan: map[int]*failPlan{},
		getPlan:  map[string]*failPlan{},
		statPlan: map[string]*failPlan{},
		putPlan:  map[string]*failPlan{},
	}
}

func (f *fakeStorage) sortedKeys(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for key := range f.objects {
		if prefix == "" || len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeStorage) List(ctx context.Context, input *storage.ListInput) (*storage.ListOutput, error) {
	atomic.AddInt64(&f.listCalls, 1)

	start := 0
	if input.ContinuationToken != "" {
		start, _ = strconv.Atoi(input.ContinuationToken)
	}

	pageSize := f.pageSize
	keys := f.sortedKeys(input.Prefix)
	if pageSize <= 0 {
		pageSize = len(keys)
	}

	if plan, ok := f.listPlan[start/max(pageSize, 1)]; ok {
		if err := plan.next(); err != nil {
			return nil, err
		}
	}

	end := start + pageSize
	if end > len(keys) {
		end = len(keys)
	}

	out := &storage.ListOutput{}
	f.mu.Lock()
	for _, key := range keys[start:end] {
		out.Objects = append(out.Objects, &storage.Object{
			Key:          key,
			Size:         int64(len(f.objects[key])),
			LastModified: time.Unix(1700000000, 0),
		})
	}
	f.mu.Unlock()

	if end < len(keys) {
		out.NextContinuationToken = strconv.Itoa(end)
	}
	return out, nil
}

func (f *fakeStorage) Get(ctx context.Context, key string, to io.WriterAt) (int64, error) {
	atomic.AddInt64(&f.getCalls, 1)
	f.trackInflight()
	defer atomic.AddInt64(&f.inflight, -1)

	if f.getStarted != nil {
		f.getStarted <- key
		<-f.getRelease
	}

	if plan, ok := f.getPlan[key]; ok {
		if err := plan.next(); err != nil {
			return 0, err
		}
	}

	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return 0, storage.ErrObjectNotFound
	}

	n, err := to.WriteAt(data, 0)
	return int64(n), err
}

func (f *fakeStorage) Stat(ctx context.Context, key string) (*storage.Object, error) {
	atomic.AddInt64(&f.statCalls, 1)

	if plan, ok := f.statPlan[key]; ok {
		if err := plan.next(); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.Object{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeStorage) Put(ctx context.Context, reader io.Reader, key string) error {
	atomic.AddInt64(&f.putCalls, 1)
	f.trackInflight()
	defer atomic.AddInt64(&f.inflight, -1)

	if plan, ok := f.putPlan[key]; ok {
		if err := plan.next(); err != nil {
			return err
		}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.objects[key] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) trackInflight() {
	cur := atomic.AddInt64(&f.inflight, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	for {
		max := atomic.LoadInt64(&f.maxInflight)
		if cur <= max || atomic.CompareAndSwapInt64(&f.maxInflight, max, cur) {
			return
		}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func transientErr() error {
	return awserr.New("InternalError", "we encountered an internal error", nil)
}

func permanentErr() error {
	return awserr.New("AccessDenied", "access denied", nil)
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	assert.NilError(t, err)
	return data
}

func TestPullDownloadsAllObjects(t *testing.T) {
	t.Parallel()

	src := newFakeStorage(map[string][]byte{
		"a.txt":     []byte("0123456789"),
		"dir/b.txt": {},
	})
	root := t.TempDir()

	m := New(src, nil, Options{
		Bucket:      "bucket",
		Destination: root,
		Workers:     4,
	})

	summary, err := m.Run(context.Background())
	assert.NilError(t, err)

	assert.Equal(t, summary.Total, 2)
	assert.Equal(t, summary.Succeeded, 2)
	assert.Equal(t, summary.Skipped, 0)
	assert.Equal(t, summary.Failed, 0)
	assert.Equal(t, summary.OK(), true)

	assert.DeepEqual(t, readFile(t, filepath.Join(root, "a.txt")), []byte("0123456789"))
	assert.DeepEqual(t, readFile(t, filepath.Join(root, "dir", "b.txt")), []byte{})
}

func TestPullProducesOneResultPerObjectAcrossPages(t *testing.T) {
	t.Parallel()

	objects := map[string][]byte{}
	for i := 0; i < 25; i++ {
		objects[fmt.Sprintf("dir/key-%04d", i)] = []byte("body")
	}
	src := newFakeStorage(objects)
	src.pageSize = 7

	m := New(src, nil, Options{
		Bucket:      "bucket",
		Destination: t.TempDir(),
		Workers:     8,
	})

	summary, err := m.Run(context.Background())
	assert.NilError(t, err)

	assert.Equal(t, summary.Total, len(objects))
	assert.Equal(t, summary.Succeeded, len(objects))
	// ceil(25/7) pages
	assert.Equal(t, atomic.LoadInt64(&src.listCalls), int64(4))
}

func TestPullHonorsPrefix(t *testing.T) {
	t.Parallel()

	src := newFakeStorage(map[string][]byte{
		"logs/2026/a.log": []byte("a"),
		"logs/2026/b.log": []byte("b"),
		"other/c.txt":     []byte("c"),
	})
	root := t.TempDir()

	m := New(src, nil, Options{
		Bucket:      "bucket",
		Prefix:      "logs/",
		Destination: root,
		Workers:     2,
	})

	summary, err := m.Run(context.Background())
	assert.NilError(t, err)

	assert.Equal(t, summary.Total, 2)
	_, err = os.Stat(filepath.Join(root, "other", "c.txt"))
	assert.Assert(t, os.IsNotExist(err))
}

func TestPullIsIdempotent(t *testing.T) {
	t.Parallel()

	src := newFakeStorage(map[string][]byte{
		"a.txt":     []byte("same bytes"),
		"dir/b.txt": []byte("other bytes"),
	})
	root := t.TempDir()

	for i := 0; i < 2; i++ {
		m := New(src, nil, Options{
			Bucket:      "bucket",
			Destination: root,
			Workers:     2,
		})

		summary, err := m.Run(context.Background())
		assert.NilError(t, err)
		assert.Equal(t, summary.Succeeded, 2)

		assert.DeepEqual(t, readFile(t, filepath.Join(root, "a.txt")), []byte("same bytes"))
		assert.DeepEqual(t, readFile(t, filepath.Join(root, "dir", "b.txt")), []byte("other bytes"))
	}
}

func TestPullBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const workers = 4

	objects := map[string][]byte{}
	for i := 0; i < 50; i++ {
		objects[fmt.Sprintf("key-%04d", i)] = []byte("body")
	}
	src := newFakeStorage(objects)
	src.delay = 2 * time.Millisecond

	m := New(src, nil, Options{
		Bucket:      "bucket",
		Destination: t.TempDir(),
		Workers:     workers,
	})

	summary, err := m.Run(context.Background())
	assert.NilError(t, err)

	assert.Equal(t, summary.Succeeded, 50)
	assert.Assert(t, atomic.LoadInt64(&src.maxInflight) <= workers,
		"max in-flight transfers %v exceeded worker count %v", src.maxInflight, workers)
}

func TestPullRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	src := newFakeStorage(map[string][]byte{"a.txt": []byte("payload")})
	src.getPlan["a.txt"] = &failPlan{err: transientErr(), times: 2}

	m := New(src, nil, Options{
		Bucket:      "bucket",
		Destination: t.TempDir(),
		Workers:     1,
		MaxAttempts: 5,
	})

	summary, err := m.Run(context.Background())
	assert.NilError(t, err)

	assert.Equal(t, summary.Succeeded, 1)
	// two transient failures, then success
	assert.Equal(t, atomic.LoadInt64(&src.getCalls), int64(3))
}

func TestPullGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	src := newFakeStorage(map[string][]byte{"a.txt": []byte("payload")})
	src.getPlan["a.txt"] = &failPlan{err: transientErr(), times: -1}

	m := New(src, nil, Options{
		Bucket:      "bucket",
		Destination: t.TempDir(),
		Workers:     1,
		MaxAttempts: 3,
	})

	summary, err := m.Run(context.Background())
	assert.NilError(t, err)

	assert.Equal(t, summary.Failed, 1)
	assert.Equal(t, summary.OK(), false)
	assert.Equal(t, atomic.LoadInt64(&src.getCalls), int64(3))
}

func TestPullPermanentFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	src := newFakeStorage(map[string][]byte{
		"a.txt": []byte("payload"),
		"b.txt": []byte("payload"),
		"c.txt": []byte("payload"),
	})
	src.getPlan["b.txt"] = &failPlan{err: permanentErr(), times: -1}
	root := t.TempDir()

	m := New(src, nil, Options{
		Bucket:      "bucket",
		Destination: root,
		Workers:     2,
		MaxAttempts: 5,
	})

	summary, err := m.Run(context.Background())
	assert.NilError(t, err)

	assert.Equal(t, summary.Total, 3)
	assert.Equal(t, summary.Succeeded, 2)
	assert.Equal(t, summary.Failed, 1)
	assert.Equal(t, len(summary.Failures), 1)
	assert.Equal(t, summary.Failures[0].Key, "b.txt")

	// a single attempt, no retries
	plan := src.getPlan["b.txt"]
	assert.Equal(t, atomic.LoadInt32(&plan.calls), int32(1))

	// sibling transfers are unaffected
	assert.DeepEqual(t, readFile(t, filepath.Join(root, "a.txt")), []byte("payload"))
}

func TestPullFailedDownloadLeavesNoPartialFile(t *testing.T) {
	t.Parallel()

	src := newFakeStorage(map[string][]byte{"dir/a.txt": []byte("payload")})
	src.getPlan["dir/a.txt"] = &failPlan{err: permanentErr(), times: -1}
	root := t.TempDir()

	m := New(src, nil, Options{
		Bucket:      "bucket",
		Destination: root,
		Workers:     1,
	})

	summary, err := m.Run(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, summary.Failed, 1)

	_, err = os.Stat(filepath.Join(root, "dir", "a.txt"))
	assert.Assert(t, os.IsNotExist(err))
}

func TestPullFailedRenameLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	src := newFakeStorage(map[string][]byte{"a.txt": []byte("payload")})
	root := t.TempDir()

	// a directory squatting on the final path makes the rename fail
	assert.NilError(t, os.Mkdir(filepath.Join(root, "a.txt"), 0o755))

	m := New(src, nil, Options{
		Bucket:      "bucket",
		Destination: root,
		Workers:     1,
	})

	summary, err := m.Run(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, summary.Failed, 1)

	entries, err := os.ReadDir(root)
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 1)
	assert.Equal(t, entries[0].Name(), "a.txt")
}

func TestPullStopsDequeuingAfterCancel(t *testing.T) {
	t.Parallel()

	objects := map[string][]byte{}
	for i := 0; i < 10; i++ {
		objects[fmt.Sprintf("key-%04d", i)] = []byte("body")
	}
	src := newFakeStorage(objects)
	src.getStarted = make(chan string)
	src.getRelease = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New(src, nil, Options{
		Bucket:      "bucket",
		Destination: t.TempDir(),
		Workers:     1,
	})

	type run struct {
		summary *Summary
		err     error
	}
	donech := make(chan run, 1)
	go func() {
		summary, err := m.Run(ctx)
		donech <- run{summary, err}
	}()

	// cancel while the first download is in flight, then let it finish
	<-src.getStarted
	cancel()
	close(src.getRelease)

	result := <-donech
	assert.Assert(t, result.err != nil)

	// the in-flight transfer ran to completion and nothing new was dequeued
	assert.Equal(t, result.summary.Succeeded, 1)
	assert.Equal(t, atomic.LoadInt64(&src.getCalls), int64(1))
}

func TestPullSyncSkipsObjectsPresentInDestination(t *testing.T) {
	t.Parallel()

	src := newFakeStorage(map[string][]byte{
		"a.txt":     []byte("0123456789"),
		"dir/b.txt": {},
	})
	dst := newFakeStorage(map[string][]byte{
		"a.txt": []byte("0123456789"),
	})

	m := New(src, dst, Options{
		Bucket:       "bucket",
		UploadBucket: "mirror",
		Destination:  t.TempDir(),
		Workers:      2,
	})

	summary, err := m.Run(context.Background())
	assert.NilError(t, err)

	assert.Equal(t, summary.Total, 2)
	assert.Equal(t, summary.Skipped, 1)
	assert.Equal(t, summary.Succeeded, 1)
	assert.Equal(t, summary.Failed, 0)

	// no redundant cross-account transfer for the existing object
	assert.Equal(t, atomic.LoadInt64(&dst.putCalls), int64(1))

	dst.mu.Lock()
	_, uploaded := dst.objects["dir/b.txt"]
	dst.mu.Unlock()
	assert.Assert(t, uploaded)
}

func TestPullSyncShortCircuitsAfterDownloadFailure(t *testing.T) {
	t.Parallel()

	src := newFakeStorage(map[string][]byte{"a.txt": []byte("payload")})
	src.getPlan["a.txt"] = &failPlan{err: permanentErr(), times: -1}
	dst := newFakeStorage(nil)

	m := New(src, dst, Options{
		Bucket:       "bucket",
		UploadBucket: "mirror",
		Destination:  t.TempDir(),
		Workers:      1,
	})

	summary, err := m.Run(context.Background())
	assert.NilError(t, err)

	assert.Equal(t, summary.Failed, 1)
	// no partial-object upload attempts
	assert.Equal(t, atomic.LoadInt64(&dst.statCalls), int64(0))
	assert.Equal(t, atomic.LoadInt64(&dst.putCalls), int64(0))
}

func TestPullSyncUploadFailureIsCounted(t *testing.T) {
	t.Parallel()

	src := newFakeStorage(map[string][]byte{"a.txt": []byte("payload")})
	dst := newFakeStorage(nil)
	dst.putPlan["a.txt"] = &failPlan{err: transientErr(), times: -1}

	m := New(src, dst, Options{
		Bucket:       "bucket",
		UploadBucket: "mirror",
		Destination:  t.TempDir(),
		Workers:      1,
		MaxAttempts:  2,
	})

	summary, err := m.Run(context.Background())
	assert.NilError(t, err)

	assert.Equal(t, summary.Failed, 1)
	assert.Equal(t, atomic.LoadInt64(&dst.putCalls), int64(2))
}

func TestPullListingFailureIsFatal(t *testing.T) {
	t.Parallel()

	src := newFakeStorage(map[string][]byte{"a.txt": []byte("payload")})
	src.listPlan[0] = &failPlan{err: transientErr(), times: -1}

	m := New(src, nil, Options{
		Bucket:      "bucket",
		Destination: t.TempDir(),
		Workers:     2,
		MaxAttempts: 2,
	})

	_, err := m.Run(context.Background())
	assert.Assert(t, err != nil)
	assert.Equal(t, atomic.LoadInt64(&src.listCalls), int64(2))
}

func TestPullSkipsDirectoryMarkers(t *testing.T) {
	t.Parallel()

	src := newFakeStorage(map[string][]byte{
		"dir/":      {},
		"dir/a.txt": []byte("payload"),
	})
	root := t.TempDir()

	m := New(src, nil, Options{
		Bucket:      "bucket",
		Destination: root,
		Workers:     1,
	})

	summary, err := m.Run(context.Background())
	assert.NilError(t, err)

	assert.Equal(t, summary.Total, 1)
	assert.DeepEqual(t, readFile(t, filepath.Join(root, "dir", "a.txt")), []byte("payload"))
}

func TestLocalPathIsPureFunctionOfKey(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		key      string
		expected string
	}{
		{"a.txt", filepath.Join("root", "a.txt")},
		{"dir/b.txt", filepath.Join("root", "dir", "b.txt")},
		{"a/b/c/d.bin", filepath.Join("root", "a", "b", "c", "d.bin")},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.key, func(t *testing.T) {
			got := LocalPath("root", tc.key)
			assert.Equal(t, got, tc.expected)
			// derivation is deterministic
			assert.Equal(t, got, LocalPath("root", tc.key))
		})
	}
}
