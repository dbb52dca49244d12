package mirror

import (
	"path/filepath"

	"github.com/ilkerko/s3mirror/storage"
)

// Mode selects the per-object pipeline.
type Mode int

const (
	// ModeDownload fetches objects to the local tree only.
	ModeDownload Mode = iota

	// ModeDownloadAndSync additionally mirrors objects missing from the
	// destination bucket.
	ModeDownloadAndSync
)

// Outcome is the terminal state of a single object.
type Outcome int

const (
	// Success means all configured stages completed for the object.
	Success Outcome = iota

	// Skipped means the destination bucket already had the object; no
	// bytes were transferred to it.
	Skipped

	// Failed means a stage exhausted its retries or hit a permanent error.
	Failed
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task is one unit of work drawn by a worker. It is owned exclusively by the
// worker executing it.
type Task struct {
	Object    *storage.Object
	LocalPath string
	Mode      Mode
}

// Result is the terminal record for one object. Exactly one Result is
// produced per enumerated key.
type Result struct {
	// Key is the object key within its bucket.
	Key string

	// Source is the display form of the object used in log lines, e.g.
	// "s3://bucket/key" or a local path.
	Source string

	// Op is the stage that terminated the object's lifecycle: download,
	// sync or upload.
	Op string

	Outcome  Outcome
	Bytes    int64
	Attempts int
	Err      error
}

// LocalPath derives the destination path of key under root. It is a pure
// function of its inputs: two runs over an unchanged bucket write to
// identical paths.
func LocalPath(root, key string) string {
	return filepath.Join(root, filepath.FromSlash(key))
}
