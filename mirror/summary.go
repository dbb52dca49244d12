package mirror

import (
	"fmt"
	"time"

	"github.com/ilkerko/s3mirror/log"
	"github.com/ilkerko/s3mirror/strutil"
)

// Failure records enough detail about a failed object to retry it manually.
type Failure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Summary tallies terminal results for one run. It is mutated only by the
// single aggregator goroutine; workers hand off immutable Results instead of
// touching shared counters.
type Summary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Bytes     int64         `json:"bytes"`
	Elapsed   time.Duration `json:"elapsed"`
	Failures  []Failure     `json:"failures,omitempty"`
}

// OK reports whether the run finished without a single failed object.
// Skipped objects are not failures.
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// String returns the string representation of Summary.
func (s *Summary) String() string {
	return fmt.Sprintf(
		"%d objects: %d succeeded, %d skipped, %d failed; %sB in %v",
		s.Total, s.Succeeded, s.Skipped, s.Failed,
		strutil.HumanizeBytes(s.Bytes), s.Elapsed.Round(time.Millisecond),
	)
}

// JSON is the JSON representation of Summary.
func (s *Summary) JSON() string {
	return strutil.JSON(s)
}

var _ log.Message = (*Summary)(nil)

// aggregate consumes results in arrival order, emits per-object log lines
// and produces the final summary once resultch is drained. It is the only
// consumer of resultch.
func aggregate(resultch <-chan *Result) <-chan *Summary {
	summarych := make(chan *Summary, 1)

	go func() {
		defer close(summarych)

		start := time.Now()
		summary := &Summary{}

		for result := range resultch {
			summary.Total++
			summary.Bytes += result.Bytes

			switch result.Outcome {
			case Success:
				summary.Succeeded++
				log.Info(log.InfoMessage{
					Operation: result.Op,
					Source:    result.Source,
					Size:      result.Bytes,
				})
			case Skipped:
				summary.Skipped++
				log.Debug(log.DebugMessage{
					Content: fmt.Sprintf("%q skipped: destination already has the object", result.Source),
				})
			case Failed:
				summary.Failed++
				summary.Failures = append(summary.Failures, Failure{
					Key:    result.Key,
					Reason: result.Err.Error(),
				})
				log.Error(log.ErrorMessage{
					Operation: result.Op,
					Command:   fmt.Sprintf("%v %v", result.Op, result.Source),
					Err:       result.Err.Error(),
				})
			}
		}

		summary.Elapsed = time.Since(start)
		summarych <- summary
	}()

	return summarych
}
