package torrentcombine

import (
	"fmt"
	"sync/atomic"
)

// RunStats aggregates group outcomes across workers.
type RunStats struct {
	Total          atomic.Int64
	Processed      atomic.Int64
	Merged         atomic.Int64
	Skipped        atomic.Int64
	Failed         atomic.Int64
	Errored        atomic.Int64
	Cached         atomic.Int64
	BytesProcessed atomic.Int64
}

// Summary is a point-in-time copy of RunStats.
type Summary struct {
	Total          int64 `json:"total"`
	Processed      int64 `json:"processed"`
	Merged         int64 `json:"merged"`
	Skipped        int64 `json:"skipped"`
	Failed         int64 `json:"failed"`
	Errored        int64 `json:"errored"`
	Cached         int64 `json:"cached"`
	BytesProcessed int64 `json:"bytes_processed"`
}

func (s *RunStats) record(result *GroupResult) int64 {
	switch result.Status {
	case StatusMerged:
		s.Merged.Add(1)
	case StatusSkipped:
		s.Skipped.Add(1)
	case StatusFailed:
		s.Failed.Add(1)
	}
	if result.Cached {
		s.Cached.Add(1)
	}
	s.BytesProcessed.Add(int64(result.BytesProcessed))
	return s.Processed.Add(1)
}

func (s *RunStats) recordError() int64 {
	s.Errored.Add(1)
	return s.Processed.Add(1)
}

// Snapshot returns the current counter values.
func (s *RunStats) Snapshot() Summary {
	return Summary{
		Total:          s.Total.Load(),
		Processed:      s.Processed.Load(),
		Merged:         s.Merged.Load(),
		Skipped:        s.Skipped.Load(),
		Failed:         s.Failed.Load(),
		Errored:        s.Errored.Load(),
		Cached:         s.Cached.Load(),
		BytesProcessed: s.BytesProcessed.Load(),
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("%d groups: %d merged, %d skipped, %d failed, %d errors (%d from cache), %s processed",
		s.Total, s.Merged, s.Skipped, s.Failed, s.Errored, s.Cached, FormatSize(uint64(s.BytesProcessed)))
}
