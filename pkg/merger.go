package torrentcombine

import (
	"fmt"
	"io"
)

// ChunkSource yields consecutive byte ranges of one candidate file.
type ChunkSource interface {
	// Chunk returns the n bytes starting at off. The returned slice is only
	// valid until the next call.
	Chunk(off int64, n int) ([]byte, error)
	Path() string
	Close() error
}

// MergeVerdict classifies a finished merge scan.
type MergeVerdict int

const (
	OutcomeMerged   MergeVerdict = iota // all candidates agree; output holds the union
	OutcomeConflict                     // two candidates disagree at a non-zero byte
	OutcomeEmpty                        // zero-length group, nothing scanned
)

func (v MergeVerdict) String() string {
	switch v {
	case OutcomeMerged:
		return "merged"
	case OutcomeConflict:
		return "conflict"
	case OutcomeEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// MergeOutcome is the result of a merge scan.
type MergeOutcome struct {
	Verdict MergeVerdict
	// Complete has one entry per source: true when that source equals the
	// merged output everywhere. Only meaningful for OutcomeMerged.
	Complete []bool
	// ConflictOffset is the start of the chunk in which a conflict was found.
	ConflictOffset int64
	// BytesScanned counts bytes written to the output.
	BytesScanned int64
}

// AllComplete reports whether every source already equals the merged output.
func (o MergeOutcome) AllComplete() bool {
	for _, c := range o.Complete {
		if !c {
			return false
		}
	}
	return true
}

// MergeSources scans size bytes from every source in ChunkSize steps,
// writes the byte-wise OR of the sources to out and reports which sources
// were already complete. The scan stops at the first conflicting chunk;
// out then holds a partial result the caller must discard.
func MergeSources(sources []ChunkSource, size int64, out io.Writer) (MergeOutcome, error) {
	return mergeSourcesWith(wordKernel{}, sources, size, out)
}

func mergeSourcesWith(k chunkKernel, sources []ChunkSource, size int64, out io.Writer) (MergeOutcome, error) {
	if size == 0 {
		return MergeOutcome{Verdict: OutcomeEmpty}, nil
	}
	if len(sources) == 0 {
		return MergeOutcome{}, fmt.Errorf("merge of %d bytes requested with no sources", size)
	}

	complete := make([]bool, len(sources))
	for i := range complete {
		complete[i] = true
	}

	chunks := make([][]byte, len(sources))
	merged := make([]byte, min(size, ChunkSize))
	outcome := MergeOutcome{Verdict: OutcomeMerged, Complete: complete}

	for off := int64(0); off < size; off += ChunkSize {
		n := int(min(size-off, ChunkSize))

		for i, src := range sources {
			chunk, err := src.Chunk(off, n)
			if err != nil {
				return outcome, err
			}
			chunks[i] = chunk
		}

		if !mergeChunk(k, chunks, merged[:n], complete) {
			debugLog("merge").Int64("offset", off).Msg("conflicting chunk")
			outcome.Verdict = OutcomeConflict
			outcome.ConflictOffset = off
			return outcome, nil
		}

		if _, err := out.Write(merged[:n]); err != nil {
			return outcome, fmt.Errorf("failed to write merged chunk at offset %d: %w", off, err)
		}
		outcome.BytesScanned += int64(n)
	}

	return outcome, nil
}
