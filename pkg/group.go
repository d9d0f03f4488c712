package torrentcombine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Group is a set of candidate files believed to be copies of one payload.
type Group struct {
	Key   string
	Paths []string
}

// GroupStatus is the final state of a processed group.
type GroupStatus int

const (
	StatusMerged GroupStatus = iota
	StatusSkipped
	StatusFailed
)

func (s GroupStatus) String() string {
	switch s {
	case StatusMerged:
		return "merged"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// GroupResult describes what happened to one group.
type GroupResult struct {
	Status         GroupStatus   `json:"status"`
	ProcessingTime time.Duration `json:"processing_time"`
	BytesProcessed uint64        `json:"bytes_processed"`
	MergedFiles    []string      `json:"merged_files,omitempty"`
	Cached         bool          `json:"cached,omitempty"`

	// settled is set when every writable member now holds the merged
	// content, so a later run over the same files has nothing to do.
	settled bool
}

// Options controls group processing.
type Options struct {
	Replace      bool     // overwrite incomplete candidates instead of writing <name>.merged
	DryRun       bool     // make every decision but touch nothing
	NoMmap       bool     // always use buffered reads
	NumThreads   int      // worker count, 0 means one per CPU
	SrcDirs      []string // read-only source directories
	CopyEmptyDst bool     // copy a protected source over an all-zero destination
}

// CacheDecision tells the processor to trust a previously recorded outcome
// instead of scanning the group.
type CacheDecision struct {
	Status GroupStatus
}

// GroupProcessor runs the merge state machine for one group at a time. It
// is safe for concurrent use.
type GroupProcessor struct {
	opts    Options
	filter  *FileFilter
	tracker *TempTracker
	kernel  chunkKernel
}

// NewGroupProcessor returns a processor. tracker receives every temporary
// file the processor creates.
func NewGroupProcessor(opts Options, tracker *TempTracker) *GroupProcessor {
	return &GroupProcessor{
		opts:    opts,
		filter:  NewFileFilter(opts.SrcDirs),
		tracker: tracker,
		kernel:  wordKernel{},
	}
}

// ProcessGroup merges one group. Hard errors (unreadable files, size
// mismatch, I/O failures) are returned; a content conflict is reported as
// StatusFailed. A non-nil decision short-circuits all I/O.
func (gp *GroupProcessor) ProcessGroup(group Group, decision *CacheDecision) (*GroupResult, error) {
	start := time.Now()
	if decision != nil {
		return &GroupResult{Status: decision.Status, Cached: true, ProcessingTime: time.Since(start)}, nil
	}

	scope := gp.tracker.Scope()
	defer scope.Close()

	result, err := gp.process(group, scope)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", group.Key, err)
	}
	result.ProcessingTime = time.Since(start)
	return result, nil
}

func (gp *GroupProcessor) process(group Group, scope *TempScope) (*GroupResult, error) {
	writable := gp.filter.FilterWritable(group.Paths)
	if len(writable) == 0 {
		log.Info().Str("group", group.Key).Msg("all files are in read-only source directories, skipping")
		return &GroupResult{Status: StatusSkipped}, nil
	}

	if gp.opts.CopyEmptyDst && len(group.Paths) >= 2 {
		copied, bytes, err := gp.copyIntoEmptyDestinations(group, scope)
		if err != nil {
			return nil, err
		}
		if len(copied) > 0 {
			return &GroupResult{Status: StatusMerged, BytesProcessed: bytes, MergedFiles: copied}, nil
		}
	}

	size, err := commonSize(writable)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return &GroupResult{Status: StatusSkipped}, nil
	}

	mode := selectIOMode(size, gp.opts.NoMmap)
	debugLog("merge").Str("group", group.Key).Stringer("io", mode).Int64("size", size).Msg("merge scan")

	var output *mergeOutput
	if gp.opts.DryRun {
		output = newSimulatedOutput(size)
	} else {
		tempDir, err := findTempDirectory(writable, gp.filter)
		if err != nil {
			return nil, err
		}
		output, err = newRealOutput(scope, tempDir, size)
		if err != nil {
			return nil, err
		}
	}
	defer output.discard()

	outcome, err := gp.scan(writable, size, mode, output)
	if err != nil {
		return nil, err
	}

	switch {
	case outcome.Verdict == OutcomeConflict:
		log.Warn().Str("group", group.Key).Int64("offset", outcome.ConflictOffset).
			Msg("candidates disagree, not merging")
		return &GroupResult{Status: StatusFailed, BytesProcessed: uint64(size)}, nil
	case outcome.AllComplete():
		VerboseLog(1, "group %s: all %d writable files already complete", group.Key, len(writable))
		return &GroupResult{Status: StatusSkipped, BytesProcessed: uint64(size), settled: true}, nil
	}

	merged, err := gp.materialize(group.Key, writable, outcome.Complete, output)
	if err != nil {
		return nil, err
	}
	settled := gp.opts.Replace && !gp.opts.DryRun && len(merged) == countIncomplete(outcome.Complete)
	return &GroupResult{Status: StatusMerged, BytesProcessed: uint64(size), MergedFiles: merged, settled: settled}, nil
}

// scan runs the merge over the writable members. Protected copies are not
// merge inputs; they only feed the copy-into-empty-destination path.
func (gp *GroupProcessor) scan(paths []string, size int64, mode IOMode, output *mergeOutput) (MergeOutcome, error) {
	sources, err := openSources(paths, mode)
	if err != nil {
		return MergeOutcome{}, err
	}
	defer closeSources(sources)

	outcome, err := mergeSourcesWith(gp.kernel, sources, size, output.writer())
	if err != nil {
		return outcome, err
	}
	if outcome.Verdict == OutcomeMerged {
		if err := output.finish(); err != nil {
			return outcome, err
		}
	}
	return outcome, nil
}

// materialize writes the merged content for every incomplete member and
// returns the resulting paths. complete is indexed like paths.
func (gp *GroupProcessor) materialize(key string, paths []string, complete []bool, output *mergeOutput) ([]string, error) {
	var merged []string
	for i, path := range paths {
		if complete[i] {
			continue
		}

		parent := filepath.Dir(path)
		if parent == "" {
			return merged, fmt.Errorf("%s: %w", path, ErrNoParent)
		}
		if !gp.filter.IsWritable(parent) {
			VerboseLog(1, "not writing into read-only directory %s", parent)
			continue
		}

		target := path + MergedSuffix
		if gp.opts.Replace {
			target = path
		}
		if err := output.materialize(target, path); err != nil {
			return merged, err
		}
		log.Info().Str("group", key).Str("target", target).Bool("replace", gp.opts.Replace).Msg("wrote merged file")
		merged = append(merged, target)
	}
	return merged, nil
}

func countIncomplete(complete []bool) int {
	n := 0
	for _, c := range complete {
		if !c {
			n++
		}
	}
	return n
}

// commonSize returns the length shared by all paths or ErrSizeMismatch.
func commonSize(paths []string) (int64, error) {
	var size int64
	for i, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return 0, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if i == 0 {
			size = info.Size()
			continue
		}
		if info.Size() != size {
			return 0, fmt.Errorf("%w: %s is %d bytes, %s is %d bytes", ErrSizeMismatch, paths[0], size, path, info.Size())
		}
	}
	return size, nil
}
