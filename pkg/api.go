package torrentcombine

import "io"

// This file holds small helpers for command-line front ends and for
// callers that do their own grouping

// InitDebugFlags initialises debug flags
func InitDebugFlags(flagsStr string) {
	if flagsStr != "" {
		SetDebugFlags(flagsStr)
	}
}

// MergeFiles runs a merge scan over the given equally sized files and
// writes the merged content to out.
func MergeFiles(paths []string, noMmap bool, out io.Writer) (MergeOutcome, error) {
	size, err := commonSize(paths)
	if err != nil {
		return MergeOutcome{}, err
	}
	return mergeFiles(paths, size, selectIOMode(size, noMmap), wordKernel{}, out)
}

func mergeFiles(paths []string, size int64, mode IOMode, k chunkKernel, out io.Writer) (MergeOutcome, error) {
	if size == 0 {
		return MergeOutcome{Verdict: OutcomeEmpty}, nil
	}

	sources, err := openSources(paths, mode)
	if err != nil {
		return MergeOutcome{}, err
	}
	defer closeSources(sources)

	return mergeSourcesWith(k, sources, size, out)
}
