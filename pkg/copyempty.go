package torrentcombine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// copyIntoEmptyDestinations fills writable members that contain nothing
// but zero bytes with the content of a protected member of the same size
// whose name matches exactly or fuzzily. The first qualifying source wins.
// It returns the destinations written (or, in a dry run, that would be).
func (gp *GroupProcessor) copyIntoEmptyDestinations(group Group, scope *TempScope) ([]string, uint64, error) {
	var sources, destinations []string
	for _, path := range group.Paths {
		if gp.filter.IsProtected(path) {
			sources = append(sources, path)
		} else {
			destinations = append(destinations, path)
		}
	}
	if len(sources) == 0 || len(destinations) == 0 {
		return nil, 0, nil
	}

	var (
		copied []string
		total  uint64
	)
	for _, dst := range destinations {
		src, size, err := gp.findCopySource(dst, sources)
		if err != nil {
			return copied, total, err
		}
		if src == "" {
			continue
		}

		if gp.opts.DryRun {
			log.Info().Str("group", group.Key).Str("source", src).Str("destination", dst).
				Msg("dry run: would copy source into empty destination")
		} else {
			if err := copyFileAtomic(scope, src, dst); err != nil {
				return copied, total, err
			}
			log.Info().Str("group", group.Key).Str("source", src).Str("destination", dst).
				Msg("copied source into empty destination")
		}
		copied = append(copied, dst)
		total += uint64(size)
	}
	return copied, total, nil
}

// findCopySource returns the first source that can fill dst, or "".
func (gp *GroupProcessor) findCopySource(dst string, sources []string) (string, int64, error) {
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat %s: %w", dst, err)
	}
	dstName := filepath.Base(dst)

	var dstEmpty *bool
	for _, src := range sources {
		if !FilenamesFuzzyMatch(filepath.Base(src), dstName) {
			continue
		}

		srcInfo, err := os.Stat(src)
		if err != nil {
			return "", 0, fmt.Errorf("failed to stat %s: %w", src, err)
		}
		if srcInfo.Size() != dstInfo.Size() {
			continue
		}

		if dstEmpty == nil {
			empty, err := fileAllZero(dst, dstInfo.Size(), gp.opts.NoMmap)
			if err != nil {
				return "", 0, err
			}
			dstEmpty = &empty
		}
		if !*dstEmpty {
			return "", 0, nil
		}

		hasData, err := fileHasData(src, srcInfo.Size(), gp.opts.NoMmap)
		if err != nil {
			return "", 0, err
		}
		if hasData {
			return src, srcInfo.Size(), nil
		}
	}
	return "", 0, nil
}

// copyFileAtomic replaces dst with a copy of src through a temporary file
// in dst's directory.
func copyFileAtomic(scope *TempScope, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	staging := &mergeOutput{kind: outputReal, scope: scope, file: in, size: info.Size()}
	return staging.copyTo(dst, dst)
}
