package torrentcombine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ScanOptions selects the files discovery returns.
type ScanOptions struct {
	Roots      []string       // directories whose files may be merged
	SrcDirs    []string       // read-only directories scanned as extra sources
	Exclude    []string       // directories skipped entirely
	MinSize    uint64         // only files strictly larger than this
	Extensions []string       // case-insensitive, without the dot; empty means all
	Ignore     *IgnoreManager // optional regex patterns on root-relative paths
}

// ScannedFile is one discovered candidate.
type ScannedFile struct {
	Path string
	Size int64
}

// ScanResult is the outcome of discovery.
type ScanResult struct {
	Files   []ScannedFile
	Orphans []string // temporary files left behind by dead processes
}

// Scanner walks the configured directories.
type Scanner struct {
	opts       ScanOptions
	extensions map[string]bool
	excludes   []string
}

// NewScanner validates the roots and prepares a scanner. A missing root is
// fatal; a missing source directory is only logged.
func NewScanner(opts ScanOptions) (*Scanner, error) {
	for _, root := range opts.Roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrRootMissing, root)
		}
	}

	s := &Scanner{opts: opts}
	if len(opts.Extensions) > 0 {
		s.extensions = make(map[string]bool, len(opts.Extensions))
		for _, ext := range opts.Extensions {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext != "" {
				s.extensions[ext] = true
			}
		}
	}
	for _, dir := range opts.Exclude {
		canonical, err := canonicalPath(dir)
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("ignoring unresolvable exclude directory")
			continue
		}
		s.excludes = append(s.excludes, canonical)
	}
	return s, nil
}

// Scan returns every matching regular file, sorted by path.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	defer VerboseEnter()()

	var dirs []string
	for _, dir := range append(append([]string(nil), s.opts.Roots...), s.opts.SrcDirs...) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
		}
		if _, err := os.Stat(abs); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("skipping missing directory")
			continue
		}
		dirs = append(dirs, filepath.Clean(abs))
	}
	dirs = deduplicatePaths(dirs)
	debugLog("scan").Strs("dirs", dirs).Msg("scanning")

	result := &ScanResult{}
	for _, dir := range dirs {
		if err := s.walk(ctx, dir, result); err != nil {
			return nil, err
		}
	}

	sort.Slice(result.Files, func(i, j int) bool { return result.Files[i].Path < result.Files[j].Path })
	return result, nil
}

func (s *Scanner) walk(ctx context.Context, root string, result *ScanResult) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			debugLog("scan").Err(err).Str("path", path).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && (d.Name() == StateDirName || s.excluded(path)) {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}

		if isTempFileName(d.Name()) {
			if isOrphanedTempFile(d.Name()) {
				log.Warn().Str("path", path).Msg("found temporary file from a process that is no longer running")
				result.Orphans = append(result.Orphans, path)
			}
			return nil
		}

		if rel, err := filepath.Rel(root, path); err == nil && s.opts.Ignore.ShouldIgnore(rel) {
			return nil
		}
		if !s.matchesExtension(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			debugLog("scan").Err(err).Str("path", path).Msg("skipping unreadable file")
			return nil
		}
		if uint64(info.Size()) <= s.opts.MinSize {
			return nil
		}

		debugLog("scan").Str("path", path).Int64("size", info.Size()).Msg("found file")
		result.Files = append(result.Files, ScannedFile{Path: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return nil
}

func (s *Scanner) excluded(dir string) bool {
	if len(s.excludes) == 0 {
		return false
	}
	canonical, err := canonicalPath(dir)
	if err != nil {
		return false
	}
	for _, ex := range s.excludes {
		if isPathWithin(canonical, ex) {
			return true
		}
	}
	return false
}

func (s *Scanner) matchesExtension(path string) bool {
	if s.extensions == nil {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return ext != "" && s.extensions[ext]
}

// deduplicatePaths sorts paths and removes any that are below another path
// in the list, as well as exact duplicates.
// Example: ["/data/a", "/data/a/b", "/data/c"] -> ["/data/a", "/data/c"]
func deduplicatePaths(paths []string) []string {
	if len(paths) <= 1 {
		return paths
	}

	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var deduplicated []string
	for _, path := range sorted {
		redundant := false
		for _, kept := range deduplicated {
			if path == kept || isPathUnder(path, kept) {
				redundant = true
				break
			}
		}
		if !redundant {
			deduplicated = append(deduplicated, path)
		}
	}
	return deduplicated
}

// isPathUnder checks if childPath is strictly under parentPath
func isPathUnder(childPath, parentPath string) bool {
	childPath = filepath.Clean(childPath)
	parentPath = filepath.Clean(parentPath)
	if childPath == parentPath {
		return false
	}
	return isPathWithin(childPath, parentPath)
}
