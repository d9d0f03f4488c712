package torrentcombine

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// DedupMode decides which files are considered copies of each other.
type DedupMode int

const (
	DedupFilenameAndSize  DedupMode = iota // same base name and size
	DedupSizeOnly                          // same size
	DedupExtensionAndSize                  // same extension and size
)

const (
	maxGroupedNameLength = 255
	maxGroupedExtLength  = 10
)

func (m DedupMode) String() string {
	switch m {
	case DedupFilenameAndSize:
		return "filename-and-size"
	case DedupSizeOnly:
		return "size-only"
	case DedupExtensionAndSize:
		return "extension-and-size"
	default:
		return "unknown"
	}
}

// ParseDedupMode parses a mode name as printed by String.
func ParseDedupMode(s string) (DedupMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "filename-and-size", "filename":
		return DedupFilenameAndSize, nil
	case "size-only", "size":
		return DedupSizeOnly, nil
	case "extension-and-size", "extension":
		return DedupExtensionAndSize, nil
	default:
		return 0, fmt.Errorf("unknown dedup mode %q (want filename-and-size, size-only or extension-and-size)", s)
	}
}

// groupKey returns the display key of f under mode, or false if the file
// cannot be grouped.
func groupKey(f ScannedFile, mode DedupMode) (string, bool) {
	switch mode {
	case DedupSizeOnly:
		return fmt.Sprintf("size-%d", f.Size), true
	case DedupExtensionAndSize:
		ext := strings.TrimPrefix(filepath.Ext(f.Path), ".")
		if ext == "" {
			return "", false
		}
		if len(ext) > maxGroupedExtLength {
			log.Warn().Str("path", f.Path).Msg("skipping file with very long extension")
			return "", false
		}
		return fmt.Sprintf("%s.%d", strings.ToLower(ext), f.Size), true
	default:
		name := filepath.Base(f.Path)
		if len(name) > maxGroupedNameLength {
			log.Warn().Str("path", f.Path).Msg("skipping file with very long filename")
			return "", false
		}
		return fmt.Sprintf("%s@%d", name, f.Size), true
	}
}

// GroupFiles buckets files by their dedup key. Buckets with fewer than two
// files are dropped. Groups are sorted by key and members keep the order of
// files.
func GroupFiles(files []ScannedFile, mode DedupMode) []Group {
	buckets := make(map[string][]string)
	for _, f := range files {
		key, ok := groupKey(f, mode)
		if !ok {
			continue
		}
		buckets[key] = append(buckets[key], f.Path)
	}

	groups := make([]Group, 0, len(buckets))
	for key, paths := range buckets {
		if len(paths) < 2 {
			continue
		}
		groups = append(groups, Group{Key: key, Paths: paths})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}
