package torrentcombine

import (
	"os"
	"path/filepath"
	"strings"
)

// FileFilter decides which paths may be mutated. Anything that resolves to
// a location inside one of the source directories is protected.
//
// Paths are canonicalized on every call, so a symlink created or retargeted
// mid-run is judged by where it points at the moment of the write.
type FileFilter struct {
	srcDirs []string
}

// NewFileFilter returns a filter protecting the given source directories.
func NewFileFilter(srcDirs []string) *FileFilter {
	return &FileFilter{srcDirs: append([]string(nil), srcDirs...)}
}

// SrcDirs returns the configured source directories.
func (f *FileFilter) SrcDirs() []string {
	return append([]string(nil), f.srcDirs...)
}

// IsProtected reports whether path resolves inside a source directory. A
// path that cannot be canonicalized is not protected.
func (f *FileFilter) IsProtected(path string) bool {
	if f == nil || len(f.srcDirs) == 0 {
		return false
	}

	canonical, err := canonicalPath(path)
	if err != nil {
		debugLog("filter").Err(err).Str("path", path).Msg("cannot canonicalize, treating as writable")
		return false
	}

	for _, src := range f.srcDirs {
		canonicalSrc, err := canonicalPath(src)
		if err != nil {
			debugLog("filter").Err(err).Str("src", src).Msg("cannot canonicalize source directory")
			continue
		}
		if isPathWithin(canonical, canonicalSrc) {
			debugLog("filter").Str("path", canonical).Str("src", canonicalSrc).Msg("protected")
			return true
		}
	}
	return false
}

// IsWritable is the negation of IsProtected.
func (f *FileFilter) IsWritable(path string) bool {
	return !f.IsProtected(path)
}

// FilterWritable returns the writable paths in their original order.
func (f *FileFilter) FilterWritable(paths []string) []string {
	writable := make([]string, 0, len(paths))
	for _, path := range paths {
		if f.IsWritable(path) {
			writable = append(writable, path)
		}
	}
	return writable
}

// canonicalPath makes path absolute and resolves every symlink in it.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// isPathWithin reports whether path equals root or lies below it. The test
// works on whole path elements so that /src does not contain /srcfoo.
func isPathWithin(path, root string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, prefix)
}
