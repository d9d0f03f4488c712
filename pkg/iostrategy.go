package torrentcombine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// IOMode selects how candidates are read during a merge scan.
type IOMode int

const (
	IOBuffered IOMode = iota
	IOMmap
)

func (m IOMode) String() string {
	if m == IOMmap {
		return "mmap"
	}
	return "buffered"
}

// selectIOMode memory maps groups of at least MmapThreshold bytes unless
// mapping is disabled.
func selectIOMode(size int64, noMmap bool) IOMode {
	if noMmap || size < MmapThreshold {
		return IOBuffered
	}
	return IOMmap
}

// openSources opens every path with the given strategy. On failure the
// sources already opened are closed.
func openSources(paths []string, mode IOMode) ([]ChunkSource, error) {
	sources := make([]ChunkSource, 0, len(paths))
	for _, path := range paths {
		var (
			src ChunkSource
			err error
		)
		if mode == IOMmap {
			src, err = newMmapSource(path)
		} else {
			src, err = newBufferedSource(path)
		}
		if err != nil {
			closeSources(sources)
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func closeSources(sources []ChunkSource) {
	for _, src := range sources {
		if err := src.Close(); err != nil {
			log.Debug().Err(err).Str("path", src.Path()).Msg("failed to close source")
		}
	}
}

// bufferedSource reads a file sequentially into its own reusable chunk
// buffer.
type bufferedSource struct {
	path string
	file *os.File
	r    *bufio.Reader
	buf  []byte
	pos  int64
}

func newBufferedSource(path string) (*bufferedSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &bufferedSource{
		path: path,
		file: file,
		r:    bufio.NewReaderSize(file, ChunkSize),
	}, nil
}

func (s *bufferedSource) Chunk(off int64, n int) ([]byte, error) {
	if off != s.pos {
		return nil, fmt.Errorf("non-sequential read of %s: offset %d, expected %d", s.path, off, s.pos)
	}
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	buf := s.buf[:n]
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes of %s at offset %d: %w", n, s.path, off, err)
	}
	s.pos += int64(n)
	return buf, nil
}

func (s *bufferedSource) Path() string { return s.path }

func (s *bufferedSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// mmapSource serves chunks straight out of a read-only private mapping of
// the whole file.
type mmapSource struct {
	path string
	data []byte
}

func newMmapSource(path string) (*mmapSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return &mmapSource{path: path}, nil
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap %s: %w", path, err)
	}
	return &mmapSource{path: path, data: data}, nil
}

func (s *mmapSource) Chunk(off int64, n int) ([]byte, error) {
	end := off + int64(n)
	if off < 0 || n < 0 || end > int64(len(s.data)) {
		return nil, fmt.Errorf("%w: %s offset %d length %d, mapped %d bytes", ErrMmapBounds, s.path, off, n, len(s.data))
	}
	return s.data[off:end], nil
}

func (s *mmapSource) Path() string { return s.path }

func (s *mmapSource) Close() error {
	if s.data == nil {
		return nil
	}
	err := unix.Munmap(s.data)
	s.data = nil
	return err
}

// findTempDirectory returns the first parent directory among paths that
// the filter allows writing to, falling back to the parent of the first
// path.
func findTempDirectory(paths []string, filter *FileFilter) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("no candidate paths: %w", ErrNoParent)
	}
	for _, path := range paths {
		parent := filepath.Dir(path)
		if filter.IsWritable(parent) {
			return parent, nil
		}
	}
	return filepath.Dir(paths[0]), nil
}

// scanFile walks the content of path in ChunkSize steps until fn returns
// false.
func scanFile(path string, size int64, noMmap bool, fn func(chunk []byte) bool) error {
	sources, err := openSources([]string{path}, selectIOMode(size, noMmap))
	if err != nil {
		return err
	}
	defer closeSources(sources)

	for off := int64(0); off < size; off += ChunkSize {
		chunk, err := sources[0].Chunk(off, int(min(size-off, ChunkSize)))
		if err != nil {
			return err
		}
		if !fn(chunk) {
			return nil
		}
	}
	return nil
}

// fileAllZero reports whether a non-empty file consists only of zero bytes.
func fileAllZero(path string, size int64, noMmap bool) (bool, error) {
	if size == 0 {
		return false, nil
	}
	allZero := true
	err := scanFile(path, size, noMmap, func(chunk []byte) bool {
		allZero = newWordView(chunk).IsZero()
		return allZero
	})
	return allZero, err
}

// fileHasData reports whether a file holds at least one non-zero byte.
func fileHasData(path string, size int64, noMmap bool) (bool, error) {
	hasData := false
	err := scanFile(path, size, noMmap, func(chunk []byte) bool {
		hasData = !newWordView(chunk).IsZero()
		return !hasData
	})
	return hasData, err
}
