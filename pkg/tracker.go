package torrentcombine

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// TempTracker records every temporary file the run has created and not yet
// persisted or removed, so they can be deleted on any exit path.
type TempTracker struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewTempTracker returns an empty tracker.
func NewTempTracker() *TempTracker {
	return &TempTracker{pending: make(map[string]struct{})}
}

func (t *TempTracker) register(path string) {
	t.mu.Lock()
	t.pending[path] = struct{}{}
	t.mu.Unlock()
}

func (t *TempTracker) release(path string) {
	t.mu.Lock()
	delete(t.pending, path)
	t.mu.Unlock()
}

// Pending returns the tracked paths in sorted order.
func (t *TempTracker) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	paths := make([]string, 0, len(t.pending))
	for path := range t.pending {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Cleanup removes every tracked file. Failures are logged and otherwise
// ignored. It returns the number of files removed.
func (t *TempTracker) Cleanup() int {
	removed := 0
	for _, path := range t.Pending() {
		if removeTemp(path) {
			removed++
		}
		t.release(path)
	}
	if removed > 0 {
		log.Info().Int("files", removed).Msg("removed leftover temporary files")
	}
	return removed
}

// Scope returns a scope for one unit of work. Files created through the
// scope are tracked globally and removed by Close unless persisted first.
func (t *TempTracker) Scope() *TempScope {
	return &TempScope{tracker: t}
}

func removeTemp(path string) bool {
	err := os.Remove(path)
	if err == nil {
		return true
	}
	if !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove temporary file")
	}
	return false
}

// TempScope tracks the temporary files of a single group.
type TempScope struct {
	tracker *TempTracker
	mu      sync.Mutex
	paths   []string
}

// CreateTemp creates a temporary file in dir and registers it before
// returning.
func (s *TempScope) CreateTemp(dir string) (*os.File, error) {
	file, err := os.CreateTemp(dir, tempFilePattern())
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	s.tracker.register(file.Name())

	s.mu.Lock()
	s.paths = append(s.paths, file.Name())
	s.mu.Unlock()
	return file, nil
}

// Persist renames a temporary file of this scope onto target and stops
// tracking it.
func (s *TempScope) Persist(tempPath, target string) error {
	if err := os.Rename(tempPath, target); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", tempPath, target, err)
	}
	s.forget(tempPath)
	return nil
}

// Remove deletes a temporary file of this scope and stops tracking it.
func (s *TempScope) Remove(tempPath string) {
	removeTemp(tempPath)
	s.forget(tempPath)
}

// Close removes every file of this scope that was neither persisted nor
// removed.
func (s *TempScope) Close() {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	for _, path := range paths {
		removeTemp(path)
		s.tracker.release(path)
	}
}

func (s *TempScope) forget(path string) {
	s.tracker.release(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.paths {
		if p == path {
			s.paths = append(s.paths[:i], s.paths[i+1:]...)
			return
		}
	}
}

// tempFilePattern is the os.CreateTemp pattern for this process. Names look
// like .tcmb-<pid>-<random>.tmp.
func tempFilePattern() string {
	return fmt.Sprintf("%s%d-*%s", TempPrefix, os.Getpid(), TempSuffix)
}

// isTempFileName reports whether name was produced by tempFilePattern.
func isTempFileName(name string) bool {
	return strings.HasPrefix(name, TempPrefix) && strings.HasSuffix(name, TempSuffix)
}

// extractPidFromTempFileName returns the PID embedded in a temporary file
// name, or 0.
func extractPidFromTempFileName(name string) int {
	if !isTempFileName(name) {
		return 0
	}
	base := strings.TrimSuffix(strings.TrimPrefix(name, TempPrefix), TempSuffix)

	parts := strings.SplitN(base, "-", 2)
	if len(parts) < 2 {
		return 0
	}

	pid, err := strconv.Atoi(parts[0])
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// isProcessRunning checks if a process with the given PID is currently running
func isProcessRunning(pid int) bool {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}

	// EPERM means the process exists but belongs to someone else
	if errors.Is(err, unix.EPERM) {
		return true
	}
	return false
}

// isOrphanedTempFile reports whether name is a temporary file left behind
// by a process that is no longer running.
func isOrphanedTempFile(name string) bool {
	pid := extractPidFromTempFileName(name)
	if pid == 0 || pid == os.Getpid() {
		return false
	}
	return !isProcessRunning(pid)
}
