package torrentcombine

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// IgnoreManager holds regular expressions for files that discovery skips.
// Patterns are matched against paths relative to the scanned root, with
// forward slashes.
type IgnoreManager struct {
	ignorePath string
	patterns   []*regexp.Regexp
}

// NewIgnoreManager returns a manager reading <stateDir>/ignore.
func NewIgnoreManager(stateDir string) *IgnoreManager {
	return &IgnoreManager{ignorePath: filepath.Join(stateDir, IgnoreFileName)}
}

// LoadIgnorePatterns loads patterns from the ignore file. A missing file
// means no patterns.
func (im *IgnoreManager) LoadIgnorePatterns() error {
	file, err := os.Open(im.ignorePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := im.AddPattern(line); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading ignore file: %w", err)
	}
	return nil
}

// AddPattern adds a new ignore pattern
func (im *IgnoreManager) AddPattern(patternStr string) error {
	pattern, err := regexp.Compile(patternStr)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %s - %w", patternStr, err)
	}
	im.patterns = append(im.patterns, pattern)
	return nil
}

// ShouldIgnore checks if a path should be ignored based on patterns
func (im *IgnoreManager) ShouldIgnore(relativePath string) bool {
	if im == nil {
		return false
	}
	normalised := filepath.ToSlash(relativePath)
	for _, pattern := range im.patterns {
		if pattern.MatchString(normalised) {
			return true
		}
	}
	return false
}

// PatternCount returns the number of loaded patterns.
func (im *IgnoreManager) PatternCount() int {
	if im == nil {
		return 0
	}
	return len(im.patterns)
}
