package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	torrentcombine "github.com/mattkeenan/torrentcombine/pkg"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func partialCopies(t *testing.T, root string) (string, string, []byte) {
	t.Helper()
	payload := bytes.Repeat([]byte("torrent!"), 512)
	first := append([]byte(nil), payload...)
	second := append([]byte(nil), payload...)
	for i := 0; i < len(payload)/2; i++ {
		first[i] = 0
		second[len(payload)-1-i] = 0
	}
	a := filepath.Join(root, "one", "episode.mkv")
	b := filepath.Join(root, "two", "episode.mkv")
	writeFile(t, a, first)
	writeFile(t, b, second)
	return a, b, payload
}

func TestRootCommandMerges(t *testing.T) {
	root := t.TempDir()
	a, b, payload := partialCopies(t, root)

	output, err := runCommand(t, "--min-size", "0", "--no-color", root)
	require.NoError(t, err)

	assert.Contains(t, output, "Processing Summary:")
	assert.Contains(t, output, "  - Merged: 1")
	assert.Contains(t, output, "  -> "+a+torrentcombine.MergedSuffix)
	assert.Contains(t, output, "  -> "+b+torrentcombine.MergedSuffix)

	merged, err := os.ReadFile(a + torrentcombine.MergedSuffix)
	require.NoError(t, err)
	assert.Equal(t, payload, merged)

	assert.FileExists(t, filepath.Join(torrentcombine.StateDir(root), torrentcombine.ConfigFileName))
}

func TestRootCommandDryRun(t *testing.T) {
	root := t.TempDir()
	a, _, _ := partialCopies(t, root)

	output, err := runCommand(t, "-n", "--min-size", "0", root)
	require.NoError(t, err)

	assert.Contains(t, output, "Processing Summary (dry run):")
	assert.Contains(t, output, "  - Merged: 1")
	assert.NoFileExists(t, a+torrentcombine.MergedSuffix)
	assert.NoDirExists(t, torrentcombine.StateDir(root))
}

func TestRootCommandReplaceAndSource(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "downloads")
	src := filepath.Join(dir, "library")
	a, b, payload := partialCopies(t, root)
	libCopy := filepath.Join(src, "episode.mkv")
	other := bytes.Repeat([]byte("library!"), len(payload)/8)
	writeFile(t, libCopy, other)

	output, err := runCommand(t, "--replace", "--src", src, "--min-size", "0", "-j", "2", root)
	require.NoError(t, err)
	assert.Contains(t, output, "  - Merged: 1")

	for _, path := range []string{a, b} {
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}

	after, err := os.ReadFile(libCopy)
	require.NoError(t, err)
	assert.Equal(t, other, after)
}

func TestRootCommandMinSizeFiltersEverything(t *testing.T) {
	root := t.TempDir()
	partialCopies(t, root)

	output, err := runCommand(t, "--min-size", "1MB", root)
	require.NoError(t, err)
	assert.Contains(t, output, "Total groups: 0")
}

func TestRootCommandErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "plain"), []byte("x"))

	tests := []struct {
		name string
		args []string
	}{
		{"no root", nil},
		{"missing root", []string{filepath.Join(root, "missing")}},
		{"file as root", []string{filepath.Join(root, "plain")}},
		{"bad dedup", []string{"--dedup", "hash", root}},
		{"bad min size", []string{"--min-size", "huge", root}},
		{"bad threads", []string{"--num-threads=-1", root}},
		{"bad override", []string{"--config-override", "colour:blue", root}},
		{"bad config value", []string{"--config-override", "ttl:forever", root}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCommand(t, tt.args...)
			assert.Error(t, err)
		})
	}
	assert.NoDirExists(t, filepath.Join(root, "missing"))
}

func TestRootCommandMissingRootIsReported(t *testing.T) {
	_, err := runCommand(t, filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, torrentcombine.ErrRootMissing)
}

func TestVersionCommand(t *testing.T) {
	output, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "torrentcombine ")
	assert.Contains(t, output, getVersionString())
}
