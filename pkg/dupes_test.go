package torrentcombine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupFilesByMode(t *testing.T) {
	files := []ScannedFile{
		{Path: "/a/movie.mkv", Size: 100},
		{Path: "/b/movie.mkv", Size: 100},
		{Path: "/c/movie.mkv", Size: 200},
		{Path: "/c/other.MKV", Size: 100},
		{Path: "/d/noext", Size: 100},
		{Path: "/e/single.iso", Size: 300},
	}

	tests := []struct {
		mode DedupMode
		want []Group
	}{
		{DedupFilenameAndSize, []Group{
			{Key: "movie.mkv@100", Paths: []string{"/a/movie.mkv", "/b/movie.mkv"}},
		}},
		{DedupSizeOnly, []Group{
			{Key: "size-100", Paths: []string{"/a/movie.mkv", "/b/movie.mkv", "/c/other.MKV", "/d/noext"}},
		}},
		{DedupExtensionAndSize, []Group{
			{Key: "mkv.100", Paths: []string{"/a/movie.mkv", "/b/movie.mkv", "/c/other.MKV"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, GroupFiles(files, tt.mode))
		})
	}
}

func TestGroupFilesSkipsUngroupable(t *testing.T) {
	longName := strings.Repeat("x", 256)
	files := []ScannedFile{
		{Path: "/a/" + longName, Size: 1},
		{Path: "/b/" + longName, Size: 1},
		{Path: "/a/f.verylongextension", Size: 1},
		{Path: "/b/f.verylongextension", Size: 1},
	}

	byName := GroupFiles(files, DedupFilenameAndSize)
	require.Len(t, byName, 1, "names over 255 bytes are not grouped")
	assert.Equal(t, "f.verylongextension@1", byName[0].Key)

	assert.Empty(t, GroupFiles(files, DedupExtensionAndSize), "extensions over 10 bytes are not grouped")
}

func TestGroupFilesSortedByKey(t *testing.T) {
	files := []ScannedFile{
		{Path: "/a/z", Size: 1}, {Path: "/b/z", Size: 1},
		{Path: "/a/b", Size: 1}, {Path: "/b/b", Size: 1},
		{Path: "/a/m", Size: 1}, {Path: "/b/m", Size: 1},
	}
	groups := GroupFiles(files, DedupFilenameAndSize)
	require.Len(t, groups, 3)
	assert.Equal(t, "b@1", groups[0].Key)
	assert.Equal(t, "m@1", groups[1].Key)
	assert.Equal(t, "z@1", groups[2].Key)
}

func TestParseDedupMode(t *testing.T) {
	for _, mode := range []DedupMode{DedupFilenameAndSize, DedupSizeOnly, DedupExtensionAndSize} {
		parsed, err := ParseDedupMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}

	parsed, err := ParseDedupMode("")
	require.NoError(t, err)
	assert.Equal(t, DedupFilenameAndSize, parsed)

	parsed, err = ParseDedupMode(" Size ")
	require.NoError(t, err)
	assert.Equal(t, DedupSizeOnly, parsed)

	_, err = ParseDedupMode("hash")
	assert.Error(t, err)
}
