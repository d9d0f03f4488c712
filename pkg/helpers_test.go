package torrentcombine

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTestFile creates path (and its parents) with data.
func writeTestFile(t testing.TB, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func readTestFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// randomPayload returns deterministic data without zero bytes.
func randomPayload(size int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(rng.Intn(255) + 1)
	}
	return data
}

// punchHoles zeroes every region [start, start+length) of a copy of data.
func punchHoles(data []byte, holes ...[2]int) []byte {
	out := append([]byte(nil), data...)
	for _, h := range holes {
		for i := h[0]; i < h[0]+h[1] && i < len(out); i++ {
			out[i] = 0
		}
	}
	return out
}

// tempFilesIn lists leftover staging files below dir.
func tempFilesIn(t *testing.T, dir string) []string {
	t.Helper()
	var found []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasPrefix(info.Name(), TempPrefix) {
			found = append(found, path)
		}
		return nil
	})
	require.NoError(t, err)
	return found
}

// fileExists reports whether path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
