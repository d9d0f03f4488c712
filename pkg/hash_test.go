package torrentcombine

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFingerprintAlgorithm(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		typeID uint16
		size   int
	}{
		{"", "xxhash", FingerprintTypeXXHash, 8},
		{"XXH64", "xxhash", FingerprintTypeXXHash, 8},
		{"blake3", "blake3", FingerprintTypeBLAKE3, 32},
		{"sha256", "sha256", FingerprintTypeSHA256, 32},
	}
	for _, tt := range tests {
		alg, err := GetFingerprintAlgorithm(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, alg.Name)
		assert.Equal(t, tt.typeID, alg.TypeID)
		assert.Equal(t, tt.size, alg.Size)
		assert.Len(t, alg.NewFunc().Sum(nil), tt.size)

		byType, err := GetFingerprintAlgorithmByType(tt.typeID)
		require.NoError(t, err)
		assert.Equal(t, alg.Name, byType.Name)
	}

	_, err := GetFingerprintAlgorithm("md5")
	assert.Error(t, err)
	_, err = GetFingerprintAlgorithmByType(99)
	assert.Error(t, err)
}

func TestFingerprintFile(t *testing.T) {
	dir := t.TempDir()
	alg, err := GetFingerprintAlgorithm("xxhash")
	require.NoError(t, err)

	payload := randomPayload(8192, 12)
	path := writeTestFile(t, filepath.Join(dir, "f.bin"), payload)
	mtime := time.Unix(1700000000, 0)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	first, err := FingerprintFile(path, alg)
	require.NoError(t, err)
	again, err := FingerprintFile(path, alg)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	// A change in the middle with size and mtime restored is not sampled
	middle := append([]byte(nil), payload...)
	middle[4096]++
	require.NoError(t, os.WriteFile(path, middle, 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	same, err := FingerprintFile(path, alg)
	require.NoError(t, err)
	assert.Equal(t, first, same)

	// A change in the tail is
	tail := append([]byte(nil), payload...)
	tail[len(tail)-1]++
	require.NoError(t, os.WriteFile(path, tail, 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	changed, err := FingerprintFile(path, alg)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)

	// So is a new modification time
	require.NoError(t, os.WriteFile(path, payload, 0644))
	require.NoError(t, os.Chtimes(path, mtime.Add(time.Second), mtime.Add(time.Second)))
	touched, err := FingerprintFile(path, alg)
	require.NoError(t, err)
	assert.NotEqual(t, first, touched)
}

func TestFingerprintFileSmallAndMissing(t *testing.T) {
	dir := t.TempDir()
	alg, err := GetFingerprintAlgorithm("blake3")
	require.NoError(t, err)

	path := writeTestFile(t, filepath.Join(dir, "small"), []byte("hello"))
	sum, err := FingerprintFileToHexString(path, alg)
	require.NoError(t, err)
	raw, err := hex.DecodeString(sum)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	_, err = FingerprintFile(filepath.Join(dir, "missing"), alg)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFingerprintTypeNames(t *testing.T) {
	for _, id := range []uint16{FingerprintTypeXXHash, FingerprintTypeBLAKE3, FingerprintTypeSHA256} {
		back, ok := FingerprintTypeFromName(FingerprintTypeName(id))
		assert.True(t, ok)
		assert.Equal(t, id, back)
	}
	assert.Equal(t, "unknown", FingerprintTypeName(0))
	_, ok := FingerprintTypeFromName("crc32")
	assert.False(t, ok)
}
