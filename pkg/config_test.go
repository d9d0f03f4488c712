package torrentcombine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	tempDir := t.TempDir()

	// Load config (should create default)
	config, err := LoadConfig(tempDir, true)
	require.NoError(t, err)

	all := config.GetAllConfig()
	assert.False(t, all.Merge.Replace)
	assert.False(t, all.Merge.CopyEmptyDst)
	assert.False(t, all.Merge.NoMmap)
	assert.Equal(t, "1MB", all.Scan.MinSize)
	assert.Equal(t, "filename-and-size", all.Scan.Dedup)
	assert.True(t, all.Cache.Enabled)
	assert.Equal(t, "1h", all.Cache.TTL)
	assert.Equal(t, "xxhash", all.Cache.Fingerprint)

	assert.FileExists(t, filepath.Join(tempDir, ConfigFileName))
	assert.Equal(t, filepath.Join(tempDir, ConfigFileName), config.Path())
}

func TestConfigNotCreatedWithoutCreate(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), StateDirName)

	config, err := LoadConfig(tempDir, false)
	require.NoError(t, err)
	assert.Equal(t, "1MB", config.GetScanConfig().MinSize, "defaults apply without a file")
	assert.NoDirExists(t, tempDir)
}

func TestConfigOverrides(t *testing.T) {
	config, err := LoadConfig(t.TempDir(), true)
	require.NoError(t, err)

	overrides := []string{"replace:true", "min_size: 10MB", "ttl:30m", "workers:4", "debug:merge,cache"}
	require.NoError(t, config.ApplyOverrides(overrides))

	all := config.GetAllConfig()
	assert.True(t, all.Merge.Replace)
	assert.Equal(t, "10MB", all.Scan.MinSize)
	assert.Equal(t, "30m", all.Cache.TTL)
	assert.Equal(t, 4, all.Performance.Workers)
	assert.Equal(t, "merge,cache", all.Verbose.Debug)

	assert.Error(t, config.ApplyOverrides([]string{"replace"}), "override without value")
	assert.ErrorContains(t, config.ApplyOverrides([]string{"colour:blue"}), "unsupported")
}

func TestConfigPersistence(t *testing.T) {
	tempDir := t.TempDir()

	config, err := LoadConfig(tempDir, true)
	require.NoError(t, err)
	require.NoError(t, config.Set("fingerprint", "blake3"))

	reloaded, err := LoadConfig(tempDir, true)
	require.NoError(t, err)
	assert.Equal(t, "blake3", reloaded.GetCacheConfig().Fingerprint)
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		override string
		wantErr  string
	}{
		{"min_size:lots", "scan.min_size"},
		{"dedup:hash", "scan.dedup"},
		{"ttl:-5m", "cache.ttl"},
		{"ttl:soon", "cache.ttl"},
		{"fingerprint:md5", "cache.fingerprint"},
		{"workers:1000", "performance.workers"},
		{"level:7", "verbose.level"},
	}

	for _, tc := range testCases {
		t.Run(tc.override, func(t *testing.T) {
			config, err := LoadConfig(t.TempDir(), false)
			require.NoError(t, err)
			require.NoError(t, config.Validate(), "defaults should validate")

			require.NoError(t, config.ApplyOverrides([]string{tc.override}))
			assert.ErrorContains(t, config.Validate(), tc.wantErr)
		})
	}
}

func TestConfigRunConfig(t *testing.T) {
	config, err := LoadConfig(t.TempDir(), false)
	require.NoError(t, err)
	overrides := []string{"min_size:2K", "dedup:size-only", "extensions:mkv, mp4,,", "cache:false", "ttl:2h", "no_mmap:true"}
	require.NoError(t, config.ApplyOverrides(overrides))

	rc, err := config.RunConfig()
	require.NoError(t, err)
	assert.Equal(t, uint64(2048), rc.MinSize)
	assert.Equal(t, DedupSizeOnly, rc.Dedup)
	assert.Equal(t, []string{"mkv", "mp4"}, rc.Extensions)
	assert.True(t, rc.NoCache)
	assert.Equal(t, 2*time.Hour, rc.CacheTTL)
	assert.True(t, rc.NoMmap)
}

func TestLoadConfigExistingFile(t *testing.T) {
	tempDir := t.TempDir()
	content := "[merge]\nreplace = true\n\n[performance]\nworkers = 3\n"
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ConfigFileName), []byte(content), 0644))

	config, err := LoadConfig(tempDir, true)
	require.NoError(t, err)
	assert.True(t, config.GetMergeConfig().Replace)
	assert.Equal(t, 3, config.GetPerformanceConfig().Workers)
	// Keys missing from the file fall back to defaults
	assert.Equal(t, DefaultCacheTTL, config.GetCacheConfig().TTL)
}
