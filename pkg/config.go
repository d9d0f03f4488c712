package torrentcombine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-ini/ini"
)

// Config represents the torrentcombine configuration file
type Config struct {
	configPath string
	ini        *ini.File
}

// MergeConfig represents merge behaviour configuration
type MergeConfig struct {
	Replace      bool
	CopyEmptyDst bool
	NoMmap       bool
}

// ScanConfig represents discovery configuration
type ScanConfig struct {
	MinSize    string // human-readable, e.g. "1MB"
	Dedup      string // filename-and-size, size-only, extension-and-size
	Extensions string // comma-separated, empty means all
}

// CacheConfig represents group cache configuration
type CacheConfig struct {
	Enabled     bool
	TTL         string // Go duration, e.g. "1h"
	Fingerprint string // xxhash, blake3, sha256
}

// PerformanceConfig represents performance-related configuration
type PerformanceConfig struct {
	Workers int // 0 means one per CPU
}

// VerboseConfig represents verbosity configuration
type VerboseConfig struct {
	Level int    // 0=quiet, 1=basic, 2=detailed, 3=trace
	Debug string // comma-separated debug flags
}

// AllConfig represents all configuration options
type AllConfig struct {
	Merge       *MergeConfig
	Scan        *ScanConfig
	Cache       *CacheConfig
	Performance *PerformanceConfig
	Verbose     *VerboseConfig
}

// configKey locates one setting in the file. The override name is what
// ApplyOverrides accepts.
type configKey struct {
	override string
	section  string
	key      string
	value    string
}

var configKeys = []configKey{
	{"replace", "merge", "replace", "false"},
	{"copy_empty_dst", "merge", "copy_empty_dst", "false"},
	{"no_mmap", "merge", "no_mmap", "false"},
	{"min_size", "scan", "min_size", "1MB"},
	{"dedup", "scan", "dedup", "filename-and-size"},
	{"extensions", "scan", "extensions", ""},
	{"cache", "cache", "enabled", "true"},
	{"ttl", "cache", "ttl", DefaultCacheTTL},
	{"fingerprint", "cache", "fingerprint", "xxhash"},
	{"workers", "performance", "workers", "0"},
	{"level", "verbose", "level", "0"},
	{"debug", "verbose", "debug", ""},
}

// LoadConfig loads <stateDir>/config. When the file is missing the defaults
// are used, and written out if create is set.
func LoadConfig(stateDir string, create bool) (*Config, error) {
	configPath := filepath.Join(stateDir, ConfigFileName)
	cfg := &Config{configPath: configPath}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		cfg.ini = ini.Empty()
		if err := cfg.setDefaults(); err != nil {
			return nil, fmt.Errorf("failed to set default config: %w", err)
		}
		if create {
			if err := os.MkdirAll(stateDir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
			if err := cfg.Save(); err != nil {
				return nil, fmt.Errorf("failed to save default config: %w", err)
			}
		}
		return cfg, nil
	}

	iniFile, err := ini.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	cfg.ini = iniFile
	return cfg, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() error {
	for _, k := range configKeys {
		section := c.ini.Section(k.section)
		if _, err := section.NewKey(k.key, k.value); err != nil {
			return fmt.Errorf("failed to set default %s.%s: %w", k.section, k.key, err)
		}
	}
	return nil
}

// Path returns the location of the config file
func (c *Config) Path() string {
	return c.configPath
}

func (c *Config) lookup(section, key string) (*ini.Key, bool) {
	if !c.ini.HasSection(section) {
		return nil, false
	}
	s := c.ini.Section(section)
	if !s.HasKey(key) {
		return nil, false
	}
	return s.Key(key), true
}

func (c *Config) boolValue(section, key string, fallback bool) bool {
	if k, ok := c.lookup(section, key); ok {
		if v, err := k.Bool(); err == nil {
			return v
		}
	}
	return fallback
}

func (c *Config) stringValue(section, key, fallback string) string {
	if k, ok := c.lookup(section, key); ok {
		return k.String()
	}
	return fallback
}

func (c *Config) intValue(section, key string, fallback int) int {
	if k, ok := c.lookup(section, key); ok {
		if v, err := k.Int(); err == nil {
			return v
		}
	}
	return fallback
}

// GetMergeConfig returns the merge configuration
func (c *Config) GetMergeConfig() *MergeConfig {
	return &MergeConfig{
		Replace:      c.boolValue("merge", "replace", false),
		CopyEmptyDst: c.boolValue("merge", "copy_empty_dst", false),
		NoMmap:       c.boolValue("merge", "no_mmap", false),
	}
}

// GetScanConfig returns the discovery configuration
func (c *Config) GetScanConfig() *ScanConfig {
	return &ScanConfig{
		MinSize:    c.stringValue("scan", "min_size", "1MB"),
		Dedup:      c.stringValue("scan", "dedup", "filename-and-size"),
		Extensions: c.stringValue("scan", "extensions", ""),
	}
}

// GetCacheConfig returns the group cache configuration
func (c *Config) GetCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:     c.boolValue("cache", "enabled", true),
		TTL:         c.stringValue("cache", "ttl", DefaultCacheTTL),
		Fingerprint: c.stringValue("cache", "fingerprint", "xxhash"),
	}
}

// GetPerformanceConfig returns the performance configuration
func (c *Config) GetPerformanceConfig() *PerformanceConfig {
	return &PerformanceConfig{
		Workers: c.intValue("performance", "workers", 0),
	}
}

// GetVerboseConfig returns the verbose configuration
func (c *Config) GetVerboseConfig() *VerboseConfig {
	return &VerboseConfig{
		Level: c.intValue("verbose", "level", 0),
		Debug: c.stringValue("verbose", "debug", ""),
	}
}

// GetAllConfig returns all configuration options
func (c *Config) GetAllConfig() *AllConfig {
	return &AllConfig{
		Merge:       c.GetMergeConfig(),
		Scan:        c.GetScanConfig(),
		Cache:       c.GetCacheConfig(),
		Performance: c.GetPerformanceConfig(),
		Verbose:     c.GetVerboseConfig(),
	}
}

// Set stores a value under its override name and saves the file
func (c *Config) Set(name, value string) error {
	if err := c.ApplyOverrides([]string{name + ":" + value}); err != nil {
		return err
	}
	return c.Save()
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	return c.ini.SaveTo(c.configPath)
}

// ApplyOverrides applies command-line overrides to the configuration
// Accepts strings like "replace:true", "min_size:10MB", "ttl:30m", "debug:merge"
func (c *Config) ApplyOverrides(overrides []string) error {
	for _, override := range overrides {
		parts := strings.SplitN(override, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid override format '%s', expected 'key:value'", override)
		}

		name := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		found := false
		for _, k := range configKeys {
			if k.override == name {
				c.ini.Section(k.section).Key(k.key).SetValue(value)
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unsupported override key '%s' (supported: %s)", name, overrideNames())
		}
	}
	return nil
}

func overrideNames() string {
	names := make([]string, len(configKeys))
	for i, k := range configKeys {
		names[i] = k.override
	}
	return strings.Join(names, ", ")
}

// Validate checks every value that has a restricted domain
func (c *Config) Validate() error {
	all := c.GetAllConfig()
	if _, err := ParseHumanSize(all.Scan.MinSize); err != nil {
		return fmt.Errorf("scan.min_size: %w", err)
	}
	if _, err := ParseDedupMode(all.Scan.Dedup); err != nil {
		return fmt.Errorf("scan.dedup: %w", err)
	}
	if err := ValidateCacheTTL(all.Cache.TTL); err != nil {
		return fmt.Errorf("cache.ttl: %w", err)
	}
	if err := ValidateFingerprintAlgorithm(all.Cache.Fingerprint); err != nil {
		return fmt.Errorf("cache.fingerprint: %w", err)
	}
	if err := ValidateWorkers(all.Performance.Workers); err != nil {
		return fmt.Errorf("performance.workers: %w", err)
	}
	if err := ValidateVerboseLevel(all.Verbose.Level); err != nil {
		return fmt.Errorf("verbose.level: %w", err)
	}
	return nil
}

// ValidateCacheTTL validates a cache time-to-live
func ValidateCacheTTL(ttl string) error {
	d, err := time.ParseDuration(ttl)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", ttl, err)
	}
	if d <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	return nil
}

// ValidateFingerprintAlgorithm validates that a fingerprint algorithm is supported
func ValidateFingerprintAlgorithm(name string) error {
	if _, ok := FingerprintTypeFromName(name); !ok {
		return fmt.Errorf("unsupported fingerprint algorithm: %s (supported: xxhash, blake3, sha256)", name)
	}
	return nil
}

// ValidateVerboseLevel validates that a verbose level is valid
func ValidateVerboseLevel(level int) error {
	if level < 0 || level > 3 {
		return fmt.Errorf("invalid verbose level: %d (supported: 0-3)", level)
	}
	return nil
}

// ValidateWorkers validates that the worker count is reasonable
func ValidateWorkers(workers int) error {
	if workers < 0 {
		return fmt.Errorf("workers must not be negative, got: %d", workers)
	}
	if workers > 256 {
		return fmt.Errorf("workers should not exceed 256, got: %d", workers)
	}
	return nil
}
