package torrentcombine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// RunConfig is everything a complete run needs.
type RunConfig struct {
	Options

	Roots      []string
	Exclude    []string
	MinSize    uint64
	Extensions []string
	Dedup      DedupMode

	NoCache     bool
	ClearCache  bool
	CacheTTL    time.Duration
	Fingerprint string
}

// RunReport is the result of a complete run.
type RunReport struct {
	Summary  Summary
	Outcomes []GroupOutcome
	Orphans  []string
}

// StateDir returns the directory holding config, ignore patterns and the
// cache for a root.
func StateDir(root string) string {
	return filepath.Join(root, StateDirName)
}

// RunConfig converts the file configuration into run settings. Roots and
// source directories come from the command line and are left empty.
func (c *Config) RunConfig() (RunConfig, error) {
	if err := c.Validate(); err != nil {
		return RunConfig{}, err
	}
	all := c.GetAllConfig()

	minSize, _ := ParseHumanSize(all.Scan.MinSize)
	dedup, _ := ParseDedupMode(all.Scan.Dedup)
	ttl, _ := time.ParseDuration(all.Cache.TTL)

	return RunConfig{
		Options: Options{
			Replace:      all.Merge.Replace,
			NoMmap:       all.Merge.NoMmap,
			CopyEmptyDst: all.Merge.CopyEmptyDst,
			NumThreads:   all.Performance.Workers,
		},
		MinSize:     minSize,
		Extensions:  SplitList(all.Scan.Extensions),
		Dedup:       dedup,
		NoCache:     !all.Cache.Enabled,
		CacheTTL:    ttl,
		Fingerprint: all.Cache.Fingerprint,
	}, nil
}

// SplitList splits a comma-separated list, dropping empty items.
func SplitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Run discovers, groups and merges files under cfg.Roots. Errors are only
// returned for problems that prevent the run from starting; per-group
// failures are reported in the outcomes.
func Run(ctx context.Context, cfg RunConfig) (*RunReport, error) {
	defer VerboseEnter()()

	if len(cfg.Roots) == 0 {
		return nil, fmt.Errorf("no root directory given")
	}

	// Step 1: Validate roots and prepare discovery
	stateDir := StateDir(cfg.Roots[0])
	ignore := NewIgnoreManager(stateDir)
	if err := ignore.LoadIgnorePatterns(); err != nil {
		return nil, fmt.Errorf("failed to load ignore patterns: %w", err)
	}
	scanner, err := NewScanner(ScanOptions{
		Roots:      cfg.Roots,
		SrcDirs:    cfg.SrcDirs,
		Exclude:    cfg.Exclude,
		MinSize:    cfg.MinSize,
		Extensions: cfg.Extensions,
		Ignore:     ignore,
	})
	if err != nil {
		return nil, err
	}

	// Step 2: Open the group cache
	var cache *GroupCache
	if !cfg.NoCache {
		algorithm, err := GetFingerprintAlgorithm(cfg.Fingerprint)
		if err != nil {
			return nil, err
		}
		if cfg.ClearCache && !cfg.DryRun {
			if err := ClearCache(stateDir); err != nil {
				log.Warn().Err(err).Msg("could not clear cache")
			}
		}
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		cache = OpenGroupCache(CachePath(stateDir), ttl, algorithm)
	}

	// Step 3: Discover candidate files
	scanStart := time.Now()
	scanned, err := scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	log.Info().Int("files", len(scanned.Files)).Dur("elapsed", time.Since(scanStart)).Msg("discovery finished")

	// Step 4: Group them
	groups := GroupFiles(scanned.Files, cfg.Dedup)
	log.Info().Int("groups", len(groups)).Stringer("dedup", cfg.Dedup).Msg("grouped candidate files")

	// Step 5: Process groups
	tracker := NewTempTracker()
	defer tracker.Cleanup()

	stats := &RunStats{}
	orchestrator := NewOrchestrator(cfg.Options, tracker, stats, cache)
	log.Info().Int("workers", orchestrator.Workers()).Bool("dry_run", cfg.DryRun).Bool("replace", cfg.Replace).
		Msg("processing groups")
	outcomes := orchestrator.Run(ctx, groups)

	// Step 6: Persist the cache
	if cache != nil && !cfg.DryRun {
		if err := cache.Save(); err != nil {
			log.Warn().Err(err).Msg("failed to save group cache")
		}
	}

	return &RunReport{
		Summary:  stats.Snapshot(),
		Outcomes: outcomes,
		Orphans:  scanned.Orphans,
	}, nil
}
