package torrentcombine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	zcsl "github.com/mattkeenan/zerocopyskiplist"
	"github.com/rs/zerolog/log"
)

// GroupCache remembers group outcomes between runs. An entry is trusted
// while it is younger than the TTL and none of its members changed size,
// modification time or fingerprint.
type GroupCache struct {
	path      string
	ttl       time.Duration
	algorithm *FingerprintAlgorithm
	now       func() time.Time

	mu      sync.RWMutex
	loaded  *entrySkiplist
	updated *entrySkiplist
}

// NewGroupCache returns an empty cache stored at path.
func NewGroupCache(path string, ttl time.Duration, algorithm *FingerprintAlgorithm) *GroupCache {
	return &GroupCache{
		path:      path,
		ttl:       ttl,
		algorithm: algorithm,
		now:       time.Now,
		loaded:    newEntrySkiplist(16),
		updated:   newEntrySkiplist(16),
	}
}

// CachePath returns the cache index location for a state directory.
func CachePath(stateDir string) string {
	return filepath.Join(stateDir, CacheIndex)
}

// OpenGroupCache loads the cache at path. A missing, unreadable or
// incompatible index yields an empty cache; the problem is logged.
func OpenGroupCache(path string, ttl time.Duration, algorithm *FingerprintAlgorithm) *GroupCache {
	c := NewGroupCache(path, ttl, algorithm)
	if err := c.load(); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("ignoring unusable group cache")
	}
	return c
}

func (c *GroupCache) load() error {
	contents, err := readCacheIndex(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if contents.FingerprintType != c.algorithm.TypeID {
		log.Info().Str("cached", FingerprintTypeName(contents.FingerprintType)).Str("configured", c.algorithm.Name).
			Msg("fingerprint algorithm changed, starting with an empty cache")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range contents.Entries {
		c.loaded.Upsert(e, LoadedContext)
	}
	debugLog("cache").Int("entries", c.loaded.Length()).Str("path", c.path).Msg("loaded group cache")
	return nil
}

// Len returns the number of entries known to the cache.
func (c *GroupCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	merged := c.loaded.Copy()
	if err := merged.Merge(c.updated.Copy(), zcsl.MergeTheirs); err != nil {
		return c.loaded.Length() + c.updated.Length()
	}
	return merged.Length()
}

// Lookup returns a decision to trust the recorded outcome of group, or nil
// if the group must be processed.
func (c *GroupCache) Lookup(group Group) *CacheDecision {
	c.mu.RLock()
	entry, _ := c.updated.Find(group.Key)
	if entry == nil {
		entry, _ = c.loaded.Find(group.Key)
	}
	c.mu.RUnlock()

	if entry == nil {
		return nil
	}
	if !c.valid(entry, group) {
		debugLog("cache").Str("group", group.Key).Msg("stale cache entry")
		return nil
	}
	debugLog("cache").Str("group", group.Key).Stringer("status", entry.Status).Msg("cache hit")
	return &CacheDecision{Status: entry.Status}
}

func (c *GroupCache) valid(entry *cacheEntry, group Group) bool {
	age := c.now().Sub(time.Unix(entry.LastVerified, 0))
	if age < 0 || age > c.ttl {
		return false
	}
	if len(entry.Members) != len(group.Paths) {
		return false
	}

	recorded := make(map[string]memberIdentity, len(entry.Members))
	for _, m := range entry.Members {
		recorded[m.Path] = m
	}
	for _, path := range group.Paths {
		m, ok := recorded[path]
		if !ok {
			return false
		}
		current, err := c.identify(path)
		if err != nil {
			return false
		}
		if current.Size != m.Size || current.ModTime != m.ModTime || !bytes.Equal(current.Fingerprint, m.Fingerprint) {
			return false
		}
	}
	return true
}

func (c *GroupCache) identify(path string) (memberIdentity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return memberIdentity{}, err
	}
	fp, err := FingerprintFile(path, c.algorithm)
	if err != nil {
		return memberIdentity{}, err
	}
	return memberIdentity{
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime().UnixNano(),
		Fingerprint: fp,
	}, nil
}

// Record stores the outcome of a processed group. Members are identified
// as they are now, after any in-place rewrite. A group whose writable
// members all hold the merged content is stored as complete, so a later
// hit reports it as skipped.
func (c *GroupCache) Record(group Group, result *GroupResult) {
	status := result.Status
	if result.settled {
		status = StatusSkipped
	}
	entry := &cacheEntry{
		Key:          group.Key,
		Status:       status,
		Complete:     status == StatusSkipped,
		LastVerified: c.now().Unix(),
		Members:      make([]memberIdentity, 0, len(group.Paths)),
	}
	for _, path := range group.Paths {
		m, err := c.identify(path)
		if err != nil {
			debugLog("cache").Err(err).Str("path", path).Msg("not caching group")
			return
		}
		entry.Members = append(entry.Members, m)
	}

	c.mu.Lock()
	c.updated.Upsert(entry, UpdatedContext)
	c.mu.Unlock()
}

// Save merges recorded outcomes over the loaded ones, drops expired
// entries and writes the index.
func (c *GroupCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := c.loaded.Copy()
	if err := merged.Merge(c.updated.Copy(), zcsl.MergeTheirs); err != nil {
		return fmt.Errorf("failed to merge cache entries: %w", err)
	}

	cutoff := c.now().Add(-c.ttl).Unix()
	entries := merged.Entries(func(e *cacheEntry, _ string) bool {
		return e.LastVerified >= cutoff
	})

	if err := writeCacheIndex(c.path, entries, c.algorithm.TypeID); err != nil {
		return err
	}
	debugLog("cache").Int("entries", len(entries)).Str("path", c.path).Msg("saved group cache")
	return nil
}

// ClearCache removes the cache index in stateDir.
func ClearCache(stateDir string) error {
	err := os.Remove(CachePath(stateDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
