package torrentcombine

import (
	"strings"

	zcsl "github.com/mattkeenan/zerocopyskiplist"
)

// entrySkiplist is an ordered set of cache entries keyed by group key,
// each tagged with a context saying where it came from.
type entrySkiplist struct {
	skiplist *zcsl.ZeroCopySkiplist[cacheEntry, string, string]
}

func newEntrySkiplist(maxLevels int) *entrySkiplist {
	if maxLevels < 8 {
		maxLevels = 16
	}

	getKey := func(e *cacheEntry) string { return e.Key }
	getSize := func(e *cacheEntry) int { return e.encodedSize() }

	return &entrySkiplist{
		skiplist: zcsl.MakeZeroCopySkiplist[cacheEntry, string, string](
			maxLevels,
			getKey,
			getSize,
			strings.Compare,
		),
	}
}

// Insert adds an entry with a context. It returns false if the key is
// already present.
func (sl *entrySkiplist) Insert(entry *cacheEntry, context string) bool {
	return sl.skiplist.Insert(entry, context)
}

// Upsert replaces any entry with the same key.
func (sl *entrySkiplist) Upsert(entry *cacheEntry, context string) {
	if !sl.skiplist.Insert(entry, context) {
		sl.skiplist.Delete(entry.Key)
		sl.skiplist.Insert(entry, context)
	}
}

// Find returns the entry for key and its context, or nil.
func (sl *entrySkiplist) Find(key string) (*cacheEntry, string) {
	itemPtr, context := sl.skiplist.Find(key)
	if itemPtr != nil {
		return itemPtr.Item(), context
	}
	return nil, ""
}

// Delete removes the entry for key.
func (sl *entrySkiplist) Delete(key string) bool {
	return sl.skiplist.Delete(key)
}

// ForEach visits entries in key order until callback returns false.
func (sl *entrySkiplist) ForEach(callback func(*cacheEntry, string) bool) {
	for current := sl.skiplist.First(); current != nil; current = current.Next() {
		if !callback(current.Item(), current.Context()) {
			break
		}
	}
}

// Merge folds other into sl using the given conflict strategy.
func (sl *entrySkiplist) Merge(other *entrySkiplist, strategy zcsl.MergeStrategy) error {
	if other == nil {
		return nil
	}
	return sl.skiplist.Merge(other.skiplist, strategy)
}

// Copy returns a structural copy sharing the entries.
func (sl *entrySkiplist) Copy() *entrySkiplist {
	return &entrySkiplist{skiplist: sl.skiplist.Copy()}
}

// Length returns the number of entries.
func (sl *entrySkiplist) Length() int {
	return sl.skiplist.Length()
}

// Entries returns the entries in key order, optionally filtered.
func (sl *entrySkiplist) Entries(keep func(*cacheEntry, string) bool) []*cacheEntry {
	entries := make([]*cacheEntry, 0, sl.Length())
	sl.ForEach(func(e *cacheEntry, context string) bool {
		if keep == nil || keep(e, context) {
			entries = append(entries, e)
		}
		return true
	})
	return entries
}
