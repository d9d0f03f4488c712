package torrentcombine

import (
	"errors"
	"strings"
)

// Merge geometry
const (
	ChunkSize     = 1 << 20         // Bytes read from every candidate per merge step (1 MiB)
	WordSize      = 8               // Width of the word kernel
	MmapThreshold = 5 * 1024 * 1024 // Groups at least this large are memory mapped
)

// Discovery defaults
const (
	DefaultMinFileSize = 1024 * 1024 // 1 MiB
	DefaultCacheTTL    = "1h"
)

// Fuzzy filename matching for the copy-into-empty-destination fast path
const (
	FuzzyMinNameLength       = 5
	FuzzySimilarityThreshold = 0.8
)

// File constants
const (
	StateDirName   = ".torrent-combine"
	CacheIndex     = "cache.idx"
	ConfigFileName = "config"
	IgnoreFileName = "ignore"
	MergedSuffix   = ".merged"
	TempPrefix     = ".tcmb-"
	TempSuffix     = ".tmp"
)

// Context constants for cache skiplist entries
const (
	LoadedContext  = "loaded"
	UpdatedContext = "updated"
)

// Header and file format constants for the cache index
const (
	HeaderSize          = 64 // signature(4) + byte_order(8) + version(4) + entry_count(4) + flags(2) + checksum_type(2) + fingerprint_type(2) + reserved(6) + checksum(32)
	ChecksumSize        = 32 // BLAKE3-256
	CurrentIndexVersion = 1
	RecordAlignment     = 8
)

// Byte order magic for file format validation
const ByteOrderMagic uint64 = 0x0102030405060708

// Index header flags
const (
	IndexFlagClean uint16 = 1 << 0 // Index file was completely written
)

// Checksum type constants
const (
	ChecksumTypeBLAKE3 uint16 = 1
)

// Fingerprint type constants
const (
	FingerprintTypeXXHash uint16 = 1 // xxhash64 (8 bytes)
	FingerprintTypeBLAKE3 uint16 = 2 // BLAKE3-256 (32 bytes)
	FingerprintTypeSHA256 uint16 = 3 // SHA-256 (32 bytes)
)

// Fingerprint sampling window at each end of a file
const FingerprintSampleSize = 1024

// FingerprintTypeName returns the human-readable name for a fingerprint type
func FingerprintTypeName(fpType uint16) string {
	switch fpType {
	case FingerprintTypeXXHash:
		return "xxhash"
	case FingerprintTypeBLAKE3:
		return "blake3"
	case FingerprintTypeSHA256:
		return "sha256"
	default:
		return "unknown"
	}
}

// FingerprintTypeFromName returns the fingerprint type constant from a name (case-insensitive)
func FingerprintTypeFromName(name string) (uint16, bool) {
	switch strings.ToLower(name) {
	case "xxhash", "xxh64":
		return FingerprintTypeXXHash, true
	case "blake3":
		return FingerprintTypeBLAKE3, true
	case "sha256":
		return FingerprintTypeSHA256, true
	default:
		return 0, false
	}
}

// Sentinel errors
var (
	ErrSizeMismatch = errors.New("size mismatch in group")
	ErrMmapBounds   = errors.New("mapped region exceeded")
	ErrNoParent     = errors.New("path has no parent directory")
	ErrRootMissing  = errors.New("root directory does not exist")
)
