package torrentcombine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// FingerprintAlgorithm represents a fingerprint hash configuration
type FingerprintAlgorithm struct {
	Name    string
	TypeID  uint16
	Size    int
	NewFunc func() hash.Hash
}

// GetFingerprintAlgorithm returns the fingerprint algorithm for the given name
func GetFingerprintAlgorithm(name string) (*FingerprintAlgorithm, error) {
	switch strings.ToLower(name) {
	case "", "xxhash", "xxh64":
		return &FingerprintAlgorithm{
			Name:    "xxhash",
			TypeID:  FingerprintTypeXXHash,
			Size:    8,
			NewFunc: func() hash.Hash { return xxhash.New() },
		}, nil
	case "blake3":
		return &FingerprintAlgorithm{
			Name:    "blake3",
			TypeID:  FingerprintTypeBLAKE3,
			Size:    32,
			NewFunc: func() hash.Hash { return blake3.New() },
		}, nil
	case "sha256":
		return &FingerprintAlgorithm{
			Name:    "sha256",
			TypeID:  FingerprintTypeSHA256,
			Size:    sha256.Size,
			NewFunc: func() hash.Hash { return sha256.New() },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported fingerprint algorithm: %s", name)
	}
}

// GetFingerprintAlgorithmByType returns the fingerprint algorithm for the given type ID
func GetFingerprintAlgorithmByType(typeID uint16) (*FingerprintAlgorithm, error) {
	name := FingerprintTypeName(typeID)
	if name == "unknown" {
		return nil, fmt.Errorf("unsupported fingerprint type ID: %d", typeID)
	}
	return GetFingerprintAlgorithm(name)
}

// FingerprintFile hashes the identity of a file cheaply: its path, size and
// modification time plus the first FingerprintSampleSize bytes and, for
// files larger than two samples, the last FingerprintSampleSize bytes.
func FingerprintFile(path string, algorithm *FingerprintAlgorithm) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file %s: %w", path, err)
	}

	hasher := algorithm.NewFunc()
	io.WriteString(hasher, path)

	var meta [16]byte
	binary.LittleEndian.PutUint64(meta[0:8], uint64(info.Size()))
	binary.LittleEndian.PutUint64(meta[8:16], uint64(info.ModTime().UnixNano()))
	hasher.Write(meta[:])

	if _, err := io.CopyN(hasher, file, FingerprintSampleSize); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read head of %s: %w", path, err)
	}

	if info.Size() > 2*FingerprintSampleSize {
		tail := io.NewSectionReader(file, info.Size()-FingerprintSampleSize, FingerprintSampleSize)
		if _, err := io.Copy(hasher, tail); err != nil {
			return nil, fmt.Errorf("failed to read tail of %s: %w", path, err)
		}
	}

	return hasher.Sum(nil), nil
}

// FingerprintFileToHexString fingerprints a file and returns it as a hex string
func FingerprintFileToHexString(path string, algorithm *FingerprintAlgorithm) (string, error) {
	sum, err := FingerprintFile(path, algorithm)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}
