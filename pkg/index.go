package torrentcombine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/vectorio"
	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"
)

var cacheSignature = [4]byte{'t', 'c', 'm', 'b'}

// maxIovecs bounds a single writev call. Linux IOV_MAX is 1024.
const maxIovecs = 1024

// memberIdentity is the recorded state of one group member.
type memberIdentity struct {
	Path        string
	Size        int64
	ModTime     int64 // Unix nanoseconds
	Fingerprint []byte
}

// cacheEntry is the recorded outcome of one group.
type cacheEntry struct {
	Key          string
	Status       GroupStatus
	Complete     bool
	LastVerified int64 // Unix seconds
	Members      []memberIdentity
}

// Record layout, host byte order, padded to RecordAlignment:
//
//	recordSize uint32 | memberCount uint32 | lastVerified int64 |
//	status uint8 | complete uint8 | keyLen uint16 | key |
//	{ size int64 | mtime int64 | pathLen uint32 | fpLen uint16 | path | fp }...
const (
	recordFixedSize = 20
	memberFixedSize = 22
)

func (e *cacheEntry) encodedSize() int {
	n := recordFixedSize + len(e.Key)
	for _, m := range e.Members {
		n += memberFixedSize + len(m.Path) + len(m.Fingerprint)
	}
	return alignUp(n, RecordAlignment)
}

func (e *cacheEntry) encode() ([]byte, error) {
	if len(e.Key) > 0xffff {
		return nil, fmt.Errorf("cache key too long: %d bytes", len(e.Key))
	}

	buf := make([]byte, e.encodedSize())
	ne := binary.NativeEndian
	ne.PutUint32(buf[0:], uint32(len(buf)))
	ne.PutUint32(buf[4:], uint32(len(e.Members)))
	ne.PutUint64(buf[8:], uint64(e.LastVerified))
	buf[16] = byte(e.Status)
	if e.Complete {
		buf[17] = 1
	}
	ne.PutUint16(buf[18:], uint16(len(e.Key)))
	off := recordFixedSize + copy(buf[recordFixedSize:], e.Key)

	for _, m := range e.Members {
		if len(m.Fingerprint) > 0xffff {
			return nil, fmt.Errorf("fingerprint too long for %s", m.Path)
		}
		ne.PutUint64(buf[off:], uint64(m.Size))
		ne.PutUint64(buf[off+8:], uint64(m.ModTime))
		ne.PutUint32(buf[off+16:], uint32(len(m.Path)))
		ne.PutUint16(buf[off+20:], uint16(len(m.Fingerprint)))
		off += memberFixedSize
		off += copy(buf[off:], m.Path)
		off += copy(buf[off:], m.Fingerprint)
	}
	return buf, nil
}

// decodeCacheEntry decodes one record from data. Strings and fingerprints
// are copied out so the result stays valid after data is unmapped.
func decodeCacheEntry(data []byte) (*cacheEntry, int, error) {
	ne := binary.NativeEndian
	if len(data) < recordFixedSize {
		return nil, 0, fmt.Errorf("truncated record: %d bytes left", len(data))
	}

	size := int(ne.Uint32(data[0:]))
	if size < recordFixedSize || size > len(data) || size%RecordAlignment != 0 {
		return nil, 0, fmt.Errorf("invalid record size %d (%d bytes left)", size, len(data))
	}
	rec := data[:size]

	members := int(ne.Uint32(rec[4:]))
	entry := &cacheEntry{
		LastVerified: int64(ne.Uint64(rec[8:])),
		Status:       GroupStatus(rec[16]),
		Complete:     rec[17] != 0,
	}

	keyLen := int(ne.Uint16(rec[18:]))
	off := recordFixedSize
	if off+keyLen > size {
		return nil, 0, fmt.Errorf("record key overruns record")
	}
	entry.Key = string(rec[off : off+keyLen])
	off += keyLen

	if members > (size-off)/memberFixedSize {
		return nil, 0, fmt.Errorf("record claims %d members in %d bytes", members, size-off)
	}
	entry.Members = make([]memberIdentity, 0, members)
	for i := 0; i < members; i++ {
		if off+memberFixedSize > size {
			return nil, 0, fmt.Errorf("member %d overruns record", i)
		}
		m := memberIdentity{
			Size:    int64(ne.Uint64(rec[off:])),
			ModTime: int64(ne.Uint64(rec[off+8:])),
		}
		pathLen := int(ne.Uint32(rec[off+16:]))
		fpLen := int(ne.Uint16(rec[off+20:]))
		off += memberFixedSize
		if off+pathLen+fpLen > size {
			return nil, 0, fmt.Errorf("member %d data overruns record", i)
		}
		m.Path = string(rec[off : off+pathLen])
		off += pathLen
		m.Fingerprint = bytes.Clone(rec[off : off+fpLen])
		off += fpLen
		entry.Members = append(entry.Members, m)
	}

	return entry, size, nil
}

// indexHeader is the fixed-size header at the start of the cache index.
type indexHeader struct {
	Signature       [4]byte
	ByteOrder       uint64
	Version         uint32
	EntryCount      uint32
	Flags           uint16
	ChecksumType    uint16
	FingerprintType uint16
	Checksum        [ChecksumSize]byte
}

func (h *indexHeader) encode() []byte {
	buf := make([]byte, HeaderSize)
	ne := binary.NativeEndian
	copy(buf[0:4], h.Signature[:])
	ne.PutUint64(buf[4:], h.ByteOrder)
	ne.PutUint32(buf[12:], h.Version)
	ne.PutUint32(buf[16:], h.EntryCount)
	ne.PutUint16(buf[20:], h.Flags)
	ne.PutUint16(buf[22:], h.ChecksumType)
	ne.PutUint16(buf[24:], h.FingerprintType)
	copy(buf[HeaderSize-ChecksumSize:], h.Checksum[:])
	return buf
}

func decodeIndexHeader(data []byte) (*indexHeader, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("index too small for header: %d bytes", len(data))
	}
	ne := binary.NativeEndian
	h := &indexHeader{
		ByteOrder:       ne.Uint64(data[4:]),
		Version:         ne.Uint32(data[12:]),
		EntryCount:      ne.Uint32(data[16:]),
		Flags:           ne.Uint16(data[20:]),
		ChecksumType:    ne.Uint16(data[22:]),
		FingerprintType: ne.Uint16(data[24:]),
	}
	copy(h.Signature[:], data[0:4])
	copy(h.Checksum[:], data[HeaderSize-ChecksumSize:HeaderSize])

	switch {
	case h.Signature != cacheSignature:
		return nil, fmt.Errorf("invalid index signature %q", h.Signature[:])
	case h.ByteOrder != ByteOrderMagic:
		return nil, fmt.Errorf("index written with a different byte order")
	case h.Version != CurrentIndexVersion:
		return nil, fmt.Errorf("unsupported index version %d", h.Version)
	case h.Flags&IndexFlagClean == 0:
		return nil, fmt.Errorf("index was not completely written")
	case h.ChecksumType != ChecksumTypeBLAKE3:
		return nil, fmt.Errorf("unsupported checksum type %d", h.ChecksumType)
	}
	return h, nil
}

// indexChecksum hashes the header with its checksum zeroed, followed by the
// record area.
func indexChecksum(h indexHeader, records ...[]byte) [ChecksumSize]byte {
	h.Checksum = [ChecksumSize]byte{}
	hasher := blake3.New()
	hasher.Write(h.encode())
	for _, r := range records {
		hasher.Write(r)
	}
	var sum [ChecksumSize]byte
	copy(sum[:], hasher.Sum(nil))
	return sum
}

// writeCacheIndex writes entries to path through a temporary file in the
// same directory that is renamed into place once complete.
func writeCacheIndex(path string, entries []*cacheEntry, fingerprintType uint16) error {
	defer VerboseEnter()()

	records := make([][]byte, 0, len(entries))
	for _, e := range entries {
		rec, err := e.encode()
		if err != nil {
			return fmt.Errorf("failed to encode cache entry %s: %w", e.Key, err)
		}
		records = append(records, rec)
	}

	header := indexHeader{
		Signature:       cacheSignature,
		ByteOrder:       ByteOrderMagic,
		Version:         CurrentIndexVersion,
		EntryCount:      uint32(len(records)),
		ChecksumType:    ChecksumTypeBLAKE3,
		FingerprintType: fingerprintType,
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	file, err := os.CreateTemp(dir, tempFilePattern())
	if err != nil {
		return fmt.Errorf("failed to create temp index file in %s: %w", dir, err)
	}
	tempPath := file.Name()
	committed := false
	defer func() {
		file.Close()
		if !committed {
			os.Remove(tempPath)
		}
	}()

	// Header first without the clean flag, so a torn write is never loaded
	if err := writevAll(file, [][]byte{header.encode()}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for offset := 0; offset < len(records); offset += maxIovecs {
		end := min(offset+maxIovecs, len(records))
		if err := writevAll(file, records[offset:end]); err != nil {
			return fmt.Errorf("failed to write records %d-%d: %w", offset, end, err)
		}
	}

	header.Flags |= IndexFlagClean
	header.Checksum = indexChecksum(header, records...)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to header: %w", err)
	}
	if err := writevAll(file, [][]byte{header.encode()}); err != nil {
		return fmt.Errorf("failed to rewrite header: %w", err)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync index file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", tempPath, path, err)
	}
	committed = true
	return nil
}

// writevAll writes bufs with a single writev and fails on a short write.
func writevAll(file *os.File, bufs [][]byte) error {
	iovecs := make([]syscall.Iovec, 0, len(bufs))
	expected := 0
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		iov := syscall.Iovec{Base: &b[0]}
		iov.SetLen(len(b))
		iovecs = append(iovecs, iov)
		expected += len(b)
	}
	if len(iovecs) == 0 {
		return nil
	}

	nw, err := vectorio.WritevRaw(uintptr(file.Fd()), iovecs)
	if err != nil {
		return err
	}
	if nw != expected {
		return fmt.Errorf("incomplete write: wrote %d bytes, expected %d", nw, expected)
	}
	return nil
}

// indexContents is a decoded cache index.
type indexContents struct {
	FingerprintType uint16
	Entries         []*cacheEntry
}

// readCacheIndex maps the index read-only, verifies it and decodes every
// record.
func readCacheIndex(path string) (*indexContents, error) {
	defer VerboseEnter()()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat index file %s: %w", path, err)
	}
	if info.Size() < HeaderSize {
		return nil, fmt.Errorf("index file %s too small: %d bytes", path, info.Size())
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap index file %s: %w", path, err)
	}
	defer unix.Munmap(data)

	header, err := decodeIndexHeader(data)
	if err != nil {
		return nil, fmt.Errorf("index file %s: %w", path, err)
	}
	if sum := indexChecksum(*header, data[HeaderSize:]); sum != header.Checksum {
		return nil, fmt.Errorf("index file %s: checksum mismatch", path)
	}

	contents := &indexContents{
		FingerprintType: header.FingerprintType,
		Entries:         make([]*cacheEntry, 0, header.EntryCount),
	}
	rest := data[HeaderSize:]
	for i := uint32(0); i < header.EntryCount; i++ {
		entry, n, err := decodeCacheEntry(rest)
		if err != nil {
			return nil, fmt.Errorf("index file %s: record %d: %w", path, i, err)
		}
		contents.Entries = append(contents.Entries, entry)
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("index file %s: %d trailing bytes", path, len(rest))
	}
	return contents, nil
}
