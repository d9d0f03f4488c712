package torrentcombine

import (
	"bytes"
	"encoding/binary"
)

// wordView presents a byte chunk as a run of 8-byte words followed by a
// byte remainder shorter than a word. Words use the host byte order, so two
// words are equal exactly when their eight bytes are.
type wordView struct {
	buf   []byte
	words int
}

func newWordView(b []byte) wordView {
	return wordView{buf: b, words: len(b) / WordSize}
}

// Words returns the number of whole words in the chunk.
func (v wordView) Words() int {
	return v.words
}

// Word returns word i.
func (v wordView) Word(i int) uint64 {
	return binary.NativeEndian.Uint64(v.buf[i*WordSize:])
}

// PutWord stores word i.
func (v wordView) PutWord(i int, w uint64) {
	binary.NativeEndian.PutUint64(v.buf[i*WordSize:], w)
}

// Tail returns the bytes after the last whole word.
func (v wordView) Tail() []byte {
	return v.buf[v.words*WordSize:]
}

// IsZero reports whether every byte of the chunk is zero.
func (v wordView) IsZero() bool {
	for i := 0; i < v.words; i++ {
		if v.Word(i) != 0 {
			return false
		}
	}
	for _, b := range v.Tail() {
		if b != 0 {
			return false
		}
	}
	return true
}

// chunkKernel is the inner loop of the merge scan. Both implementations
// must agree on every input.
type chunkKernel interface {
	// orInto sets dst[p] |= src[p] for every position of dst.
	orInto(dst, src []byte)
	// compatible reports whether every byte of src is either zero or equal
	// to the merged byte at the same position.
	compatible(src, merged []byte) bool
}

type byteKernel struct{}

func (byteKernel) orInto(dst, src []byte) {
	src = src[:len(dst)]
	for i := range dst {
		dst[i] |= src[i]
	}
}

func (byteKernel) compatible(src, merged []byte) bool {
	merged = merged[:len(src)]
	for i, b := range src {
		if b != 0 && b != merged[i] {
			return false
		}
	}
	return true
}

type wordKernel struct{}

func (wordKernel) orInto(dst, src []byte) {
	d := newWordView(dst)
	s := newWordView(src[:len(dst)])
	for i := 0; i < d.Words(); i++ {
		d.PutWord(i, d.Word(i)|s.Word(i))
	}
	byteKernel{}.orInto(d.Tail(), s.Tail())
}

func (wordKernel) compatible(src, merged []byte) bool {
	s := newWordView(src)
	m := newWordView(merged[:len(src)])
	for i := 0; i < s.Words(); i++ {
		if !wordCompatible(s.Word(i), m.Word(i)) {
			return false
		}
	}
	return byteKernel{}.compatible(s.Tail(), m.Tail())
}

// wordCompatible applies the hole rule to each byte of a word that differs
// from the merged word.
func wordCompatible(w, merged uint64) bool {
	if w == merged {
		return true
	}
	for k := 0; k < WordSize; k++ {
		shift := uint(k * 8)
		b := byte(w >> shift)
		if b != 0 && b != byte(merged>>shift) {
			return false
		}
	}
	return true
}

// mergeChunk folds one chunk from every candidate into merged and checks
// each candidate against the result. A candidate that differs anywhere is
// marked incomplete; marks are never cleared. It returns false on the first
// candidate that carries a non-zero byte the merged chunk disagrees with.
func mergeChunk(k chunkKernel, chunks [][]byte, merged []byte, complete []bool) bool {
	copy(merged, chunks[0])
	for _, c := range chunks[1:] {
		k.orInto(merged, c)
	}

	for i, c := range chunks {
		if bytes.Equal(c, merged) {
			continue
		}
		complete[i] = false
		if !k.compatible(c, merged) {
			return false
		}
	}
	return true
}
