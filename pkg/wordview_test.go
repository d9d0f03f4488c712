package torrentcombine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordView(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	v := newWordView(buf)

	assert.Equal(t, 1, v.Words())
	assert.Equal(t, []byte{9, 10, 11}, v.Tail())
	assert.False(t, v.IsZero())

	v.PutWord(0, 0)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 9, 10, 11}, buf)

	assert.True(t, newWordView(make([]byte, 21)).IsZero())
	assert.True(t, newWordView(nil).IsZero())
}

func TestWordCompatible(t *testing.T) {
	tests := []struct {
		name   string
		word   []byte
		merged []byte
		want   bool
	}{
		{"equal", []byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{1, 2, 3, 4, 5, 6, 7, 8}, true},
		{"holes", []byte{1, 0, 3, 0, 0, 6, 0, 8}, []byte{1, 2, 3, 4, 5, 6, 7, 8}, true},
		{"all zero", make([]byte, 8), []byte{1, 2, 3, 4, 5, 6, 7, 8}, true},
		{"disagree", []byte{1, 2, 3, 4, 5, 6, 7, 9}, []byte{1, 2, 3, 4, 5, 6, 7, 8}, false},
		{"disagree first byte", []byte{0x34, 0, 0, 0, 0, 0, 0, 0}, []byte{0x35, 0, 0, 0, 0, 0, 0, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWordView(tt.word).Word(0)
			m := newWordView(tt.merged).Word(0)
			assert.Equal(t, tt.want, wordCompatible(w, m))
			assert.Equal(t, tt.want, byteKernel{}.compatible(tt.word, tt.merged))
		})
	}
}

// The word kernel must agree with the byte kernel on every input,
// including lengths that leave a tail.
func TestKernelEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	lengths := []int{0, 1, 7, 8, 9, 15, 16, 63, 64, 65, 1000, 4099}

	for _, n := range lengths {
		for round := 0; round < 20; round++ {
			a := sparseBytes(rng, n)
			b := sparseBytes(rng, n)

			wordOr := append([]byte(nil), a...)
			byteOr := append([]byte(nil), a...)
			wordKernel{}.orInto(wordOr, b)
			byteKernel{}.orInto(byteOr, b)
			require.Equal(t, byteOr, wordOr, "orInto length %d round %d", n, round)

			require.Equal(t,
				byteKernel{}.compatible(a, b),
				wordKernel{}.compatible(a, b),
				"compatible(a, b) length %d round %d", n, round)
			require.Equal(t,
				byteKernel{}.compatible(a, byteOr),
				wordKernel{}.compatible(a, wordOr),
				"compatible(a, or) length %d round %d", n, round)
		}
	}
}

func TestMergeChunk(t *testing.T) {
	for _, k := range []chunkKernel{wordKernel{}, byteKernel{}} {
		chunks := [][]byte{{1, 0, 0}, {0, 1, 0}, {1, 1, 0}}
		merged := make([]byte, 3)
		complete := []bool{true, true, true}

		ok := mergeChunk(k, chunks, merged, complete)
		assert.True(t, ok)
		assert.Equal(t, []byte{1, 1, 0}, merged)
		assert.Equal(t, []bool{false, false, true}, complete)

		// Completeness is sticky across chunks
		ok = mergeChunk(k, [][]byte{{5}, {5}, {5}}, merged[:1], complete)
		assert.True(t, ok)
		assert.Equal(t, []bool{false, false, true}, complete)
	}
}

// sparseBytes returns random bytes where about half are holes, drawn from a
// tiny alphabet so that disagreements and agreements both occur.
func sparseBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		if rng.Intn(2) == 0 {
			b[i] = byte(rng.Intn(3))
		}
	}
	return b
}
