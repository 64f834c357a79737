package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isPermutation(p []int) bool {
	if len(p) != 10 {
		return false
	}
	seen := [10]bool{}
	for _, v := range p {
		if v < 0 || v > 9 || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

func TestFisherYatesCallsDescending(t *testing.T) {
	var bounds []int
	p := FisherYates(func(n int) int {
		bounds = append(bounds, n)
		return n - 1
	})
	// j == i 时不交换，结果为恒等排列
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, p)
	assert.Equal(t, []int{10, 9, 8, 7, 6, 5, 4, 3, 2}, bounds)
}

func TestFisherYatesSwapFirst(t *testing.T) {
	p := FisherYates(func(n int) int { return 0 })
	require.True(t, isPermutation(p))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 0}, p)
}

func TestShufflerProducesPermutations(t *testing.T) {
	s := NewShuffler()
	for i := 0; i < 200; i++ {
		require.True(t, isPermutation(s.Permutation()))
	}
}

func TestSeededShufflerDeterministic(t *testing.T) {
	a, b := NewSeededShuffler(42), NewSeededShuffler(42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.Permutation(), b.Permutation())
	}
}

func TestShufflerCoversEveryPosition(t *testing.T) {
	s := NewSeededShuffler(7)
	var hits [10][10]int
	for i := 0; i < 2000; i++ {
		for pos, d := range s.Permutation() {
			hits[pos][d]++
		}
	}
	for pos := range hits {
		for d := range hits[pos] {
			assert.Greater(t, hits[pos][d], 0, "digit %d never at %d", d, pos)
		}
	}
}
