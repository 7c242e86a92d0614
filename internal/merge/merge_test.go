package merge

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
)

func TestKWayMerge(t *testing.T) {
	t.Run("three runs", func(t *testing.T) {
		got := K(func(a, b int) bool { return a < b },
			[]int{1, 4, 7},
			[]int{2, 5, 8},
			[]int{3, 6, 9},
		)
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	})

	t.Run("empty runs", func(t *testing.T) {
		got := K(func(a, b int) bool { return a < b }, nil, []int{1}, nil)
		assert.Equal(t, []int{1}, got)
		assert.Empty(t, K(func(a, b int) bool { return a < b }))
	})

	t.Run("equal keys keep run order", func(t *testing.T) {
		type pair struct{ key, run int }
		got := K(func(a, b pair) bool { return a.key < b.key },
			[]pair{{1, 0}, {2, 0}},
			[]pair{{1, 1}, {2, 1}},
		)
		assert.Equal(t, []pair{{1, 0}, {1, 1}, {2, 0}, {2, 1}}, got)
	})

	t.Run("random runs stay sorted", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		var runs [][]int
		total := 0
		for r := 0; r < 10; r++ {
			n := int(rng.Int31n(50))
			run := make([]int, n)
			for i := range run {
				run[i] = int(rng.Int31n(1000))
			}
			sort.Ints(run)
			runs = append(runs, run)
			total += n
		}
		got := K(func(a, b int) bool { return a < b }, runs...)
		assert.Len(t, got, total)
		assert.True(t, sort.IntsAreSorted(got))
	})
}
