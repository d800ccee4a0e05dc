package systems

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func squareBox(x, y, half float64) r2.Box {
	return r2.Box{Min: r2.Vec{X: x - half, Y: y - half}, Max: r2.Vec{X: x + half, Y: y + half}}
}

func TestHashGridRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		levels int
		ratio  int
	}{
		{"single level", 1, 1},
		{"two levels ratio 2", 2, 2},
		{"three levels ratio 4", 3, 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := NewHashGrid[int, int](100, tc.levels, tc.ratio)
			rng := rand.New(rand.NewSource(3))
			const n = 500
			for i := 0; i < n; i++ {
				// Mix of tiny items and items spanning several cells
				half := rng.Float64() * 10
				if i%7 == 0 {
					half = 50 + rng.Float64()*600
				}
				g.Add(i, i, squareBox(rng.Float64()*4000-2000, rng.Float64()*4000-2000, half))
			}
			require.Equal(t, n, g.Len())

			got := g.Query(squareBox(0, 0, 5000), nil)
			require.Len(t, got, n)
			seen := make(map[int]bool, n)
			for _, v := range got {
				assert.False(t, seen[v], "item %d reported twice", v)
				seen[v] = true
			}
		})
	}
}

func TestHashGridQueryIsExact(t *testing.T) {
	g := NewHashGrid[int, int](100, 2, 2)
	g.Add(1, 1, squareBox(0, 0, 5))
	g.Add(2, 2, squareBox(120, 0, 5))
	g.Add(3, 3, squareBox(0, 0, 300)) // large, lives on the top level

	got := g.Query(squareBox(60, 0, 10), nil)
	assert.ElementsMatch(t, []int{3}, got)

	got = g.Query(squareBox(118, 0, 1), nil)
	assert.ElementsMatch(t, []int{2, 3}, got)
}

func TestHashGridMoveAndRemove(t *testing.T) {
	g := NewHashGrid[int, string](100, 2, 2)
	loc := g.Add(7, "a", squareBox(0, 0, 5))

	loc = g.Move(7, "b", loc, squareBox(1000, 1000, 5))
	assert.Empty(t, g.Query(squareBox(0, 0, 50), nil))
	assert.Equal(t, []string{"b"}, g.Query(squareBox(1000, 1000, 50), nil))

	// Move within the same cell keeps the location and updates the value
	same := g.Move(7, "c", loc, squareBox(1001, 1001, 5))
	assert.Equal(t, loc, same)
	assert.Equal(t, []string{"c"}, g.Query(squareBox(1000, 1000, 50), nil))

	assert.True(t, g.Remove(7, same))
	assert.False(t, g.Remove(7, same))
	assert.Equal(t, 0, g.Len())
	assert.Empty(t, g.Query(squareBox(1000, 1000, 5000), nil))
}

func TestHashGridHugeQueryWalksOccupiedCells(t *testing.T) {
	g := NewHashGrid[int, int](1000, 2, 4)
	g.Add(1, 1, squareBox(500, 500, 3))
	g.Add(2, 2, squareBox(-90000, 40000, 3))

	got := g.Query(squareBox(0, 0, 100000), nil)
	assert.ElementsMatch(t, []int{1, 2}, got)
}

func TestHashGridHugeQueryOrderIsStable(t *testing.T) {
	g := NewHashGrid[int, int](100, 1, 1)
	for i := 29; i >= 0; i-- {
		g.Add(i, i, squareBox(float64(i)*100+50, 50, 1))
	}

	var first []int
	g.Visit(squareBox(0, 0, 100000), func(k, _ int, _ r2.Box) bool {
		first = append(first, k)
		return len(first) < 5
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, first, "occupied cells walked in row order")

	want := g.Query(squareBox(0, 0, 100000), nil)
	for range 20 {
		assert.Equal(t, want, g.Query(squareBox(0, 0, 100000), nil))
	}
}
