package systems

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/squadsim/components"
	"github.com/pthm-cable/squadsim/config"
)

type cellKey struct {
	X, Y int32
}

type gridEntry[K comparable, V any] struct {
	Key   K
	Value V
	Box   r2.Box
}

type gridLevel[K comparable, V any] struct {
	cellSize float64
	cells    map[cellKey][]gridEntry[K, V]
}

// HashGrid is a multi-level 2D spatial hash keyed by axis-aligned bounds.
// An item lives on the finest level whose cell size covers its larger extent
// and is stored in every cell its bounds touch on that level.
//
// Structural calls (Add, Move, Remove) must not run concurrently with
// anything else. Query is safe for concurrent readers.
type HashGrid[K comparable, V any] struct {
	levels []gridLevel[K, V]
	count  int
}

// NewHashGrid creates a grid whose level k has cell size cellSize*ratio^k.
func NewHashGrid[K comparable, V any](cellSize float64, levels, ratio int) *HashGrid[K, V] {
	if levels < 1 {
		levels = 1
	}
	if ratio < 1 {
		ratio = 1
	}
	g := &HashGrid[K, V]{levels: make([]gridLevel[K, V], levels)}
	size := cellSize
	for i := range g.levels {
		g.levels[i] = gridLevel[K, V]{
			cellSize: size,
			cells:    make(map[cellKey][]gridEntry[K, V]),
		}
		size *= float64(ratio)
	}
	return g
}

// NewHashGridFromConfig creates a grid from a config section.
func NewHashGridFromConfig[K comparable, V any](c config.GridConfig) *HashGrid[K, V] {
	return NewHashGrid[K, V](c.CellSize, c.Levels, c.Ratio)
}

// Len returns the number of items in the grid.
func (g *HashGrid[K, V]) Len() int {
	return g.count
}

// Add inserts an item and returns the location needed to move or remove it.
func (g *HashGrid[K, V]) Add(key K, value V, box r2.Box) components.CellLocation {
	loc := g.locate(box)
	g.insertAt(loc, gridEntry[K, V]{Key: key, Value: value, Box: box})
	g.count++
	return loc
}

// Move updates an item's bounds and value, returning its new location.
func (g *HashGrid[K, V]) Move(key K, value V, loc components.CellLocation, box r2.Box) components.CellLocation {
	newLoc := g.locate(box)
	if newLoc == loc {
		lvl := &g.levels[loc.Level]
		forCells(loc, func(k cellKey) {
			entries := lvl.cells[k]
			for i := range entries {
				if entries[i].Key == key {
					entries[i].Value = value
					entries[i].Box = box
					break
				}
			}
		})
		return loc
	}
	g.removeAt(key, loc)
	g.insertAt(newLoc, gridEntry[K, V]{Key: key, Value: value, Box: box})
	return newLoc
}

// Remove deletes an item. It reports whether the item was found.
func (g *HashGrid[K, V]) Remove(key K, loc components.CellLocation) bool {
	if g.removeAt(key, loc) {
		g.count--
		return true
	}
	return false
}

// Query appends every item whose bounds intersect box to dst, once each.
func (g *HashGrid[K, V]) Query(box r2.Box, dst []V) []V {
	g.Visit(box, func(_ K, v V, _ r2.Box) bool {
		dst = append(dst, v)
		return true
	})
	return dst
}

// Visit calls fn for every item whose bounds intersect box, once each.
// Cells are walked row by row from the box minimum on every level, so the
// order only depends on the grid contents. Returning false from fn stops
// the walk.
func (g *HashGrid[K, V]) Visit(box r2.Box, fn func(key K, value V, bounds r2.Box) bool) {
	for li := range g.levels {
		lvl := &g.levels[li]
		if len(lvl.cells) == 0 {
			continue
		}
		minX, minY := cellCoord(box.Min, lvl.cellSize)
		maxX, maxY := cellCoord(box.Max, lvl.cellSize)
		span := (int64(maxX) - int64(minX) + 1) * (int64(maxY) - int64(minY) + 1)
		if span > int64(len(lvl.cells)) {
			// Huge query box: walk the occupied cells, sorted into row order.
			keys := make([]cellKey, 0, len(lvl.cells))
			for k := range lvl.cells {
				if k.X < minX || k.X > maxX || k.Y < minY || k.Y > maxY {
					continue
				}
				keys = append(keys, k)
			}
			slices.SortFunc(keys, compareCells)
			for _, k := range keys {
				if !visitCell(k, lvl.cells[k], box, lvl.cellSize, fn) {
					return
				}
			}
			continue
		}
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				k := cellKey{x, y}
				if !visitCell(k, lvl.cells[k], box, lvl.cellSize, fn) {
					return
				}
			}
		}
	}
}

func compareCells(a, b cellKey) int {
	if c := cmp.Compare(a.Y, b.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.X, b.X)
}

func visitCell[K comparable, V any](k cellKey, entries []gridEntry[K, V], box r2.Box, cellSize float64, fn func(K, V, r2.Box) bool) bool {
	for _, e := range entries {
		if !boxesOverlap(e.Box, box) {
			continue
		}
		// Report a multi-cell item only from the cell holding the min corner
		// of the overlap region.
		ox, oy := cellCoord(r2.Vec{X: max(e.Box.Min.X, box.Min.X), Y: max(e.Box.Min.Y, box.Min.Y)}, cellSize)
		if ox != k.X || oy != k.Y {
			continue
		}
		if !fn(e.Key, e.Value, e.Box) {
			return false
		}
	}
	return true
}

// Clear removes all items.
func (g *HashGrid[K, V]) Clear() {
	for i := range g.levels {
		clear(g.levels[i].cells)
	}
	g.count = 0
}

func (g *HashGrid[K, V]) locate(box r2.Box) components.CellLocation {
	extent := max(box.Max.X-box.Min.X, box.Max.Y-box.Min.Y)
	level := len(g.levels) - 1
	for i := range g.levels {
		if extent <= g.levels[i].cellSize {
			level = i
			break
		}
	}
	size := g.levels[level].cellSize
	minX, minY := cellCoord(box.Min, size)
	maxX, maxY := cellCoord(box.Max, size)
	return components.CellLocation{Level: int8(level), MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

func (g *HashGrid[K, V]) insertAt(loc components.CellLocation, e gridEntry[K, V]) {
	lvl := &g.levels[loc.Level]
	forCells(loc, func(k cellKey) {
		lvl.cells[k] = append(lvl.cells[k], e)
	})
}

func (g *HashGrid[K, V]) removeAt(key K, loc components.CellLocation) bool {
	if int(loc.Level) < 0 || int(loc.Level) >= len(g.levels) {
		return false
	}
	lvl := &g.levels[loc.Level]
	found := false
	forCells(loc, func(k cellKey) {
		entries := lvl.cells[k]
		for i := range entries {
			if entries[i].Key != key {
				continue
			}
			last := len(entries) - 1
			entries[i] = entries[last]
			entries = entries[:last]
			found = true
			break
		}
		if len(entries) == 0 {
			delete(lvl.cells, k)
		} else {
			lvl.cells[k] = entries
		}
	})
	return found
}

func forCells(loc components.CellLocation, fn func(cellKey)) {
	for y := loc.MinY; y <= loc.MaxY; y++ {
		for x := loc.MinX; x <= loc.MaxX; x++ {
			fn(cellKey{x, y})
		}
	}
}

func cellCoord(p r2.Vec, size float64) (int32, int32) {
	return int32(math.Floor(p.X / size)), int32(math.Floor(p.Y / size))
}

func boxesOverlap(a, b r2.Box) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y
}
