package arena

// spatialGrid provides neighbor lookups using a cell-based grid over the arena.
// It stores agent slots; iteration order is cell row-major then insertion order,
// which keeps queries deterministic.
type spatialGrid struct {
	cellSize float64
	cols     int
	rows     int
	minX     float64
	minZ     float64
	cells    [][]int
}

func newSpatialGrid(width, depth, cellSize float64) *spatialGrid {
	cols := int(width/cellSize) + 1
	rows := int(depth/cellSize) + 1

	cells := make([][]int, cols*rows)
	for i := range cells {
		cells[i] = make([]int, 0, 4)
	}

	return &spatialGrid{
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		minX:     -width / 2,
		minZ:     -depth / 2,
		cells:    cells,
	}
}

func (g *spatialGrid) clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

func (g *spatialGrid) insert(slot int, x, z float64) {
	cx, cz := g.cellCoords(x, z)
	idx := cz*g.cols + cx
	g.cells[idx] = append(g.cells[idx], slot)
}

// query calls fn for every slot in cells overlapping the square around (x, z).
// Callers filter by exact distance.
func (g *spatialGrid) query(x, z, radius float64, fn func(slot int)) {
	minCX, minCZ := g.cellCoords(x-radius, z-radius)
	maxCX, maxCZ := g.cellCoords(x+radius, z+radius)

	for cz := minCZ; cz <= maxCZ; cz++ {
		for cx := minCX; cx <= maxCX; cx++ {
			for _, slot := range g.cells[cz*g.cols+cx] {
				fn(slot)
			}
		}
	}
}

func (g *spatialGrid) cellCoords(x, z float64) (int, int) {
	cx := int((x - g.minX) / g.cellSize)
	cz := int((z - g.minZ) / g.cellSize)
	if cx < 0 {
		cx = 0
	} else if cx >= g.cols {
		cx = g.cols - 1
	}
	if cz < 0 {
		cz = 0
	} else if cz >= g.rows {
		cz = g.rows - 1
	}
	return cx, cz
}
