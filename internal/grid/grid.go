package grid

import (
	"errors"
	"fmt"
	"math"
)

// Free is the cell value for traversable space. Any other value is occupied.
const Free uint8 = 1

// ErrInvalidGrid is returned by New and FromMessage for inconsistent dimensions.
var ErrInvalidGrid = errors.New("invalid occupancy grid")

// Cell addresses a grid cell by row (y axis) and column (x axis).
type Cell struct {
	Row int
	Col int
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Point is a world-frame position in meters.
type Point struct {
	X float64
	Y float64
}

// OccupancyGrid is an immutable, dense, row-major snapshot of cell states.
// Cell (0,0) has its lower-left corner at (MinX, MinY).
type OccupancyGrid struct {
	Data       []uint8
	Height     int
	Width      int
	Resolution float64 // meters per cell
	MinX       float64
	MinY       float64
	MaxX       float64
	MaxY       float64
}

// New builds a grid and checks that the data matches the declared shape.
// MaxX and MaxY are derived from the shape.
func New(data []uint8, height, width int, resolution, minX, minY float64) (*OccupancyGrid, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: shape %dx%d", ErrInvalidGrid, height, width)
	}
	// Compare without multiplying so huge declared shapes cannot wrap.
	if width > len(data)/height || len(data) != height*width {
		return nil, fmt.Errorf("%w: %d cells for shape %dx%d", ErrInvalidGrid, len(data), height, width)
	}
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return nil, fmt.Errorf("%w: resolution %v", ErrInvalidGrid, resolution)
	}
	if !isFinite(minX) || !isFinite(minY) {
		return nil, fmt.Errorf("%w: origin (%v, %v)", ErrInvalidGrid, minX, minY)
	}
	return &OccupancyGrid{
		Data:       data,
		Height:     height,
		Width:      width,
		Resolution: resolution,
		MinX:       minX,
		MinY:       minY,
		MaxX:       minX + float64(width)*resolution,
		MaxY:       minY + float64(height)*resolution,
	}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Filled returns a height x width grid with every cell set to v.
func Filled(height, width int, resolution, minX, minY float64, v uint8) *OccupancyGrid {
	data := make([]uint8, height*width)
	for i := range data {
		data[i] = v
	}
	g, err := New(data, height, width, resolution, minX, minY)
	if err != nil {
		panic(err)
	}
	return g
}

// Index returns the row-major offset of c. It does not bounds-check.
func (g *OccupancyGrid) Index(c Cell) int {
	return c.Row*g.Width + c.Col
}

// At returns the raw value of an in-bounds cell.
func (g *OccupancyGrid) At(c Cell) uint8 {
	return g.Data[g.Index(c)]
}

// InBounds reports whether c lies inside the grid.
func (g *OccupancyGrid) InBounds(c Cell) bool {
	return c.Row >= 0 && c.Row < g.Height && c.Col >= 0 && c.Col < g.Width
}

// IsFree reports whether c is in bounds and traversable.
func (g *OccupancyGrid) IsFree(c Cell) bool {
	return g.InBounds(c) && g.Data[g.Index(c)] == Free
}

// WorldToGrid maps a world point to the cell containing it.
func (g *OccupancyGrid) WorldToGrid(x, y float64) Cell {
	return Cell{
		Row: int(math.Floor((y - g.MinY) / g.Resolution)),
		Col: int(math.Floor((x - g.MinX) / g.Resolution)),
	}
}

// GridToWorld returns the world position of the cell centre.
func (g *OccupancyGrid) GridToWorld(c Cell) Point {
	return Point{
		X: g.MinX + (float64(c.Col)+0.5)*g.Resolution,
		Y: g.MinY + (float64(c.Row)+0.5)*g.Resolution,
	}
}

// WithCells returns a copy of g with the given cells set to v.
// Out-of-bounds cells are ignored.
func (g *OccupancyGrid) WithCells(v uint8, cells ...Cell) *OccupancyGrid {
	cp := *g
	cp.Data = append([]uint8(nil), g.Data...)
	for _, c := range cells {
		if cp.InBounds(c) {
			cp.Data[cp.Index(c)] = v
		}
	}
	return &cp
}

// FreeCount returns the number of free cells.
func (g *OccupancyGrid) FreeCount() int {
	n := 0
	for _, v := range g.Data {
		if v == Free {
			n++
		}
	}
	return n
}

// Pose is a planar robot pose in the world frame. Theta is in radians.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}
