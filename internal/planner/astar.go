package planner

import (
	"container/heap"
	"math"

	"github.com/banshee-data/pursuit/internal/grid"
)

// Path is an ordered list of cells from start to goal, both included.
type Path []grid.Cell

// Cost returns the weighted length of p: 1 per cardinal step, √2 per diagonal.
func (p Path) Cost() float64 {
	total := 0.0
	for i := 1; i < len(p); i++ {
		total += stepCost(p[i-1], p[i])
	}
	return total
}

var neighbourOffsets = [8][2]int{
	{-1, 0}, {1, 0}, {0, -1}, {0, 1},
	{-1, -1}, {-1, 1}, {1, -1}, {1, 1},
}

func stepCost(a, b grid.Cell) float64 {
	if a.Row != b.Row && a.Col != b.Col {
		return math.Sqrt2
	}
	return 1
}

func heuristic(a, b grid.Cell) float64 {
	return math.Hypot(float64(a.Row-b.Row), float64(a.Col-b.Col))
}

// openItem is a frontier entry. Entries are ordered by f, then h, then
// cell index so that equal-priority expansion is reproducible.
type openItem struct {
	f, h  float64
	index int
}

type openSet []openItem

func (o openSet) Len() int { return len(o) }
func (o openSet) Less(i, j int) bool {
	if o[i].f != o[j].f {
		return o[i].f < o[j].f
	}
	if o[i].h != o[j].h {
		return o[i].h < o[j].h
	}
	return o[i].index < o[j].index
}
func (o openSet) Swap(i, j int) { o[i], o[j] = o[j], o[i] }
func (o *openSet) Push(x any)   { *o = append(*o, x.(openItem)) }
func (o *openSet) Pop() any {
	old := *o
	n := len(old)
	it := old[n-1]
	*o = old[:n-1]
	return it
}

// AStar finds a minimum-cost 8-connected path from start to goal through free
// cells. It returns false when either endpoint is blocked or off the grid, or
// when the two are not connected.
func AStar(g *grid.OccupancyGrid, start, goal grid.Cell) (Path, bool) {
	if !g.IsFree(start) || !g.IsFree(goal) {
		return nil, false
	}

	n := g.Height * g.Width
	cost := make([]float64, n)
	for i := range cost {
		cost[i] = math.Inf(1)
	}
	cameFrom := make([]int, n)
	closed := make([]bool, n)

	startIdx := g.Index(start)
	goalIdx := g.Index(goal)
	cost[startIdx] = 0
	cameFrom[startIdx] = -1

	open := &openSet{}
	h0 := heuristic(start, goal)
	heap.Push(open, openItem{f: h0, h: h0, index: startIdx})

	for open.Len() > 0 {
		cur := heap.Pop(open).(openItem)
		if closed[cur.index] {
			continue
		}
		if cur.index == goalIdx {
			return reconstruct(g, cameFrom, goalIdx), true
		}
		closed[cur.index] = true

		c := grid.Cell{Row: cur.index / g.Width, Col: cur.index % g.Width}
		for _, off := range neighbourOffsets {
			nb := grid.Cell{Row: c.Row + off[0], Col: c.Col + off[1]}
			if !g.IsFree(nb) {
				continue
			}
			ni := g.Index(nb)
			if closed[ni] {
				continue
			}
			tentative := cost[cur.index] + stepCost(c, nb)
			if tentative < cost[ni] {
				cost[ni] = tentative
				cameFrom[ni] = cur.index
				h := heuristic(nb, goal)
				heap.Push(open, openItem{f: tentative + h, h: h, index: ni})
			}
		}
	}
	return nil, false
}

func reconstruct(g *grid.OccupancyGrid, cameFrom []int, goalIdx int) Path {
	var rev Path
	for i := goalIdx; i != -1; i = cameFrom[i] {
		rev = append(rev, grid.Cell{Row: i / g.Width, Col: i % g.Width})
	}
	for l, r := 0, len(rev)-1; l < r; l, r = l+1, r-1 {
		rev[l], rev[r] = rev[r], rev[l]
	}
	return rev
}
