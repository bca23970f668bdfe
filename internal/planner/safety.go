package planner

import "github.com/banshee-data/pursuit/internal/grid"

// IsSafe reports whether every waypoint and its full 8-neighbourhood is free.
// An empty path is never safe. Cells next to the grid edge fail because their
// neighbours are out of bounds.
func IsSafe(g *grid.OccupancyGrid, p Path) bool {
	if len(p) == 0 {
		return false
	}
	for _, c := range p {
		for dr := -1; dr <= 1; dr++ {
			for dc := -1; dc <= 1; dc++ {
				if !g.IsFree(grid.Cell{Row: c.Row + dr, Col: c.Col + dc}) {
					return false
				}
			}
		}
	}
	return true
}
