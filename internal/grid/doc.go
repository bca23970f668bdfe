// Package grid owns the occupancy grid and world/cell coordinate conversion.
//
// Responsibilities: grid snapshots, cell predicates, and the latest-grid store.
// Key types: OccupancyGrid, Cell, Point, Store.
//
// Conversions never bounds-check. Every cell access elsewhere must be guarded
// with InBounds or IsFree.
package grid
