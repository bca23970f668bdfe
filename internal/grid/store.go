package grid

import (
	"sync/atomic"
	"time"
)

// Snapshot pairs a grid with the time it was ingested.
type Snapshot struct {
	Grid       *OccupancyGrid
	IngestedAt time.Time
}

// Store holds the most recent grid. Ingest swaps the whole snapshot so
// readers never see a grid paired with another grid's metadata.
type Store struct {
	latest atomic.Pointer[Snapshot]
	count  atomic.Uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Ingest replaces the stored grid. A nil grid is ignored.
func (s *Store) Ingest(g *OccupancyGrid, at time.Time) {
	if g == nil {
		return
	}
	s.latest.Store(&Snapshot{Grid: g, IngestedAt: at})
	s.count.Add(1)
}

// Latest returns the current snapshot and false if nothing has been ingested.
func (s *Store) Latest() (Snapshot, bool) {
	p := s.latest.Load()
	if p == nil {
		return Snapshot{}, false
	}
	return *p, true
}

// Count returns how many grids have been ingested.
func (s *Store) Count() uint64 {
	return s.count.Load()
}
