package grid

import "fmt"

// Message is the wire form of a grid snapshot. Data is a list of integers
// rather than []uint8 so that JSON carries an array instead of base64.
type Message struct {
	Data       []int   `json:"data"`
	Height     int     `json:"height"`
	Width      int     `json:"width"`
	Resolution float64 `json:"resolution"`
	MinX       float64 `json:"min_x"`
	MaxX       float64 `json:"max_x"`
	MinY       float64 `json:"min_y"`
	MaxY       float64 `json:"max_y"`
}

// FromMessage validates a wire snapshot and converts it to a grid.
// Declared MaxX/MaxY are kept when present.
func FromMessage(m Message) (*OccupancyGrid, error) {
	data := make([]uint8, len(m.Data))
	for i, v := range m.Data {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: cell %d value %d out of range", ErrInvalidGrid, i, v)
		}
		data[i] = uint8(v)
	}
	g, err := New(data, m.Height, m.Width, m.Resolution, m.MinX, m.MinY)
	if err != nil {
		return nil, err
	}
	if m.MaxX > m.MinX {
		g.MaxX = m.MaxX
	}
	if m.MaxY > m.MinY {
		g.MaxY = m.MaxY
	}
	return g, nil
}

// ToMessage converts a grid to its wire form.
func ToMessage(g *OccupancyGrid) Message {
	data := make([]int, len(g.Data))
	for i, v := range g.Data {
		data[i] = int(v)
	}
	return Message{
		Data:       data,
		Height:     g.Height,
		Width:      g.Width,
		Resolution: g.Resolution,
		MinX:       g.MinX,
		MaxX:       g.MaxX,
		MinY:       g.MinY,
		MaxY:       g.MaxY,
	}
}
