package bump

import "gonum.org/v1/gonum/stat"

// window is a fixed-size ring of recent values. It starts full of zeros,
// so its mean ramps up over the first len(buf) pushes.
type window struct {
	buf  []float64
	next int
}

func newWindow(n int) *window {
	if n < 1 {
		n = 1
	}
	return &window{buf: make([]float64, n)}
}

func (w *window) push(v float64) {
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
}

func (w *window) mean() float64 {
	return stat.Mean(w.buf, nil)
}

func (w *window) reset() {
	clear(w.buf)
	w.next = 0
}
