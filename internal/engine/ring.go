package engine

// valueWindow is a fixed-capacity ring buffer over portfolio values. Reward
// strategies read their trailing windows from it, so each step is O(window)
// instead of rescanning the full run history.
type valueWindow struct {
	buf   []float64
	head  int // next write position
	count int
}

func newValueWindow(capacity int) *valueWindow {
	if capacity < 2 {
		capacity = 2
	}
	return &valueWindow{buf: make([]float64, capacity)}
}

// Push appends a value, evicting the oldest once full.
func (w *valueWindow) Push(v float64) {
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Len returns the number of stored values.
func (w *valueWindow) Len() int { return w.count }

// Cap returns the window capacity.
func (w *valueWindow) Cap() int { return len(w.buf) }

// At returns the i-th stored value, oldest first. i must be in [0, Len).
func (w *valueWindow) At(i int) float64 {
	start := (w.head - w.count + len(w.buf)) % len(w.buf)
	return w.buf[(start+i)%len(w.buf)]
}

// Last returns the most recent value, or 0 when empty.
func (w *valueWindow) Last() float64 {
	if w.count == 0 {
		return 0
	}
	return w.At(w.count - 1)
}

// Prev returns the second most recent value, or 0 when fewer than two exist.
func (w *valueWindow) Prev() float64 {
	if w.count < 2 {
		return 0
	}
	return w.At(w.count - 2)
}

// Values copies the stored values, oldest first, into dst (grown as needed)
// and returns it. Passing a reused scratch slice keeps scoring allocation-free.
func (w *valueWindow) Values(dst []float64) []float64 {
	dst = dst[:0]
	for i := 0; i < w.count; i++ {
		dst = append(dst, w.At(i))
	}
	return dst
}

// Returns copies per-step percentage returns of the stored values, oldest
// first, into dst and returns it. Zero-value steps contribute zero returns.
func (w *valueWindow) Returns(dst []float64) []float64 {
	dst = dst[:0]
	for i := 1; i < w.count; i++ {
		prev := w.At(i - 1)
		if prev != 0 {
			dst = append(dst, (w.At(i)-prev)/prev)
		} else {
			dst = append(dst, 0)
		}
	}
	return dst
}

// Reset empties the window without releasing the buffer.
func (w *valueWindow) Reset() {
	w.head = 0
	w.count = 0
}
