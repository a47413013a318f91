package gesture

// windowCap is the number of direction edges a chop gesture spans.
const windowCap = 4

// window is a fixed-capacity ring of the most recent direction edges.
// When full, pushing drops the oldest entry.
type window struct {
	data [windowCap]int8
	pos  int
	n    int
}

// push appends d, overwriting the oldest entry when full.
func (w *window) push(d int8) {
	w.data[w.pos] = d
	w.pos = (w.pos + 1) % windowCap
	if w.n < windowCap {
		w.n++
	}
}

// clear empties the window.
func (w *window) clear() {
	w.pos = 0
	w.n = 0
}

// Len returns the number of stored edges.
func (w *window) Len() int { return w.n }

// at returns the i-th entry in insertion order (0 = oldest).
func (w *window) at(i int) int8 {
	start := w.pos - w.n
	if start < 0 {
		start += windowCap
	}
	return w.data[(start+i)%windowCap]
}

// equals reports whether the window holds exactly seq, oldest first.
func (w *window) equals(seq [windowCap]int8) bool {
	if w.n != windowCap {
		return false
	}
	for i := range windowCap {
		if w.at(i) != seq[i] {
			return false
		}
	}
	return true
}

// Slice returns the contents in insertion order.
func (w *window) Slice() []int8 {
	out := make([]int8, w.n)
	for i := range w.n {
		out[i] = w.at(i)
	}
	return out
}
