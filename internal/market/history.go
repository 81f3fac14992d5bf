package market

// DefaultHistoryCapacity is the number of trades kept per selection.
const DefaultHistoryCapacity = 100

// PostStartClock marks history entries recorded after the scheduled start.
const PostStartClock = -1.0

// HistoryEntry is one trade that cleared the noise floor.
type HistoryEntry struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
	Clock float64 `json:"clock"`
}

// History is a fixed-capacity circular buffer of trades. When full, the
// oldest entry is overwritten.
type History struct {
	buf   []HistoryEntry
	start int
	n     int
}

// NewHistory allocates a buffer holding at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{buf: make([]HistoryEntry, capacity)}
}

// Append adds an entry, evicting the oldest one on overflow.
func (h *History) Append(e HistoryEntry) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = e
		h.n++
		return
	}
	h.buf[h.start] = e
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return h.n
}

// Cap returns the buffer capacity.
func (h *History) Cap() int {
	if h == nil {
		return 0
	}
	return len(h.buf)
}

// At returns the i-th entry counted from the oldest one.
func (h *History) At(i int) HistoryEntry {
	return h.buf[(h.start+i)%len(h.buf)]
}

// Entries copies the stored entries, oldest first.
func (h *History) Entries() []HistoryEntry {
	if h == nil || h.n == 0 {
		return nil
	}
	out := make([]HistoryEntry, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.At(i)
	}
	return out
}

// Each calls fn for every entry, oldest first.
func (h *History) Each(fn func(HistoryEntry)) {
	if h == nil {
		return
	}
	for i := 0; i < h.n; i++ {
		fn(h.At(i))
	}
}
