package training

// History accumulates named scalar series across a run. Series are
// append-only and never reset mid-run; checkpointing serializes the
// whole map.
type History map[string][]float64

// Append adds one value to the named series, creating it on first use.
func (h History) Append(name string, v float64) {
	h[name] = append(h[name], v)
}

// MeanLast returns the mean of the trailing n entries of a series (or
// of the whole series when shorter). Returns 0 for an empty series.
func (h History) MeanLast(name string, n int) float64 {
	s := h[name]
	if len(s) == 0 {
		return 0
	}
	if n > len(s) {
		n = len(s)
	}
	var sum float64
	for _, v := range s[len(s)-n:] {
		sum += v
	}
	return sum / float64(n)
}
