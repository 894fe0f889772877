package prefs

// LabelCount is one frequency-table entry. Entries live in a slice rather
// than a map so first-seen order survives persistence and drives tie-breaks.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Counts is an ordered frequency table keyed by preference label
// ("Tuesday 14:00"). Add makes it a commutative monoid on the counts; the
// entry order of the result is first-seen across the operands left to right.
type Counts []LabelCount

// Add returns a new table with counts summed per label.
func (c Counts) Add(other Counts) Counts {
	merged := make(Counts, 0, len(c)+len(other))
	index := make(map[string]int, len(c)+len(other))
	for _, in := range [2]Counts{c, other} {
		for _, e := range in {
			if i, ok := index[e.Label]; ok {
				merged[i].Count += e.Count
				continue
			}
			index[e.Label] = len(merged)
			merged = append(merged, e)
		}
	}
	return merged
}

// Increment returns the table with the given label's count raised by one,
// appending a new entry on first occurrence.
func (c Counts) Increment(label string) Counts {
	for i := range c {
		if c[i].Label == label {
			c[i].Count++
			return c
		}
	}
	return append(c, LabelCount{Label: label, Count: 1})
}

// Top returns the label with the highest count. Ties go to the entry seen
// first. The second return is false for an empty table.
func (c Counts) Top() (string, bool) {
	if len(c) == 0 {
		return "", false
	}
	best := c[0]
	for _, e := range c[1:] {
		if e.Count > best.Count {
			best = e
		}
	}
	return best.Label, true
}
