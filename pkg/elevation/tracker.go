package elevation

import "sort"

// tracker is the multiset of destination paths awaiting a completion event.
// Completions are matched by path only, in whatever order they arrive. A
// path dispatched twice needs two completions.
type tracker struct {
	counts map[string]int
	total  int
}

func newTracker() *tracker {
	return &tracker{counts: make(map[string]int)}
}

func (t *tracker) add(path string) {
	t.counts[path]++
	t.total++
}

// remove reports whether path was pending
func (t *tracker) remove(path string) bool {
	n, ok := t.counts[path]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(t.counts, path)
	} else {
		t.counts[path] = n - 1
	}
	t.total--
	return true
}

func (t *tracker) len() int {
	return t.total
}

// paths returns the distinct pending paths, sorted
func (t *tracker) paths() []string {
	out := make([]string, 0, len(t.counts))
	for p := range t.counts {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// reset empties the tracker and returns what was pending
func (t *tracker) reset() []string {
	abandoned := t.paths()
	t.counts = make(map[string]int)
	t.total = 0
	return abandoned
}
