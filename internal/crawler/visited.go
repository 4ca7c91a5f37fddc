package crawler

import "sync"

// visitedSet records the titles entered during one top-level crawl. It is
// shared by every goroutine of that crawl and never across crawls.
type visitedSet struct {
	mu     sync.Mutex
	titles map[string]struct{}
}

func newVisitedSet() *visitedSet {
	return &visitedSet{titles: make(map[string]struct{})}
}

// mark adds title and reports whether it was new. Check and insert happen
// under one lock so two siblings can never both claim the same title.
func (v *visitedSet) mark(title string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, seen := v.titles[title]; seen {
		return false
	}
	v.titles[title] = struct{}{}
	return true
}

func (v *visitedSet) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.titles)
}
