package frontier

// VisitedSet records the normalized URLs one Frontier has already fetched.
// It is owned by a single crawl loop and is not safe for concurrent use.
type VisitedSet map[string]struct{}

// NewVisitedSet returns an empty set.
func NewVisitedSet() VisitedSet {
	return make(VisitedSet)
}

// Add marks url as visited and reports whether it was new.
func (s VisitedSet) Add(url string) bool {
	if url == "" {
		return false
	}
	if _, ok := s[url]; ok {
		return false
	}
	s[url] = struct{}{}
	return true
}

// Contains reports whether url has been visited.
func (s VisitedSet) Contains(url string) bool {
	_, ok := s[url]
	return ok
}

// Len returns the number of visited URLs.
func (s VisitedSet) Len() int {
	return len(s)
}
