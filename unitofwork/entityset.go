package unitofwork

// entitySet is an insertion ordered set of entity pointers.
type entitySet struct {
	items []any
	index map[any]int
}

func newEntitySet() *entitySet {
	return &entitySet{index: make(map[any]int)}
}

func (s *entitySet) add(e any) bool {
	if _, ok := s.index[e]; ok {
		return false
	}
	s.index[e] = len(s.items)
	s.items = append(s.items, e)
	return true
}

func (s *entitySet) has(e any) bool {
	_, ok := s.index[e]
	return ok
}

// remove keeps the order of the remaining items.
func (s *entitySet) remove(e any) bool {
	i, ok := s.index[e]
	if !ok {
		return false
	}
	delete(s.index, e)
	copy(s.items[i:], s.items[i+1:])
	s.items[len(s.items)-1] = nil
	s.items = s.items[:len(s.items)-1]
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j]] = j
	}
	return true
}

func (s *entitySet) len() int {
	return len(s.items)
}

// list returns a copy, so callers may mutate the set while iterating.
func (s *entitySet) list() []any {
	return append([]any(nil), s.items...)
}

func (s *entitySet) clear() {
	s.items = nil
	s.index = make(map[any]int)
}
