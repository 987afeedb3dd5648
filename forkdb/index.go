package forkdb

import (
	"sort"

	"github.com/mezonai/forkdb/blockstate"
)

// multiIndex is the three-way indexed container this store is built around:
// a single set of *blockstate.BlockState[B] values viewed simultaneously
// by id (unique hash index), by previous-id (non-unique, for descendant
// enumeration), and by the fork-choice composite key (unique ordered index,
// kept sorted so its front element is always the globally most-preferred
// block).
//
// The by_fork_choice ordering is maintained as a slice kept sorted by
// forkChoiceLess via binary-search insert and a linear scan by id on
// remove. The in-memory block
// counts a fork database ever holds (tens to low hundreds of candidate
// tips) make an O(n) shift on mutation immaterial.
type multiIndex[B blockstate.BlockHeaderState] struct {
	byID   map[blockstate.ID]*blockstate.BlockState[B]
	byPrev map[blockstate.ID][]*blockstate.BlockState[B]
	order  []*blockstate.BlockState[B] // kept sorted by forkChoiceLess
}

func newMultiIndex[B blockstate.BlockHeaderState]() *multiIndex[B] {
	return &multiIndex[B]{
		byID:   make(map[blockstate.ID]*blockstate.BlockState[B]),
		byPrev: make(map[blockstate.ID][]*blockstate.BlockState[B]),
	}
}

func (m *multiIndex[B]) len() int { return len(m.order) }

// find returns the state with the given id, or nil.
func (m *multiIndex[B]) find(id blockstate.ID) *blockstate.BlockState[B] {
	return m.byID[id]
}

// insert adds s to all three views. It reports false if a state with s's id
// already exists (the index is left unmodified).
func (m *multiIndex[B]) insert(s *blockstate.BlockState[B]) bool {
	id := s.ID()
	if _, exists := m.byID[id]; exists {
		return false
	}
	m.byID[id] = s
	prev := s.Previous()
	m.byPrev[prev] = append(m.byPrev[prev], s)
	m.orderInsert(s)
	return true
}

// erase removes the state with the given id from all three views.
func (m *multiIndex[B]) erase(id blockstate.ID) {
	s, ok := m.byID[id]
	if !ok {
		return
	}
	delete(m.byID, id)

	prev := s.Previous()
	siblings := m.byPrev[prev]
	for i, sib := range siblings {
		if sib.ID() == id {
			siblings = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(siblings) == 0 {
		delete(m.byPrev, prev)
	} else {
		m.byPrev[prev] = siblings
	}

	m.orderErase(s)
}

// childrenOf returns the direct children of id (by_prev non-unique index).
func (m *multiIndex[B]) childrenOf(id blockstate.ID) []*blockstate.BlockState[B] {
	return m.byPrev[id]
}

// best returns the front of by_fork_choice: the globally most-preferred
// state, or nil if the index is empty.
func (m *multiIndex[B]) best() *blockstate.BlockState[B] {
	if len(m.order) == 0 {
		return nil
	}
	return m.order[0]
}

// bestInvalid returns the most-preferred invalid state (the first entry in
// the invalid partition of by_fork_choice, i.e. lower_bound(false) in the
// original's terms), or nil if every stored state is valid.
func (m *multiIndex[B]) bestInvalid() *blockstate.BlockState[B] {
	i := sort.Search(len(m.order), func(i int) bool { return !m.order[i].IsValid() })
	if i == len(m.order) {
		return nil
	}
	return m.order[i]
}

// reorder relocates s within by_fork_choice after a field its key depends
// on (is_valid) changed in place.
func (m *multiIndex[B]) reorder(s *blockstate.BlockState[B]) {
	m.orderErase(s)
	m.orderInsert(s)
}

func (m *multiIndex[B]) orderInsert(s *blockstate.BlockState[B]) {
	i := sort.Search(len(m.order), func(i int) bool { return forkChoiceLess(s, m.order[i]) })
	m.order = append(m.order, nil)
	copy(m.order[i+1:], m.order[i:])
	m.order[i] = s
}

func (m *multiIndex[B]) orderErase(s *blockstate.BlockState[B]) {
	for i, v := range m.order {
		if v.ID() == s.ID() {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// all returns every stored state in no particular order (used by callers
// that need to scan the full set, e.g. rollback_head_to_root).
func (m *multiIndex[B]) all() []*blockstate.BlockState[B] {
	out := make([]*blockstate.BlockState[B], 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	return out
}
