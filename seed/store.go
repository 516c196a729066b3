package seed

import "sync/atomic"

// Store publishes the current seed. It has a single writer (the entropy
// mixer) and any number of readers. Every Write installs a new immutable
// value with one pointer swap, so readers never see a half-written seed and
// never wait on the writer.
//
// The zero value is an empty store ready for use.
type Store struct {
	current    atomic.Pointer[Seed]
	generation atomic.Uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Write replaces the stored seed with a private copy of s.
func (st *Store) Write(s Seed) {
	v := s
	st.current.Store(&v)
	st.generation.Add(1)
}

// Current returns a copy of the most recently written seed. ok is false when
// nothing has been written yet.
func (st *Store) Current() (s Seed, ok bool) {
	p := st.current.Load()
	if p == nil {
		return Seed{}, false
	}
	return *p, true
}

// Generation reports how many seeds have been written since the store was
// created.
func (st *Store) Generation() uint64 {
	return st.generation.Load()
}
