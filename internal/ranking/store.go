package ranking

import (
	"sync/atomic"
	"time"
)

// Snapshot is one immutable, versioned configuration. Scoring calls take a
// snapshot once and use it for the whole call.
type Snapshot struct {
	Version  string
	Weights  *Weights
	Lexicon  *Lexicon
	LoadedAt time.Time
}

// Store publishes the current Snapshot. Readers never block; writers replace
// the whole snapshot.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store holding the given weights and lexicon.
// Nil arguments fall back to the defaults.
func NewStore(version string, w *Weights, lex *Lexicon) *Store {
	s := &Store{}
	s.Swap(version, w, lex)
	return s
}

// NewDefaultStore creates a store holding the built-in defaults.
func NewDefaultStore() *Store {
	return NewStore(DefaultVersion, DefaultWeights(), DefaultLexicon())
}

// Current returns the active snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Swap publishes a new snapshot and returns the previous one.
func (s *Store) Swap(version string, w *Weights, lex *Lexicon) *Snapshot {
	return s.current.Swap(newSnapshot(version, w, lex))
}

// SwapWeights replaces only the weights, keeping the current lexicon.
func (s *Store) SwapWeights(version string, w *Weights) {
	s.update(func(cur *Snapshot) *Snapshot {
		return newSnapshot(version, w, cur.Lexicon)
	})
}

// SwapLexicon replaces only the lexicon, keeping the current weights.
func (s *Store) SwapLexicon(lex *Lexicon) {
	s.update(func(cur *Snapshot) *Snapshot {
		return newSnapshot(cur.Version, cur.Weights, lex)
	})
}

func (s *Store) update(fn func(cur *Snapshot) *Snapshot) {
	for {
		old := s.current.Load()
		cur := old
		if cur == nil {
			cur = newSnapshot("", nil, nil)
		}
		if s.current.CompareAndSwap(old, fn(cur)) {
			return
		}
	}
}

func newSnapshot(version string, w *Weights, lex *Lexicon) *Snapshot {
	if w == nil {
		w = DefaultWeights()
	}
	if lex == nil {
		lex = DefaultLexicon()
	}
	if version == "" {
		version = DefaultVersion
	}
	return &Snapshot{
		Version:  version,
		Weights:  w,
		Lexicon:  lex,
		LoadedAt: time.Now(),
	}
}
