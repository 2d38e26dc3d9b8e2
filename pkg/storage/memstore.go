package storage

import (
	"bytes"

	"github.com/google/btree"
)

type kvPair struct {
	key   []byte
	value []byte
}

func pairLess(a, b kvPair) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// MemStore is an in-memory ordered Store backed by a B-tree. It holds the
// order book during block execution: Snapshot/Restore give transaction-level
// rollback via the tree's copy-on-write clone.
type MemStore struct {
	tree *btree.BTreeG[kvPair]
}

func NewMemStore() *MemStore {
	return &MemStore{tree: btree.NewG(32, pairLess)}
}

func (s *MemStore) Get(key []byte) ([]byte, bool, error) {
	pair, ok := s.tree.Get(kvPair{key: key})
	if !ok {
		return nil, false, nil
	}
	return pair.value, true, nil
}

func (s *MemStore) Set(key, value []byte) error {
	s.tree.ReplaceOrInsert(kvPair{
		key:   bytes.Clone(key),
		value: bytes.Clone(value),
	})
	return nil
}

func (s *MemStore) Delete(key []byte) (bool, error) {
	_, ok := s.tree.Delete(kvPair{key: key})
	return ok, nil
}

func (s *MemStore) Iter(lower, upper []byte) Iterator {
	// Materialize the range up front so callers can mutate the store after
	// closing the iterator without aliasing the live tree.
	var pairs []kvPair
	collect := func(p kvPair) bool {
		if upper != nil && bytes.Compare(p.key, upper) >= 0 {
			return false
		}
		pairs = append(pairs, p)
		return true
	}
	if lower == nil {
		s.tree.Ascend(collect)
	} else {
		s.tree.AscendGreaterOrEqual(kvPair{key: lower}, collect)
	}
	return &sliceIter{pairs: pairs, idx: -1}
}

// Snapshot returns a copy-on-write snapshot of the store.
func (s *MemStore) Snapshot() *MemStore {
	return &MemStore{tree: s.tree.Clone()}
}

// Restore resets the store to a previous snapshot. The snapshot remains
// usable afterwards.
func (s *MemStore) Restore(snap *MemStore) {
	s.tree = snap.tree.Clone()
}

// Len returns the number of stored keys.
func (s *MemStore) Len() int {
	return s.tree.Len()
}

type sliceIter struct {
	pairs []kvPair
	idx   int
}

func (i *sliceIter) Next() bool {
	i.idx++
	return i.idx < len(i.pairs)
}

func (i *sliceIter) Key() []byte   { return i.pairs[i.idx].key }
func (i *sliceIter) Value() []byte { return i.pairs[i.idx].value }
func (i *sliceIter) Close() error  { return nil }
