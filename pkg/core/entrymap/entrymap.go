// Package entrymap provides a generic ordered container that stores domain
// objects by projecting them to an encoded (key, value) pair. Iteration is
// lexicographic on key bytes, so key encodings choose the sort order: the
// order book stores bids under an inverted price so one ascending container
// serves both sides.
package entrymap

import (
	"pegmargin/pkg/storage"
)

// Entry is implemented by objects that project themselves into an encoded
// key/value pair. The projection must be deterministic: the same object
// always yields the same bytes.
type Entry interface {
	Entry() (key, value []byte)
}

// Map stores entries of type T in an ordered key-value store under a key
// prefix. Mutating the map while an iterator is open is not allowed; callers
// buffer deletions and insertions and apply them after closing the iterator.
type Map[T Entry] struct {
	store  storage.Store
	prefix []byte
	decode func(key, value []byte) T
}

func New[T Entry](store storage.Store, prefix string, decode func(key, value []byte) T) *Map[T] {
	return &Map[T]{store: store, prefix: []byte(prefix), decode: decode}
}

func (m *Map[T]) storeKey(key []byte) []byte {
	out := make([]byte, 0, len(m.prefix)+len(key))
	out = append(out, m.prefix...)
	return append(out, key...)
}

// Insert writes the entry, overwriting any entry with the same key.
func (m *Map[T]) Insert(e T) error {
	key, value := e.Entry()
	return m.store.Set(m.storeKey(key), value)
}

// Delete removes the entry with e's key, reporting whether it existed. Only
// the key projection of e is used.
func (m *Map[T]) Delete(e T) (bool, error) {
	key, _ := e.Entry()
	return m.store.Delete(m.storeKey(key))
}

// Get returns the stored entry with e's key, if any. Only the key projection
// of e is used.
func (m *Map[T]) Get(e T) (T, bool, error) {
	key, _ := e.Entry()
	value, found, err := m.store.Get(m.storeKey(key))
	var zero T
	if err != nil || !found {
		return zero, found, err
	}
	return m.decode(key, value), true, nil
}

// Iter returns an ascending iterator over all entries.
func (m *Map[T]) Iter() *Iter[T] {
	lower := m.storeKey(nil)
	return &Iter[T]{
		it:        m.store.Iter(lower, storage.PrefixUpperBound(lower)),
		prefixLen: len(m.prefix),
		decode:    m.decode,
	}
}

// Iter walks entries in ascending encoded-key order.
type Iter[T Entry] struct {
	it        storage.Iterator
	prefixLen int
	decode    func(key, value []byte) T
}

func (i *Iter[T]) Next() bool {
	return i.it.Next()
}

// Entry decodes the current entry. Valid only after Next returns true.
func (i *Iter[T]) Entry() T {
	return i.decode(i.it.Key()[i.prefixLen:], i.it.Value())
}

func (i *Iter[T]) Close() error {
	return i.it.Close()
}
