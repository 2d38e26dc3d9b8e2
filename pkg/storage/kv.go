// Package storage provides the ordered key-value stores backing the market
// state machine: a Pebble-backed store for durable data (accounts, fill
// history) and a btree-backed in-memory store for block-execution state
// (the order book), which supports cheap copy-on-write snapshots for
// per-transaction rollback.
package storage

// Store is an ordered key-value store. Iteration order is lexicographic on
// key bytes, which the order book relies on for price-time priority.
type Store interface {
	// Get returns the value for key, and whether the key exists.
	Get(key []byte) (value []byte, found bool, err error)
	// Set inserts or overwrites key.
	Set(key, value []byte) error
	// Delete removes key, reporting whether it existed.
	Delete(key []byte) (found bool, err error)
	// Iter returns an ascending iterator over [lower, upper). A nil upper
	// bound means no upper bound.
	Iter(lower, upper []byte) Iterator
}

// Iterator walks key-value pairs in ascending key order. Key and Value are
// only valid until the next call to Next.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Close() error
}

// PrefixUpperBound returns the exclusive upper bound for a prefix scan.
func PrefixUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		bound[i]++
		if bound[i] != 0 {
			return bound[:i+1]
		}
	}
	return nil // prefix is all 0xff: no upper bound
}

// errIter is returned when an iterator could not be opened.
type errIter struct{ err error }

func (i *errIter) Next() bool    { return false }
func (i *errIter) Key() []byte   { return nil }
func (i *errIter) Value() []byte { return nil }
func (i *errIter) Close() error  { return i.err }
