package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Fill is one executed match, recorded for history queries and feeds.
type Fill struct {
	Price  uint64
	Size   uint64
	Maker  common.Address
	Taker  common.Address
	Height uint64
}

// Key schema: "fill:" + 8-byte big-endian height + 4-byte sequence, so an
// ascending scan yields fills in execution order.
const fillPrefix = "fill:"

const fillLen = 8 + 8 + common.AddressLength + common.AddressLength + 8

func fillKey(height uint64, seq uint32) []byte {
	key := make([]byte, len(fillPrefix)+12)
	copy(key, fillPrefix)
	binary.BigEndian.PutUint64(key[len(fillPrefix):], height)
	binary.BigEndian.PutUint32(key[len(fillPrefix)+8:], seq)
	return key
}

func encodeFill(f Fill) []byte {
	buf := make([]byte, fillLen)
	binary.BigEndian.PutUint64(buf[0:8], f.Price)
	binary.BigEndian.PutUint64(buf[8:16], f.Size)
	copy(buf[16:36], f.Maker[:])
	copy(buf[36:56], f.Taker[:])
	binary.BigEndian.PutUint64(buf[56:64], f.Height)
	return buf
}

func decodeFill(buf []byte) (Fill, error) {
	if len(buf) != fillLen {
		return Fill{}, fmt.Errorf("bad fill record length %d", len(buf))
	}
	var f Fill
	f.Price = binary.BigEndian.Uint64(buf[0:8])
	f.Size = binary.BigEndian.Uint64(buf[8:16])
	copy(f.Maker[:], buf[16:36])
	copy(f.Taker[:], buf[36:56])
	f.Height = binary.BigEndian.Uint64(buf[56:64])
	return f, nil
}

// FillStore persists executed fills under ordered keys.
type FillStore struct {
	store Store
	seq   uint32
}

func NewFillStore(store Store) *FillStore {
	return &FillStore{store: store}
}

// Append records a fill. Sequence numbers keep fills within one height in
// execution order.
func (s *FillStore) Append(f Fill) error {
	s.seq++
	if err := s.store.Set(fillKey(f.Height, s.seq), encodeFill(f)); err != nil {
		return fmt.Errorf("failed to save fill: %w", err)
	}
	return nil
}

// Recent returns up to n most recent fills, oldest first.
func (s *FillStore) Recent(n int) ([]Fill, error) {
	if n <= 0 {
		return nil, nil
	}
	prefix := []byte(fillPrefix)
	it := s.store.Iter(prefix, PrefixUpperBound(prefix))
	defer it.Close()

	// Forward scan with a sliding window; fill history is bounded in
	// practice by pruning at the node level.
	var fills []Fill
	for it.Next() {
		f, err := decodeFill(it.Value())
		if err != nil {
			return nil, err
		}
		fills = append(fills, f)
		if len(fills) > n {
			fills = fills[1:]
		}
	}
	return fills, nil
}
