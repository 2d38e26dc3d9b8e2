package orderbook

import (
	"encoding/binary"
	"math"

	"github.com/ethereum/go-ethereum/common"

	"pegmargin/params"
)

// Side is the direction of an order or position.
type Side uint8

const (
	Long Side = iota
	Short
)

func (s Side) Other() Side {
	if s == Long {
		return Short
	}
	return Long
}

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// Order is a resting order or a fill. Price is cents per bitcoin, size is
// cents of notional. Immutable once placed except for size reduction on
// partial fill.
type Order struct {
	Price   uint64
	Creator common.Address
	Height  uint64
	Size    uint64
}

// Cost is the satoshi collateral an order commits before leverage.
func (o Order) Cost() uint64 {
	return o.Size * params.SatoshisPerBitcoin / o.Price
}

// Key identifies a resting order: no two orders share the same
// (price, creator, height). Bid keys store the price inverted so ascending
// key order is descending price order.
type Key struct {
	Price   uint64
	Creator common.Address
	Height  uint64
}

const keyLen = 8 + common.AddressLength + 8

func (k Key) encode() []byte {
	buf := make([]byte, keyLen)
	binary.BigEndian.PutUint64(buf[0:8], k.Price)
	copy(buf[8:8+common.AddressLength], k.Creator[:])
	binary.BigEndian.PutUint64(buf[8+common.AddressLength:], k.Height)
	return buf
}

func decodeKey(buf []byte) Key {
	var k Key
	k.Price = binary.BigEndian.Uint64(buf[0:8])
	copy(k.Creator[:], buf[8:8+common.AddressLength])
	k.Height = binary.BigEndian.Uint64(buf[8+common.AddressLength:])
	return k
}

func encodeSize(size uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, size)
	return buf
}

// Bid projects an order into the bid side of the book. The price is stored
// as MaxUint64-price so that the lexicographically first entry is the best
// (highest) bid; equal prices order by ascending height (time priority).
type Bid struct {
	Order
}

func (b Bid) Entry() ([]byte, []byte) {
	key := Key{Price: math.MaxUint64 - b.Price, Creator: b.Creator, Height: b.Height}
	return key.encode(), encodeSize(b.Size)
}

func bidFromEntry(key, value []byte) Bid {
	k := decodeKey(key)
	return Bid{Order{
		Price:   math.MaxUint64 - k.Price,
		Creator: k.Creator,
		Height:  k.Height,
		Size:    binary.BigEndian.Uint64(value),
	}}
}

// Ask projects an order into the ask side: ascending price, best (lowest)
// ask first.
type Ask struct {
	Order
}

func (a Ask) Entry() ([]byte, []byte) {
	key := Key{Price: a.Price, Creator: a.Creator, Height: a.Height}
	return key.encode(), encodeSize(a.Size)
}

func askFromEntry(key, value []byte) Ask {
	k := decodeKey(key)
	return Ask{Order{
		Price:   k.Price,
		Creator: k.Creator,
		Height:  k.Height,
		Size:    binary.BigEndian.Uint64(value),
	}}
}
