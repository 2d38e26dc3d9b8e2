// Package orderbook implements the ordered order book and its price-time
// priority matching algorithm. Execution is single-threaded and
// deterministic: iteration order over the book is the only source of
// non-input-determined ordering in the state machine.
package orderbook

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"pegmargin/pkg/core/entrymap"
	"pegmargin/pkg/storage"
)

var (
	// ErrOrderNotFound is returned by Cancel for a key absent from the book.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOrder marks a zero-price limit order or a zero-size placement.
	ErrInvalidOrder = errors.New("invalid order")
)

const (
	bidPrefix = "ob:b:"
	askPrefix = "ob:a:"
)

// Book holds the two sides of the order book in one ordered store.
type Book struct {
	bids *entrymap.Map[Bid]
	asks *entrymap.Map[Ask]
}

func New(store storage.Store) *Book {
	return &Book{
		bids: entrymap.New(store, bidPrefix, bidFromEntry),
		asks: entrymap.New(store, askPrefix, askFromEntry),
	}
}

// PlaceResult reports the outcome of a placement: the fills produced against
// resting liquidity and, for limit orders, the remainder now resting on the
// book (nil when fully filled).
type PlaceResult struct {
	TotalFillSize uint64
	Fills         []Order
	NewOrder      *Order
}

// PlaceLimitBuy matches against asks up to price (inclusive), then rests any
// unfilled remainder as a bid.
func (b *Book) PlaceLimitBuy(size uint64, creator common.Address, price, height uint64) (PlaceResult, error) {
	if price == 0 {
		return PlaceResult{}, fmt.Errorf("%w: zero price", ErrInvalidOrder)
	}
	res, err := matchOrders(b.asks, wrapAsk, size, creator, Long, &price)
	if err != nil {
		return PlaceResult{}, err
	}
	if rest := size - res.TotalFillSize; rest > 0 {
		order := Order{Price: price, Creator: creator, Height: height, Size: rest}
		if err := b.bids.Insert(Bid{order}); err != nil {
			return PlaceResult{}, err
		}
		res.NewOrder = &order
	}
	return res, nil
}

// PlaceLimitSell matches against bids down to price (inclusive), then rests
// any unfilled remainder as an ask.
func (b *Book) PlaceLimitSell(size uint64, creator common.Address, price, height uint64) (PlaceResult, error) {
	if price == 0 {
		return PlaceResult{}, fmt.Errorf("%w: zero price", ErrInvalidOrder)
	}
	res, err := matchOrders(b.bids, wrapBid, size, creator, Short, &price)
	if err != nil {
		return PlaceResult{}, err
	}
	if rest := size - res.TotalFillSize; rest > 0 {
		order := Order{Price: price, Creator: creator, Height: height, Size: rest}
		if err := b.asks.Insert(Ask{order}); err != nil {
			return PlaceResult{}, err
		}
		res.NewOrder = &order
	}
	return res, nil
}

// PlaceMarketBuy matches against asks with no price bound. An unfilled
// remainder is dropped, never rested.
func (b *Book) PlaceMarketBuy(size uint64, creator common.Address) (PlaceResult, error) {
	return matchOrders(b.asks, wrapAsk, size, creator, Long, nil)
}

// PlaceMarketSell matches against bids with no price bound.
func (b *Book) PlaceMarketSell(size uint64, creator common.Address) (PlaceResult, error) {
	return matchOrders(b.bids, wrapBid, size, creator, Short, nil)
}

// Cancel removes the resting order with the given key and returns it (with
// its remaining size, so the caller can release reserved margin). A key
// absent from the book is ErrOrderNotFound; the book is not mutated.
func (b *Book) Cancel(side Side, key Key) (Order, error) {
	probe := Order{Price: key.Price, Creator: key.Creator, Height: key.Height}
	switch side {
	case Long:
		resting, found, err := b.bids.Get(Bid{probe})
		if err != nil {
			return Order{}, err
		}
		if !found {
			return Order{}, ErrOrderNotFound
		}
		if _, err := b.bids.Delete(Bid{probe}); err != nil {
			return Order{}, err
		}
		return resting.Order, nil
	default:
		resting, found, err := b.asks.Get(Ask{probe})
		if err != nil {
			return Order{}, err
		}
		if !found {
			return Order{}, ErrOrderNotFound
		}
		if _, err := b.asks.Delete(Ask{probe}); err != nil {
			return Order{}, err
		}
		return resting.Order, nil
	}
}

// sideEntry lets the matcher treat both sides uniformly.
type sideEntry interface {
	entrymap.Entry
	order() Order
}

func (b Bid) order() Order { return b.Order }
func (a Ask) order() Order { return a.Order }

func wrapBid(o Order) Bid { return Bid{o} }
func wrapAsk(o Order) Ask { return Ask{o} }

// matchOrders runs one deterministic matching pass over the opposing side in
// price-time priority order. Mutations are buffered and applied after the
// scan so the live iterator is never invalidated.
func matchOrders[T sideEntry](side *entrymap.Map[T], wrap func(Order) T, size uint64, creator common.Address, taker Side, limit *uint64) (PlaceResult, error) {
	var res PlaceResult
	if size == 0 {
		// Zero-size placements arise from already-fully-filled remainders;
		// they are a defined no-op, not an error.
		return res, nil
	}

	var toDelete []T
	var toInsert *T

	it := side.Iter()
	for it.Next() {
		resting := it.Entry().order()

		if limit != nil {
			// Stop once the resting price is worse than the limit.
			if taker == Long && resting.Price > *limit {
				break
			}
			if taker == Short && resting.Price < *limit {
				break
			}
		}
		if resting.Creator == creator {
			// Self-trades are forbidden: skip, never consume.
			continue
		}

		remaining := size - res.TotalFillSize
		if remaining >= resting.Size {
			// Full fill: the resting order leaves the book.
			res.TotalFillSize += resting.Size
			res.Fills = append(res.Fills, resting)
			toDelete = append(toDelete, wrap(resting))
		} else {
			// Partial fill: reduce the resting order in place.
			fill := resting
			fill.Size = remaining
			res.Fills = append(res.Fills, fill)
			res.TotalFillSize += remaining

			reduced := resting
			reduced.Size -= remaining
			entry := wrap(reduced)
			toInsert = &entry
		}

		if res.TotalFillSize == size {
			break
		}
	}
	if err := it.Close(); err != nil {
		return PlaceResult{}, err
	}

	for _, entry := range toDelete {
		if _, err := side.Delete(entry); err != nil {
			return PlaceResult{}, err
		}
	}
	if toInsert != nil {
		if err := side.Insert(*toInsert); err != nil {
			return PlaceResult{}, err
		}
	}

	return res, nil
}

// Level aggregates resting size at one price.
type Level struct {
	Price uint64
	Size  uint64
}

// BidLevels returns bid depth, best (highest) price first.
func (b *Book) BidLevels() ([]Level, error) {
	var levels []Level
	it := b.bids.Iter()
	for it.Next() {
		o := it.Entry().Order
		if n := len(levels); n > 0 && levels[n-1].Price == o.Price {
			levels[n-1].Size += o.Size
		} else {
			levels = append(levels, Level{Price: o.Price, Size: o.Size})
		}
	}
	return levels, it.Close()
}

// AskLevels returns ask depth, best (lowest) price first.
func (b *Book) AskLevels() ([]Level, error) {
	var levels []Level
	it := b.asks.Iter()
	for it.Next() {
		o := it.Entry().Order
		if n := len(levels); n > 0 && levels[n-1].Price == o.Price {
			levels[n-1].Size += o.Size
		} else {
			levels = append(levels, Level{Price: o.Price, Size: o.Size})
		}
	}
	return levels, it.Close()
}
