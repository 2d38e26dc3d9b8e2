// Package core wires the order book and the margin account ledger into the
// transaction handlers of the market state machine. Handlers are the only
// writers: one transaction is fully applied before the next begins, and any
// error aborts the transaction with no effect on the book or any account.
package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"pegmargin/pkg/core/account"
	"pegmargin/pkg/core/orderbook"
	"pegmargin/pkg/storage"
)

// ErrBadNonce marks a transaction whose nonce does not match the account.
var ErrBadNonce = errors.New("bad nonce")

// Market owns one order book plus the account ledger it settles against.
type Market struct {
	mu sync.Mutex

	// bookState backs the order book; a snapshot taken before matching
	// gives whole-transaction rollback.
	bookState *storage.MemStore
	book      *orderbook.Book
	ledger    *account.Ledger
	fills     *storage.FillStore
	log       *zap.Logger
}

func NewMarket(bookState *storage.MemStore, ledger *account.Ledger, fills *storage.FillStore, log *zap.Logger) *Market {
	if log == nil {
		log = zap.NewNop()
	}
	return &Market{
		bookState: bookState,
		book:      orderbook.New(bookState),
		ledger:    ledger,
		fills:     fills,
		log:       log,
	}
}

// PlaceOrder validates the transaction, matches it against the book, and
// applies each fill to the taker and to every resting maker. Any failure
// rolls the book back to its pre-call state and persists nothing.
func (m *Market) PlaceOrder(tx PlaceOrderTx, height uint64) (orderbook.PlaceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.Size == 0 {
		return orderbook.PlaceResult{}, fmt.Errorf("%w: zero size", orderbook.ErrInvalidOrder)
	}
	if tx.Price != nil && *tx.Price == 0 {
		return orderbook.PlaceResult{}, fmt.Errorf("%w: zero price", orderbook.ErrInvalidOrder)
	}

	taker, found, err := m.ledger.Get(tx.Creator)
	if err != nil {
		return orderbook.PlaceResult{}, err
	}
	if !found {
		return orderbook.PlaceResult{}, account.ErrUnknownAccount
	}
	if tx.Nonce != taker.Nonce {
		return orderbook.PlaceResult{}, ErrBadNonce
	}

	snap := m.bookState.Snapshot()

	res, err := m.place(tx, height)
	if err != nil {
		m.bookState.Restore(snap)
		return orderbook.PlaceResult{}, err
	}

	// Stage account mutations on copies; commit only when every fill and
	// the remainder's margin reservation have succeeded.
	makers := make(map[common.Address]account.Account)
	makerSide := tx.Side.Other()
	for _, fill := range res.Fills {
		if err := taker.FillOrder(makerSide, fill, false); err != nil {
			m.bookState.Restore(snap)
			return orderbook.PlaceResult{}, err
		}

		maker, ok := makers[fill.Creator]
		if !ok {
			maker, ok, err = m.ledger.Get(fill.Creator)
			if err != nil {
				m.bookState.Restore(snap)
				return orderbook.PlaceResult{}, err
			}
			if !ok {
				// A resting order always has a funded creator.
				m.bookState.Restore(snap)
				return orderbook.PlaceResult{}, account.ErrUnknownAccount
			}
		}
		if err := maker.FillOrder(makerSide, fill, true); err != nil {
			m.bookState.Restore(snap)
			return orderbook.PlaceResult{}, err
		}
		makers[fill.Creator] = maker
	}

	if res.NewOrder != nil {
		if err := taker.CreateOrder(tx.Side, *res.NewOrder); err != nil {
			m.bookState.Restore(snap)
			return orderbook.PlaceResult{}, err
		}
	}

	taker.Nonce++
	if err := m.ledger.Insert(tx.Creator, taker); err != nil {
		return orderbook.PlaceResult{}, err
	}
	for addr, maker := range makers {
		if err := m.ledger.Insert(addr, maker); err != nil {
			return orderbook.PlaceResult{}, err
		}
	}

	for _, fill := range res.Fills {
		record := storage.Fill{
			Price:  fill.Price,
			Size:   fill.Size,
			Maker:  fill.Creator,
			Taker:  tx.Creator,
			Height: height,
		}
		if err := m.fills.Append(record); err != nil {
			m.log.Warn("fill_record_failed", zap.Error(err))
		}
	}

	m.log.Info("order_placed",
		zap.String("creator", tx.Creator.Hex()),
		zap.String("side", tx.Side.String()),
		zap.Uint64("size", tx.Size),
		zap.Uint64("filled", res.TotalFillSize),
		zap.Int("fills", len(res.Fills)),
		zap.Uint64("height", height),
	)
	return res, nil
}

func (m *Market) place(tx PlaceOrderTx, height uint64) (orderbook.PlaceResult, error) {
	switch {
	case tx.Side == orderbook.Long && tx.Price != nil:
		return m.book.PlaceLimitBuy(tx.Size, tx.Creator, *tx.Price, height)
	case tx.Side == orderbook.Short && tx.Price != nil:
		return m.book.PlaceLimitSell(tx.Size, tx.Creator, *tx.Price, height)
	case tx.Side == orderbook.Long:
		return m.book.PlaceMarketBuy(tx.Size, tx.Creator)
	default:
		return m.book.PlaceMarketSell(tx.Size, tx.Creator)
	}
}

// CancelOrder removes one of the creator's resting orders and releases its
// reserved margin. Cancelling a key absent from the book is
// orderbook.ErrOrderNotFound and mutates nothing.
func (m *Market) CancelOrder(tx CancelOrderTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, found, err := m.ledger.Get(tx.Creator)
	if err != nil {
		return err
	}
	if !found {
		return account.ErrUnknownAccount
	}
	if tx.Nonce != acct.Nonce {
		return ErrBadNonce
	}

	key := orderbook.Key{Price: tx.Price, Creator: tx.Creator, Height: tx.Height}
	removed, err := m.book.Cancel(tx.Side, key)
	if err != nil {
		return err
	}

	if err := acct.CancelOrder(tx.Side, removed); err != nil {
		// Put the order back; the ledger rejected the release.
		m.restore(tx.Side, removed)
		return err
	}

	acct.Nonce++
	if err := m.ledger.Insert(tx.Creator, acct); err != nil {
		return err
	}

	m.log.Info("order_cancelled",
		zap.String("creator", tx.Creator.Hex()),
		zap.String("side", tx.Side.String()),
		zap.Uint64("price", tx.Price),
		zap.Uint64("size", removed.Size),
	)
	return nil
}

func (m *Market) restore(side orderbook.Side, order orderbook.Order) {
	var err error
	if side == orderbook.Long {
		_, err = m.book.PlaceLimitBuy(order.Size, order.Creator, order.Price, order.Height)
	} else {
		_, err = m.book.PlaceLimitSell(order.Size, order.Creator, order.Price, order.Height)
	}
	if err != nil {
		m.log.Error("book_restore_failed", zap.Error(err))
	}
}

// UpdateLeverage adjusts the account's desired leverage and rebalances its
// margins.
func (m *Market) UpdateLeverage(tx UpdateLeverageTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, found, err := m.ledger.Get(tx.Creator)
	if err != nil {
		return err
	}
	if !found {
		return account.ErrUnknownAccount
	}
	if tx.Nonce != acct.Nonce {
		return ErrBadNonce
	}

	if err := acct.AdjustLeverage(tx.Leverage); err != nil {
		return err
	}

	acct.Nonce++
	if err := m.ledger.Insert(tx.Creator, acct); err != nil {
		return err
	}

	m.log.Info("leverage_updated",
		zap.String("creator", tx.Creator.Hex()),
		zap.Uint16("leverage", tx.Leverage),
	)
	return nil
}

// Deposit credits a verified peg deposit to the address's free balance.
func (m *Market) Deposit(addr common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ledger.Deposit(addr, amount); err != nil {
		return err
	}
	m.log.Info("deposit", zap.String("address", addr.Hex()), zap.Uint64("amount", amount))
	return nil
}

// Withdraw debits free balance for a peg withdrawal.
func (m *Market) Withdraw(addr common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ledger.Withdraw(addr, amount); err != nil {
		return err
	}
	m.log.Info("withdraw", zap.String("address", addr.Hex()), zap.Uint64("amount", amount))
	return nil
}

// Account returns a copy of the ledger entry for addr.
func (m *Market) Account(addr common.Address) (account.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.Get(addr)
}

// BidLevels returns aggregated bid depth, best price first.
func (m *Market) BidLevels() ([]orderbook.Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.BidLevels()
}

// AskLevels returns aggregated ask depth, best price first.
func (m *Market) AskLevels() ([]orderbook.Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.AskLevels()
}

// RecentFills returns up to n most recent fills, oldest first.
func (m *Market) RecentFills(n int) ([]storage.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fills.Recent(n)
}
