// Package account implements the per-address margin ledger: balance, locked
// order margin, position, leverage, entry price, and realized PnL. All
// arithmetic is unsigned 64-bit integer with truncating division and must be
// reproduced bit-for-bit; it is consensus-critical.
package account

import (
	"errors"

	"pegmargin/params"
	"pegmargin/pkg/core/orderbook"
)

var (
	// ErrInsufficientFunds is returned whenever a required debit from the
	// balance exceeds it. The account is left unchanged.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidLeverage marks a leverage outside [1x, 100x] scaled.
	ErrInvalidLeverage = errors.New("invalid leverage")
	// ErrUnknownAccount is returned for operations on an address with no
	// ledger entry.
	ErrUnknownAccount = errors.New("unknown account")
)

// Account is the margin ledger entry for one address.
//
// Invariant after every successful operation: balance + order_margin +
// position_margin equals the account's total committed collateral (modulo
// realized PnL transfers), and balance never goes negative.
type Account struct {
	Nonce   uint64
	Balance uint64

	// Funds move from Balance into OrderMargin on order creation.
	// MaxBidMargin/MaxAskMargin track the unleveraged notional committed to
	// resting bids vs asks.
	OrderMargin  uint64
	MaxBidMargin uint64
	MaxAskMargin uint64

	// Position fields. Size is the absolute position size; Side gives its
	// direction. EntryPrice is cents/bitcoin.
	Size           uint64
	Side           orderbook.Side
	EntryPrice     uint64
	PositionMargin uint64

	// DesiredLeverage is fixed-point scaled: 100 = 1.0x.
	DesiredLeverage uint16
}

// New returns an account funded with the given balance and a flat position
// at 1x leverage.
func New(balance uint64) Account {
	return Account{
		Balance:         balance,
		DesiredLeverage: params.LeveragePrecision,
	}
}

// Value is the satoshi value of the open position at its entry price.
func (a *Account) Value() uint64 {
	if a.Size == 0 {
		return 0
	}
	return a.Size * params.SatoshisPerBitcoin / a.EntryPrice
}

func (a *Account) divideByLeverage(n uint64) uint64 {
	return n * params.PricePrecision * uint64(params.LeveragePrecision) /
		uint64(a.DesiredLeverage) / params.PricePrecision
}

// CreateOrder reserves margin for a newly resting order: the leverage-scaled
// notional cost is added to the side's committed margin, then the order
// margin is rebalanced out of the balance. Fails atomically with
// ErrInsufficientFunds if the balance cannot cover the increase.
func (a *Account) CreateOrder(side orderbook.Side, order orderbook.Order) error {
	next := *a
	switch side {
	case orderbook.Long:
		next.MaxBidMargin += order.Cost()
	case orderbook.Short:
		next.MaxAskMargin += order.Cost()
	}

	// The commitment only grew, so the rebalance can never unlock funds.
	if _, err := next.updateOrderMargin(); err != nil {
		return err
	}

	*a = next
	return nil
}

// CancelOrder releases the reserved notional of a cancelled resting order
// and returns the freed collateral to the balance.
func (a *Account) CancelOrder(side orderbook.Side, order orderbook.Order) error {
	next := *a
	switch side {
	case orderbook.Long:
		next.MaxBidMargin -= order.Cost()
	case orderbook.Short:
		next.MaxAskMargin -= order.Cost()
	}

	unlocked, err := next.updateOrderMargin()
	if err != nil {
		return err
	}
	next.Balance += unlocked

	*a = next
	return nil
}

// FillOrder applies one fill to the account. makerSide is the side of the
// maker's resting order; isOwnOrder is true when the fill consumes this
// account's own resting order (the account is the maker), false when the
// account is the taker crossing against it.
//
// Any failure (insufficient funds for a margin increase or a PnL loss)
// leaves the account unchanged.
func (a *Account) FillOrder(makerSide orderbook.Side, makerOrder orderbook.Order, isOwnOrder bool) error {
	next := *a

	if next.Size == 0 {
		if isOwnOrder {
			next.Side = makerSide
		} else {
			next.Side = makerSide.Other()
		}
	}
	prev := next

	positionIncreasing := makerSide == next.Side && isOwnOrder
	next.updateEntryPrice(makerOrder, positionIncreasing)

	fillSide := makerSide
	if !isOwnOrder {
		fillSide = makerSide.Other()
	}
	next.addToPosition(makerOrder.Size, fillSide)

	// Fund position margin from order margin, or return unlocked funds to
	// the balance.
	if isOwnOrder {
		switch makerSide {
		case orderbook.Long:
			next.MaxBidMargin -= makerOrder.Cost()
		case orderbook.Short:
			next.MaxAskMargin -= makerOrder.Cost()
		}

		newMargin := next.divideByLeverage(next.Value())
		marginIncreasing := newMargin > next.PositionMargin

		unlocked, err := next.updateOrderMargin()
		if err != nil {
			return err
		}
		if marginIncreasing {
			next.PositionMargin += unlocked
		} else {
			next.Balance += unlocked
		}
	}

	freed, err := next.updatePositionMargin()
	if err != nil {
		return err
	}
	next.Balance += freed

	if err := next.settlePNL(prev, makerOrder.Price); err != nil {
		return err
	}

	*a = next
	return nil
}

// AdjustLeverage updates the desired leverage and rebalances both margins,
// crediting any freed collateral back to the balance.
func (a *Account) AdjustLeverage(leverage uint16) error {
	if leverage < params.LeveragePrecision || leverage > params.MaxLeverage {
		return ErrInvalidLeverage
	}

	next := *a
	next.DesiredLeverage = leverage

	freed, err := next.updatePositionMargin()
	if err != nil {
		return err
	}
	next.Balance += freed

	unlocked, err := next.updateOrderMargin()
	if err != nil {
		return err
	}
	next.Balance += unlocked

	*a = next
	return nil
}

// updateOrderMargin recomputes the required order margin as the sum of the
// leverage-scaled bid and ask commitments, net of the position margin on the
// side the position already covers. An increase is debited from the balance
// (erroring when short); a decrease is returned for the caller to redirect.
func (a *Account) updateOrderMargin() (uint64, error) {
	maxBidMargin := a.divideByLeverage(a.MaxBidMargin)
	maxAskMargin := a.divideByLeverage(a.MaxAskMargin)
	switch a.Side {
	case orderbook.Long:
		maxAskMargin = saturatingSub(maxAskMargin, a.PositionMargin)
	case orderbook.Short:
		maxBidMargin = saturatingSub(maxBidMargin, a.PositionMargin)
	}

	newOrderMargin := maxBidMargin + maxAskMargin

	if newOrderMargin > a.OrderMargin {
		toLock := newOrderMargin - a.OrderMargin
		if a.Balance < toLock {
			return 0, ErrInsufficientFunds
		}
		a.Balance -= toLock
		a.OrderMargin += toLock
		return 0, nil
	}

	toUnlock := a.OrderMargin - newOrderMargin
	a.OrderMargin = newOrderMargin
	return toUnlock, nil
}

// updatePositionMargin recomputes the required position margin from the
// position value at current leverage, debiting the balance on an increase.
func (a *Account) updatePositionMargin() (uint64, error) {
	newMargin := a.divideByLeverage(a.Value())

	if newMargin > a.PositionMargin {
		change := newMargin - a.PositionMargin
		if a.Balance < change {
			return 0, ErrInsufficientFunds
		}
		a.Balance -= change
		a.PositionMargin += change
		return 0, nil
	}

	change := a.PositionMargin - newMargin
	a.PositionMargin -= change
	return change, nil
}

// addToPosition applies signed position arithmetic: a same-side fill adds to
// the size, an opposite-side fill subtracts, and a fill larger than the
// position flips the side with the excess as the new size.
func (a *Account) addToPosition(size uint64, side orderbook.Side) {
	switch {
	case side == a.Side:
		a.Size += size
	case size > a.Size:
		a.Size = size - a.Size
		a.Side = side
	default:
		a.Size -= size
	}
}

// updateEntryPrice recomputes the volume-weighted average entry price. An
// increasing position blends old and new notional; a reduction leaves the
// entry price unchanged; a reversal resets it to the fill price.
func (a *Account) updateEntryPrice(order orderbook.Order, positionIncreasing bool) {
	positionReversing := !positionIncreasing && order.Size > a.Size
	switch {
	case positionIncreasing:
		newSize := order.Size + a.Size
		ratio := params.PricePrecision * order.Size / newSize
		a.EntryPrice = (ratio*order.Price + (params.PricePrecision-ratio)*a.EntryPrice) /
			params.PricePrecision
	case positionReversing:
		a.EntryPrice = order.Price
	}
}

// settlePNL realizes profit or loss for the portion of the position closed
// by this fill: the full pre-fill size on a reversal, zero when purely
// increasing, otherwise the numeric reduction. A loss larger than the
// balance is ErrInsufficientFunds.
func (a *Account) settlePNL(prev Account, price uint64) error {
	positionReversed := a.Side != prev.Side
	positionIncreased := a.Size > prev.Size

	var amountReduced uint64
	switch {
	case positionReversed:
		amountReduced = prev.Size
	case positionIncreased:
		amountReduced = 0
	default:
		amountReduced = prev.Size - a.Size
	}
	if amountReduced == 0 {
		return nil
	}

	amountReducedSats := amountReduced * params.SatoshisPerBitcoin

	var toPay, toReceive uint64
	var gained bool
	switch prev.Side {
	case orderbook.Long:
		toPay = amountReducedSats / price
		toReceive = amountReducedSats / prev.EntryPrice
		gained = price > prev.EntryPrice
	case orderbook.Short:
		toPay = amountReducedSats / prev.EntryPrice
		toReceive = amountReducedSats / price
		gained = price < prev.EntryPrice
	}

	if gained {
		a.Balance += toReceive - toPay
		return nil
	}
	loss := toPay - toReceive
	if loss > a.Balance {
		return ErrInsufficientFunds
	}
	a.Balance -= loss
	return nil
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
