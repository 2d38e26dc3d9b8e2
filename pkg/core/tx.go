package core

import (
	"github.com/ethereum/go-ethereum/common"

	"pegmargin/pkg/core/orderbook"
)

// Transaction records arrive already authenticated: signature and replay
// checks beyond the nonce comparison are the outer layer's concern.

// PlaceOrderTx places a limit order (Price set) or market order (Price nil).
type PlaceOrderTx struct {
	Creator common.Address
	Nonce   uint64
	Side    orderbook.Side
	Price   *uint64
	Size    uint64
}

// CancelOrderTx removes a resting order identified by its book key.
type CancelOrderTx struct {
	Creator common.Address
	Nonce   uint64
	Side    orderbook.Side
	Price   uint64
	Height  uint64
}

// UpdateLeverageTx sets the account's desired leverage (fixed-point, 100 = 1x).
type UpdateLeverageTx struct {
	Creator  common.Address
	Nonce    uint64
	Leverage uint16
}
