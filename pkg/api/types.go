package api

// REST response and WebSocket message types. All amounts are integers in the
// ledger's native units (cents of notional, satoshis of collateral).

// PriceLevel is one [price, size] aggregate of the book.
type PriceLevel struct {
	Price uint64 `json:"price"`
	Size  uint64 `json:"size"`
}

// OrderbookSnapshot is the current depth of both sides.
type OrderbookSnapshot struct {
	Bids []PriceLevel `json:"bids"` // best (highest) first
	Asks []PriceLevel `json:"asks"` // best (lowest) first
}

// AccountInfo is one margin ledger entry.
type AccountInfo struct {
	Address         string `json:"address"`
	Nonce           uint64 `json:"nonce"`
	Balance         uint64 `json:"balance"`
	OrderMargin     uint64 `json:"orderMargin"`
	PositionMargin  uint64 `json:"positionMargin"`
	Size            uint64 `json:"size"`
	Side            string `json:"side"`
	EntryPrice      uint64 `json:"entryPrice"`
	DesiredLeverage uint16 `json:"desiredLeverage"`
}

// FillInfo is one executed match.
type FillInfo struct {
	Price  uint64 `json:"price"`
	Size   uint64 `json:"size"`
	Maker  string `json:"maker"`
	Taker  string `json:"taker"`
	Height uint64 `json:"height"`
}

// PlaceOrderRequest submits an order; omitting price makes it a market order.
type PlaceOrderRequest struct {
	Creator string  `json:"creator"`
	Nonce   uint64  `json:"nonce"`
	Side    string  `json:"side"` // "long" or "short"
	Price   *uint64 `json:"price,omitempty"`
	Size    uint64  `json:"size"`
}

// PlaceOrderResponse reports the fill outcome.
type PlaceOrderResponse struct {
	TotalFillSize uint64     `json:"totalFillSize"`
	Fills         []FillInfo `json:"fills"`
	Rested        bool       `json:"rested"`
}

// CancelOrderRequest removes a resting order by its (price, height) key.
type CancelOrderRequest struct {
	Creator string `json:"creator"`
	Nonce   uint64 `json:"nonce"`
	Side    string `json:"side"`
	Price   uint64 `json:"price"`
	Height  uint64 `json:"height"`
}

// LeverageRequest sets desired leverage (fixed-point, 100 = 1x).
type LeverageRequest struct {
	Creator  string `json:"creator"`
	Nonce    uint64 `json:"nonce"`
	Leverage uint16 `json:"leverage"`
}

// TransferRequest credits or debits free balance (devnet peg hooks).
type TransferRequest struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}
