package params

// Fixed-point scale constants for the margin ledger. All consensus-critical
// arithmetic is unsigned integer with truncating division; changing any of
// these changes the state machine.
const (
	// SatoshisPerBitcoin converts position/order sizes (cents of notional)
	// into collateral amounts (satoshis) at a given price.
	SatoshisPerBitcoin uint64 = 100_000_000

	// PricePrecision scales intermediate ratios in entry-price blending so
	// the weighted average survives integer truncation.
	PricePrecision uint64 = 100_000_000

	// LeveragePrecision is the fixed-point scale of desired_leverage:
	// 100 = 1.0x.
	LeveragePrecision uint16 = 100

	// MaxLeverage caps desired_leverage at 100x.
	MaxLeverage uint16 = 100 * LeveragePrecision
)
