package orderbook

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"pegmargin/pkg/storage"
)

var (
	alice = common.HexToAddress("0x1100000000000000000000000000000000000000")
	bob   = common.HexToAddress("0x2200000000000000000000000000000000000000")
	carol = common.HexToAddress("0x3300000000000000000000000000000000000000")
)

func newBook() *Book {
	return New(storage.NewMemStore())
}

func bidPrices(t *testing.T, b *Book) []uint64 {
	t.Helper()
	levels, err := b.BidLevels()
	if err != nil {
		t.Fatalf("bid levels: %v", err)
	}
	prices := make([]uint64, len(levels))
	for i, l := range levels {
		prices[i] = l.Price
	}
	return prices
}

func askPrices(t *testing.T, b *Book) []uint64 {
	t.Helper()
	levels, err := b.AskLevels()
	if err != nil {
		t.Fatalf("ask levels: %v", err)
	}
	prices := make([]uint64, len(levels))
	for i, l := range levels {
		prices[i] = l.Price
	}
	return prices
}

func TestBidOrderingBestFirst(t *testing.T) {
	b := newBook()
	for i, price := range []uint64{10_000, 11_000, 9_000} {
		_, err := b.PlaceLimitBuy(10, alice, price, uint64(i))
		if err != nil {
			t.Fatalf("place bid %d: %v", price, err)
		}
	}

	got := bidPrices(t, b)
	want := []uint64{11_000, 10_000, 9_000}
	if len(got) != len(want) {
		t.Fatalf("bids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bid %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestAskOrderingBestFirst(t *testing.T) {
	b := newBook()
	for i, price := range []uint64{10_000, 11_000, 9_000} {
		_, err := b.PlaceLimitSell(10, alice, price, uint64(i))
		if err != nil {
			t.Fatalf("place ask %d: %v", price, err)
		}
	}

	got := askPrices(t, b)
	want := []uint64{9_000, 10_000, 11_000}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ask %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestTimePriorityWithinLevel(t *testing.T) {
	b := newBook()
	if _, err := b.PlaceLimitSell(10, alice, 100, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := b.PlaceLimitSell(10, bob, 100, 2); err != nil {
		t.Fatal(err)
	}

	res, err := b.PlaceMarketBuy(10, carol)
	if err != nil {
		t.Fatalf("market buy: %v", err)
	}
	if len(res.Fills) != 1 || res.Fills[0].Creator != alice {
		t.Errorf("first fill went to %v, want earlier order %v", res.Fills, alice)
	}
}

func TestPartialMatching(t *testing.T) {
	b := newBook()
	if _, err := b.PlaceLimitSell(10, alice, 10, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := b.PlaceLimitSell(10, alice, 30, 2); err != nil {
		t.Fatal(err)
	}

	res, err := b.PlaceMarketBuy(15, bob)
	if err != nil {
		t.Fatalf("market buy: %v", err)
	}
	if res.TotalFillSize != 15 {
		t.Errorf("total fill = %d, want 15", res.TotalFillSize)
	}
	if len(res.Fills) != 2 {
		t.Fatalf("fills = %+v, want 2", res.Fills)
	}
	if res.Fills[0].Price != 10 || res.Fills[0].Size != 10 {
		t.Errorf("fill 0 = %+v, want 10@10", res.Fills[0])
	}
	if res.Fills[1].Price != 30 || res.Fills[1].Size != 5 {
		t.Errorf("fill 1 = %+v, want 5@30", res.Fills[1])
	}

	// The second ask rests reduced to 5.
	asks, err := b.AskLevels()
	if err != nil {
		t.Fatal(err)
	}
	if len(asks) != 1 || asks[0].Price != 30 || asks[0].Size != 5 {
		t.Errorf("remaining asks = %v, want [5@30]", asks)
	}
}

func TestLimitBuyCrossesThenRests(t *testing.T) {
	b := newBook()
	if _, err := b.PlaceLimitSell(20, alice, 10, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := b.PlaceLimitSell(20, alice, 12, 2); err != nil {
		t.Fatal(err)
	}

	// Crosses the 10 ask only; remainder rests at 11.
	res, err := b.PlaceLimitBuy(25, bob, 11, 3)
	if err != nil {
		t.Fatalf("limit buy: %v", err)
	}
	if res.TotalFillSize != 20 {
		t.Errorf("total fill = %d, want 20", res.TotalFillSize)
	}
	if len(res.Fills) != 1 || res.Fills[0].Price != 10 || res.Fills[0].Size != 20 {
		t.Errorf("fills = %+v, want [20@10]", res.Fills)
	}
	if res.NewOrder == nil || res.NewOrder.Size != 5 || res.NewOrder.Price != 11 {
		t.Fatalf("resting remainder = %+v, want 5@11", res.NewOrder)
	}

	bids, _ := b.BidLevels()
	if len(bids) != 1 || bids[0].Price != 11 || bids[0].Size != 5 {
		t.Errorf("bids = %v, want [5@11]", bids)
	}

	// Market buy takes from the 12 ask.
	res, err = b.PlaceMarketBuy(5, bob)
	if err != nil {
		t.Fatalf("market buy: %v", err)
	}
	if res.TotalFillSize != 5 || len(res.Fills) != 1 || res.Fills[0].Price != 12 {
		t.Errorf("market buy result = %+v, want 5@12", res)
	}
}

func TestLimitSellCrossesBids(t *testing.T) {
	b := newBook()
	if _, err := b.PlaceLimitBuy(10, alice, 100, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := b.PlaceLimitBuy(10, alice, 90, 2); err != nil {
		t.Fatal(err)
	}

	// Sell limit 95 crosses the 100 bid but not the 90 bid.
	res, err := b.PlaceLimitSell(15, bob, 95, 3)
	if err != nil {
		t.Fatalf("limit sell: %v", err)
	}
	if res.TotalFillSize != 10 || len(res.Fills) != 1 || res.Fills[0].Price != 100 {
		t.Errorf("result = %+v, want one fill 10@100", res)
	}
	if res.NewOrder == nil || res.NewOrder.Size != 5 || res.NewOrder.Price != 95 {
		t.Errorf("remainder = %+v, want 5@95", res.NewOrder)
	}
	if got := bidPrices(t, b); len(got) != 1 || got[0] != 90 {
		t.Errorf("bids = %v, want [90]", got)
	}
}

func TestFullFillDoesNotRest(t *testing.T) {
	b := newBook()
	if _, err := b.PlaceLimitSell(10, alice, 100, 1); err != nil {
		t.Fatal(err)
	}

	res, err := b.PlaceLimitBuy(10, bob, 100, 2)
	if err != nil {
		t.Fatalf("limit buy: %v", err)
	}
	if res.NewOrder != nil {
		t.Errorf("fully filled order rested: %+v", res.NewOrder)
	}
	if got := bidPrices(t, b); len(got) != 0 {
		t.Errorf("bids = %v, want empty", got)
	}
	if got := askPrices(t, b); len(got) != 0 {
		t.Errorf("asks = %v, want empty", got)
	}
}

func TestMarketRemainderDropped(t *testing.T) {
	b := newBook()
	if _, err := b.PlaceLimitSell(5, alice, 100, 1); err != nil {
		t.Fatal(err)
	}

	res, err := b.PlaceMarketBuy(20, bob)
	if err != nil {
		t.Fatalf("market buy: %v", err)
	}
	if res.TotalFillSize != 5 {
		t.Errorf("total fill = %d, want 5", res.TotalFillSize)
	}
	if res.NewOrder != nil {
		t.Errorf("market order rested: %+v", res.NewOrder)
	}
}

func TestSelfTradePrevention(t *testing.T) {
	b := newBook()
	if _, err := b.PlaceLimitSell(10, alice, 100, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := b.PlaceLimitSell(10, bob, 110, 2); err != nil {
		t.Fatal(err)
	}

	// Alice's own ask is skipped; she fills against Bob behind it.
	res, err := b.PlaceMarketBuy(10, alice)
	if err != nil {
		t.Fatalf("market buy: %v", err)
	}
	if res.TotalFillSize != 10 || len(res.Fills) != 1 {
		t.Fatalf("result = %+v, want one 10@110 fill", res)
	}
	if res.Fills[0].Creator != bob || res.Fills[0].Price != 110 {
		t.Errorf("fill = %+v, want bob@110", res.Fills[0])
	}

	// Alice's ask survives untouched.
	if got := askPrices(t, b); len(got) != 1 || got[0] != 100 {
		t.Errorf("asks = %v, want [100]", got)
	}
}

func TestZeroSizePlacementNoop(t *testing.T) {
	b := newBook()
	if _, err := b.PlaceLimitSell(10, alice, 100, 1); err != nil {
		t.Fatal(err)
	}

	res, err := b.PlaceMarketBuy(0, bob)
	if err != nil {
		t.Fatalf("zero-size market buy: %v", err)
	}
	if res.TotalFillSize != 0 || len(res.Fills) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}

	res, err = b.PlaceLimitBuy(0, bob, 50, 2)
	if err != nil {
		t.Fatalf("zero-size limit buy: %v", err)
	}
	if res.NewOrder != nil {
		t.Errorf("zero-size order rested: %+v", res.NewOrder)
	}
}

func TestZeroPriceLimitRejected(t *testing.T) {
	b := newBook()
	if _, err := b.PlaceLimitBuy(10, alice, 0, 1); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("limit buy err = %v, want ErrInvalidOrder", err)
	}
	if _, err := b.PlaceLimitSell(10, alice, 0, 1); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("limit sell err = %v, want ErrInvalidOrder", err)
	}
}

func TestCancel(t *testing.T) {
	b := newBook()
	if _, err := b.PlaceLimitBuy(7, alice, 100, 5); err != nil {
		t.Fatal(err)
	}

	removed, err := b.Cancel(Long, Key{Price: 100, Creator: alice, Height: 5})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if removed.Size != 7 || removed.Price != 100 {
		t.Errorf("removed = %+v, want 7@100", removed)
	}
	if got := bidPrices(t, b); len(got) != 0 {
		t.Errorf("bids = %v, want empty", got)
	}

	_, err = b.Cancel(Long, Key{Price: 100, Creator: alice, Height: 5})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("second cancel err = %v, want ErrOrderNotFound", err)
	}
	_, err = b.Cancel(Short, Key{Price: 100, Creator: alice, Height: 5})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("wrong-side cancel err = %v, want ErrOrderNotFound", err)
	}
}

func TestLevelsAggregateEqualPrices(t *testing.T) {
	b := newBook()
	if _, err := b.PlaceLimitSell(10, alice, 100, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := b.PlaceLimitSell(15, bob, 100, 2); err != nil {
		t.Fatal(err)
	}

	asks, err := b.AskLevels()
	if err != nil {
		t.Fatal(err)
	}
	if len(asks) != 1 || asks[0].Size != 25 {
		t.Errorf("asks = %v, want one level of 25", asks)
	}
}

func TestOrderCost(t *testing.T) {
	// A full bitcoin of notional at any price costs SatoshisPerBitcoin/price.
	o := Order{Price: 100, Size: 1}
	if got := o.Cost(); got != 1_000_000 {
		t.Errorf("cost = %d, want 1000000", got)
	}
	o = Order{Price: 50_000, Size: 100}
	if got := o.Cost(); got != 200_000 {
		t.Errorf("cost = %d, want 200000", got)
	}
}

func TestSideOther(t *testing.T) {
	if Long.Other() != Short || Short.Other() != Long {
		t.Error("Other does not flip sides")
	}
	if Long.String() != "long" || Short.String() != "short" {
		t.Error("unexpected side strings")
	}
}
