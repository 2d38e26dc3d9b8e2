package account

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"pegmargin/pkg/core/orderbook"
	"pegmargin/pkg/storage"
)

// Key schema: "acct:" + 20-byte address.
const acctPrefix = "acct:"

func acctKey(addr common.Address) []byte {
	key := make([]byte, 0, len(acctPrefix)+common.AddressLength)
	key = append(key, acctPrefix...)
	return append(key, addr[:]...)
}

// Account records are flat fixed-width big-endian integers in field order:
// nonce, balance, order_margin, max_bid_margin, max_ask_margin, size, side,
// entry_price, position_margin, desired_leverage.
const acctLen = 8*8 + 1 + 2

func encodeAccount(a Account) []byte {
	buf := make([]byte, acctLen)
	binary.BigEndian.PutUint64(buf[0:8], a.Nonce)
	binary.BigEndian.PutUint64(buf[8:16], a.Balance)
	binary.BigEndian.PutUint64(buf[16:24], a.OrderMargin)
	binary.BigEndian.PutUint64(buf[24:32], a.MaxBidMargin)
	binary.BigEndian.PutUint64(buf[32:40], a.MaxAskMargin)
	binary.BigEndian.PutUint64(buf[40:48], a.Size)
	buf[48] = byte(a.Side)
	binary.BigEndian.PutUint64(buf[49:57], a.EntryPrice)
	binary.BigEndian.PutUint64(buf[57:65], a.PositionMargin)
	binary.BigEndian.PutUint16(buf[65:67], a.DesiredLeverage)
	return buf
}

func decodeAccount(buf []byte) (Account, error) {
	if len(buf) != acctLen {
		return Account{}, fmt.Errorf("bad account record length %d", len(buf))
	}
	var a Account
	a.Nonce = binary.BigEndian.Uint64(buf[0:8])
	a.Balance = binary.BigEndian.Uint64(buf[8:16])
	a.OrderMargin = binary.BigEndian.Uint64(buf[16:24])
	a.MaxBidMargin = binary.BigEndian.Uint64(buf[24:32])
	a.MaxAskMargin = binary.BigEndian.Uint64(buf[32:40])
	a.Size = binary.BigEndian.Uint64(buf[40:48])
	a.Side = orderbook.Side(buf[48])
	a.EntryPrice = binary.BigEndian.Uint64(buf[49:57])
	a.PositionMargin = binary.BigEndian.Uint64(buf[57:65])
	a.DesiredLeverage = binary.BigEndian.Uint16(buf[65:67])
	return a, nil
}

// Ledger is the address-keyed account store: an in-memory cache over an
// ordered key-value store. Accounts are never deleted; a fully-flat,
// fully-unfunded account simply has all fields at zero.
type Ledger struct {
	store storage.Store
	cache map[common.Address]Account
}

func NewLedger(store storage.Store) *Ledger {
	return &Ledger{
		store: store,
		cache: make(map[common.Address]Account),
	}
}

// Get returns a copy of the account for addr, loading it from the store on
// a cache miss. Callers mutate the copy and commit it with Insert.
func (l *Ledger) Get(addr common.Address) (Account, bool, error) {
	if acct, ok := l.cache[addr]; ok {
		return acct, true, nil
	}

	data, found, err := l.store.Get(acctKey(addr))
	if err != nil {
		return Account{}, false, fmt.Errorf("failed to load account: %w", err)
	}
	if !found {
		return Account{}, false, nil
	}

	acct, err := decodeAccount(data)
	if err != nil {
		return Account{}, false, err
	}
	l.cache[addr] = acct
	return acct, true, nil
}

// Insert writes the account into the cache and persists it.
func (l *Ledger) Insert(addr common.Address, acct Account) error {
	l.cache[addr] = acct
	if err := l.store.Set(acctKey(addr), encodeAccount(acct)); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// Deposit credits free balance, creating the account on first deposit. This
// is the ledger-credit hook the peg relayer calls for a verified deposit.
func (l *Ledger) Deposit(addr common.Address, amount uint64) error {
	acct, found, err := l.Get(addr)
	if err != nil {
		return err
	}
	if !found {
		acct = New(0)
	}
	acct.Balance += amount
	return l.Insert(addr, acct)
}

// Withdraw debits free balance; collateral locked behind orders or the
// position cannot be withdrawn. This is the ledger-debit hook for peg
// withdrawals.
func (l *Ledger) Withdraw(addr common.Address, amount uint64) error {
	acct, found, err := l.Get(addr)
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownAccount
	}
	if acct.Balance < amount {
		return ErrInsufficientFunds
	}
	acct.Balance -= amount
	return l.Insert(addr, acct)
}
