package serviceUser

import (
	"context"
	"strconv"

	"curveExchange/entity"
	"curveExchange/failure"
	"curveExchange/storage"
)

func balanceKey(address, symbol string) string {
	return "balances/" + address + "/" + symbol
}

// balanceIndexKey holds the symbols an address has ever touched.
func balanceIndexKey(address string) string {
	return "balances/" + address
}

// Ledger keeps per-(address, symbol) holdings. Balances never go negative
// and entries are kept at zero.
type Ledger struct {
	store storage.Store
}

func NewLedger(store storage.Store) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) Credit(ctx context.Context, address, symbol string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, failure.New(failure.ValidationError, "credit amount must be positive, got %v", amount)
	}

	current, err := l.BalanceOf(ctx, address, symbol)
	if err != nil {
		return 0, err
	}
	if err = l.write(ctx, address, symbol, current+amount); err != nil {
		return 0, err
	}
	if err = l.index(ctx, address, symbol); err != nil {
		return 0, err
	}
	return current + amount, nil
}

func (l *Ledger) Debit(ctx context.Context, address, symbol string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, failure.New(failure.ValidationError, "debit amount must be positive, got %v", amount)
	}

	current, err := l.BalanceOf(ctx, address, symbol)
	if err != nil {
		return 0, err
	}
	if current < amount {
		return 0, failure.New(failure.InsufficientFunds,
			"insufficient balance of %v: have %v, need %v", symbol, current, amount)
	}
	if err = l.write(ctx, address, symbol, current-amount); err != nil {
		return 0, err
	}
	return current - amount, nil
}

func (l *Ledger) BalanceOf(ctx context.Context, address, symbol string) (int64, error) {
	buf, ok, err := l.store.Get(ctx, balanceKey(address, symbol))
	if err != nil {
		return 0, failure.Wrap(failure.Internal, err, "load balance %v/%v", address, symbol)
	}
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		return 0, failure.Wrap(failure.Internal, err, "corrupt balance %v/%v", address, symbol)
	}
	return v, nil
}

// BalancesOf reads the symbol index of address, then every balance in it.
func (l *Ledger) BalancesOf(ctx context.Context, address string) (entity.Balances, error) {
	symbols, err := l.symbols(ctx, address)
	if err != nil {
		return nil, err
	}

	balances := make(entity.Balances, len(symbols))
	for _, sym := range symbols {
		v, err := l.BalanceOf(ctx, address, sym)
		if err != nil {
			return nil, err
		}
		balances[sym] = v
	}
	return balances, nil
}

func (l *Ledger) write(ctx context.Context, address, symbol string, value int64) error {
	err := l.store.Set(ctx, balanceKey(address, symbol), []byte(strconv.FormatInt(value, 10)))
	if err != nil {
		return failure.Wrap(failure.Internal, err, "store balance %v/%v", address, symbol)
	}
	return nil
}

func (l *Ledger) index(ctx context.Context, address, symbol string) error {
	symbols, err := l.symbols(ctx, address)
	if err != nil {
		return err
	}
	for _, s := range symbols {
		if s == symbol {
			return nil
		}
	}

	symbols = append(symbols, symbol)
	if err = storage.SetJSON(ctx, l.store, balanceIndexKey(address), symbols); err != nil {
		return failure.Wrap(failure.Internal, err, "store balance index of %v", address)
	}
	return nil
}

func (l *Ledger) symbols(ctx context.Context, address string) ([]string, error) {
	var symbols []string
	if _, err := storage.GetJSON(ctx, l.store, balanceIndexKey(address), &symbols); err != nil {
		return nil, failure.Wrap(failure.Internal, err, "load balance index of %v", address)
	}
	return symbols, nil
}
