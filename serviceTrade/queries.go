package serviceTrade

import (
	"context"
	"strconv"

	"curveExchange/entity"
)

// Reads run against the committed store without locks: every backend
// commits a unit atomically, so a read never sees half an operation.

func (ex *Exchange) GetAssets(ctx context.Context) ([]entity.Asset, error) {
	return ex.bind(ex.store).assets.ListAll(ctx)
}

func (ex *Exchange) GetAsset(ctx context.Context, symbol string) (*entity.Asset, error) {
	return ex.bind(ex.store).assets.Get(ctx, symbol)
}

// GetOperators returns the stored operator list and the super operators.
// Only operators may read it.
func (ex *Exchange) GetOperators(ctx context.Context, caller string) (ops []string, super []string, err error) {
	u := ex.bind(ex.store)
	if err = requireOperator(ctx, u, caller, "view operators"); err != nil {
		return nil, nil, err
	}
	ops, err = u.ops.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ops, u.ops.Super(), nil
}

func (ex *Exchange) IsOperator(ctx context.Context, address string) (bool, error) {
	return ex.bind(ex.store).ops.IsOperator(ctx, address)
}

func (ex *Exchange) GetBalances(ctx context.Context, address string) (entity.Balances, error) {
	return ex.bind(ex.store).ledger.BalancesOf(ctx, address)
}

func (ex *Exchange) GetTransactions(ctx context.Context, address string) ([]entity.Transaction, error) {
	return ex.bind(ex.store).txlog.HistoryOf(ctx, address)
}

// GetWallet aggregates everything known about address. Assets are the
// ones it issued.
func (ex *Exchange) GetWallet(ctx context.Context, address string) (*entity.Wallet, error) {
	u := ex.bind(ex.store)

	isOp, err := u.ops.IsOperator(ctx, address)
	if err != nil {
		return nil, err
	}

	all, err := u.assets.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	issued := make([]entity.Asset, 0)
	for _, a := range all {
		if a.Issuer == address {
			issued = append(issued, a)
		}
	}

	balances, err := u.ledger.BalancesOf(ctx, address)
	if err != nil {
		return nil, err
	}
	txs, err := u.txlog.HistoryOf(ctx, address)
	if err != nil {
		return nil, err
	}

	return &entity.Wallet{
		Address:      address,
		IsOperator:   isOp,
		Assets:       issued,
		Balances:     balances,
		Transactions: txs,
	}, nil
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
