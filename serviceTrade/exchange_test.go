package serviceTrade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curveExchange/entity"
	"curveExchange/failure"
	"curveExchange/storage"
)

const (
	issuer = "tz1issuer"
	alice  = "tz1alice"
	bob    = "tz1bob"
	fee    = 10
)

type recorder struct {
	mu     sync.Mutex
	txs    []entity.Transaction
	assets []entity.Asset
}

func (r *recorder) Publish(_ context.Context, _ string, tx entity.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
	return nil
}

func (r *recorder) AssetChanged(asset entity.Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets = append(r.assets, asset)
}

func newExchange(t *testing.T, store storage.Store, mods ...func(*Options)) *Exchange {
	t.Helper()
	opts := Options{
		SuperOperators: []string{issuer},
		ErrorFee:       fee,
		Now:            func() time.Time { return time.UnixMilli(1700000000000) },
	}
	for _, m := range mods {
		m(&opts)
	}
	return NewExchange(store, opts)
}

func mintReq(symbol string, supply int64) MintRequest {
	return MintRequest{
		Name:          "Asset " + symbol,
		Symbol:        symbol,
		InitialSupply: supply,
		BasePrice:     100,
		Slope:         decimal.NewFromInt(10),
	}
}

func mustMint(t *testing.T, ex *Exchange, symbol string) {
	t.Helper()
	_, err := ex.Mint(context.Background(), Call{Caller: issuer}, mintReq(symbol, 0))
	require.NoError(t, err)
}

func refundOf(t *testing.T, err error) *entity.Settlement {
	t.Helper()
	var fe *failure.Error
	require.True(t, errors.As(err, &fe))
	return fe.Refund
}

func TestMint_InsufficientAttachedValueRefundsMinusFee(t *testing.T) {
	ex := newExchange(t, storage.NewMemory())

	_, err := ex.Mint(context.Background(), Call{Caller: issuer, AttachedValue: 450}, mintReq("AAA", 5))
	require.Error(t, err)
	assert.Equal(t, failure.InsufficientFunds, failure.KindOf(err))

	refund := refundOf(t, err)
	require.NotNil(t, refund)
	assert.Equal(t, entity.SettlementRefund, refund.Kind)
	assert.Equal(t, issuer, refund.Recipient)
	assert.Equal(t, int64(440), refund.Amount)

	_, err = ex.GetAsset(context.Background(), "AAA")
	assert.Equal(t, failure.NotFound, failure.KindOf(err))
}

func TestMint_PaysCurveCostWithoutCreditOrRecord(t *testing.T) {
	ctx := context.Background()
	ex := newExchange(t, storage.NewMemory())

	rcpt, err := ex.Mint(ctx, Call{Caller: issuer, AttachedValue: 600}, mintReq("AAA", 5))
	require.NoError(t, err)
	assert.Equal(t, int64(600), rcpt.Cost)
	assert.Nil(t, rcpt.Settlement)
	assert.Equal(t, int64(5), rcpt.Asset.Supply)
	assert.True(t, rcpt.Asset.Listed)

	balances, err := ex.GetBalances(ctx, issuer)
	require.NoError(t, err)
	assert.Empty(t, balances)

	txs, err := ex.GetTransactions(ctx, issuer)
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, err = ex.Mint(ctx, Call{Caller: issuer, AttachedValue: 600}, mintReq("AAA", 5))
	assert.Equal(t, failure.AlreadyExists, failure.KindOf(err))
	assert.Equal(t, int64(590), refundOf(t, err).Amount)
}

func TestMint_RequiresOperator(t *testing.T) {
	ex := newExchange(t, storage.NewMemory())

	_, err := ex.Mint(context.Background(), Call{Caller: alice, AttachedValue: 5}, mintReq("AAA", 0))
	assert.Equal(t, failure.Unauthorized, failure.KindOf(err))
	// attached value below the fee refunds nothing
	assert.Nil(t, refundOf(t, err))
}

func TestMint_RefundSurplus(t *testing.T) {
	ex := newExchange(t, storage.NewMemory(), func(o *Options) { o.RefundSurplus = true })

	rcpt, err := ex.Mint(context.Background(), Call{Caller: issuer, AttachedValue: 700}, mintReq("AAA", 5))
	require.NoError(t, err)
	require.NotNil(t, rcpt.Settlement)
	assert.Equal(t, int64(100), rcpt.Settlement.Amount)
}

func TestBuy(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	ex := newExchange(t, storage.NewMemory(), func(o *Options) {
		o.Publisher = rec
		o.Notifier = rec
	})
	mustMint(t, ex, "AAA")

	rcpt, err := ex.Buy(ctx, Call{Caller: alice, AttachedValue: 400}, "AAA", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(330), rcpt.Cost)
	assert.Equal(t, int64(3), rcpt.Balance)
	assert.Equal(t, int64(3), rcpt.Asset.Supply)
	// surplus is kept unless refunds are configured
	assert.Nil(t, rcpt.Settlement)

	require.NotNil(t, rcpt.Transaction)
	assert.Equal(t, entity.BuyTx{Symbol: "AAA", Amount: 3, Cost: 330}, rcpt.Transaction.Detail)

	txs, err := ex.GetTransactions(ctx, alice)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, rcpt.Transaction.ID, txs[0].ID)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.txs, 1)
	assert.Equal(t, rcpt.Transaction.ID, rec.txs[0].ID)
	// mint and buy each changed AAA
	assert.Len(t, rec.assets, 2)
}

func TestBuy_Failures(t *testing.T) {
	ctx := context.Background()
	ex := newExchange(t, storage.NewMemory())
	mustMint(t, ex, "AAA")

	_, err := ex.Buy(ctx, Call{Caller: alice, AttachedValue: 329}, "AAA", 3)
	assert.Equal(t, failure.InsufficientFunds, failure.KindOf(err))
	assert.Equal(t, int64(319), refundOf(t, err).Amount)

	_, err = ex.Buy(ctx, Call{Caller: alice, AttachedValue: 100}, "AAA", 0)
	assert.Equal(t, failure.ValidationError, failure.KindOf(err))

	_, err = ex.Buy(ctx, Call{Caller: alice, AttachedValue: 100}, "ZZZ", 1)
	assert.Equal(t, failure.NotFound, failure.KindOf(err))

	_, err = ex.Buy(ctx, Call{Caller: "", AttachedValue: 100}, "AAA", 1)
	assert.Equal(t, failure.ValidationError, failure.KindOf(err))

	asset, err := ex.GetAsset(ctx, "AAA")
	require.NoError(t, err)
	assert.Equal(t, int64(0), asset.Supply)
}

func TestBuy_ConcurrentBuysSerialize(t *testing.T) {
	ctx := context.Background()
	ex := newExchange(t, storage.NewMemory())
	mustMint(t, ex, "AAA")

	var wg sync.WaitGroup
	costs := make([]int64, 2)
	for i, caller := range []string{alice, bob} {
		wg.Add(1)
		go func(i int, caller string) {
			defer wg.Done()
			rcpt, err := ex.Buy(ctx, Call{Caller: caller, AttachedValue: 1000}, "AAA", 1)
			if assert.NoError(t, err) {
				costs[i] = rcpt.Cost
			}
		}(i, caller)
	}
	wg.Wait()

	asset, err := ex.GetAsset(ctx, "AAA")
	require.NoError(t, err)
	assert.Equal(t, int64(2), asset.Supply)
	// one buyer paid for the first unit, the other for the second
	assert.ElementsMatch(t, []int64{100, 110}, costs)

	for _, caller := range []string{alice, bob} {
		balances, err := ex.GetBalances(ctx, caller)
		require.NoError(t, err)
		assert.Equal(t, entity.Balances{"AAA": 1}, balances)
	}
}

func TestBuy_CanceledContextAborts(t *testing.T) {
	ex := newExchange(t, storage.NewMemory())
	mustMint(t, ex, "AAA")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ex.Buy(ctx, Call{Caller: alice, AttachedValue: 450}, "AAA", 1)
	assert.Equal(t, failure.Aborted, failure.KindOf(err))
	assert.Equal(t, int64(440), refundOf(t, err).Amount)

	asset, err := ex.GetAsset(context.Background(), "AAA")
	require.NoError(t, err)
	assert.Equal(t, int64(0), asset.Supply)
}

func TestSell_PaysOut(t *testing.T) {
	ctx := context.Background()
	ex := newExchange(t, storage.NewMemory())
	mustMint(t, ex, "AAA")

	_, err := ex.Buy(ctx, Call{Caller: alice, AttachedValue: 330}, "AAA", 3)
	require.NoError(t, err)

	rcpt, err := ex.Sell(ctx, Call{Caller: alice}, "AAA", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(230), rcpt.Proceeds)
	assert.Equal(t, int64(1), rcpt.Balance)
	assert.Equal(t, int64(1), rcpt.Asset.Supply)
	assert.Equal(t, &entity.Settlement{Kind: entity.SettlementPayout, Recipient: alice, Amount: 230}, rcpt.Settlement)
	assert.Equal(t, entity.SellTx{Symbol: "AAA", Amount: 2, Cost: -230}, rcpt.Transaction.Detail)
}

func TestSell_OverBalanceLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	ex := newExchange(t, storage.NewMemory())
	mustMint(t, ex, "AAA")

	_, err := ex.Buy(ctx, Call{Caller: alice, AttachedValue: 330}, "AAA", 3)
	require.NoError(t, err)

	_, err = ex.Sell(ctx, Call{Caller: alice}, "AAA", 4)
	assert.Equal(t, failure.InsufficientFunds, failure.KindOf(err))
	// sell carries no attached value, so no refund
	assert.Nil(t, refundOf(t, err))

	_, err = ex.Sell(ctx, Call{Caller: bob}, "AAA", 1)
	assert.Equal(t, failure.InsufficientFunds, failure.KindOf(err))

	asset, err := ex.GetAsset(ctx, "AAA")
	require.NoError(t, err)
	assert.Equal(t, int64(3), asset.Supply)

	balances, err := ex.GetBalances(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, entity.Balances{"AAA": 3}, balances)

	txs, err := ex.GetTransactions(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestSwap(t *testing.T) {
	ctx := context.Background()
	ex := newExchange(t, storage.NewMemory())
	mustMint(t, ex, "AAA")
	mustMint(t, ex, "BBB")

	_, err := ex.Buy(ctx, Call{Caller: alice, AttachedValue: 600}, "AAA", 5)
	require.NoError(t, err)

	// one BBB at supply 0 is worth 100; one AAA sold at supply 5 returns 140
	rcpt, err := ex.Swap(ctx, Call{Caller: alice}, "AAA", "BBB", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), rcpt.ValueUsed)
	assert.Equal(t, int64(1), rcpt.Spent)
	assert.Equal(t, int64(140), rcpt.Proceeds)
	assert.Equal(t, int64(1), rcpt.Received)
	assert.Equal(t, entity.SwapTx{FromSymbol: "AAA", ToSymbol: "BBB", Amount: 1, Received: 1}, rcpt.Transaction.Detail)

	balances, err := ex.GetBalances(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, entity.Balances{"AAA": 4, "BBB": 1}, balances)

	assets, err := ex.GetAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, int64(4), assets[0].Supply)
	assert.Equal(t, int64(1), assets[1].Supply)
}

func TestSwap_Failures(t *testing.T) {
	ctx := context.Background()
	ex := newExchange(t, storage.NewMemory())
	mustMint(t, ex, "AAA")
	mustMint(t, ex, "BBB")

	_, err := ex.Buy(ctx, Call{Caller: alice, AttachedValue: 100}, "AAA", 1)
	require.NoError(t, err)

	_, err = ex.Swap(ctx, Call{Caller: alice}, "AAA", "AAA", 1)
	assert.Equal(t, failure.ValidationError, failure.KindOf(err))

	// the single AAA returns 100, two BBB cost 210
	_, err = ex.Swap(ctx, Call{Caller: alice}, "AAA", "BBB", 2)
	assert.Equal(t, failure.InsufficientFunds, failure.KindOf(err))

	_, err = ex.Swap(ctx, Call{Caller: alice}, "AAA", "CCC", 1)
	assert.Equal(t, failure.NotFound, failure.KindOf(err))

	balances, err := ex.GetBalances(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, entity.Balances{"AAA": 1}, balances)
}

func TestListing(t *testing.T) {
	ctx := context.Background()
	ex := newExchange(t, storage.NewMemory(), func(o *Options) { o.SuperOperators = []string{issuer, bob} })
	mustMint(t, ex, "AAA")

	_, err := ex.Unlist(ctx, Call{Caller: alice}, "AAA")
	assert.Equal(t, failure.Unauthorized, failure.KindOf(err))

	// an operator that is not the issuer
	_, err = ex.Unlist(ctx, Call{Caller: bob}, "AAA")
	assert.Equal(t, failure.Unauthorized, failure.KindOf(err))

	rcpt, err := ex.Unlist(ctx, Call{Caller: issuer}, "AAA")
	require.NoError(t, err)
	assert.False(t, rcpt.Asset.Listed)
	assert.Equal(t, entity.UnlistTx{Symbol: "AAA"}, rcpt.Transaction.Detail)

	_, err = ex.Buy(ctx, Call{Caller: alice, AttachedValue: 1000}, "AAA", 1)
	assert.Equal(t, failure.ValidationError, failure.KindOf(err))

	_, err = ex.List(ctx, Call{Caller: issuer}, "AAA", 0, decimal.NewFromInt(1))
	assert.Equal(t, failure.ValidationError, failure.KindOf(err))

	rcpt, err = ex.List(ctx, Call{Caller: issuer}, "AAA", 200, decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.True(t, rcpt.Asset.Listed)
	assert.Equal(t, int64(200), rcpt.Asset.BasePrice)

	buy, err := ex.Buy(ctx, Call{Caller: alice, AttachedValue: 1000}, "AAA", 2)
	require.NoError(t, err)
	// 2*200 + 0.5*(0 + 1)
	assert.Equal(t, int64(400), buy.Cost)

	txs, err := ex.GetTransactions(ctx, issuer)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, entity.TxUnlist, txs[0].Detail.Kind())
	assert.Equal(t, entity.TxList, txs[1].Detail.Kind())
}

func TestOperators(t *testing.T) {
	ctx := context.Background()
	ex := newExchange(t, storage.NewMemory())

	_, err := ex.AddOperator(ctx, Call{Caller: alice}, bob)
	assert.Equal(t, failure.Unauthorized, failure.KindOf(err))

	rcpt, err := ex.AddOperator(ctx, Call{Caller: issuer}, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{bob}, rcpt.Operators)

	again, err := ex.AddOperator(ctx, Call{Caller: issuer}, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{bob}, again.Operators)
	assert.NotEqual(t, rcpt.Message, again.Message)

	_, _, err = ex.GetOperators(ctx, alice)
	assert.Equal(t, failure.Unauthorized, failure.KindOf(err))

	ops, super, err := ex.GetOperators(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{bob}, ops)
	assert.Equal(t, []string{issuer}, super)

	_, err = ex.RemoveOperator(ctx, Call{Caller: bob}, bob)
	assert.Equal(t, failure.ValidationError, failure.KindOf(err))

	rcpt, err = ex.RemoveOperator(ctx, Call{Caller: issuer}, bob)
	require.NoError(t, err)
	assert.Empty(t, rcpt.Operators)

	ok, err := ex.IsOperator(ctx, bob)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetWallet(t *testing.T) {
	ctx := context.Background()
	ex := newExchange(t, storage.NewMemory())
	mustMint(t, ex, "AAA")

	_, err := ex.Buy(ctx, Call{Caller: issuer, AttachedValue: 100}, "AAA", 1)
	require.NoError(t, err)

	w, err := ex.GetWallet(ctx, issuer)
	require.NoError(t, err)
	assert.True(t, w.IsOperator)
	require.Len(t, w.Assets, 1)
	assert.Equal(t, "AAA", w.Assets[0].Symbol)
	assert.Equal(t, entity.Balances{"AAA": 1}, w.Balances)
	assert.Len(t, w.Transactions, 1)

	w, err = ex.GetWallet(ctx, alice)
	require.NoError(t, err)
	assert.False(t, w.IsOperator)
	assert.Empty(t, w.Assets)
	assert.Empty(t, w.Balances)
	assert.Empty(t, w.Transactions)
}

// brokenStore accepts reads but fails every commit.
type brokenStore struct {
	*storage.Memory
}

func (b brokenStore) SetMany(context.Context, []storage.Entry) error {
	return errors.New("disk full")
}

func TestCommitFailureLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	mustMint(t, newExchange(t, mem), "AAA")

	ex := newExchange(t, brokenStore{mem})
	_, err := ex.Buy(ctx, Call{Caller: alice, AttachedValue: 500}, "AAA", 1)
	assert.Equal(t, failure.Internal, failure.KindOf(err))
	assert.Equal(t, int64(490), refundOf(t, err).Amount)

	asset, err := ex.GetAsset(ctx, "AAA")
	require.NoError(t, err)
	assert.Equal(t, int64(0), asset.Supply)

	balances, err := ex.GetBalances(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, balances)
}
