package serviceTrade

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"curveExchange/entity"
	"curveExchange/failure"
	"curveExchange/metrics"
	"curveExchange/serviceMarket"
	"curveExchange/servicePricing"
	"curveExchange/serviceUser"
	"curveExchange/storage"
)

// Publisher receives every committed transaction record.
type Publisher interface {
	Publish(ctx context.Context, address string, tx entity.Transaction) error
}

// AssetNotifier receives every asset whose state changed in a committed operation.
type AssetNotifier interface {
	AssetChanged(asset entity.Asset)
}

type Options struct {
	SuperOperators []string
	// ErrorFee is kept from attached value refunded on a failed mint or buy.
	ErrorFee int64
	// RefundSurplus returns attached value above the computed cost on success.
	RefundSurplus bool
	LockStripes   int
	Now           func() time.Time
	Publisher     Publisher
	Notifier      AssetNotifier
	Log           *logrus.Entry
}

// Call is the envelope of one request: who calls and what value they attached.
type Call struct {
	Caller        string
	AttachedValue int64
}

// Receipt is the result of a successful operation.
type Receipt struct {
	Message     string
	Asset       *entity.Asset
	Cost        int64
	Proceeds    int64
	ValueUsed   int64
	Spent       int64
	Received    int64
	Balance     int64
	Operators   []string
	Transaction *entity.Transaction
	Settlement  *entity.Settlement
}

type MintRequest struct {
	Name          string
	Symbol        string
	InitialSupply int64
	BasePrice     int64
	Slope         decimal.Decimal
}

// Exchange runs the exchange operations. Every mutating operation holds the
// locks of the entities it touches, stages its writes and commits them only
// when the whole operation succeeded.
type Exchange struct {
	store     storage.Store
	locks     *Locks
	super     []string
	fee       int64
	refund    bool
	now       func() time.Time
	publisher Publisher
	notifier  AssetNotifier
	log       *logrus.Entry
}

func NewExchange(store storage.Store, opts Options) *Exchange {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logrus.WithField("module", "exchange")
	}
	return &Exchange{
		store:     store,
		locks:     NewLocks(opts.LockStripes),
		super:     append([]string(nil), opts.SuperOperators...),
		fee:       opts.ErrorFee,
		refund:    opts.RefundSurplus,
		now:       opts.Now,
		publisher: opts.Publisher,
		notifier:  opts.Notifier,
		log:       opts.Log,
	}
}

// SetNotifier replaces the asset notifier. Call it before serving requests.
func (ex *Exchange) SetNotifier(n AssetNotifier) {
	ex.notifier = n
}

// unit is the working set of one operation, bound to a staged overlay.
type unit struct {
	tx       *storage.Tx
	assets   *serviceMarket.Registry
	ledger   *serviceUser.Ledger
	txlog    *TxLog
	ops      *serviceUser.Operators
	appended []appendedTx
	changed  []entity.Asset
}

type appendedTx struct {
	address string
	tx      entity.Transaction
}

func (ex *Exchange) bind(s storage.Store) *unit {
	ops := serviceUser.NewOperators(s, ex.super)
	return &unit{
		assets: serviceMarket.NewRegistry(s, ops),
		ledger: serviceUser.NewLedger(s),
		txlog:  NewTxLog(s, ex.now),
		ops:    ops,
	}
}

func (u *unit) record(ctx context.Context, address string, detail entity.TxDetail) (*entity.Transaction, error) {
	tx, err := u.txlog.Append(ctx, address, detail)
	if err != nil {
		return nil, err
	}
	u.appended = append(u.appended, appendedTx{address: address, tx: tx})
	return &tx, nil
}

func (u *unit) touched(asset *entity.Asset) {
	u.changed = append(u.changed, *asset)
}

func (ex *Exchange) run(ctx context.Context, op string, call Call, paid bool, lockKeys []string, fn func(ctx context.Context, u *unit) (*Receipt, error)) (rcpt *Receipt, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(failure.KindOf(err))
		}
		metrics.ObserveOperation(op, outcome, time.Since(start))
	}()

	if err = serviceUser.ValidateAddress(call.Caller); err != nil {
		return nil, ex.fail(op, call, paid, err)
	}
	if call.AttachedValue < 0 {
		return nil, ex.fail(op, call, false, failure.New(failure.ValidationError, "attached value must not be negative"))
	}

	release := ex.locks.Acquire(lockKeys...)
	defer release()

	if cerr := ctx.Err(); cerr != nil {
		return nil, ex.fail(op, call, paid, failure.Wrap(failure.Aborted, cerr, "%v aborted", op))
	}

	tx := storage.Begin(ex.store)
	u := ex.bind(tx)
	u.tx = tx

	rcpt, err = fn(ctx, u)
	if err != nil {
		return nil, ex.fail(op, call, paid, err)
	}

	// last point where the host budget may still cancel the operation
	if cerr := ctx.Err(); cerr != nil {
		return nil, ex.fail(op, call, paid, failure.Wrap(failure.Aborted, cerr, "%v aborted", op))
	}

	if err = u.tx.Commit(context.WithoutCancel(ctx)); err != nil {
		return nil, ex.fail(op, call, paid, failure.Wrap(failure.Internal, err, "commit %v", op))
	}

	ex.log.WithFields(logrus.Fields{"op": op, "caller": call.Caller}).Info(rcpt.Message)
	if rcpt.Settlement != nil {
		metrics.ObserveSettlement(string(rcpt.Settlement.Kind), rcpt.Settlement.Amount)
	}
	ex.afterCommit(ctx, u)

	return rcpt, nil
}

// fail converts err into a *failure.Error and attaches the refund of a
// paid request: attached value minus the error fee, floored at zero.
func (ex *Exchange) fail(op string, call Call, paid bool, err error) error {
	fe := *failure.From(err)

	if paid && call.AttachedValue > 0 && call.Caller != "" {
		amount := call.AttachedValue - ex.fee
		if amount > 0 {
			fe.Refund = &entity.Settlement{
				Kind:      entity.SettlementRefund,
				Recipient: call.Caller,
				Amount:    amount,
			}
			metrics.ObserveSettlement(string(entity.SettlementRefund), amount)
		}
	}

	entry := ex.log.WithFields(logrus.Fields{"op": op, "caller": call.Caller, "kind": fe.Kind})
	if fe.Kind == failure.Internal {
		entry.Errorf("%v failed: %v", op, err)
	} else {
		entry.Warnf("%v rejected: %v", op, fe.Message)
	}

	return &fe
}

// Refuse rejects a paid request before it reaches an operation, for
// example when its body cannot be decoded, and attaches the usual refund.
func (ex *Exchange) Refuse(op string, call Call, err error) error {
	return ex.fail(op, call, true, err)
}

func (ex *Exchange) afterCommit(ctx context.Context, u *unit) {
	if ex.publisher != nil {
		for _, a := range u.appended {
			if err := ex.publisher.Publish(ctx, a.address, a.tx); err != nil {
				ex.log.WithField("tx", a.tx.ID).Warnf("publish transaction failed: %v", err)
			}
		}
	}
	if ex.notifier != nil {
		for _, asset := range u.changed {
			ex.notifier.AssetChanged(asset)
		}
	}
}

func (ex *Exchange) surplus(call Call, cost int64) *entity.Settlement {
	if !ex.refund || call.AttachedValue <= cost {
		return nil
	}
	return &entity.Settlement{
		Kind:      entity.SettlementRefund,
		Recipient: call.Caller,
		Amount:    call.AttachedValue - cost,
	}
}

func requireOperator(ctx context.Context, u *unit, address, action string) error {
	isOp, err := u.ops.IsOperator(ctx, address)
	if err != nil {
		return err
	}
	if !isOp {
		return failure.New(failure.Unauthorized, "only operators can %v", action)
	}
	return nil
}

func requireAmount(amount int64) error {
	if amount < 1 {
		return failure.New(failure.ValidationError, "amount must be at least 1, got %v", amount)
	}
	return nil
}

// Mint creates a new asset issued by the caller. The caller pays the curve
// cost of the initial supply but is not credited with it.
func (ex *Exchange) Mint(ctx context.Context, call Call, req MintRequest) (*Receipt, error) {
	locks := []string{assetIndexLock, assetLock(req.Symbol)}

	return ex.run(ctx, "mint", call, true, locks, func(ctx context.Context, u *unit) (*Receipt, error) {
		if err := requireOperator(ctx, u, call.Caller, "mint assets"); err != nil {
			return nil, err
		}

		na := serviceMarket.NewAsset{
			Name:          req.Name,
			Symbol:        req.Symbol,
			Issuer:        call.Caller,
			BasePrice:     req.BasePrice,
			Slope:         req.Slope,
			InitialSupply: req.InitialSupply,
		}
		if err := na.Validate(); err != nil {
			return nil, err
		}

		_, err := u.assets.Get(ctx, req.Symbol)
		if err == nil {
			return nil, failure.New(failure.AlreadyExists, "asset '%v' already exists", req.Symbol)
		}
		if failure.KindOf(err) != failure.NotFound {
			return nil, err
		}

		var required int64
		if req.InitialSupply > 0 {
			required, err = servicePricing.BuyCost(req.BasePrice, req.Slope, 0, req.InitialSupply)
			if err != nil {
				return nil, err
			}
		}
		if call.AttachedValue < required {
			return nil, failure.New(failure.InsufficientFunds,
				"minting %v %v requires %v, attached %v", req.InitialSupply, req.Symbol, required, call.AttachedValue)
		}

		asset, err := u.assets.Create(ctx, na)
		if err != nil {
			return nil, err
		}
		u.touched(asset)

		return &Receipt{
			Message:    "Asset '" + asset.Symbol + "' minted and listed.",
			Asset:      asset,
			Cost:       required,
			Settlement: ex.surplus(call, required),
		}, nil
	})
}

// List relists an asset with new curve parameters. Issuer only.
func (ex *Exchange) List(ctx context.Context, call Call, symbol string, basePrice int64, slope decimal.Decimal) (*Receipt, error) {
	locks := []string{assetLock(symbol), accountLock(call.Caller)}

	return ex.run(ctx, "list", call, false, locks, func(ctx context.Context, u *unit) (*Receipt, error) {
		asset, err := u.assets.SetListing(ctx, symbol, true, &basePrice, &slope, call.Caller)
		if err != nil {
			return nil, err
		}
		u.touched(asset)

		tx, err := u.record(ctx, call.Caller, entity.ListTx{Symbol: symbol, BasePrice: basePrice, Slope: slope})
		if err != nil {
			return nil, err
		}

		return &Receipt{
			Message:     "Asset '" + symbol + "' listed by " + call.Caller + ".",
			Asset:       asset,
			Transaction: tx,
		}, nil
	})
}

// Unlist stops trading of an asset. Issuer only.
func (ex *Exchange) Unlist(ctx context.Context, call Call, symbol string) (*Receipt, error) {
	locks := []string{assetLock(symbol), accountLock(call.Caller)}

	return ex.run(ctx, "unlist", call, false, locks, func(ctx context.Context, u *unit) (*Receipt, error) {
		asset, err := u.assets.SetListing(ctx, symbol, false, nil, nil, call.Caller)
		if err != nil {
			return nil, err
		}
		u.touched(asset)

		tx, err := u.record(ctx, call.Caller, entity.UnlistTx{Symbol: symbol})
		if err != nil {
			return nil, err
		}

		return &Receipt{
			Message:     "Asset '" + symbol + "' unlisted by " + call.Caller + ".",
			Asset:       asset,
			Transaction: tx,
		}, nil
	})
}

func listedAsset(ctx context.Context, u *unit, symbol string) (*entity.Asset, error) {
	if err := serviceMarket.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	asset, err := u.assets.Get(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !asset.Listed {
		return nil, failure.New(failure.ValidationError, "asset '%v' is not listed", symbol)
	}
	return asset, nil
}

// Buy purchases amount units along the curve, paid from the attached value.
func (ex *Exchange) Buy(ctx context.Context, call Call, symbol string, amount int64) (*Receipt, error) {
	locks := []string{assetLock(symbol), accountLock(call.Caller)}

	return ex.run(ctx, "buy", call, true, locks, func(ctx context.Context, u *unit) (*Receipt, error) {
		if err := requireAmount(amount); err != nil {
			return nil, err
		}
		asset, err := listedAsset(ctx, u, symbol)
		if err != nil {
			return nil, err
		}

		cost, err := servicePricing.CurveOf(*asset).BuyCost(asset.Supply, amount)
		if err != nil {
			return nil, err
		}
		if cost <= 0 {
			return nil, failure.New(failure.ZeroValueOperation, "buy amount too low to register value")
		}
		if call.AttachedValue < cost {
			return nil, failure.New(failure.InsufficientFunds,
				"buying %v %v costs %v, attached %v", amount, symbol, cost, call.AttachedValue)
		}

		if asset, err = u.assets.AdjustSupply(ctx, symbol, amount); err != nil {
			return nil, err
		}
		u.touched(asset)

		balance, err := u.ledger.Credit(ctx, call.Caller, symbol, amount)
		if err != nil {
			return nil, err
		}

		tx, err := u.record(ctx, call.Caller, entity.BuyTx{Symbol: symbol, Amount: amount, Cost: cost})
		if err != nil {
			return nil, err
		}

		return &Receipt{
			Message:     "Successfully bought " + itoa(amount) + " " + symbol + ".",
			Asset:       asset,
			Cost:        cost,
			Balance:     balance,
			Transaction: tx,
			Settlement:  ex.surplus(call, cost),
		}, nil
	})
}

// Sell returns amount units to the curve and pays the proceeds out to the caller.
func (ex *Exchange) Sell(ctx context.Context, call Call, symbol string, amount int64) (*Receipt, error) {
	locks := []string{assetLock(symbol), accountLock(call.Caller)}

	return ex.run(ctx, "sell", call, false, locks, func(ctx context.Context, u *unit) (*Receipt, error) {
		if err := requireAmount(amount); err != nil {
			return nil, err
		}
		asset, err := listedAsset(ctx, u, symbol)
		if err != nil {
			return nil, err
		}

		held, err := u.ledger.BalanceOf(ctx, call.Caller, symbol)
		if err != nil {
			return nil, err
		}
		if held < amount {
			return nil, failure.New(failure.InsufficientFunds,
				"insufficient balance to sell: have %v %v, selling %v", held, symbol, amount)
		}
		if asset.Supply < amount {
			return nil, failure.New(failure.InsufficientFunds,
				"not enough supply of %v: %v in circulation, selling %v", symbol, asset.Supply, amount)
		}

		proceeds, err := servicePricing.CurveOf(*asset).SellReturn(asset.Supply, amount)
		if err != nil {
			return nil, err
		}
		if proceeds <= 0 {
			return nil, failure.New(failure.ZeroValueOperation, "sell amount too low to register value")
		}

		if asset, err = u.assets.AdjustSupply(ctx, symbol, -amount); err != nil {
			return nil, err
		}
		u.touched(asset)

		balance, err := u.ledger.Debit(ctx, call.Caller, symbol, amount)
		if err != nil {
			return nil, err
		}

		tx, err := u.record(ctx, call.Caller, entity.SellTx{Symbol: symbol, Amount: amount, Cost: -proceeds})
		if err != nil {
			return nil, err
		}

		return &Receipt{
			Message:     "Sold " + itoa(amount) + " " + symbol + " for " + itoa(proceeds) + ".",
			Asset:       asset,
			Proceeds:    proceeds,
			Balance:     balance,
			Transaction: tx,
			Settlement: &entity.Settlement{
				Kind:      entity.SettlementPayout,
				Recipient: call.Caller,
				Amount:    proceeds,
			},
		}, nil
	})
}

// Swap gives up as few units of fromSymbol as needed to receive amount
// units of toSymbol.
func (ex *Exchange) Swap(ctx context.Context, call Call, fromSymbol, toSymbol string, amount int64) (*Receipt, error) {
	locks := []string{assetLock(fromSymbol), assetLock(toSymbol), accountLock(call.Caller)}

	return ex.run(ctx, "swap", call, false, locks, func(ctx context.Context, u *unit) (*Receipt, error) {
		if err := requireAmount(amount); err != nil {
			return nil, err
		}
		if fromSymbol == toSymbol {
			return nil, failure.New(failure.ValidationError, "cannot swap %v into itself", fromSymbol)
		}

		from, err := listedAsset(ctx, u, fromSymbol)
		if err != nil {
			return nil, err
		}
		to, err := listedAsset(ctx, u, toSymbol)
		if err != nil {
			return nil, err
		}

		target, err := servicePricing.CurveOf(*to).BuyCost(to.Supply, amount)
		if err != nil {
			return nil, err
		}

		held, err := u.ledger.BalanceOf(ctx, call.Caller, fromSymbol)
		if err != nil {
			return nil, err
		}
		upper := held
		if from.Supply < upper {
			upper = from.Supply
		}

		fromCurve := servicePricing.CurveOf(*from)
		required, ok, err := fromCurve.EstimateAmountForTargetValue(from.Supply, target, upper)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, failure.New(failure.InsufficientFunds,
				"insufficient %v to receive %v %v worth %v", fromSymbol, amount, toSymbol, target)
		}
		value, err := fromCurve.SellReturn(from.Supply, required)
		if err != nil {
			return nil, err
		}

		if from, err = u.assets.AdjustSupply(ctx, fromSymbol, -required); err != nil {
			return nil, err
		}
		if to, err = u.assets.AdjustSupply(ctx, toSymbol, amount); err != nil {
			return nil, err
		}
		u.touched(from)
		u.touched(to)

		if _, err = u.ledger.Debit(ctx, call.Caller, fromSymbol, required); err != nil {
			return nil, err
		}
		balance, err := u.ledger.Credit(ctx, call.Caller, toSymbol, amount)
		if err != nil {
			return nil, err
		}

		tx, err := u.record(ctx, call.Caller, entity.SwapTx{
			FromSymbol: fromSymbol,
			ToSymbol:   toSymbol,
			Amount:     required,
			Received:   amount,
		})
		if err != nil {
			return nil, err
		}

		return &Receipt{
			Message:     "Swapped " + itoa(required) + " " + fromSymbol + " for " + itoa(amount) + " " + toSymbol + ".",
			Asset:       to,
			ValueUsed:   target,
			Proceeds:    value,
			Spent:       required,
			Received:    amount,
			Balance:     balance,
			Transaction: tx,
		}, nil
	})
}

func (ex *Exchange) AddOperator(ctx context.Context, call Call, address string) (*Receipt, error) {
	return ex.run(ctx, "add_operator", call, false, []string{operatorsLock}, func(ctx context.Context, u *unit) (*Receipt, error) {
		ops, added, err := u.ops.Add(ctx, address, call.Caller)
		if err != nil {
			return nil, err
		}
		msg := "Address has been added as an operator."
		if !added {
			msg = "Address is already an operator."
		}
		return &Receipt{Message: msg, Operators: ops}, nil
	})
}

func (ex *Exchange) RemoveOperator(ctx context.Context, call Call, address string) (*Receipt, error) {
	return ex.run(ctx, "remove_operator", call, false, []string{operatorsLock}, func(ctx context.Context, u *unit) (*Receipt, error) {
		ops, removed, err := u.ops.Remove(ctx, address, call.Caller)
		if err != nil {
			return nil, err
		}
		msg := "Address has been removed from operators."
		if !removed {
			msg = "Address is not an operator."
		}
		return &Receipt{Message: msg, Operators: ops}, nil
	})
}
