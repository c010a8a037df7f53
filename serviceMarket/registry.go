package serviceMarket

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"curveExchange/entity"
	"curveExchange/failure"
	"curveExchange/servicePricing"
	"curveExchange/storage"
)

const (
	indexKey      = "assets"
	minNameLength = 2
)

func assetKey(symbol string) string {
	return "assets/" + symbol
}

// Authorizer answers whether an address may act as an operator.
type Authorizer interface {
	IsOperator(ctx context.Context, address string) (bool, error)
}

// Registry stores assets keyed by symbol plus an insertion ordered symbol index.
type Registry struct {
	store storage.Store
	auth  Authorizer
}

func NewRegistry(store storage.Store, auth Authorizer) *Registry {
	return &Registry{store: store, auth: auth}
}

type NewAsset struct {
	Name          string
	Symbol        string
	Issuer        string
	BasePrice     int64
	Slope         decimal.Decimal
	InitialSupply int64
}

func (na NewAsset) Validate() error {
	if err := ValidateSymbol(na.Symbol); err != nil {
		return err
	}
	if len(strings.TrimSpace(na.Name)) < minNameLength {
		return failure.New(failure.ValidationError, "asset name must have at least %v characters", minNameLength)
	}
	if na.InitialSupply < 0 {
		return failure.New(failure.ValidationError, "initial supply must not be negative, got %v", na.InitialSupply)
	}
	return servicePricing.Curve{BasePrice: na.BasePrice, Slope: na.Slope}.Validate()
}

// ValidateSymbol rejects symbols that cannot serve as a storage key segment.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return failure.New(failure.ValidationError, "symbol must not be empty")
	}
	if strings.ContainsAny(symbol, "/ \t\n") {
		return failure.New(failure.ValidationError, "symbol '%v' contains invalid characters", symbol)
	}
	return nil
}

func (r *Registry) Create(ctx context.Context, na NewAsset) (*entity.Asset, error) {
	if err := na.Validate(); err != nil {
		return nil, err
	}

	exists, err := r.exists(ctx, na.Symbol)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, failure.New(failure.AlreadyExists, "asset '%v' already exists", na.Symbol)
	}

	asset := entity.Asset{
		Name:      na.Name,
		Symbol:    na.Symbol,
		Issuer:    na.Issuer,
		BasePrice: na.BasePrice,
		Slope:     na.Slope,
		Supply:    na.InitialSupply,
		Listed:    true,
	}
	if err = r.save(ctx, asset); err != nil {
		return nil, err
	}

	symbols, err := r.symbols(ctx)
	if err != nil {
		return nil, err
	}
	symbols = append(symbols, na.Symbol)
	if err = storage.SetJSON(ctx, r.store, indexKey, symbols); err != nil {
		return nil, failure.Wrap(failure.Internal, err, "store asset index")
	}

	return &asset, nil
}

func (r *Registry) Get(ctx context.Context, symbol string) (*entity.Asset, error) {
	var asset entity.Asset
	ok, err := storage.GetJSON(ctx, r.store, assetKey(symbol), &asset)
	if err != nil {
		return nil, failure.Wrap(failure.Internal, err, "load asset '%v'", symbol)
	}
	if !ok {
		return nil, failure.New(failure.NotFound, "asset '%v' not found", symbol)
	}
	return &asset, nil
}

// ListAll returns every asset in creation order.
func (r *Registry) ListAll(ctx context.Context) ([]entity.Asset, error) {
	symbols, err := r.symbols(ctx)
	if err != nil {
		return nil, err
	}

	assets := make([]entity.Asset, 0, len(symbols))
	for _, sym := range symbols {
		asset, err := r.Get(ctx, sym)
		if err != nil {
			if failure.KindOf(err) == failure.NotFound {
				continue
			}
			return nil, err
		}
		assets = append(assets, *asset)
	}
	return assets, nil
}

// SetListing lists or unlists an asset. Only an operator who is also the
// issuer may do so. Price parameters are applied on listing only; nil keeps
// the current value.
func (r *Registry) SetListing(ctx context.Context, symbol string, listed bool, basePrice *int64, slope *decimal.Decimal, acting string) (*entity.Asset, error) {
	asset, err := r.Get(ctx, symbol)
	if err != nil {
		return nil, err
	}

	isOp, err := r.auth.IsOperator(ctx, acting)
	if err != nil {
		return nil, err
	}
	if !isOp {
		return nil, failure.New(failure.Unauthorized, "only operators can change the listing of '%v'", symbol)
	}
	if asset.Issuer != acting {
		return nil, failure.New(failure.Unauthorized, "only the asset issuer can change the listing of '%v'", symbol)
	}

	asset.Listed = listed
	if listed {
		if basePrice != nil {
			asset.BasePrice = *basePrice
		}
		if slope != nil {
			asset.Slope = *slope
		}
		if err = servicePricing.CurveOf(*asset).Validate(); err != nil {
			return nil, err
		}
	}

	if err = r.save(ctx, *asset); err != nil {
		return nil, err
	}
	return asset, nil
}

// AdjustSupply adds delta to the supply of symbol.
func (r *Registry) AdjustSupply(ctx context.Context, symbol string, delta int64) (*entity.Asset, error) {
	asset, err := r.Get(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if asset.Supply+delta < 0 {
		return nil, failure.New(failure.InsufficientFunds,
			"supply of '%v' is %v, cannot remove %v", symbol, asset.Supply, -delta)
	}
	asset.Supply += delta

	if err = r.save(ctx, *asset); err != nil {
		return nil, err
	}
	return asset, nil
}

func (r *Registry) exists(ctx context.Context, symbol string) (bool, error) {
	_, ok, err := r.store.Get(ctx, assetKey(symbol))
	if err != nil {
		return false, failure.Wrap(failure.Internal, err, "load asset '%v'", symbol)
	}
	return ok, nil
}

func (r *Registry) symbols(ctx context.Context) ([]string, error) {
	var symbols []string
	if _, err := storage.GetJSON(ctx, r.store, indexKey, &symbols); err != nil {
		return nil, failure.Wrap(failure.Internal, err, "load asset index")
	}
	return symbols, nil
}

func (r *Registry) save(ctx context.Context, asset entity.Asset) error {
	if err := storage.SetJSON(ctx, r.store, assetKey(asset.Symbol), asset); err != nil {
		return failure.Wrap(failure.Internal, err, "store asset '%v'", asset.Symbol)
	}
	return nil
}
