package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset is a tradable asset priced along a linear bonding curve.
// Amounts and prices are integers in the smallest currency unit.
type Asset struct {
	Name      string          `json:"name"`
	Symbol    string          `json:"symbol"`
	Issuer    string          `json:"issuer"`
	BasePrice int64           `json:"basePrice"`
	Slope     decimal.Decimal `json:"slope"`
	Supply    int64           `json:"supply"`
	Listed    bool            `json:"listed"`
}

// SpotPrice is the price of the next unit at the current supply.
func (a Asset) SpotPrice() decimal.Decimal {
	return decimal.NewFromInt(a.BasePrice).Add(a.Slope.Mul(decimal.NewFromInt(a.Supply)))
}

// MarketAsset is one spot price update sent to stream clients.
type MarketAsset struct {
	Symbol string          `json:"symbol"`
	Supply int64           `json:"supply"`
	Price  decimal.Decimal `json:"price"`
	Listed bool            `json:"listed"`
	When   time.Time       `json:"when"`
}
