package servicePricing

import (
	"math"

	"github.com/shopspring/decimal"

	"curveExchange/entity"
	"curveExchange/failure"
)

// MinSlope is the smallest slope quantum an asset may carry.
var MinSlope = decimal.RequireFromString("0.0001")

var (
	one      = decimal.NewFromInt(1)
	two      = decimal.NewFromInt(2)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// Curve is the linear bonding curve price(supply) = BasePrice + supply*Slope.
// All results are exact and truncated toward zero.
type Curve struct {
	BasePrice int64
	Slope     decimal.Decimal
}

// CurveOf returns the pricing parameters of a.
func CurveOf(a entity.Asset) Curve {
	return Curve{BasePrice: a.BasePrice, Slope: a.Slope}
}

func (c Curve) Validate() error {
	if c.BasePrice <= 0 {
		return failure.New(failure.ValidationError, "base price must be positive, got %v", c.BasePrice)
	}
	if c.Slope.LessThan(MinSlope) {
		return failure.New(failure.ValidationError, "slope must be at least %v, got %v", MinSlope, c.Slope)
	}
	return nil
}

// BuyCost is the cost of amount units bought starting at supply:
// amount*basePrice + slope*(amount*supply + amount*(amount-1)/2).
func (c Curve) BuyCost(supply, amount int64) (int64, error) {
	if amount < 1 {
		return 0, failure.New(failure.ValidationError, "amount must be at least 1, got %v", amount)
	}
	if supply < 0 {
		return 0, failure.New(failure.ValidationError, "supply must not be negative, got %v", supply)
	}

	n := decimal.NewFromInt(amount)
	s := decimal.NewFromInt(supply)

	total := n.Mul(decimal.NewFromInt(c.BasePrice)).
		Add(c.Slope.Mul(n.Mul(s).Add(triangle(n))))

	return toUnits(total)
}

// SellReturn is the proceeds of amount units sold out of supply:
// amount*basePrice + slope*(amount*(supply-1) - amount*(amount-1)/2).
// amount <= supply is the caller's precondition.
func (c Curve) SellReturn(supply, amount int64) (int64, error) {
	if amount < 1 {
		return 0, failure.New(failure.ValidationError, "amount must be at least 1, got %v", amount)
	}

	n := decimal.NewFromInt(amount)
	s := decimal.NewFromInt(supply)

	total := n.Mul(decimal.NewFromInt(c.BasePrice)).
		Add(c.Slope.Mul(n.Mul(s.Sub(one)).Sub(triangle(n))))

	return toUnits(total)
}

// EstimateAmountForTargetValue finds the smallest amount in [1, upperBound]
// whose SellReturn reaches target. ok is false when no amount does.
//
// The search domain is capped at supply: the k-th unit sold is worth
// basePrice + slope*(supply-k), which stays positive for k <= supply, so
// SellReturn is strictly increasing there. Beyond supply it is not.
func (c Curve) EstimateAmountForTargetValue(supply, target, upperBound int64) (amount int64, ok bool, err error) {
	if upperBound > supply {
		upperBound = supply
	}
	if upperBound < 1 {
		return 0, false, nil
	}

	top, err := c.SellReturn(supply, upperBound)
	if err != nil {
		return 0, false, err
	}
	if top < target {
		return 0, false, nil
	}

	lo, hi := int64(1), upperBound
	for lo < hi {
		mid := lo + (hi-lo)/2
		v, err := c.SellReturn(supply, mid)
		if err != nil {
			return 0, false, err
		}
		if v >= target {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	return lo, true, nil
}

func BuyCost(basePrice int64, slope decimal.Decimal, supply, amount int64) (int64, error) {
	return Curve{BasePrice: basePrice, Slope: slope}.BuyCost(supply, amount)
}

func SellReturn(basePrice int64, slope decimal.Decimal, supply, amount int64) (int64, error) {
	return Curve{BasePrice: basePrice, Slope: slope}.SellReturn(supply, amount)
}

func EstimateAmountForTargetValue(basePrice int64, slope decimal.Decimal, supply, target, upperBound int64) (int64, bool, error) {
	return Curve{BasePrice: basePrice, Slope: slope}.EstimateAmountForTargetValue(supply, target, upperBound)
}

// triangle is n*(n-1)/2, always an integer.
func triangle(n decimal.Decimal) decimal.Decimal {
	return n.Mul(n.Sub(one)).Div(two)
}

func toUnits(v decimal.Decimal) (int64, error) {
	v = v.Truncate(0)
	if v.GreaterThan(maxInt64) || v.LessThan(minInt64) {
		return 0, failure.New(failure.ValidationError, "amount %v exceeds the representable range", v)
	}
	return v.IntPart(), nil
}
