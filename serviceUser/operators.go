package serviceUser

import (
	"context"
	"strings"

	"curveExchange/failure"
	"curveExchange/storage"
)

const operatorsKey = "operators"

// Operators is the authorization set: a fixed super-operator allowlist,
// never stored and never removable, unioned with a persisted mutable list.
type Operators struct {
	store storage.Store
	super []string
}

func NewOperators(store storage.Store, super []string) *Operators {
	return &Operators{store: store, super: append([]string(nil), super...)}
}

// Super returns the fixed allowlist.
func (o *Operators) Super() []string {
	return append([]string(nil), o.super...)
}

func (o *Operators) IsSuper(address string) bool {
	for _, s := range o.super {
		if s == address {
			return true
		}
	}
	return false
}

func (o *Operators) IsOperator(ctx context.Context, address string) (bool, error) {
	if address == "" {
		return false, nil
	}
	if o.IsSuper(address) {
		return true, nil
	}

	ops, err := o.List(ctx)
	if err != nil {
		return false, err
	}
	return indexOf(ops, address) >= 0, nil
}

// List returns the mutable operator list in insertion order.
func (o *Operators) List(ctx context.Context) ([]string, error) {
	var ops []string
	if _, err := storage.GetJSON(ctx, o.store, operatorsKey, &ops); err != nil {
		return nil, failure.Wrap(failure.Internal, err, "load operators")
	}
	if ops == nil {
		ops = []string{}
	}
	return ops, nil
}

// Add inserts address. Adding an existing operator changes nothing.
func (o *Operators) Add(ctx context.Context, address, acting string) ([]string, bool, error) {
	ops, err := o.authorize(ctx, address, acting)
	if err != nil {
		return nil, false, err
	}

	if indexOf(ops, address) >= 0 {
		return ops, false, nil
	}

	ops = append(ops, address)
	if err = o.save(ctx, ops); err != nil {
		return nil, false, err
	}
	return ops, true, nil
}

// Remove deletes address. Removing a non-member changes nothing. The only
// refusal is an operator removing itself while it is the sole stored entry.
func (o *Operators) Remove(ctx context.Context, address, acting string) ([]string, bool, error) {
	ops, err := o.authorize(ctx, address, acting)
	if err != nil {
		return nil, false, err
	}

	if len(ops) == 1 && ops[0] == acting && address == acting {
		return nil, false, failure.New(failure.ValidationError, "cannot remove the last operator '%v'", acting)
	}

	idx := indexOf(ops, address)
	if idx < 0 {
		return ops, false, nil
	}

	ops = append(ops[:idx:idx], ops[idx+1:]...)
	if err = o.save(ctx, ops); err != nil {
		return nil, false, err
	}
	return ops, true, nil
}

func (o *Operators) authorize(ctx context.Context, address, acting string) ([]string, error) {
	isOp, err := o.IsOperator(ctx, acting)
	if err != nil {
		return nil, err
	}
	if !isOp {
		return nil, failure.New(failure.Unauthorized, "only operators can manage the operator list")
	}
	if err = ValidateAddress(address); err != nil {
		return nil, err
	}
	return o.List(ctx)
}

func (o *Operators) save(ctx context.Context, ops []string) error {
	if err := storage.SetJSON(ctx, o.store, operatorsKey, ops); err != nil {
		return failure.Wrap(failure.Internal, err, "store operators")
	}
	return nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

// ValidateAddress rejects addresses that cannot serve as a storage key segment.
func ValidateAddress(address string) error {
	if strings.TrimSpace(address) == "" {
		return failure.New(failure.ValidationError, "address must not be empty")
	}
	if strings.ContainsAny(address, "/ \t\n") {
		return failure.New(failure.ValidationError, "address '%v' contains invalid characters", address)
	}
	return nil
}
