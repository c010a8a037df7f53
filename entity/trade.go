package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TxKind string

const (
	TxMint   TxKind = "mint"
	TxBuy    TxKind = "buy"
	TxSell   TxKind = "sell"
	TxSwap   TxKind = "swap"
	TxList   TxKind = "list"
	TxUnlist TxKind = "unlist"
)

// TxDetail is implemented by exactly one struct per transaction kind.
type TxDetail interface {
	Kind() TxKind
	sealed()
}

type MintTx struct {
	Symbol        string `json:"symbol"`
	InitialSupply int64  `json:"initialSupply"`
	Cost          int64  `json:"cost"`
}

type BuyTx struct {
	Symbol string `json:"symbol"`
	Amount int64  `json:"amount"`
	Cost   int64  `json:"cost"`
}

// SellTx records proceeds as a negative Cost.
type SellTx struct {
	Symbol string `json:"symbol"`
	Amount int64  `json:"amount"`
	Cost   int64  `json:"cost"`
}

// SwapTx: Amount units of FromSymbol were given up for Received units of ToSymbol.
type SwapTx struct {
	FromSymbol string `json:"fromSymbol"`
	ToSymbol   string `json:"toSymbol"`
	Amount     int64  `json:"amount"`
	Received   int64  `json:"received"`
}

type ListTx struct {
	Symbol    string          `json:"symbol"`
	BasePrice int64           `json:"basePrice"`
	Slope     decimal.Decimal `json:"slope"`
}

type UnlistTx struct {
	Symbol string `json:"symbol"`
}

func (MintTx) Kind() TxKind   { return TxMint }
func (BuyTx) Kind() TxKind    { return TxBuy }
func (SellTx) Kind() TxKind   { return TxSell }
func (SwapTx) Kind() TxKind   { return TxSwap }
func (ListTx) Kind() TxKind   { return TxList }
func (UnlistTx) Kind() TxKind { return TxUnlist }

func (MintTx) sealed()   {}
func (BuyTx) sealed()    {}
func (SellTx) sealed()   {}
func (SwapTx) sealed()   {}
func (ListTx) sealed()   {}
func (UnlistTx) sealed() {}

// Transaction is one entry of an address's history.
type Transaction struct {
	ID     string
	Time   time.Time
	Detail TxDetail
}

type txHeader struct {
	Type TxKind `json:"type"`
	ID   string `json:"id"`
	Time int64  `json:"time"`
}

// MarshalJSON writes a flat object: the detail fields plus type, id and time (unix ms).
func (t Transaction) MarshalJSON() ([]byte, error) {
	if t.Detail == nil {
		return nil, fmt.Errorf("transaction %v has no detail", t.ID)
	}

	body, err := json.Marshal(t.Detail)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err = json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}

	header, err := json.Marshal(txHeader{Type: t.Detail.Kind(), ID: t.ID, Time: t.Time.UnixMilli()})
	if err != nil {
		return nil, err
	}
	var headerFields map[string]json.RawMessage
	if err = json.Unmarshal(header, &headerFields); err != nil {
		return nil, err
	}
	for k, v := range headerFields {
		fields[k] = v
	}

	return json.Marshal(fields)
}

func (t *Transaction) UnmarshalJSON(buf []byte) error {
	var h txHeader
	if err := json.Unmarshal(buf, &h); err != nil {
		return err
	}

	var detail TxDetail
	switch h.Type {
	case TxMint:
		var d MintTx
		if err := json.Unmarshal(buf, &d); err != nil {
			return err
		}
		detail = d
	case TxBuy:
		var d BuyTx
		if err := json.Unmarshal(buf, &d); err != nil {
			return err
		}
		detail = d
	case TxSell:
		var d SellTx
		if err := json.Unmarshal(buf, &d); err != nil {
			return err
		}
		detail = d
	case TxSwap:
		var d SwapTx
		if err := json.Unmarshal(buf, &d); err != nil {
			return err
		}
		detail = d
	case TxList:
		var d ListTx
		if err := json.Unmarshal(buf, &d); err != nil {
			return err
		}
		detail = d
	case TxUnlist:
		var d UnlistTx
		if err := json.Unmarshal(buf, &d); err != nil {
			return err
		}
		detail = d
	default:
		return fmt.Errorf("unknown transaction type '%v'", h.Type)
	}

	t.ID = h.ID
	t.Time = time.UnixMilli(h.Time)
	t.Detail = detail
	return nil
}
