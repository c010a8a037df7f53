package serviceTrade

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"curveExchange/entity"
	"curveExchange/failure"
	"curveExchange/storage"
)

// txCountKey holds the number of records appended for address.
func txCountKey(address string) string {
	return "txs/" + address
}

func txKey(address string, seq int64) string {
	return fmt.Sprintf("txs/%s/%020d", address, seq)
}

// TxLog is the append-only per-address history. Each record lives under
// its own key so appends never rewrite earlier entries.
type TxLog struct {
	store storage.Store
	now   func() time.Time
}

func NewTxLog(store storage.Store, now func() time.Time) *TxLog {
	if now == nil {
		now = time.Now
	}
	return &TxLog{store: store, now: now}
}

func (l *TxLog) Append(ctx context.Context, address string, detail entity.TxDetail) (entity.Transaction, error) {
	n, err := l.count(ctx, address)
	if err != nil {
		return entity.Transaction{}, err
	}

	tx := entity.Transaction{
		ID:     uuid.NewString(),
		Time:   l.now(),
		Detail: detail,
	}
	if err = storage.SetJSON(ctx, l.store, txKey(address, n), tx); err != nil {
		return entity.Transaction{}, failure.Wrap(failure.Internal, err, "store transaction of %v", address)
	}
	if err = l.store.Set(ctx, txCountKey(address), []byte(strconv.FormatInt(n+1, 10))); err != nil {
		return entity.Transaction{}, failure.Wrap(failure.Internal, err, "store transaction count of %v", address)
	}

	return tx, nil
}

// HistoryOf returns every record of address in append order.
func (l *TxLog) HistoryOf(ctx context.Context, address string) ([]entity.Transaction, error) {
	n, err := l.count(ctx, address)
	if err != nil {
		return nil, err
	}

	txs := make([]entity.Transaction, 0, n)
	for seq := int64(0); seq < n; seq++ {
		var tx entity.Transaction
		ok, err := storage.GetJSON(ctx, l.store, txKey(address, seq), &tx)
		if err != nil {
			return nil, failure.Wrap(failure.Internal, err, "load transaction %v of %v", seq, address)
		}
		if !ok {
			return nil, failure.New(failure.Internal, "transaction %v of %v is missing", seq, address)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (l *TxLog) count(ctx context.Context, address string) (int64, error) {
	buf, ok, err := l.store.Get(ctx, txCountKey(address))
	if err != nil {
		return 0, failure.Wrap(failure.Internal, err, "load transaction count of %v", address)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		return 0, failure.Wrap(failure.Internal, err, "corrupt transaction count of %v", address)
	}
	return n, nil
}

// FormatEntry renders one record as a single console line:
// time|address|type|details
func FormatEntry(address string, tx entity.Transaction) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%v|%v|%v|", tx.Time.Format(time.RFC3339Nano), address, tx.Detail.Kind()))

	switch d := tx.Detail.(type) {
	case entity.BuyTx:
		sb.WriteString(fmt.Sprintf("%v +%v -%v", d.Symbol, d.Amount, d.Cost))
	case entity.SellTx:
		sb.WriteString(fmt.Sprintf("%v -%v +%v", d.Symbol, d.Amount, -d.Cost))
	case entity.SwapTx:
		sb.WriteString(fmt.Sprintf("%v -%v -> %v +%v", d.FromSymbol, d.Amount, d.ToSymbol, d.Received))
	case entity.ListTx:
		sb.WriteString(fmt.Sprintf("%v base=%v slope=%v", d.Symbol, d.BasePrice, d.Slope))
	case entity.UnlistTx:
		sb.WriteString(d.Symbol)
	case entity.MintTx:
		sb.WriteString(fmt.Sprintf("%v supply=%v -%v", d.Symbol, d.InitialSupply, d.Cost))
	}

	return sb.String()
}
