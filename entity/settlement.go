package entity

type SettlementKind string

const (
	SettlementRefund SettlementKind = "refund"
	SettlementPayout SettlementKind = "payout"
)

// Settlement tells the boundary layer to move native currency out of the
// exchange. The engine itself never holds custody.
type Settlement struct {
	Kind      SettlementKind `json:"kind"`
	Recipient string         `json:"recipient"`
	Amount    int64          `json:"amount"`
}
