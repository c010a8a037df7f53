package entity

// Balances maps asset symbols to the units held by one address.
type Balances map[string]int64

// Wallet is the aggregated view of one address.
type Wallet struct {
	Address      string        `json:"address"`
	IsOperator   bool          `json:"isOperator"`
	Assets       []Asset       `json:"assets"`
	Balances     Balances      `json:"balances"`
	Transactions []Transaction `json:"transactions"`
}
