package transform

import "fmt"

// Reasons attached to a TransformError.
const (
	ReasonMissing           = "missing"
	ReasonMalformed         = "malformed"
	ReasonEmptyCoinID       = "empty_coin_id"
	ReasonNegativePrice     = "negative_price"
	ReasonNegativeMarketCap = "negative_market_cap"
	ReasonMissingCurrency   = "missing_currency"
	ReasonInvalidRank       = "invalid_rank"
	ReasonOutOfRange        = "out_of_range"
)

// TransformError reports why one raw record was dropped. It is collected,
// never raised: a batch with bad records still yields the good ones.
type TransformError struct {
	CoinID string `json:"coin_id"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *TransformError) Error() string {
	id := e.CoinID
	if id == "" {
		id = "<unknown>"
	}
	return fmt.Sprintf("transform %s: field %s: %s", id, e.Field, e.Reason)
}
