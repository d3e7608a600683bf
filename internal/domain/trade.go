package domain

import "time"

// Direction is the side of a bonding-curve trade.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// ParseDirection accepts "buy", "sell" or "" (no filter).
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case DirectionBuy, DirectionSell, "":
		return Direction(s), true
	default:
		return "", false
	}
}

// TradeRecord is one trade rebuilt from a curve event log. Amounts are
// decimal strings in whole-unit (18 decimal) form.
type TradeRecord struct {
	ID          string    `json:"id"`
	TxHash      string    `json:"txHash"`
	BlockNumber uint64    `json:"blockNumber"`
	LogIndex    uint      `json:"logIndex"`
	Timestamp   int64     `json:"timestamp"`
	Trader      string    `json:"trader"`
	Direction   Direction `json:"direction"`
	EthAmount   string    `json:"ethAmount"`
	TokenAmount string    `json:"tokenAmount"`
	FeeAmount   string    `json:"feeAmount"`
}

// PaginationWindow selects a slice of the sorted trade ledger.
type PaginationWindow struct {
	Limit     int
	Offset    int
	Direction Direction
}

// HistoryPage is one page of trade history plus the scanned block range.
type HistoryPage struct {
	Trades    []TradeRecord `json:"trades"`
	Total     int           `json:"total"`
	HasMore   bool          `json:"hasMore"`
	Limit     int           `json:"limit"`
	Offset    int           `json:"offset"`
	FromBlock uint64        `json:"fromBlock"`
	ToBlock   uint64        `json:"toBlock"`
}

// BuyResult is returned after a confirmed buy. TokensReceived comes from the
// TokensPurchased event, not from the quote.
type BuyResult struct {
	OperationID    string `json:"operationId"`
	TxHash         string `json:"txHash"`
	BlockNumber    uint64 `json:"blockNumber"`
	Buyer          string `json:"buyer"`
	EthSpent       string `json:"ethSpent"`
	TokensReceived string `json:"tokensReceived"`
	MinTokens      string `json:"minTokens"`
}

// SellResult is returned after a confirmed sell. ApprovalTxHash is set when
// an allowance top-up was needed first.
type SellResult struct {
	OperationID    string `json:"operationId"`
	TxHash         string `json:"txHash"`
	BlockNumber    uint64 `json:"blockNumber"`
	Seller         string `json:"seller"`
	TokensSold     string `json:"tokensSold"`
	EthReceived    string `json:"ethReceived"`
	Fee            string `json:"fee"`
	MinEth         string `json:"minEth"`
	ApprovalTxHash string `json:"approvalTxHash,omitempty"`
}

// ApproveResult is returned after a confirmed ERC-20 approval.
type ApproveResult struct {
	OperationID    string `json:"operationId"`
	TxHash         string `json:"txHash"`
	BlockNumber    uint64 `json:"blockNumber"`
	Owner          string `json:"owner"`
	TokenAddress   string `json:"tokenAddress"`
	Spender        string `json:"spender"`
	ApprovedAmount string `json:"approvedAmount"`
}

// TradeEventKind distinguishes bus payloads.
type TradeEventKind string

const (
	TradeEventBuy     TradeEventKind = "buy"
	TradeEventSell    TradeEventKind = "sell"
	TradeEventApprove TradeEventKind = "approve"
)

// TradeEvent is published on the signal bus after every confirmed operation.
type TradeEvent struct {
	OperationID string         `json:"operationId"`
	Kind        TradeEventKind `json:"kind"`
	Curve       string         `json:"curve,omitempty"`
	Token       string         `json:"token,omitempty"`
	Trader      string         `json:"trader"`
	TxHash      string         `json:"txHash"`
	BlockNumber uint64         `json:"blockNumber"`
	EthAmount   string         `json:"ethAmount,omitempty"`
	TokenAmount string         `json:"tokenAmount,omitempty"`
	FeeAmount   string         `json:"feeAmount,omitempty"`
	At          time.Time      `json:"at"`
}
