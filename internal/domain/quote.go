package domain

// BuyQuote is the presentation form of a buy quote.
type BuyQuote struct {
	Curve         string `json:"curve"`
	EthAmount     string `json:"ethAmount"`
	TokensOut     string `json:"tokensOut"`
	PricePerToken string `json:"pricePerToken"`
	SlippageBps   int    `json:"slippageBps"`
	MinTokensOut  string `json:"minTokensOut"`
}

// SellQuote is the presentation form of a sell quote. EthOut is gross of the
// sell fee, NetEthOut is what the seller receives.
type SellQuote struct {
	Curve         string `json:"curve"`
	TokenAmount   string `json:"tokenAmount"`
	EthOut        string `json:"ethOut"`
	Fee           string `json:"fee"`
	NetEthOut     string `json:"netEthOut"`
	PricePerToken string `json:"pricePerToken"`
	SlippageBps   int    `json:"slippageBps"`
	MinEthOut     string `json:"minEthOut"`
}

// Balance is an ERC-20 balance lookup result.
type Balance struct {
	Address      string `json:"address"`
	TokenAddress string `json:"tokenAddress"`
	Balance      string `json:"balance"`
}

// Allowance is an ERC-20 allowance lookup result.
type Allowance struct {
	Owner        string `json:"owner"`
	Spender      string `json:"spender"`
	TokenAddress string `json:"tokenAddress"`
	Allowance    string `json:"allowance"`
}
