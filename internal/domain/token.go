package domain

import "time"

// Token is a registry row linking a bonding curve to its ERC-20 token.
type Token struct {
	CurveAddress string    `json:"curveAddress"`
	TokenAddress string    `json:"tokenAddress"`
	Name         string    `json:"name"`
	Symbol       string    `json:"symbol"`
	Creator      string    `json:"creator"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TokenInfo is ERC-20 metadata read from chain.
type TokenInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}
