package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/curvebot/internal/domain"
)

func ethPubkeyToAddress(key *ecdsa.PrivateKey) common.Address {
	return ethcrypto.PubkeyToAddress(key.PublicKey)
}

// ParseAddress validates a hex address, accepting any letter case.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("wallet: %q: %w", s, domain.ErrInvalidAddress)
	}
	return common.HexToAddress(s), nil
}

// Lower renders an address in the lower-case form used at the API boundary.
func Lower(a common.Address) string {
	return strings.ToLower(a.Hex())
}
