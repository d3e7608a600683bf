package wallet

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var errDestroyed = errors.New("wallet: credential destroyed")

// Credential is a signing identity scoped to a single operation. Callers
// must Destroy it when the operation ends.
type Credential struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	signer  types.Signer
}

func newCredential(key *ecdsa.PrivateKey, chainID *big.Int) *Credential {
	return &Credential{
		key:     key,
		address: ethPubkeyToAddress(key),
		chainID: new(big.Int).Set(chainID),
		signer:  types.LatestSignerForChainID(chainID),
	}
}

// Address returns the credential's account address.
func (c *Credential) Address() common.Address {
	return c.address
}

// ChainID returns the chain the credential signs for.
func (c *Credential) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// SignTx signs tx for the credential's chain.
func (c *Credential) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	if c.key == nil {
		return nil, errDestroyed
	}
	return types.SignTx(tx, c.signer, c.key)
}

// Destroy zeroes the private scalar. Further signing fails.
func (c *Credential) Destroy() {
	if c == nil || c.key == nil {
		return
	}
	c.key.D.SetInt64(0)
	c.key = nil
}

// String never includes key material.
func (c *Credential) String() string {
	return "credential(" + c.address.Hex() + ")"
}
