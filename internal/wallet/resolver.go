// Package wallet derives short-lived signing credentials from caller
// supplied secret material: a raw secp256k1 private key or a BIP-39 seed
// phrase.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"github.com/alanyoungcy/curvebot/internal/domain"
)

// MinMnemonicWords is the shortest word list accepted as a seed phrase.
const MinMnemonicWords = 12

var rawKeyPattern = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)

// SecretKind classifies secret material by shape.
type SecretKind int

const (
	SecretInvalid SecretKind = iota
	SecretRawKey
	SecretMnemonic
)

// Classify reports what kind of secret s looks like without deriving a key.
func Classify(s string) SecretKind {
	trimmed := strings.TrimSpace(s)
	if rawKeyPattern.MatchString(stripHexPrefix(trimmed)) {
		return SecretRawKey
	}
	if len(strings.Fields(trimmed)) >= MinMnemonicWords {
		return SecretMnemonic
	}
	return SecretInvalid
}

// Resolver turns secret material into a Credential bound to one chain.
type Resolver struct {
	chainID *big.Int
}

// NewResolver creates a Resolver whose credentials sign for chainID.
func NewResolver(chainID *big.Int) *Resolver {
	return &Resolver{chainID: new(big.Int).Set(chainID)}
}

// ChainID returns the chain the resolver's credentials sign for.
func (r *Resolver) ChainID() *big.Int {
	return new(big.Int).Set(r.chainID)
}

// Resolve derives a Credential from secret. A 64 character hex string
// (optionally 0x-prefixed) is a raw key; twelve or more whitespace separated
// words are a seed phrase derived along m/44'/60'/0'/0/0. The phrase
// checksum is not validated. Anything else fails with
// domain.ErrInvalidCredential. The secret itself is not retained.
func (r *Resolver) Resolve(secret string) (*Credential, error) {
	trimmed := strings.TrimSpace(secret)

	switch Classify(trimmed) {
	case SecretRawKey:
		key, err := ethcrypto.HexToECDSA(stripHexPrefix(trimmed))
		if err != nil {
			return nil, fmt.Errorf("wallet: raw key: %w", domain.ErrInvalidCredential)
		}
		return newCredential(key, r.chainID), nil

	case SecretMnemonic:
		phrase := strings.Join(strings.Fields(trimmed), " ")
		key, err := deriveFromMnemonic(phrase)
		if err != nil {
			return nil, fmt.Errorf("wallet: mnemonic: %v: %w", err, domain.ErrInvalidCredential)
		}
		return newCredential(key, r.chainID), nil

	default:
		return nil, fmt.Errorf("wallet: %w", domain.ErrInvalidCredential)
	}
}

// deriveFromMnemonic derives the first account key on the standard Ethereum
// BIP-44 path.
func deriveFromMnemonic(phrase string) (*ecdsa.PrivateKey, error) {
	seed := bip39.NewSeed(phrase, "")

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
		0,
	}
	node := master
	for _, idx := range path {
		node, err = node.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("derive %d: %w", idx, err)
		}
	}

	ecKey, err := node.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	raw := ecKey.Serialize()
	defer clear(raw)

	return ethcrypto.ToECDSA(raw)
}

func stripHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
