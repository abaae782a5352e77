package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	eip191Prefix = "\x19Ethereum Signed Message:\n"
)

// FromPrivateKeyHex builds transact opts for direct EntryPoint submission
// with the relayer's own key.
func FromPrivateKeyHex(privateKeyHex string, chainID *big.Int) (*bind.TransactOpts, error) {
	privateKey, err := ParseKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	return bind.NewKeyedTransactorWithChainID(privateKey, chainID)
}

// ParseKey decodes a hex-encoded secp256k1 private key, tolerating a 0x prefix.
func ParseKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
}

// SignMessage produces an EIP-191 personal-sign signature over data. The
// smart wallet recovers through toEthSignedMessageHash, so the prefix is
// added here and v is shifted to 27/28.
func SignMessage(key *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	prefix := []byte(eip191Prefix + fmt.Sprint(len(data)))
	prefixedData := append(prefix, data...)
	hash := crypto.Keccak256Hash(prefixedData)

	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27

	return sig, nil
}

// SignDigest signs a 32-byte digest whose EIP-191 prefix is applied exactly
// once. The verifying paymaster calls toEthSignedMessageHash(getHash(...))
// during validation; routing through SignMessage would double-prefix it.
func SignDigest(key *ecdsa.PrivateKey, digest [32]byte) ([]byte, error) {
	prefix := []byte(eip191Prefix + "32")
	prefixed := crypto.Keccak256Hash(append(prefix, digest[:]...))

	sig, err := crypto.Sign(prefixed.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27

	return sig, nil
}

// Address returns the EOA address controlled by key.
func Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
