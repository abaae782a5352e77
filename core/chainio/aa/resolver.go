package aa

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// maxSaltAttempts bounds the collision-retry loop. A second attempt is
// already unexpected in practice; hitting the cap means the factory or RPC
// endpoint is misconfigured, not that five honest collisions occurred.
const maxSaltAttempts = 5

// ErrAddressDerivationExhausted is returned when every candidate salt mapped
// to an address that already carries contract code.
var ErrAddressDerivationExhausted = errors.New("smart wallet address derivation exhausted retry budget")

// timeNow is swapped out in tests to make retry salts deterministic.
var timeNow = time.Now

// InitialSalt derives the deterministic first-choice salt for a user.
func InitialSalt(userID string) *big.Int {
	return new(big.Int).SetBytes(crypto.Keccak256([]byte(userID)))
}

// retrySalt mixes wall-clock time into the user hash so a retried derivation
// lands on a fresh address.
func retrySalt(userID string) *big.Int {
	seed := fmt.Sprintf("%s:%d", userID, timeNow().UnixNano())
	return new(big.Int).SetBytes(crypto.Keccak256([]byte(seed)))
}

// ResolveAddress finds a counterfactual wallet address for the user that is
// not already occupied by a deployed contract. The first candidate salt is
// keccak(userID); if code exists at the derived address the salt is assumed
// taken by an unrelated party and a time-salted retry is attempted, up to
// maxSaltAttempts. Pure read path: persisting the result is the caller's job.
func ResolveAddress(ctx context.Context, caller bind.ContractCaller, factory common.Address, userID string, owner common.Address) (common.Address, *big.Int, error) {
	salt := InitialSalt(userID)

	for attempt := 0; attempt < maxSaltAttempts; attempt++ {
		candidate, err := GetSenderAddress(ctx, caller, factory, owner, salt)
		if err != nil {
			return common.Address{}, nil, err
		}

		code, err := caller.CodeAt(ctx, candidate, nil)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("check code at %s: %w", candidate.Hex(), err)
		}

		if len(code) == 0 {
			return candidate, salt, nil
		}

		salt = retrySalt(userID)
	}

	return common.Address{}, nil, ErrAddressDerivationExhausted
}
