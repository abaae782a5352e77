package transferengine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/zephyrpay/relayer/core/chainio/aa"
	"github.com/zephyrpay/relayer/core/config"
)

// NativeCurrency transfers ETH straight from the wallet; everything else is
// looked up in the token registry.
const NativeCurrency = "ETH"

const nativeDecimals = 18

// BuildTransferCallData produces the wallet execute() calldata for a
// transfer. Amounts are decimal strings in display units; they are shifted
// into base units exactly, and any digit beyond the currency's precision is
// an error rather than a rounding.
func BuildTransferCallData(tokens map[string]config.TokenInfo, recipient common.Address, amount decimal.Decimal, currency string) ([]byte, error) {
	if amount.Sign() <= 0 {
		return nil, ErrAmountNotPositive
	}

	if currency == NativeCurrency {
		wei, err := toBaseUnits(amount, nativeDecimals)
		if err != nil {
			return nil, err
		}
		return aa.PackExecute(recipient, wei, nil)
	}

	token, ok := tokens[currency]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCurrencyNotSupported, currency)
	}

	units, err := toBaseUnits(amount, token.Decimals)
	if err != nil {
		return nil, err
	}

	transferCallData, err := aa.PackERC20Transfer(recipient, units)
	if err != nil {
		return nil, err
	}

	// token transfers carry no ETH value; the wallet calls the token contract
	return aa.PackExecute(token.Address, big.NewInt(0), transferCallData)
}

func toBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	shifted := amount.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %s at %d decimals", ErrAmountPrecision, amount.String(), decimals)
	}
	return shifted.BigInt(), nil
}
