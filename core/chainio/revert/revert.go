// Package revert turns heterogeneous provider failures into one small,
// actionable shape. Both the direct EntryPoint submission path and the
// paymaster topup path classify through here instead of matching provider
// error variants inline.
package revert

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// dataError is the subset of go-ethereum's rpc.DataError we rely on: JSON-RPC
// errors carry the EVM revert payload in an extra data field.
type dataError interface {
	Error() string
	ErrorData() interface{}
}

// DecodedError is a custom contract error recovered from revert bytes.
type DecodedError struct {
	Name string
	Args []interface{}
}

func (d *DecodedError) String() string {
	parts := make([]string, 0, len(d.Args))
	for _, a := range d.Args {
		parts = append(parts, fmt.Sprintf("%v", a))
	}
	return fmt.Sprintf("%s(%s)", d.Name, strings.Join(parts, ", "))
}

// Decode attempts to match raw revert bytes against the custom errors of
// parsedABI: the first four bytes select the error, the rest unpack as its
// arguments. Returns nil when no declared error matches.
func Decode(parsedABI abi.ABI, data []byte) *DecodedError {
	if len(data) < 4 {
		return nil
	}

	for name, abiErr := range parsedABI.Errors {
		if !bytes.Equal(data[:4], abiErr.ID.Bytes()[:4]) {
			continue
		}

		values, err := abiErr.Unpack(data)
		if err != nil {
			// selector matched but payload didn't; treat as undecodable
			return nil
		}

		args, _ := values.([]interface{})
		return &DecodedError{Name: name, Args: args}
	}

	return nil
}

// ClassifyProviderError extracts revert data from a provider error and
// decodes it against parsedABI. The returned reason is for diagnostics only:
// whatever it says, the submission has still failed. Falls back to the raw
// error message when data is absent, non-string, or matches no declared
// error.
func ClassifyProviderError(parsedABI abi.ABI, err error) (reason string, decoded *DecodedError) {
	if err == nil {
		return "", nil
	}

	de, ok := err.(dataError)
	if !ok {
		return err.Error(), nil
	}

	raw, ok := de.ErrorData().(string)
	if !ok {
		return err.Error(), nil
	}

	payload, hexErr := hexutil.Decode(raw)
	if hexErr != nil {
		return err.Error(), nil
	}

	if d := Decode(parsedABI, payload); d != nil {
		return d.String(), d
	}

	return err.Error(), nil
}

// Selector returns the 4-byte id of an ABI error, for logging.
func Selector(abiErr abi.Error) []byte {
	return common.CopyBytes(abiErr.ID.Bytes()[:4])
}
