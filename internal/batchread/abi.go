package batchread

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Aggregator helper ABIs. ContractValidator batches classification reads,
// BalanceHelper batches balance reads; both return parallel arrays.
const (
	validatorABIJSON = `[
		{"type":"function","name":"isContract","stateMutability":"view",
		 "inputs":[{"name":"targets","type":"address[]"}],
		 "outputs":[{"name":"","type":"bool[]"}]},
		{"type":"function","name":"getCodeHashes","stateMutability":"view",
		 "inputs":[{"name":"targets","type":"address[]"}],
		 "outputs":[{"name":"","type":"bytes32[]"}]}
	]`

	balanceABIJSON = `[
		{"type":"function","name":"getNativeBalance","stateMutability":"view",
		 "inputs":[{"name":"holders","type":"address[]"}],
		 "outputs":[{"name":"","type":"uint256[]"}]},
		{"type":"function","name":"getTokenBalance","stateMutability":"view",
		 "inputs":[{"name":"holders","type":"address[]"},{"name":"tokens","type":"address[]"}],
		 "outputs":[{"name":"","type":"uint256[]"}]}
	]`
)

var (
	validatorABI abi.ABI
	balanceABI   abi.ABI
)

func init() {
	var err error
	validatorABI, err = abi.JSON(strings.NewReader(validatorABIJSON))
	if err != nil {
		panic(err)
	}
	balanceABI, err = abi.JSON(strings.NewReader(balanceABIJSON))
	if err != nil {
		panic(err)
	}
}
