package dex

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Router call formats are fixed, so selectors resolve against these tables
// instead of a remotely fetched interface.

const v2RouterABIJSON = `[
  {"inputs": [
    {"name": "amountIn", "type": "uint256"},
    {"name": "amountOutMin", "type": "uint256"},
    {"name": "path", "type": "address[]"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "swapExactTokensForTokens", "outputs": [{"name": "amounts", "type": "uint256[]"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [
    {"name": "amountOut", "type": "uint256"},
    {"name": "amountInMax", "type": "uint256"},
    {"name": "path", "type": "address[]"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "swapTokensForExactTokens", "outputs": [{"name": "amounts", "type": "uint256[]"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [
    {"name": "amountOutMin", "type": "uint256"},
    {"name": "path", "type": "address[]"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "swapExactETHForTokens", "outputs": [{"name": "amounts", "type": "uint256[]"}], "stateMutability": "payable", "type": "function"},
  {"inputs": [
    {"name": "amountOut", "type": "uint256"},
    {"name": "amountInMax", "type": "uint256"},
    {"name": "path", "type": "address[]"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "swapTokensForExactETH", "outputs": [{"name": "amounts", "type": "uint256[]"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [
    {"name": "amountIn", "type": "uint256"},
    {"name": "amountOutMin", "type": "uint256"},
    {"name": "path", "type": "address[]"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "swapExactTokensForETH", "outputs": [{"name": "amounts", "type": "uint256[]"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [
    {"name": "amountOut", "type": "uint256"},
    {"name": "path", "type": "address[]"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "swapETHForExactTokens", "outputs": [{"name": "amounts", "type": "uint256[]"}], "stateMutability": "payable", "type": "function"},
  {"inputs": [
    {"name": "amountIn", "type": "uint256"},
    {"name": "amountOutMin", "type": "uint256"},
    {"name": "path", "type": "address[]"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "swapExactTokensForTokensSupportingFeeOnTransferTokens", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [
    {"name": "amountOutMin", "type": "uint256"},
    {"name": "path", "type": "address[]"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "swapExactETHForTokensSupportingFeeOnTransferTokens", "outputs": [], "stateMutability": "payable", "type": "function"},
  {"inputs": [
    {"name": "amountIn", "type": "uint256"},
    {"name": "amountOutMin", "type": "uint256"},
    {"name": "path", "type": "address[]"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "swapExactTokensForETHSupportingFeeOnTransferTokens", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [
    {"name": "tokenA", "type": "address"},
    {"name": "tokenB", "type": "address"},
    {"name": "amountADesired", "type": "uint256"},
    {"name": "amountBDesired", "type": "uint256"},
    {"name": "amountAMin", "type": "uint256"},
    {"name": "amountBMin", "type": "uint256"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "addLiquidity", "outputs": [
    {"name": "amountA", "type": "uint256"},
    {"name": "amountB", "type": "uint256"},
    {"name": "liquidity", "type": "uint256"}
  ], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [
    {"name": "token", "type": "address"},
    {"name": "amountTokenDesired", "type": "uint256"},
    {"name": "amountTokenMin", "type": "uint256"},
    {"name": "amountETHMin", "type": "uint256"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "addLiquidityETH", "outputs": [
    {"name": "amountToken", "type": "uint256"},
    {"name": "amountETH", "type": "uint256"},
    {"name": "liquidity", "type": "uint256"}
  ], "stateMutability": "payable", "type": "function"},
  {"inputs": [
    {"name": "token", "type": "address"},
    {"name": "liquidity", "type": "uint256"},
    {"name": "amountTokenMin", "type": "uint256"},
    {"name": "amountETHMin", "type": "uint256"},
    {"name": "to", "type": "address"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "removeLiquidityETH", "outputs": [
    {"name": "amountToken", "type": "uint256"},
    {"name": "amountETH", "type": "uint256"}
  ], "stateMutability": "nonpayable", "type": "function"}
]`

const v3RouterABIJSON = `[
  {"inputs": [{"components": [
    {"name": "tokenIn", "type": "address"},
    {"name": "tokenOut", "type": "address"},
    {"name": "fee", "type": "uint24"},
    {"name": "recipient", "type": "address"},
    {"name": "deadline", "type": "uint256"},
    {"name": "amountIn", "type": "uint256"},
    {"name": "amountOutMinimum", "type": "uint256"},
    {"name": "sqrtPriceLimitX96", "type": "uint160"}
  ], "name": "params", "type": "tuple"}], "name": "exactInputSingle", "outputs": [{"name": "amountOut", "type": "uint256"}], "stateMutability": "payable", "type": "function"},
  {"inputs": [{"components": [
    {"name": "tokenIn", "type": "address"},
    {"name": "tokenOut", "type": "address"},
    {"name": "fee", "type": "uint24"},
    {"name": "recipient", "type": "address"},
    {"name": "deadline", "type": "uint256"},
    {"name": "amountOut", "type": "uint256"},
    {"name": "amountInMaximum", "type": "uint256"},
    {"name": "sqrtPriceLimitX96", "type": "uint160"}
  ], "name": "params", "type": "tuple"}], "name": "exactOutputSingle", "outputs": [{"name": "amountIn", "type": "uint256"}], "stateMutability": "payable", "type": "function"},
  {"inputs": [{"components": [
    {"name": "path", "type": "bytes"},
    {"name": "recipient", "type": "address"},
    {"name": "deadline", "type": "uint256"},
    {"name": "amountIn", "type": "uint256"},
    {"name": "amountOutMinimum", "type": "uint256"}
  ], "name": "params", "type": "tuple"}], "name": "exactInput", "outputs": [{"name": "amountOut", "type": "uint256"}], "stateMutability": "payable", "type": "function"},
  {"inputs": [{"components": [
    {"name": "path", "type": "bytes"},
    {"name": "recipient", "type": "address"},
    {"name": "deadline", "type": "uint256"},
    {"name": "amountOut", "type": "uint256"},
    {"name": "amountInMaximum", "type": "uint256"}
  ], "name": "params", "type": "tuple"}], "name": "exactOutput", "outputs": [{"name": "amountIn", "type": "uint256"}], "stateMutability": "payable", "type": "function"},
  {"inputs": [{"name": "data", "type": "bytes[]"}], "name": "multicall", "outputs": [{"name": "results", "type": "bytes[]"}], "stateMutability": "payable", "type": "function"}
]`

const universalRouterABIJSON = `[
  {"inputs": [
    {"name": "commands", "type": "bytes"},
    {"name": "inputs", "type": "bytes[]"},
    {"name": "deadline", "type": "uint256"}
  ], "name": "execute", "outputs": [], "stateMutability": "payable", "type": "function"},
  {"inputs": [
    {"name": "commands", "type": "bytes"},
    {"name": "inputs", "type": "bytes[]"}
  ], "name": "execute", "outputs": [], "stateMutability": "payable", "type": "function"}
]`

var (
	v2RouterABI     abi.ABI
	v2RouterABIOnce sync.Once
	v2RouterABIErr  error

	v3RouterABI     abi.ABI
	v3RouterABIOnce sync.Once
	v3RouterABIErr  error

	universalRouterABI     abi.ABI
	universalRouterABIOnce sync.Once
	universalRouterABIErr  error
)

// V2RouterABI returns the parsed V2 router ABI.
func V2RouterABI() (abi.ABI, error) {
	v2RouterABIOnce.Do(func() {
		v2RouterABI, v2RouterABIErr = abi.JSON(strings.NewReader(v2RouterABIJSON))
	})
	return v2RouterABI, v2RouterABIErr
}

// V3RouterABI returns the parsed V3 SwapRouter ABI.
func V3RouterABI() (abi.ABI, error) {
	v3RouterABIOnce.Do(func() {
		v3RouterABI, v3RouterABIErr = abi.JSON(strings.NewReader(v3RouterABIJSON))
	})
	return v3RouterABI, v3RouterABIErr
}

// UniversalRouterABI returns the parsed universal router ABI. Both router
// builds share the execute overloads.
func UniversalRouterABI() (abi.ABI, error) {
	universalRouterABIOnce.Do(func() {
		universalRouterABI, universalRouterABIErr = abi.JSON(strings.NewReader(universalRouterABIJSON))
	})
	return universalRouterABI, universalRouterABIErr
}

// Universal router command inputs carry their own fixed layouts.
var (
	v2SwapInputArgs abi.Arguments
	v3SwapInputArgs abi.Arguments
	commandArgsOnce sync.Once
	commandArgsErr  error
)

func commandInputArgs() (v2 abi.Arguments, v3 abi.Arguments, err error) {
	commandArgsOnce.Do(func() {
		newArgs := func(types ...string) (abi.Arguments, error) {
			args := make(abi.Arguments, 0, len(types))
			for _, t := range types {
				typ, err := abi.NewType(t, "", nil)
				if err != nil {
					return nil, err
				}
				args = append(args, abi.Argument{Type: typ})
			}
			return args, nil
		}
		v2SwapInputArgs, commandArgsErr = newArgs("address", "uint256", "uint256", "address[]", "bool")
		if commandArgsErr != nil {
			return
		}
		v3SwapInputArgs, commandArgsErr = newArgs("address", "uint256", "uint256", "bytes", "bool")
	})
	return v2SwapInputArgs, v3SwapInputArgs, commandArgsErr
}
