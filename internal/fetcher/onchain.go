package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	erc20ABIJSON = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`
)

var (
	erc20ABI abi.ABI
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed
}

// ContractCaller is the subset of ethclient used for balance reads.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// OnChainOptions parameterise the token balance reader.
type OnChainOptions struct {
	RPCURL        string
	TokenAddress  string
	WalletAddress string
	Timeout       time.Duration
}

// OnChain reads an ERC-20 balance over Ethereum JSON-RPC.
type OnChain struct {
	opts      OnChainOptions
	logger    zerolog.Logger
	caller    ContractCaller
	clientMux sync.Mutex
	decimals  *int32
}

// NewOnChain builds a token balance reader that dials lazily.
func NewOnChain(opts OnChainOptions, logger zerolog.Logger) *OnChain {
	return &OnChain{opts: opts, logger: logger.With().Str("component", "onchain_fetcher").Logger()}
}

// NewOnChainWithCaller uses an existing caller instead of dialing.
func NewOnChainWithCaller(opts OnChainOptions, caller ContractCaller, logger zerolog.Logger) *OnChain {
	o := NewOnChain(opts, logger)
	o.caller = caller
	return o
}

// FetchBalance returns the wallet balance in whole tokens and the latest block number.
func (o *OnChain) FetchBalance(ctx context.Context) (decimal.Decimal, uint64, error) {
	if o.caller == nil && o.opts.RPCURL == "" {
		return decimal.Decimal{}, 0, errors.New("ethereum rpc url not configured")
	}
	if !common.IsHexAddress(o.opts.TokenAddress) {
		return decimal.Decimal{}, 0, fmt.Errorf("invalid token address %q", o.opts.TokenAddress)
	}
	if !common.IsHexAddress(o.opts.WalletAddress) {
		return decimal.Decimal{}, 0, fmt.Errorf("invalid wallet address %q", o.opts.WalletAddress)
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	caller, err := o.getCaller(ctx)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	token := common.HexToAddress(o.opts.TokenAddress)
	wallet := common.HexToAddress(o.opts.WalletAddress)

	exp, err := o.tokenDecimals(ctx, caller, token)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	outputs, err := call(ctx, caller, token, "balanceOf", wallet)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}
	raw, ok := outputs[0].(*big.Int)
	if !ok {
		return decimal.Decimal{}, 0, errors.New("failed to decode balanceOf output")
	}

	blockNumber, err := caller.BlockNumber(ctx)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}

	balance := decimal.NewFromBigInt(raw, -exp)
	o.logger.Debug().Str("balance", balance.String()).Uint64("block", blockNumber).Msg("token balance read")
	return balance, blockNumber, nil
}

func (o *OnChain) tokenDecimals(ctx context.Context, caller ContractCaller, token common.Address) (int32, error) {
	o.clientMux.Lock()
	cached := o.decimals
	o.clientMux.Unlock()
	if cached != nil {
		return *cached, nil
	}

	outputs, err := call(ctx, caller, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}
	exp := int32(d)

	o.clientMux.Lock()
	o.decimals = &exp
	o.clientMux.Unlock()
	return exp, nil
}

func call(ctx context.Context, caller ContractCaller, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	payload, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	res, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	outputs, err := erc20ABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected %s response", method)
	}
	return outputs, nil
}

func (o *OnChain) getCaller(ctx context.Context) (ContractCaller, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.caller != nil {
		return o.caller, nil
	}

	client, err := ethclient.DialContext(ctx, o.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	o.caller = client
	return client, nil
}

var _ TokenBalanceFetcher = (*OnChain)(nil)
var _ ContractCaller = (*ethclient.Client)(nil)
