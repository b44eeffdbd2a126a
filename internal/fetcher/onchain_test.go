package fetcher

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type fakeCaller struct {
	balance  *big.Int
	decimals uint8
	calls    map[string]int
	fail     bool
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.fail {
		return nil, errors.New("rpc down")
	}
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	switch {
	case bytes.Equal(msg.Data[:4], erc20ABI.Methods["decimals"].ID):
		f.calls["decimals"]++
		return erc20ABI.Methods["decimals"].Outputs.Pack(f.decimals)
	case bytes.Equal(msg.Data[:4], erc20ABI.Methods["balanceOf"].ID):
		f.calls["balanceOf"]++
		return erc20ABI.Methods["balanceOf"].Outputs.Pack(f.balance)
	}
	return nil, errors.New("unknown selector")
}

func (f *fakeCaller) BlockNumber(context.Context) (uint64, error) { return 19_000_000, nil }

var testOpts = OnChainOptions{
	TokenAddress:  "0x046EeE2cc3188071C02BfC1745A6b17c656e3f3d",
	WalletAddress: "0x000000000000000000000000000000000000dEaD",
}

func TestOnChainFetchBalance(t *testing.T) {
	raw, _ := new(big.Int).SetString("1234500000000000000000", 10)
	caller := &fakeCaller{balance: raw, decimals: 18}
	o := NewOnChainWithCaller(testOpts, caller, zerolog.Nop())

	for i := 0; i < 2; i++ {
		bal, block, err := o.FetchBalance(context.Background())
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if !bal.Equal(decimal.RequireFromString("1234.5")) {
			t.Fatalf("want 1234.5 got %s", bal)
		}
		if block != 19_000_000 {
			t.Fatalf("unexpected block %d", block)
		}
	}
	if caller.calls["decimals"] != 1 {
		t.Fatalf("decimals should be cached, called %d times", caller.calls["decimals"])
	}
}

func TestOnChainMissingConfig(t *testing.T) {
	if _, _, err := NewOnChain(OnChainOptions{}, zerolog.Nop()).FetchBalance(context.Background()); err == nil {
		t.Fatal("missing rpc url must fail")
	}
	bad := testOpts
	bad.WalletAddress = "nope"
	if _, _, err := NewOnChainWithCaller(bad, &fakeCaller{}, zerolog.Nop()).FetchBalance(context.Background()); err == nil {
		t.Fatal("invalid wallet must fail")
	}
}

func TestOnChainRPCError(t *testing.T) {
	o := NewOnChainWithCaller(testOpts, &fakeCaller{fail: true}, zerolog.Nop())
	if _, _, err := o.FetchBalance(context.Background()); err == nil {
		t.Fatal("rpc failure must surface")
	}
}
