package fetcher

import (
	"context"

	"github.com/shopspring/decimal"
)

// TokenBalanceFetcher reads a wallet's token balance and the block it was read at.
type TokenBalanceFetcher interface {
	FetchBalance(ctx context.Context) (decimal.Decimal, uint64, error)
}
