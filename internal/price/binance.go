package price

import (
	"context"
	"strings"
	"time"

	"crypto-alert-bot/internal/types"
	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// invalidSymbolCode is the binance API error for an unknown trading pair.
const invalidSymbolCode = -1121

// Binance quotes the last trade price of <SYMBOL><QuoteAsset> on binance spot.
type Binance struct {
	client     *binance.Client
	quoteAsset string
}

// NewBinance builds a public (unauthenticated) binance source.
func NewBinance(opts Options) *Binance {
	client := binance.NewClient("", "")
	client.HTTPClient = opts.httpClient()

	quoteAsset := strings.ToUpper(opts.QuoteAsset)
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	return &Binance{client: client, quoteAsset: quoteAsset}
}

func (b *Binance) Name() string { return SourceBinance }

// GetPrice returns the price of symbol against the configured quote asset.
func (b *Binance) GetPrice(ctx context.Context, symbol string) (types.PriceQuote, error) {
	symbol = types.CanonicalToken(symbol)
	pair := symbol + b.quoteAsset

	prices, err := b.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == invalidSymbolCode {
			return types.PriceQuote{}, errors.Wrapf(ErrNotFound, "pair %s", pair)
		}
		return types.PriceQuote{}, &QuoteError{Source: b.Name(), Symbol: symbol, Err: err}
	}

	for _, p := range prices {
		if p == nil || p.Symbol != pair {
			continue
		}
		value, err := decimal.NewFromString(p.Price)
		if err != nil {
			return types.PriceQuote{}, &QuoteError{Source: b.Name(), Symbol: symbol, Err: errors.Wrapf(err, "parse price %q", p.Price)}
		}
		return types.PriceQuote{
			TokenID:   pair,
			Symbol:    symbol,
			PriceUSD:  value,
			FetchedAt: time.Now().UTC(),
		}, nil
	}
	return types.PriceQuote{}, errors.Wrapf(ErrNotFound, "pair %s", pair)
}
