package price

import (
	"context"
	"net/http"
	"strings"
	"time"

	"crypto-alert-bot/internal/types"
	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// CoinPaprika quotes prices from api.coinpaprika.com. Symbols are resolved
// to coinpaprika ids (e.g. BTC -> btc-bitcoin) through the search endpoint
// and the mapping is cached.
type CoinPaprika struct {
	httpClient *http.Client
	clientOpts []coinpaprika.ClientOptions
	ids        *expirable.LRU[string, string]
}

// NewCoinPaprika builds a coinpaprika source. A non-empty APIKey uses the pro API.
func NewCoinPaprika(opts Options) *CoinPaprika {
	var clientOpts []coinpaprika.ClientOptions
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, coinpaprika.WithAPIKey(opts.APIKey))
	}
	return &CoinPaprika{
		httpClient: opts.httpClient(),
		clientOpts: clientOpts,
		ids:        expirable.NewLRU[string, string](512, nil, 24*time.Hour),
	}
}

// clientFor returns a coinpaprika client whose requests all carry ctx, so
// the id search and the ticker lookup of one quote share its deadline.
func (c *CoinPaprika) clientFor(ctx context.Context) *coinpaprika.Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := *c.httpClient
	httpClient.Transport = contextTransport{ctx: ctx, base: base}
	return coinpaprika.NewClient(&httpClient, c.clientOpts...)
}

// contextTransport attaches ctx to requests built by clients that take none.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

func (c *CoinPaprika) Name() string { return SourceCoinPaprika }

// GetPrice returns the USD price of symbol.
func (c *CoinPaprika) GetPrice(ctx context.Context, symbol string) (types.PriceQuote, error) {
	symbol = types.CanonicalToken(symbol)
	if err := ctx.Err(); err != nil {
		return types.PriceQuote{}, &QuoteError{Source: c.Name(), Symbol: symbol, Err: err}
	}

	client := c.clientFor(ctx)
	id, err := c.resolveID(client, symbol)
	if err != nil {
		return types.PriceQuote{}, err
	}

	ticker, err := client.Tickers.GetByID(id, &coinpaprika.TickersOptions{Quotes: "USD"})
	if err != nil {
		return types.PriceQuote{}, &QuoteError{Source: c.Name(), Symbol: symbol, Err: errors.Wrapf(err, "ticker %s", id)}
	}
	if ticker == nil || ticker.Quotes == nil {
		return types.PriceQuote{}, errors.Wrapf(ErrNotFound, "no quotes for %s", id)
	}
	usd, ok := ticker.Quotes["USD"]
	if !ok || usd.Price == nil {
		return types.PriceQuote{}, errors.Wrapf(ErrNotFound, "no USD quote for %s", id)
	}

	return types.PriceQuote{
		TokenID:   id,
		Symbol:    symbol,
		PriceUSD:  decimal.NewFromFloat(*usd.Price),
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (c *CoinPaprika) resolveID(client *coinpaprika.Client, symbol string) (string, error) {
	if id, ok := c.ids.Get(symbol); ok {
		return id, nil
	}

	result, err := client.Search.Search(&coinpaprika.SearchOptions{
		Query:      strings.ToLower(symbol),
		Categories: "currencies",
		Modifier:   "symbol_search",
	})
	if err != nil {
		return "", &QuoteError{Source: c.Name(), Symbol: symbol, Err: errors.Wrap(err, "search")}
	}
	if result == nil {
		return "", errors.Wrapf(ErrNotFound, "symbol %s", symbol)
	}

	for _, coin := range result.Currencies {
		if coin == nil || coin.ID == nil || coin.Symbol == nil {
			continue
		}
		if strings.EqualFold(*coin.Symbol, symbol) {
			log.Debugf("Resolved %s to coinpaprika id %s", symbol, *coin.ID)
			c.ids.Add(symbol, *coin.ID)
			return *coin.ID, nil
		}
	}
	return "", errors.Wrapf(ErrNotFound, "symbol %s", symbol)
}
