package price

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"crypto-alert-bot/internal/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound means the source has no quote for the requested symbol.
var ErrNotFound = errors.New("quote not found")

// QuoteError reports a transport or API failure while fetching a quote.
type QuoteError struct {
	Source string
	Symbol string
	Err    error
}

func (e *QuoteError) Error() string {
	return fmt.Sprintf("%s quote for %s: %v", e.Source, e.Symbol, e.Err)
}

func (e *QuoteError) Unwrap() error { return e.Err }

// Source fetches the current USD spot price of a token symbol. It never
// retries; callers decide what to do with a failure.
type Source interface {
	Name() string
	GetPrice(ctx context.Context, symbol string) (types.PriceQuote, error)
}

const (
	SourceCoinPaprika = "coinpaprika"
	SourceBinance     = "binance"
)

// Options configures the quote source built by NewSource.
type Options struct {
	// Timeout bounds each HTTP request to the upstream API.
	Timeout time.Duration
	// APIKey selects the coinpaprika pro endpoint when set.
	APIKey string
	// QuoteAsset is the binance pair suffix, USDT by default.
	QuoteAsset string
	// HTTPClient replaces the default client, mostly for tests.
	HTTPClient *http.Client
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// NewSource returns the quote source registered under name.
func NewSource(name string, opts Options) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SourceCoinPaprika:
		return NewCoinPaprika(opts), nil
	case "coingecko":
		log.Warnf("Price source %q is not available, using %s", name, SourceCoinPaprika)
		return NewCoinPaprika(opts), nil
	case SourceBinance:
		return NewBinance(opts), nil
	}
	return nil, errors.Errorf("unknown price source: %s", name)
}
