package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/quote"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradecouncil/orchestrator/internal/metrics"
)

// ErrQuoteNotFound is returned when no market data exists for a symbol.
var ErrQuoteNotFound = errors.New("quote not found")

// Quote is a snapshot of current market data for one instrument.
type Quote struct {
	Symbol      string          `json:"symbol"`
	AssetType   string          `json:"asset_type"` // "stock" or "crypto"
	Price       decimal.Decimal `json:"price"`
	Change24h   decimal.Decimal `json:"change_24h"`
	ChangePct   decimal.Decimal `json:"change_24h_pct"`
	High24h     decimal.Decimal `json:"high_24h"`
	Low24h      decimal.Decimal `json:"low_24h"`
	Volume      int64           `json:"volume_24h"`
	RetrievedAt time.Time       `json:"retrieved_at"`
}

// Quoter retrieves current market data for a symbol. The orchestration logic
// only uses it to seed session context; it is an opaque collaborator.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
}

// YahooQuoter answers quotes for equities via the Yahoo finance API. Crypto
// pairs are mapped to Yahoo's dash notation (BTC/USDT -> BTC-USD).
type YahooQuoter struct {
	logger  *zap.Logger
	timeout time.Duration
}

// NewYahooQuoter creates a quoter with a per-request timeout.
func NewYahooQuoter(timeout time.Duration, logger *zap.Logger) *YahooQuoter {
	return &YahooQuoter{logger: logger, timeout: timeout}
}

func (y *YahooQuoter) Quote(ctx context.Context, symbol string) (*Quote, error) {
	lookup := symbol
	assetType := "stock"
	if IsCrypto(symbol) {
		lookup = cryptoToYahoo(symbol)
		assetType = "crypto"
	}

	type result struct {
		q   *finance.Quote
		err error
	}
	done := make(chan result, 1)
	go func() {
		q, err := quote.Get(lookup)
		done <- result{q, err}
	}()

	timer := time.NewTimer(y.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		metrics.QuoteRequests.WithLabelValues("cancelled").Inc()
		return nil, ctx.Err()
	case <-timer.C:
		metrics.QuoteRequests.WithLabelValues("timeout").Inc()
		return nil, fmt.Errorf("quote %s: %w", symbol, context.DeadlineExceeded)
	case r := <-done:
		if r.err != nil {
			metrics.QuoteRequests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("quote %s: %w", symbol, r.err)
		}
		if r.q == nil || r.q.RegularMarketPrice == 0 {
			metrics.QuoteRequests.WithLabelValues("not_found").Inc()
			return nil, fmt.Errorf("%w: %s", ErrQuoteNotFound, symbol)
		}
		metrics.QuoteRequests.WithLabelValues("ok").Inc()
		return &Quote{
			Symbol:      symbol,
			AssetType:   assetType,
			Price:       decimal.NewFromFloat(r.q.RegularMarketPrice),
			Change24h:   decimal.NewFromFloat(r.q.RegularMarketChange),
			ChangePct:   decimal.NewFromFloat(r.q.RegularMarketChangePercent),
			High24h:     decimal.NewFromFloat(r.q.RegularMarketDayHigh),
			Low24h:      decimal.NewFromFloat(r.q.RegularMarketDayLow),
			Volume:      int64(r.q.RegularMarketVolume),
			RetrievedAt: time.Now(),
		}, nil
	}
}

// cryptoToYahoo maps BASE/QUOTE pairs to Yahoo's BASE-USD notation. Stable
// coin quotes collapse to USD.
func cryptoToYahoo(pair string) string {
	base, _, _ := strings.Cut(pair, "/")
	return base + "-USD"
}

// CachedQuoter wraps a Quoter with a Redis-backed TTL cache.
type CachedQuoter struct {
	inner  Quoter
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedQuoter wraps inner with a cache. A nil client disables caching.
func NewCachedQuoter(inner Quoter, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedQuoter {
	return &CachedQuoter{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (c *CachedQuoter) Quote(ctx context.Context, symbol string) (*Quote, error) {
	if c.client == nil {
		return c.inner.Quote(ctx, symbol)
	}

	key := "quote:" + symbol
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var q Quote
		if err := json.Unmarshal(data, &q); err == nil {
			metrics.QuoteCacheHits.Inc()
			return &q, nil
		}
	}

	q, err := c.inner.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(q); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("quote cache write failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return q, nil
}
