package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Quote is one price observation for a symbol.
type Quote struct {
	Symbol string
	Price  decimal.Decimal
	AsOf   time.Time
}

// Quoter supplies a current trade price for a symbol. A failed lookup is
// transient: callers treat it as retryable and leave their own state
// untouched.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// marketRow is the shape of one row on the exchange's market board.
type marketRow struct {
	Symbol          string          `json:"symbol"`
	LastTradedPrice json.RawMessage `json:"lastTradedPrice"`
}

// HTTPOracle quotes off the market-data service's live board, falling
// back to the end-of-day price/volume board when the symbol is not on
// the live one.
type HTTPOracle struct {
	base   string
	client *http.Client
	log    *zap.Logger
}

func NewHTTPOracle(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPOracle {
	return &HTTPOracle{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
		log:    logger,
	}
}

func (o *HTTPOracle) Quote(ctx context.Context, symbol string) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	q, liveErr := o.lookup(ctx, "/market/live", symbol)
	if liveErr == nil {
		return q, nil
	}
	o.log.Debug("live board miss, trying price-volume",
		zap.String("symbol", symbol), zap.Error(liveErr))
	q, eodErr := o.lookup(ctx, "/market/price-volume", symbol)
	if eodErr == nil {
		return q, nil
	}
	return Quote{}, fmt.Errorf("quote %s: live: %v; price-volume: %w", symbol, liveErr, eodErr)
}

func (o *HTTPOracle) lookup(ctx context.Context, path, symbol string) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+path, nil)
	if err != nil {
		return Quote{}, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}

	var rows []marketRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return Quote{}, fmt.Errorf("%s: decode: %w", path, err)
	}
	for _, row := range rows {
		if !strings.EqualFold(row.Symbol, symbol) {
			continue
		}
		price, err := parsePrice(row.LastTradedPrice)
		if err != nil {
			return Quote{}, fmt.Errorf("%s: %s: %w", path, symbol, err)
		}
		return Quote{Symbol: symbol, Price: price, AsOf: time.Now().UTC()}, nil
	}
	return Quote{}, fmt.Errorf("%s: symbol %s not listed", path, symbol)
}

// parsePrice accepts the board's price as a JSON number or a numeric
// string with thousands separators ("1,025.50").
func parsePrice(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Decimal{}, fmt.Errorf("no traded price")
	}
	text := strings.Trim(string(raw), `"`)
	text = strings.ReplaceAll(text, ",", "")
	price, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("bad price %q: %w", raw, err)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("non-positive price %s", price)
	}
	return price, nil
}

// CachedQuoter fronts a Quoter with a short-TTL ristretto cache so
// concurrent approvals do not hammer the market-data service. Only
// successful quotes are cached; failures always fall through.
type CachedQuoter struct {
	next  Quoter
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewCachedQuoter(next Quoter, ttl time.Duration) (*CachedQuoter, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedQuoter{next: next, cache: c, ttl: ttl}, nil
}

func (c *CachedQuoter) Quote(ctx context.Context, symbol string) (Quote, error) {
	key := "quote|" + strings.ToUpper(strings.TrimSpace(symbol))
	if v, ok := c.cache.Get(key); ok {
		if q, ok := v.(Quote); ok {
			return q, nil
		}
	}
	q, err := c.next.Quote(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	c.cache.SetWithTTL(key, q, 1, c.ttl)
	return q, nil
}
