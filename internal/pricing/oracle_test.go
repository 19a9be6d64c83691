package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func marketServer(t *testing.T, live, eod string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/market/live":
			w.Write([]byte(live))
		case "/market/price-volume":
			w.Write([]byte(eod))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPOracleQuote(t *testing.T) {
	srv := marketServer(t,
		`[{"symbol":"NABIL","lastTradedPrice":512.5},{"symbol":"HBL","lastTradedPrice":"1,025.50"}]`,
		`[{"symbol":"EODONLY","lastTradedPrice":88},{"symbol":"HALTED","lastTradedPrice":null}]`)
	oracle := NewHTTPOracle(srv.URL, 2*time.Second, zap.NewNop())
	ctx := context.Background()

	t.Run("live board number", func(t *testing.T) {
		q, err := oracle.Quote(ctx, "nabil")
		require.NoError(t, err)
		assert.Equal(t, "NABIL", q.Symbol)
		assert.True(t, q.Price.Equal(decimal.RequireFromString("512.5")))
	})

	t.Run("string price with thousands separator", func(t *testing.T) {
		q, err := oracle.Quote(ctx, "HBL")
		require.NoError(t, err)
		assert.True(t, q.Price.Equal(decimal.RequireFromString("1025.50")))
	})

	t.Run("falls back to the price-volume board", func(t *testing.T) {
		q, err := oracle.Quote(ctx, "EODONLY")
		require.NoError(t, err)
		assert.True(t, q.Price.Equal(decimal.RequireFromString("88")))
	})

	t.Run("null traded price fails", func(t *testing.T) {
		_, err := oracle.Quote(ctx, "HALTED")
		assert.Error(t, err)
	})

	t.Run("unlisted symbol fails", func(t *testing.T) {
		_, err := oracle.Quote(ctx, "NOPE")
		assert.Error(t, err)
	})
}

func TestHTTPOracleServerDown(t *testing.T) {
	srv := marketServer(t, "[]", "[]")
	srv.Close()
	oracle := NewHTTPOracle(srv.URL, 500*time.Millisecond, zap.NewNop())
	_, err := oracle.Quote(context.Background(), "NABIL")
	assert.Error(t, err)
}

type countingQuoter struct {
	calls atomic.Int64
	fail  bool
}

func (q *countingQuoter) Quote(_ context.Context, symbol string) (Quote, error) {
	q.calls.Add(1)
	if q.fail {
		return Quote{}, context.DeadlineExceeded
	}
	return Quote{Symbol: symbol, Price: decimal.NewFromInt(7), AsOf: time.Now()}, nil
}

func TestCachedQuoter(t *testing.T) {
	inner := &countingQuoter{}
	cached, err := NewCachedQuoter(inner, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := cached.Quote(ctx, "ABC")
	require.NoError(t, err)

	// ristretto admits asynchronously; wait for the entry to land
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := cached.cache.Get("quote|ABC"); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	second, err := cached.Quote(ctx, "ABC")
	require.NoError(t, err)
	assert.True(t, first.Price.Equal(second.Price))
	assert.LessOrEqual(t, inner.calls.Load(), int64(2))

	t.Run("failures are not cached", func(t *testing.T) {
		failing := &countingQuoter{fail: true}
		cached, err := NewCachedQuoter(failing, time.Minute)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			_, err := cached.Quote(ctx, "XYZ")
			assert.Error(t, err)
		}
		assert.Equal(t, int64(3), failing.calls.Load())
	})
}
