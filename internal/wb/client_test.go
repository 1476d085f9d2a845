package wb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wbpulse/internal/config"
	"wbpulse/internal/types"
)

func testWBConfig(baseURL string) config.WBConfig {
	return config.WBConfig{
		StatisticsBaseURL: baseURL,
		FeedbacksBaseURL:  baseURL,
		RequestTimeout:    5 * time.Second,
		MaxRetries:        2,
		MinRetryWait:      time.Second,
		MaxRetryWait:      30 * time.Second,
		UserAgent:         "wbpulse-test/1.0",
	}
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(testWBConfig(server.URL),
		WithHTTPClient(server.Client()),
		WithSleepFunc(func(context.Context, time.Duration) error { return nil }),
	)
}

func appErrorCode(t *testing.T, err error) types.ErrorCode {
	t.Helper()
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestOrders_MapsFieldsAndCancelStatus(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		assert.NotEmpty(t, r.URL.Query().Get("dateFrom"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"date":"2026-03-01T10:00:00","lastChangeDate":"2026-03-01T10:05:00","supplierArticle":"ART-1","nmId":111,"subject":"Shoes","brand":"Acme","totalPrice":1500.5,"isCancel":false,"warehouseName":"Koledino","regionName":"Moscow","srid":"srid-1"},
			{"date":"2026-03-01T11:00:00","lastChangeDate":"2026-03-01T11:30:00","supplierArticle":"ART-2","nmId":222,"subject":"Hats","brand":"Acme","totalPrice":700,"isCancel":true,"srid":"srid-2"}
		]`))
	}))
	defer server.Close()

	client := newTestClient(server)
	orders, err := client.Orders(context.Background(), "cab_1", "wb-key", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "wb-key", gotAuth)
	assert.Equal(t, "/api/v1/supplier/orders", gotPath)

	require.Len(t, orders, 2)
	assert.Equal(t, "cab_1", orders[0].CabinetID)
	assert.Equal(t, "srid-1", orders[0].SRID)
	assert.Equal(t, int64(111), orders[0].NmID)
	assert.Equal(t, types.OrderActive, orders[0].Status)
	assert.Equal(t, 1500.5, orders[0].TotalPrice)
	// Bare timestamps are Moscow local time.
	assert.Equal(t, time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC), orders[0].OrderedAt)
	assert.Equal(t, types.OrderCancelled, orders[1].Status)
}

func TestSales_MapsSaleAndReturnIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/supplier/sales", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"date":"2026-03-01T12:00:00+03:00","saleID":"S0001","srid":"srid-1","nmId":111,"supplierArticle":"ART-1","brand":"Acme","totalPrice":1500,"forPay":1280.4},
			{"date":"2026-03-02T09:00:00+03:00","saleID":"R0002","srid":"srid-2","nmId":222,"supplierArticle":"ART-2","brand":"Acme","totalPrice":700,"forPay":0}
		]`))
	}))
	defer server.Close()

	client := newTestClient(server)
	sales, err := client.Sales(context.Background(), "cab_1", "wb-key", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	require.Len(t, sales, 2)
	assert.Equal(t, "S0001", sales[0].SaleID)
	assert.False(t, sales[0].IsReturn())
	assert.Equal(t, 1280.4, sales[0].ForPay)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), sales[0].SoldAt)
	assert.Equal(t, "R0002", sales[1].SaleID)
	assert.True(t, sales[1].IsReturn())
}

func TestStocks_AggregatesAcrossWarehouses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2019-06-20", r.URL.Query().Get("dateFrom"))
		_, _ = w.Write([]byte(`[
			{"lastChangeDate":"2026-03-01T08:00:00","supplierArticle":"ART-1","nmId":111,"subject":"Shoes","techSize":"42","quantity":3,"warehouseName":"Koledino"},
			{"lastChangeDate":"2026-03-01T09:00:00","supplierArticle":"ART-1","nmId":111,"subject":"Shoes","techSize":"42","quantity":2,"warehouseName":"Kazan"},
			{"lastChangeDate":"2026-03-01T07:00:00","supplierArticle":"ART-1","nmId":111,"subject":"Shoes","techSize":"43","quantity":1,"warehouseName":"Koledino"},
			{"lastChangeDate":"2026-03-01T07:00:00","supplierArticle":"ART-2","nmId":222,"subject":"Hats","techSize":"0","quantity":9,"warehouseName":"Koledino"}
		]`))
	}))
	defer server.Close()

	client := newTestClient(server)
	stocks, err := client.Stocks(context.Background(), "cab_1", "wb-key")
	require.NoError(t, err)

	require.Len(t, stocks, 2)
	assert.Equal(t, int64(111), stocks[0].NmID)
	require.Len(t, stocks[0].Sizes, 2)
	assert.Equal(t, types.StockSize{TechSize: "42", Quantity: 5}, stocks[0].Sizes[0])
	assert.Equal(t, types.StockSize{TechSize: "43", Quantity: 1}, stocks[0].Sizes[1])
	assert.Equal(t, time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC), stocks[0].UpdatedAt)
	assert.Equal(t, int64(222), stocks[1].NmID)
}

func TestReviews_WalksPages(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/feedbacks", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("isAnswered"))
		calls.Add(1)
		// First page full would need 1000 entries; a short page ends the walk.
		_, _ = w.Write([]byte(`{"data":{"feedbacks":[
			{"id":"rev-1","text":"terrible","productValuation":1,"userName":"Ivan","createdDate":"2026-03-01T10:00:00","productDetails":{"nmId":111,"productName":"Shoes"}}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	reviews, err := client.Reviews(context.Background(), "cab_1", "wb-key")
	require.NoError(t, err)

	assert.EqualValues(t, 1, calls.Load())
	require.Len(t, reviews, 1)
	assert.Equal(t, "rev-1", reviews[0].ReviewID)
	assert.Equal(t, 1, reviews[0].Rating)
	assert.Equal(t, int64(111), reviews[0].NmID)
}

func TestGet_RetriesOn429ThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var sleeps []time.Duration
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(testWBConfig(server.URL),
		WithHTTPClient(server.Client()),
		WithSleepFunc(func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		}),
	)

	_, err := client.Orders(context.Background(), "cab_1", "wb-key", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	require.Len(t, sleeps, 1)
	assert.Equal(t, 7*time.Second, sleeps[0])
}

func TestGet_PersistentRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.Orders(context.Background(), "cab_1", "wb-key", time.Now())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamRateLimit, appErrorCode(t, err))
	assert.EqualValues(t, 3, calls.Load()) // 1 + MaxRetries
}

func TestGet_AuthErrorsDoNotRetry(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(status)
		}))

		client := newTestClient(server)
		_, err := client.Orders(context.Background(), "cab_1", "bad-key", time.Now())
		require.Error(t, err)
		assert.Equal(t, types.ErrCodeUpstreamAuth, appErrorCode(t, err))
		assert.EqualValues(t, 1, calls.Load())
		server.Close()
	}
}

func TestGet_OtherClientErrorsAreUpstreamErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad dateFrom", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.Orders(context.Background(), "cab_1", "wb-key", time.Now())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamWB, appErrorCode(t, err))
}

func TestGet_ServerErrorsExhaustRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.Orders(context.Background(), "cab_1", "wb-key", time.Now())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamWB, appErrorCode(t, err))
	assert.EqualValues(t, 3, calls.Load())
}

func TestBackoff_RespectsRetryAfterAndCaps(t *testing.T) {
	client := NewClient(testWBConfig("https://example.com"))

	assert.Equal(t, 7*time.Second, client.backoff(0, 7*time.Second))
	assert.Equal(t, 30*time.Second, client.backoff(0, time.Minute))

	for attempt := 0; attempt < 8; attempt++ {
		d := client.backoff(attempt, 0)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 30*time.Second)
	}
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 10*time.Second, parseRetryAfter("10"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("Wed, 21 Oct 2026 07:28:00 GMT"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3"))
}

func TestWBTime_Parsing(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", `"2026-03-01T12:00:00+03:00"`, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{"bare moscow", `"2026-03-01T12:00:00"`, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{"zero sentinel", `"0001-01-01T00:00:00"`, time.Time{}},
		{"empty", `""`, time.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ts wbTime
			require.NoError(t, ts.UnmarshalJSON([]byte(tc.in)))
			assert.True(t, tc.want.Equal(ts.Time), "got %s", ts.Time)
		})
	}

	var ts wbTime
	assert.Error(t, ts.UnmarshalJSON([]byte(`"01.03.2026"`)))
}

func TestGet_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(testWBConfig("https://example.com"))
	_, err := client.Orders(ctx, "cab_1", "wb-key", time.Now())
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, errors.Is(appErr.Unwrap(), context.Canceled))
}
