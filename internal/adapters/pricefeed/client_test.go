package pricefeed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/predictbot/internal/adapters/pricefeed"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *pricefeed.Client {
	return pricefeed.NewClient(srv.URL, pricefeed.WithDecimals(4), pricefeed.WithRetryWait(time.Millisecond))
}

func TestPrice_DirectPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pools/mas-usdc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"price":"12.34567"}`))
	}))
	defer srv.Close()

	price, err := newTestClient(srv).Price(context.Background(), "mas-usdc")
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), price)
}

func TestPrice_FromActiveBin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// 2^23 + 1 with a 20bps step: price 1.002
		w.Write([]byte(`{"active_id":8388609,"bin_step":20}`))
	}))
	defer srv.Close()

	price, err := newTestClient(srv).Price(context.Background(), "pool")
	require.NoError(t, err)
	assert.Equal(t, uint64(10020), price)
}

func TestPrice_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"price":"2"}`))
	}))
	defer srv.Close()

	price, err := newTestClient(srv).Price(context.Background(), "pool")
	require.NoError(t, err)
	assert.Equal(t, uint64(20000), price)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPrice_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown pool", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Price(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPrice_RejectsEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Price(context.Background(), "pool")
	assert.Error(t, err)
}

func TestPrice_RejectsZeroPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price":"0.00001"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Price(context.Background(), "pool")
	assert.Error(t, err, "truncates to zero at 4 decimals")
}

func TestBinPrice(t *testing.T) {
	p, err := pricefeed.BinPrice(1<<23, 25)
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(1)))

	p, err = pricefeed.BinPrice(1<<23+2, 100)
	require.NoError(t, err)
	assert.Equal(t, "1.0201", p.String())

	p, err = pricefeed.BinPrice(1<<23-1, 100)
	require.NoError(t, err)
	assert.Equal(t, "0.990099", p.Truncate(6).String())

	_, err = pricefeed.BinPrice(1<<23, 0)
	assert.Error(t, err)
}

func TestScale(t *testing.T) {
	v, err := pricefeed.Scale(decimal.RequireFromString("1.23456789"), 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), v)

	_, err = pricefeed.Scale(decimal.RequireFromString("1e30"), 0)
	assert.Error(t, err)
}

func TestFixed(t *testing.T) {
	f := pricefeed.NewFixed(100)
	p, err := f.Price(context.Background(), "any")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), p)

	f.Set(0)
	_, err = f.Price(context.Background(), "any")
	assert.Error(t, err)
}
