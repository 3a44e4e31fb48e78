// Package pricefeed provides ports.PriceSource implementations.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ports"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	// Pool state lookups happen once per round; 5/s leaves room for status polling.
	poolRatePerSec = 5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond

	defaultDecimals = 9
)

// poolState is the pool endpoint payload. Pools report either a spot price
// directly or their active bin, from which the price is derived.
type poolState struct {
	Price    string  `json:"price,omitempty"`
	ActiveID *uint32 `json:"active_id,omitempty"`
	BinStep  uint32  `json:"bin_step,omitempty"`
}

// Client reads pool state over HTTP with rate limiting and retries.
type Client struct {
	http      *http.Client
	base      string
	limiter   *rate.Limiter
	decimals  int32
	retryWait time.Duration
}

var _ ports.PriceSource = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithDecimals sets how many decimals of the price are kept in the integer
// result. Default 9.
func WithDecimals(d int32) Option {
	return func(c *Client) { c.decimals = d }
}

// WithRetryWait sets the base backoff between retries.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) { c.retryWait = d }
}

// WithHTTPClient replaces the default 10s-timeout client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a Client for the pool API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		base:      strings.TrimRight(baseURL, "/"),
		limiter:   rate.NewLimiter(poolRatePerSec, 2),
		decimals:  defaultDecimals,
		retryWait: baseRetryWait,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Price returns the pool's spot price scaled to an integer.
func (c *Client) Price(ctx context.Context, poolID string) (uint64, error) {
	var st poolState
	u := c.base + "/pools/" + url.PathEscape(poolID)
	if err := c.get(ctx, u, &st); err != nil {
		return 0, fmt.Errorf("pricefeed.Price %s: %w", poolID, err)
	}

	var (
		px  decimal.Decimal
		err error
	)
	switch {
	case st.Price != "":
		px, err = decimal.NewFromString(st.Price)
		if err != nil {
			return 0, fmt.Errorf("pricefeed.Price %s: parse %q: %w", poolID, st.Price, err)
		}
	case st.ActiveID != nil:
		px, err = BinPrice(*st.ActiveID, st.BinStep)
		if err != nil {
			return 0, fmt.Errorf("pricefeed.Price %s: %w", poolID, err)
		}
	default:
		return 0, fmt.Errorf("pricefeed.Price %s: pool reported neither price nor active bin", poolID)
	}

	scaled, err := Scale(px, c.decimals)
	if err != nil {
		return 0, fmt.Errorf("pricefeed.Price %s: %w", poolID, err)
	}
	slog.Debug("pricefeed: price", "pool", poolID, "price", px.String(), "scaled", scaled)
	return scaled, nil
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, u string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial y jitter.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("pricefeed: rate limited by API", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial y jitter, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	if c.retryWait > 0 {
		wait += time.Duration(rand.Int64N(int64(c.retryWait)))
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// Fixed is a PriceSource returning a settable price for every pool.
type Fixed struct {
	mu    sync.Mutex
	price uint64
	err   error
}

var _ ports.PriceSource = (*Fixed)(nil)

// NewFixed returns a source that reports price until Set is called.
func NewFixed(price uint64) *Fixed {
	return &Fixed{price: price}
}

// Set replaces the reported price.
func (f *Fixed) Set(price uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = price
}

// Fail makes Price return err until cleared with Fail(nil).
func (f *Fixed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *Fixed) Price(_ context.Context, _ string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if f.price == 0 {
		return 0, domain.ErrInvalidPrice.With("fixed source has no price")
	}
	return f.price, nil
}
