package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alejandrodnm/predictbot/internal/adapters/clock"
	"github.com/alejandrodnm/predictbot/internal/adapters/events"
	"github.com/alejandrodnm/predictbot/internal/adapters/funds"
	"github.com/alejandrodnm/predictbot/internal/adapters/httpapi"
	"github.com/alejandrodnm/predictbot/internal/adapters/pricefeed"
	"github.com/alejandrodnm/predictbot/internal/adapters/storage"
	"github.com/alejandrodnm/predictbot/internal/application/market"
	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0    = time.Unix(1_700_000_000, 0).UTC()
	owner = domain.MustAddress("0x00000000000000000000000000000000000000f1")
	self  = domain.MustAddress("0x00000000000000000000000000000000000000aa")
	alice = domain.MustAddress("0x00000000000000000000000000000000000a11ce")
)

func newServer(t *testing.T, initialize bool) (*httptest.Server, *market.Engine, *clock.Manual) {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewManual(t0)
	vault := funds.NewMemoryVault()
	require.NoError(t, vault.Deposit(ctx, alice, 1_000))
	eng := market.New(storage.NewMemoryStorage(), clk, pricefeed.NewFixed(100), vault, events.NewRecorder(0), nil)

	if initialize {
		require.NoError(t, eng.Initialize(ctx, owner, domain.MarketConfig{
			PoolID:   "pool-1",
			Self:     self,
			FeeBps:   100,
			MinStake: 1,
			Interval: 5 * time.Minute,
			Buffer:   time.Minute,
		}))
		require.NoError(t, eng.GenesisStart(ctx, owner))
		clk.Advance(time.Second)
		require.NoError(t, eng.PlaceBet(ctx, alice, 1, domain.DirectionUp, 25, 25))
	}

	srv := httptest.NewServer(httpapi.New(eng, metrics.New().Registry()))
	t.Cleanup(srv.Close)
	return srv, eng, clk
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestRound(t *testing.T) {
	srv, _, _ := newServer(t, true)

	var rd httpapi.RoundResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/rounds/1", &rd))
	assert.Equal(t, uint64(1), rd.Epoch)
	assert.Equal(t, "OPEN", rd.Phase)
	assert.True(t, rd.Biddable)
	assert.Equal(t, "25", rd.TotalStake)
	assert.Equal(t, "25", rd.UpStake)
	assert.True(t, rd.LockTime.Equal(t0.Add(5*time.Minute)))

	var cur httpapi.RoundResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/rounds/current", &cur))
	assert.Equal(t, rd.Epoch, cur.Epoch)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/rounds/9", &body))
	assert.Equal(t, "round not found", body["error"])
}

func TestUserRounds(t *testing.T) {
	srv, _, _ := newServer(t, true)

	var page struct {
		User   string `json:"user"`
		Wagers []struct {
			Epoch     uint64 `json:"epoch"`
			Direction string `json:"direction"`
			Stake     string `json:"stake"`
		} `json:"wagers"`
		Total int `json:"total"`
		Next  int `json:"next"`
	}
	lower := "0x00000000000000000000000000000000000a11ce"
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/users/"+lower+"/rounds?size=10", &page))
	assert.Equal(t, string(alice), page.User)
	require.Len(t, page.Wagers, 1)
	assert.Equal(t, "UP", page.Wagers[0].Direction)
	assert.Equal(t, "25", page.Wagers[0].Stake)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Next)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/users/nobody/rounds", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/users/"+lower+"/rounds?size=x", nil))
}

func TestClaimable(t *testing.T) {
	srv, _, _ := newServer(t, true)

	var body struct {
		Claimable bool `json:"claimable"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/claimable/1/"+string(alice), &body))
	assert.False(t, body.Claimable, "round 1 is not settled")
}

func TestStatusAndHealth(t *testing.T) {
	srv, _, _ := newServer(t, true)

	var st struct {
		Pool         string `json:"pool"`
		CurrentEpoch uint64 `json:"current_epoch"`
		Balance      string `json:"balance"`
		Rounds       []httpapi.RoundResponse
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/status", &st))
	assert.Equal(t, "pool-1", st.Pool)
	assert.Equal(t, uint64(1), st.CurrentEpoch)
	assert.Equal(t, "25", st.Balance)
	assert.Len(t, st.Rounds, 1)

	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", nil))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNotInitialized(t *testing.T) {
	srv, _, _ := newServer(t, false)

	var body map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/status", &body))
	assert.Contains(t, body["error"], "MARKET_NOT_INITIALIZED")
}
