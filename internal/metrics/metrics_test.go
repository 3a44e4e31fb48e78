package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCall_LabelsByCode(t *testing.T) {
	m := metrics.New()

	m.ObserveCall("place_bet", nil, time.Millisecond)
	m.ObserveCall("place_bet", domain.ErrAlreadyBet.With("epoch 3"), time.Millisecond)
	m.ObserveCall("advance", errors.New("disk"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues("place_bet", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues("place_bet", "CAN_ONLY_BET_ONCE_PER_ROUND")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CallsTotal.WithLabelValues("advance", "INTERNAL")))
}

func TestEmit_FoldsEvents(t *testing.T) {
	m := metrics.New()
	at := time.Unix(0, 0)

	require.NoError(t, m.Emit(context.Background(), []domain.Event{
		domain.NewEvent(domain.EventStartRound, 7, at),
		domain.NewEvent(domain.EventBetUp, 7, at, "amount", uint64(70)),
		domain.NewEvent(domain.EventBetDown, 7, at, "amount", uint64(30)),
		domain.NewEvent(domain.EventRewardsCalculated, 6, at, "treasury_cut", uint64(2)),
		domain.NewEvent(domain.EventClaim, 6, at, "amount", uint64(98)),
	}))

	assert.Equal(t, 7.0, testutil.ToFloat64(m.CurrentEpoch))
	assert.Equal(t, 70.0, testutil.ToFloat64(m.StakeTotal.WithLabelValues("up")))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.StakeTotal.WithLabelValues("down")))
	assert.Equal(t, 98.0, testutil.ToFloat64(m.ClaimedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TreasuryCut))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("BetUp")))
}

func TestObserveFire(t *testing.T) {
	m := metrics.New()
	m.ObserveFire(domain.OpAdvance, nil)
	m.ObserveFire(domain.OpAdvance, errors.New("late"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FiresTotal.WithLabelValues("executeRound", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FiresTotal.WithLabelValues("executeRound", "error")))

	n, err := testutil.GatherAndCount(m.Registry())
	require.NoError(t, err)
	assert.Positive(t, n)
}
