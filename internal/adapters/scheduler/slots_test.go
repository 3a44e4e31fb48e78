package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/predictbot/internal/adapters/clock"
	"github.com/alejandrodnm/predictbot/internal/adapters/scheduler"
	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var genesis = time.Unix(1_700_000_000, 0).UTC()

func newScheduler(capacity uint64) (*scheduler.SlotScheduler, *clock.Manual) {
	clk := clock.NewManual(genesis)
	return scheduler.New(clk, scheduler.Config{Genesis: genesis, Capacity: capacity}), clk
}

func call(op domain.Operation, slot, gas uint64) domain.ScheduledCall {
	return domain.ScheduledCall{Op: op, Slot: slot, MaxGas: gas}
}

func TestCurrentSlot(t *testing.T) {
	s, clk := newScheduler(0)
	ctx := context.Background()

	slot, err := s.CurrentSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), slot)

	clk.Advance(16*time.Second*10 + 15*time.Second)
	slot, err = s.CurrentSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), slot)
	assert.Equal(t, genesis.Add(160*time.Second), s.SlotTime(10))

	assert.Equal(t, uint64(0), s.SlotAt(genesis.Add(-time.Hour)))
}

func TestFindSlot_PrefersEarliestOnTies(t *testing.T) {
	s, _ := newScheduler(0)

	slot, err := s.FindSlot(context.Background(), 5, 10, 900_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), slot)
}

func TestFindSlot_AvoidsCongestedSlots(t *testing.T) {
	s, _ := newScheduler(1_000_000_000)
	ctx := context.Background()

	_, err := s.Register(ctx, call(domain.OpAdvance, 5, 500_000_000))
	require.NoError(t, err)

	// 5 is half booked and more expensive; 6 is empty.
	slot, err := s.FindSlot(ctx, 5, 10, 100_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), slot)

	busy, err := s.Quote(ctx, 5, 100_000_000, 0)
	require.NoError(t, err)
	idle, err := s.Quote(ctx, 6, 100_000_000, 0)
	require.NoError(t, err)
	assert.Greater(t, busy, idle)
}

func TestFindSlot_SkipsPastAndFullSlots(t *testing.T) {
	s, clk := newScheduler(1_000_000_000)
	ctx := context.Background()
	clk.Advance(16 * time.Second * 4) // slot 4

	_, err := s.Register(ctx, call(domain.OpAdvance, 5, 900_000_000))
	require.NoError(t, err)

	slot, err := s.FindSlot(ctx, 2, 6, 900_000_000, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), slot)

	_, err = s.FindSlot(ctx, 2, 5, 900_000_000, 0)
	assert.ErrorIs(t, err, scheduler.ErrNoSlot)

	_, err = s.FindSlot(ctx, 8, 7, 1, 0)
	assert.Error(t, err)
}

func TestQuote_ChargesForParams(t *testing.T) {
	s, _ := newScheduler(0)
	ctx := context.Background()

	bare, err := s.Quote(ctx, 3, 1_000_000, 0)
	require.NoError(t, err)
	withParams, err := s.Quote(ctx, 3, 1_000_000, 100)
	require.NoError(t, err)
	assert.Greater(t, withParams, bare)

	_, err = s.Quote(ctx, 3, scheduler.DefaultSlotCapacity+1, 0)
	assert.ErrorIs(t, err, scheduler.ErrNoSlot)
}

func TestRegister_ExistsCancel(t *testing.T) {
	s, _ := newScheduler(0)
	ctx := context.Background()

	id, err := s.Register(ctx, call(domain.OpGenesisLock, 3, 1_000))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	ok, err := s.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.NotZero(t, pending[0].Cost)

	require.NoError(t, s.Cancel(ctx, id))
	ok, err = s.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Cancel(ctx, "unknown"))
	assert.NoError(t, s.Cancel(ctx, id), "double cancel is a no-op")
}

func TestRegister_Rejects(t *testing.T) {
	s, clk := newScheduler(0)
	ctx := context.Background()
	clk.Advance(16 * time.Second * 3)

	_, err := s.Register(ctx, call(domain.OpAdvance, 3, 1))
	assert.ErrorIs(t, err, scheduler.ErrSlotInPast)

	_, err = s.Register(ctx, call("selfDestruct", 9, 1))
	assert.Error(t, err)
}

func TestCancel_ReleasesCapacity(t *testing.T) {
	s, _ := newScheduler(1_000)
	ctx := context.Background()

	id, err := s.Register(ctx, call(domain.OpAdvance, 2, 1_000))
	require.NoError(t, err)
	_, err = s.Register(ctx, call(domain.OpAdvance, 2, 1))
	assert.ErrorIs(t, err, scheduler.ErrNoSlot)

	require.NoError(t, s.Cancel(ctx, id))
	_, err = s.Register(ctx, call(domain.OpAdvance, 2, 1_000))
	assert.NoError(t, err)
}

func TestFire_DispatchesDueCallsInSlotOrder(t *testing.T) {
	s, _ := newScheduler(0)
	ctx := context.Background()

	late, err := s.Register(ctx, call(domain.OpAdvance, 4, 1))
	require.NoError(t, err)
	early, err := s.Register(ctx, call(domain.OpGenesisLock, 2, 1))
	require.NoError(t, err)
	future, err := s.Register(ctx, call(domain.OpAdvance, 9, 1))
	require.NoError(t, err)

	var seen []string
	n := s.Fire(ctx, 4, func(ctx context.Context, c domain.ScheduledCall) error {
		// A call is no longer pending while it runs.
		ok, err := s.Exists(ctx, c.ID)
		require.NoError(t, err)
		assert.False(t, ok)
		seen = append(seen, c.ID)
		return nil
	})

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{early, late}, seen)

	ok, err := s.Exists(ctx, future)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFire_DispatchErrorsDoNotStopOthers(t *testing.T) {
	s, _ := newScheduler(0)
	ctx := context.Background()

	_, err := s.Register(ctx, call(domain.OpAdvance, 1, 1))
	require.NoError(t, err)
	_, err = s.Register(ctx, call(domain.OpAdvance, 2, 1))
	require.NoError(t, err)

	calls := 0
	n := s.Fire(ctx, 10, func(context.Context, domain.ScheduledCall) error {
		calls++
		return errors.New("boom")
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, calls)
	assert.Empty(t, s.Pending())
}

func TestFire_DispatchMayRegisterAgain(t *testing.T) {
	s, clk := newScheduler(0)
	ctx := context.Background()

	_, err := s.Register(ctx, call(domain.OpAdvance, 1, 1))
	require.NoError(t, err)

	clk.Advance(16 * time.Second)
	s.Fire(ctx, 1, func(ctx context.Context, c domain.ScheduledCall) error {
		_, err := s.Register(ctx, call(c.Op, c.Slot+5, c.MaxGas))
		return err
	})

	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, uint64(6), pending[0].Slot)
}
