package market_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/predictbot/internal/adapters/clock"
	"github.com/alejandrodnm/predictbot/internal/adapters/storage"
	"github.com/alejandrodnm/predictbot/internal/application/market"
	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	h := newHarness(t, defaults())

	st := h.state()
	assert.Equal(t, owner, st.Owner)
	assert.Zero(t, st.CurrentEpoch)
	assert.True(t, st.AutomationEnabled)
	assert.False(t, st.GenesisStarted)

	cfg, err := h.eng.Config(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, self, cfg.Self)

	err = h.eng.Initialize(h.ctx, owner, cfg)
	assert.ErrorIs(t, err, domain.ErrAlreadyInitialized)
}

func TestInitialize_Validates(t *testing.T) {
	eng := market.New(storage.NewMemoryStorage(), clock.NewManual(t0), nil, nil, nil, nil)
	ctx := context.Background()
	cfg := domain.MarketConfig{PoolID: "p", Self: self, FeeBps: 1001, MinStake: 1, Interval: time.Minute, Buffer: time.Second}

	assert.ErrorIs(t, eng.Initialize(ctx, owner, cfg), domain.ErrFeeTooHigh)
	cfg.FeeBps = 1000
	assert.ErrorIs(t, eng.Initialize(ctx, "0x0000000000000000000000000000000000000000", cfg), domain.ErrInvalidOwnerAddress)
	assert.ErrorIs(t, eng.Initialize(ctx, "bogus", cfg), domain.ErrInvalidOwnerAddress)

	_, err := eng.State(ctx)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	assert.ErrorIs(t, eng.GenesisStart(ctx, owner), domain.ErrNotInitialized)

	require.NoError(t, eng.Initialize(ctx, owner, cfg))
}

func TestOwnerOnlyAndOwnerOrSelf(t *testing.T) {
	h := newHarness(t, defaults())

	assert.ErrorIs(t, h.eng.GenesisStart(h.ctx, self), domain.ErrNotOwner, "self cannot bootstrap")
	assert.ErrorIs(t, h.eng.GenesisStart(h.ctx, stranger), domain.ErrNotOwner)
	require.NoError(t, h.eng.GenesisStart(h.ctx, owner))

	h.at(305)
	err := h.eng.GenesisLock(h.ctx, stranger)
	assert.ErrorIs(t, err, domain.ErrNotOwner)
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))
	require.NoError(t, h.eng.GenesisLock(h.ctx, self))

	h.at(605)
	assert.ErrorIs(t, h.eng.Advance(h.ctx, stranger), domain.ErrNotOwner)
	require.NoError(t, h.eng.Advance(h.ctx, self))

	assert.ErrorIs(t, h.eng.PauseAutomation(h.ctx, self), domain.ErrNotOwner)
	assert.ErrorIs(t, h.eng.Pause(h.ctx, stranger), domain.ErrNotOwner)
}

func TestOwnershipTransfer_TwoStep(t *testing.T) {
	h := newHarness(t, defaults())

	assert.ErrorIs(t, h.eng.TransferOwnership(h.ctx, alice, bob), domain.ErrNotOwner)
	assert.ErrorIs(t, h.eng.TransferOwnership(h.ctx, owner, "nope"), domain.ErrInvalidOwnerAddress)
	assert.ErrorIs(t, h.eng.AcceptOwnership(h.ctx, alice), domain.ErrNotPendingOwner)

	require.NoError(t, h.eng.TransferOwnership(h.ctx, owner, alice))
	st := h.state()
	assert.Equal(t, owner, st.Owner, "ownership does not move until accepted")
	assert.Equal(t, alice, st.PendingOwner)

	assert.ErrorIs(t, h.eng.AcceptOwnership(h.ctx, bob), domain.ErrNotPendingOwner)
	require.NoError(t, h.eng.AcceptOwnership(h.ctx, alice))

	st = h.state()
	assert.Equal(t, alice, st.Owner)
	assert.Empty(t, st.PendingOwner)
	assert.ErrorIs(t, h.eng.GenesisStart(h.ctx, owner), domain.ErrNotOwner)
	require.NoError(t, h.eng.GenesisStart(h.ctx, alice))

	assert.Equal(t, []domain.EventName{
		domain.EventOwnershipTransferStarted,
		domain.EventOwnershipTransferAccepted,
		domain.EventStartRound,
		domain.EventGenesisLockScheduled,
	}, h.rec.Names())
}

func TestPauseMarket_BlocksAndRebootstraps(t *testing.T) {
	h := newHarness(t, defaults())
	h.genesis()

	require.NoError(t, h.eng.Pause(h.ctx, owner))
	assert.ErrorIs(t, h.eng.Pause(h.ctx, owner), domain.ErrMarketPaused)
	assert.Empty(t, h.sched.Pending())
	assert.Empty(t, h.state().CallID)

	h.at(310)
	assert.ErrorIs(t, h.eng.PlaceBet(h.ctx, alice, 2, domain.DirectionUp, 10, 10), domain.ErrMarketPaused)
	h.at(605)
	assert.ErrorIs(t, h.eng.Advance(h.ctx, owner), domain.ErrMarketPaused)

	h.at(5_000)
	require.NoError(t, h.eng.Unpause(h.ctx, owner))
	assert.ErrorIs(t, h.eng.Unpause(h.ctx, owner), domain.ErrMarketNotPaused)
	st := h.state()
	assert.False(t, st.GenesisStarted)
	assert.False(t, st.GenesisLocked)

	require.NoError(t, h.eng.GenesisStart(h.ctx, owner))
	assert.Equal(t, uint64(3), h.state().CurrentEpoch, "history is kept")
	assert.Equal(t, ts(5_000), h.round(3).StartTime)
	assert.False(t, h.round(2).Locked(), "stranded round stays as it was")

	h.at(5_300)
	require.NoError(t, h.eng.GenesisLock(h.ctx, owner))
	h.at(5_600)
	require.NoError(t, h.eng.Advance(h.ctx, owner))
	assert.Equal(t, uint64(5), h.state().CurrentEpoch)
	assert.True(t, h.round(3).Settled)
}

type failingScheduler struct {
	err error
}

func (f failingScheduler) CurrentSlot(context.Context) (uint64, error) { return 0, nil }
func (f failingScheduler) FindSlot(context.Context, uint64, uint64, uint64, int) (uint64, error) {
	return 0, f.err
}
func (f failingScheduler) Quote(context.Context, uint64, uint64, int) (uint64, error) { return 0, f.err }
func (f failingScheduler) Register(context.Context, domain.ScheduledCall) (string, error) {
	return "", f.err
}
func (f failingScheduler) Exists(context.Context, string) (bool, error) { return false, nil }
func (f failingScheduler) Cancel(context.Context, string) error         { return nil }

func TestScheduleFailure_DoesNotFailTheCall(t *testing.T) {
	o := defaults()
	o.sched = failingScheduler{err: errors.New("no capacity")}
	h := newHarness(t, o)

	require.NoError(t, h.eng.GenesisStart(h.ctx, owner))

	st := h.state()
	assert.Equal(t, uint64(1), st.CurrentEpoch)
	assert.Empty(t, st.CallID)
	assert.Equal(t, []domain.EventName{
		domain.EventStartRound,
		domain.EventScheduleFailed,
	}, h.rec.Names())
	assert.Equal(t, "genesisLockRound", h.rec.Events()[1].Attrs["op"])
}
