package market_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/predictbot/internal/adapters/clock"
	"github.com/alejandrodnm/predictbot/internal/adapters/events"
	"github.com/alejandrodnm/predictbot/internal/adapters/funds"
	"github.com/alejandrodnm/predictbot/internal/adapters/pricefeed"
	"github.com/alejandrodnm/predictbot/internal/adapters/scheduler"
	"github.com/alejandrodnm/predictbot/internal/adapters/storage"
	"github.com/alejandrodnm/predictbot/internal/application/market"
	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Unix(1_700_000_000, 0).UTC()

	owner    = domain.MustAddress("0x00000000000000000000000000000000000000f1")
	self     = domain.MustAddress("0x00000000000000000000000000000000000000aa")
	alice    = domain.MustAddress("0x00000000000000000000000000000000000a11ce")
	bob      = domain.MustAddress("0x0000000000000000000000000000000000000b0b")
	carol    = domain.MustAddress("0x00000000000000000000000000000000000ca201")
	stranger = domain.MustAddress("0x0000000000000000000000000000000000000bad")
)

type harness struct {
	t     *testing.T
	ctx   context.Context
	eng   *market.Engine
	store *storage.MemoryStorage
	clk   *clock.Manual
	price *pricefeed.Fixed
	vault *funds.Vault
	rec   *events.Recorder
	sched *scheduler.SlotScheduler
}

type options struct {
	feeBps uint32
	buffer time.Duration
	funds  ports.Funds
	sched  ports.Scheduler
	opts   []market.Option

	storedFunds bool // keep balances in the ledger store
}

func defaults() options {
	return options{feeBps: 200, buffer: 30 * time.Second}
}

func newHarness(t *testing.T, o options) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		store: storage.NewMemoryStorage(),
		clk:   clock.NewManual(t0),
		price: pricefeed.NewFixed(100),
		vault: funds.NewMemoryVault(),
		rec:   events.NewRecorder(0),
	}
	h.sched = scheduler.New(h.clk, scheduler.Config{Genesis: t0})
	if o.storedFunds {
		h.vault = funds.NewVault(h.store)
	}

	var f ports.Funds = h.vault
	if o.funds != nil {
		f = o.funds
	}
	var s ports.Scheduler = h.sched
	if o.sched != nil {
		s = o.sched
	}
	h.eng = market.New(h.store, h.clk, h.price, f, h.rec, s, o.opts...)

	require.NoError(t, h.eng.Initialize(h.ctx, owner, domain.MarketConfig{
		PoolID:   "pool-1",
		Self:     self,
		FeeBps:   o.feeBps,
		MinStake: 10,
		Interval: 300 * time.Second,
		Buffer:   o.buffer,
	}))
	for _, u := range []domain.Address{alice, bob, carol} {
		require.NoError(t, h.vault.Deposit(h.ctx, u, 10_000))
	}
	return h
}

func (h *harness) wallet(addr domain.Address) uint64 {
	h.t.Helper()
	bal, err := h.vault.WalletBalance(h.ctx, addr)
	require.NoError(h.t, err)
	return bal
}

// at sets the clock to t0 + sec seconds.
func (h *harness) at(sec int64) {
	h.clk.Set(t0.Add(time.Duration(sec) * time.Second))
}

func (h *harness) round(epoch uint64) domain.Round {
	h.t.Helper()
	r, ok, err := h.eng.Round(h.ctx, epoch)
	require.NoError(h.t, err)
	require.True(h.t, ok, "round %d missing", epoch)
	return r
}

func (h *harness) state() domain.MarketState {
	h.t.Helper()
	st, err := h.eng.State(h.ctx)
	require.NoError(h.t, err)
	return st
}

// genesis runs GenesisStart at t=0 and GenesisLock at t=305 with price 100.
func (h *harness) genesis() {
	h.t.Helper()
	h.at(0)
	require.NoError(h.t, h.eng.GenesisStart(h.ctx, owner))
	h.at(305)
	h.price.Set(100)
	require.NoError(h.t, h.eng.GenesisLock(h.ctx, owner))
}

func (h *harness) bet(user domain.Address, epoch uint64, dir domain.Direction, stake uint64) {
	h.t.Helper()
	require.NoError(h.t, h.eng.PlaceBet(h.ctx, user, epoch, dir, stake, stake))
}

func ts(sec int64) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func TestGenesisStart_OpensRoundOne(t *testing.T) {
	h := newHarness(t, defaults())

	require.NoError(t, h.eng.GenesisStart(h.ctx, owner))

	r := h.round(1)
	assert.Equal(t, ts(0), r.StartTime)
	assert.Equal(t, ts(300), r.LockTime)
	assert.Equal(t, ts(600), r.CloseTime)

	st := h.state()
	assert.Equal(t, uint64(1), st.CurrentEpoch)
	assert.True(t, st.GenesisStarted)
	assert.False(t, st.GenesisLocked)
	assert.NotEmpty(t, st.CallID)

	assert.Equal(t, []domain.EventName{
		domain.EventStartRound,
		domain.EventGenesisLockScheduled,
	}, h.rec.Names())

	pending := h.sched.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.OpGenesisLock, pending[0].Op)
	assert.Equal(t, self, pending[0].Target)
	// 300s / 16 = 18 periods, plus two slots of lead.
	assert.Equal(t, uint64(20), pending[0].Slot)

	assert.ErrorIs(t, h.eng.GenesisStart(h.ctx, owner), domain.ErrGenesisAlreadyStarted)
}

func TestGenesisLock_LocksAndOpensRoundTwo(t *testing.T) {
	h := newHarness(t, defaults())
	h.genesis()

	r1 := h.round(1)
	assert.Equal(t, uint64(100), r1.LockPrice)
	assert.Equal(t, ts(605), r1.CloseTime)

	r2 := h.round(2)
	assert.Equal(t, ts(305), r2.StartTime)
	assert.Equal(t, ts(605), r2.LockTime)
	assert.Equal(t, ts(905), r2.CloseTime)

	st := h.state()
	assert.Equal(t, uint64(2), st.CurrentEpoch)
	assert.True(t, st.GenesisDone())

	pending := h.sched.Pending()
	require.Len(t, pending, 1, "the genesis lock booking is replaced")
	assert.Equal(t, domain.OpAdvance, pending[0].Op)
	assert.Equal(t, st.CallID, pending[0].ID)

	assert.ErrorIs(t, h.eng.GenesisLock(h.ctx, owner), domain.ErrGenesisAlreadyLocked)
}

func TestGenesisLock_RequiresGenesisStart(t *testing.T) {
	h := newHarness(t, defaults())
	assert.ErrorIs(t, h.eng.GenesisLock(h.ctx, owner), domain.ErrGenesisNotStarted)
	assert.ErrorIs(t, h.eng.Advance(h.ctx, owner), domain.ErrGenesisNotReady)
}

func TestAdvance_SettlesPreviousRound(t *testing.T) {
	h := newHarness(t, defaults())
	h.at(0)
	require.NoError(t, h.eng.GenesisStart(h.ctx, owner))
	h.at(100)
	h.bet(alice, 1, domain.DirectionUp, 70)
	h.bet(carol, 1, domain.DirectionUp, 630)
	h.bet(bob, 1, domain.DirectionDown, 300)
	h.at(305)
	require.NoError(t, h.eng.GenesisLock(h.ctx, owner))

	h.rec.Reset()
	h.at(605)
	h.price.Set(110)
	require.NoError(t, h.eng.Advance(h.ctx, self))

	r1 := h.round(1)
	assert.Equal(t, uint64(110), r1.ClosePrice)
	assert.Equal(t, domain.OutcomeUp, r1.Outcome())
	assert.True(t, r1.Settled)
	assert.Equal(t, uint64(700), r1.PayoutBase)
	assert.Equal(t, uint64(980), r1.PayoutPool)

	r2 := h.round(2)
	assert.Equal(t, uint64(110), r2.LockPrice, "one price observation per call")
	assert.Equal(t, ts(905), r2.CloseTime)

	r3 := h.round(3)
	assert.Equal(t, ts(605), r3.StartTime)

	st := h.state()
	assert.Equal(t, uint64(3), st.CurrentEpoch)
	assert.Equal(t, uint64(20), st.Treasury)

	assert.Equal(t, []domain.EventName{
		domain.EventLockRound,
		domain.EventEndRound,
		domain.EventRewardsCalculated,
		domain.EventStartRound,
		domain.EventRoundScheduled,
	}, h.rec.Names())
	evs := h.rec.Events()
	assert.Equal(t, "20", evs[2].Attrs["treasury_cut"])
	assert.Equal(t, uint64(1), evs[2].Epoch)
}

func TestAdvance_RejectedCallIsNoop(t *testing.T) {
	h := newHarness(t, defaults())
	h.genesis()
	before := h.state()
	pending := h.sched.Pending()
	h.rec.Reset()

	h.at(400) // round 2 locks at 605
	err := h.eng.Advance(h.ctx, owner)
	assert.ErrorIs(t, err, domain.ErrLockTooEarly)
	assert.Equal(t, domain.KindPrecondition, domain.KindOf(err))

	assert.Equal(t, before, h.state())
	assert.False(t, h.round(2).Locked())
	_, ok, err := h.eng.Round(h.ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, h.rec.Names())
	assert.Equal(t, pending, h.sched.Pending())
}

func TestAdvance_AfterLongGapIsRejected(t *testing.T) {
	h := newHarness(t, defaults())
	h.genesis()

	h.at(10_000)
	assert.ErrorIs(t, h.eng.Advance(h.ctx, owner), domain.ErrLockOutsideBuffer)
	assert.Equal(t, uint64(2), h.state().CurrentEpoch)
}

func TestAdvance_MovesExactlyOneEpoch(t *testing.T) {
	o := defaults()
	o.buffer = 1_000_000 * time.Second
	h := newHarness(t, o)
	h.genesis()

	h.at(50_000)
	require.NoError(t, h.eng.Advance(h.ctx, owner))
	assert.Equal(t, uint64(3), h.state().CurrentEpoch)
	assert.Equal(t, ts(50_000), h.round(3).StartTime)
}

func TestAdvance_LateGenesisLockShiftsWindows(t *testing.T) {
	h := newHarness(t, defaults())
	h.at(0)
	require.NoError(t, h.eng.GenesisStart(h.ctx, owner))
	h.at(330) // lock round 1 late: its close moves to 630
	require.NoError(t, h.eng.GenesisLock(h.ctx, owner))

	h.at(629) // round 2 lock window [630, 660]
	assert.ErrorIs(t, h.eng.Advance(h.ctx, owner), domain.ErrLockTooEarly)

	h.at(630)
	require.NoError(t, h.eng.Advance(h.ctx, owner))
	assert.True(t, h.round(1).Closed())
}

func TestAdvance_PriceErrorsAbort(t *testing.T) {
	h := newHarness(t, defaults())
	h.genesis()
	h.at(605)

	h.price.Fail(errors.New("feed down"))
	assert.Error(t, h.eng.Advance(h.ctx, owner))
	h.price.Fail(nil)

	h.price.Set(0)
	assert.ErrorIs(t, h.eng.Advance(h.ctx, owner), domain.ErrInvalidPrice)
	assert.Equal(t, uint64(2), h.state().CurrentEpoch)
}

func TestCommitFailure_RollsBackRegistration(t *testing.T) {
	h := newHarness(t, defaults())
	h.store.FailBatch = errors.New("disk full")

	assert.Error(t, h.eng.GenesisStart(h.ctx, owner))
	assert.Empty(t, h.sched.Pending())
	assert.Empty(t, h.rec.Names())

	h.store.FailBatch = nil
	assert.Equal(t, uint64(0), h.state().CurrentEpoch)
	require.NoError(t, h.eng.GenesisStart(h.ctx, owner))
}

func TestScheduledCalls_DriveRounds(t *testing.T) {
	h := newHarness(t, defaults())
	require.NoError(t, h.eng.GenesisStart(h.ctx, owner))

	dispatch := func(ctx context.Context, c domain.ScheduledCall) error {
		return h.eng.Execute(ctx, c.Target, c.Op)
	}
	for i := 0; i < 3; i++ {
		pending := h.sched.Pending()
		require.Len(t, pending, 1)
		h.clk.Set(h.sched.SlotTime(pending[0].Slot))
		require.Equal(t, 1, h.sched.Fire(h.ctx, pending[0].Slot, dispatch))
	}

	st := h.state()
	assert.Equal(t, uint64(4), st.CurrentEpoch)
	assert.True(t, h.round(2).Settled)
	assert.True(t, h.round(1).Settled)
	assert.NotContains(t, h.rec.Names(), domain.EventScheduleFailed)
}

func TestExecute_UnknownOperation(t *testing.T) {
	h := newHarness(t, defaults())
	assert.Error(t, h.eng.Execute(h.ctx, self, "withdrawAll"))
}

type callRecord struct {
	op  string
	err error
}

type observer struct{ calls []callRecord }

func (o *observer) ObserveCall(op string, err error, _ time.Duration) {
	o.calls = append(o.calls, callRecord{op, err})
}

func TestObserver_SeesEveryCall(t *testing.T) {
	obs := &observer{}
	o := defaults()
	o.opts = []market.Option{market.WithObserver(obs)}
	h := newHarness(t, o)

	require.NoError(t, h.eng.GenesisStart(h.ctx, owner))
	assert.Error(t, h.eng.GenesisStart(h.ctx, owner))

	require.Len(t, obs.calls, 3)
	assert.Equal(t, "initialize", obs.calls[0].op)
	assert.Equal(t, "genesis_start", obs.calls[1].op)
	assert.NoError(t, obs.calls[1].err)
	assert.ErrorIs(t, obs.calls[2].err, domain.ErrGenesisAlreadyStarted)
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t, defaults())
	h.genesis()

	snap, err := h.eng.Snapshot(h.ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.State.CurrentEpoch)
	require.Len(t, snap.Rounds, 2)
	assert.Equal(t, uint64(2), snap.Rounds[0].Epoch)
	assert.Equal(t, "pool-1", snap.Config.PoolID)
	assert.Equal(t, ts(305), snap.TakenAt)
}
