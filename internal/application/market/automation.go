package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/predictbot/internal/domain"
)

const (
	slotSeconds     = 16
	bookingLead     = 2 // slots between "one interval from now" and the window
	bookingWindow   = 5 // extra slots FindSlot may choose from
	scheduledMaxGas = uint64(900_000_000)
)

// PauseAutomation stops self-scheduling and cancels the pending call.
func (e *Engine) PauseAutomation(ctx context.Context, caller domain.Address) error {
	return e.mutate(ctx, "pause_automation", func(t *txn) error {
		if err := t.onlyOwner(caller); err != nil {
			return err
		}
		if !t.st.AutomationEnabled {
			return domain.ErrAutomationAlreadyPaused
		}
		if err := t.retireCall(); err != nil {
			return err
		}
		t.st.AutomationEnabled = false
		t.emit(domain.EventAutomationPaused, t.st.CurrentEpoch)
		return nil
	})
}

// ResumeAutomation turns self-scheduling back on and books the next advance.
func (e *Engine) ResumeAutomation(ctx context.Context, caller domain.Address) error {
	return e.mutate(ctx, "resume_automation", func(t *txn) error {
		if err := t.onlyOwner(caller); err != nil {
			return err
		}
		if t.st.AutomationEnabled {
			return domain.ErrAutomationAlreadyEnabled
		}
		if err := t.notPaused(); err != nil {
			return err
		}
		if !t.st.GenesisDone() {
			return domain.ErrResumeBeforeGenesisLock
		}
		t.st.AutomationEnabled = true
		t.emit(domain.EventAutomationResumed, t.st.CurrentEpoch)
		t.scheduleNext(domain.OpAdvance)
		return nil
	})
}

// Rearm books the next automated call when none is pending, for instance
// after the scheduler lost its registrations on restart. It is a no-op when
// a call is already booked, automation is off, or the market is paused.
func (e *Engine) Rearm(ctx context.Context, caller domain.Address) error {
	return e.mutate(ctx, "rearm", func(t *txn) error {
		if err := t.ownerOrSelf(caller); err != nil {
			return err
		}
		if !t.st.AutomationEnabled || t.st.Paused || !t.st.GenesisStarted || t.e.sched == nil {
			return nil
		}
		if t.st.CallID != "" {
			ok, err := t.e.sched.Exists(t.ctx, t.st.CallID)
			if err != nil {
				return fmt.Errorf("market: exists %s: %w", t.st.CallID, err)
			}
			if ok {
				return nil
			}
		}
		op := domain.OpAdvance
		if !t.st.GenesisLocked {
			op = domain.OpGenesisLock
		}
		t.scheduleNext(op)
		return nil
	})
}

// retireCall marks the stored call for cancellation on commit and clears it.
func (t *txn) retireCall() error {
	id := t.st.CallID
	t.st.CallID = ""
	if id == "" || t.e.sched == nil {
		return nil
	}
	ok, err := t.e.sched.Exists(t.ctx, id)
	if err != nil {
		return fmt.Errorf("market: exists %s: %w", id, err)
	}
	if ok {
		t.retired = append(t.retired, id)
	}
	return nil
}

// scheduleNext books op about one interval ahead. Scheduling is best effort:
// a failure is logged and reported as an event, and the call goes on.
func (t *txn) scheduleNext(op domain.Operation) {
	if !t.st.AutomationEnabled || t.e.sched == nil {
		return
	}
	if err := t.retireCall(); err != nil {
		t.scheduleFailed(op, err)
		return
	}
	if err := t.book(op); err != nil {
		t.scheduleFailed(op, err)
	}
}

func (t *txn) book(op domain.Operation) error {
	sched := t.e.sched
	current, err := sched.CurrentSlot(t.ctx)
	if err != nil {
		return fmt.Errorf("current slot: %w", err)
	}
	periods := uint64(t.cfg.Interval/time.Second) / slotSeconds
	booking := current + periods + bookingLead

	slot, err := sched.FindSlot(t.ctx, booking, booking+bookingWindow, scheduledMaxGas, 0)
	if err != nil {
		return fmt.Errorf("find slot: %w", err)
	}
	cost, err := sched.Quote(t.ctx, slot, scheduledMaxGas, 0)
	if err != nil {
		return fmt.Errorf("quote slot %d: %w", slot, err)
	}
	id, err := sched.Register(t.ctx, domain.ScheduledCall{
		Target: t.cfg.Self,
		Op:     op,
		Slot:   slot,
		MaxGas: scheduledMaxGas,
	})
	if err != nil {
		return fmt.Errorf("register slot %d: %w", slot, err)
	}
	t.registered = append(t.registered, id)
	t.st.CallID = id

	name := domain.EventRoundScheduled
	if op == domain.OpGenesisLock {
		name = domain.EventGenesisLockScheduled
	}
	t.emit(name, t.st.CurrentEpoch,
		"call_id", id,
		"booking", booking,
		"slot", slot,
		"current", current,
		"cost", cost,
	)
	slog.Debug("market: scheduled", "op", op, "call_id", id, "slot", slot, "cost", cost)
	return nil
}

func (t *txn) scheduleFailed(op domain.Operation, err error) {
	slog.Warn("market: schedule failed", "op", op, "epoch", t.st.CurrentEpoch, "err", err)
	t.emit(domain.EventScheduleFailed, t.st.CurrentEpoch, "op", op, "err", err.Error())
}
