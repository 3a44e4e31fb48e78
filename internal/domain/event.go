package domain

import (
	"sort"
	"strconv"
	"time"
)

// EventName identifies an observability event emitted by the market.
type EventName string

const (
	EventStartRound                EventName = "StartRound"
	EventLockRound                 EventName = "LockRound"
	EventEndRound                  EventName = "EndRound"
	EventRewardsCalculated         EventName = "RewardsCalculated"
	EventBetUp                     EventName = "BetUp"
	EventBetDown                   EventName = "BetDown"
	EventClaim                     EventName = "Claim"
	EventTreasuryClaimed           EventName = "TreasuryClaimed"
	EventRoundScheduled            EventName = "RoundScheduled"
	EventGenesisLockScheduled      EventName = "GenesisLockRoundScheduled"
	EventScheduleFailed            EventName = "AutomationScheduleFailed"
	EventAutomationPaused          EventName = "AutomationPaused"
	EventAutomationResumed         EventName = "AutomationResumed"
	EventOwnershipTransferStarted  EventName = "OwnershipTransferStarted"
	EventOwnershipTransferAccepted EventName = "OwnershipTransferAccepted"
	EventMarketPaused              EventName = "MarketPaused"
	EventMarketUnpaused            EventName = "MarketUnpaused"
)

// Event is one entry in the market's event log.
type Event struct {
	ID    string
	Name  EventName
	Epoch uint64
	At    time.Time
	Attrs map[string]string
}

// NewEvent builds an event from alternating key/value pairs. Values are
// rendered with strconv for the integer and bool types the market uses.
func NewEvent(name EventName, epoch uint64, at time.Time, kv ...any) Event {
	e := Event{Name: name, Epoch: epoch, At: at, Attrs: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		e.Attrs[k] = formatAttr(kv[i+1])
	}
	return e
}

// Keys returns attribute keys in sorted order.
func (e Event) Keys() []string {
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatAttr(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case uint64:
		return strconv.FormatUint(x, 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case Address:
		return string(x)
	case Direction:
		return x.String()
	case Outcome:
		return string(x)
	case Operation:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case interface{ String() string }:
		return x.String()
	default:
		return ""
	}
}
