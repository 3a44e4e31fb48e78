package ledger

// codec.go: versioned byte encodings for every persisted record.
//
// Layout: one version byte followed by a protobuf-wire body, one numbered
// field per struct field. Zero values are omitted, so a missing field decodes
// to its zero value. Times are stored as zigzag unix nanoseconds and are only
// written when set, which keeps "unset" distinct from the unix epoch.

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"google.golang.org/protobuf/encoding/protowire"
)

const recordVersion byte = 1

// Round fields
const (
	roundEpoch protowire.Number = iota + 1
	roundStart
	roundLock
	roundClose
	roundLockPrice
	roundClosePrice
	roundTotal
	roundUp
	roundDown
	roundPayoutBase
	roundPayoutPool
	roundSettled
)

// Wager fields
const (
	wagerEpoch protowire.Number = iota + 1
	wagerUser
	wagerDirection
	wagerStake
	wagerClaimed
)

// MarketConfig fields
const (
	cfgPoolID protowire.Number = iota + 1
	cfgSelf
	cfgFeeBps
	cfgMinStake
	cfgInterval
	cfgBuffer
)

// MarketState fields
const (
	stOwner protowire.Number = iota + 1
	stPendingOwner
	stEpoch
	stTreasury
	stGenesisStarted
	stGenesisLocked
	stAutomation
	stPaused
	stCallID
)

const epochListField protowire.Number = 1

// EncodeRound serializes a round.
func EncodeRound(r domain.Round) []byte {
	b := []byte{recordVersion}
	b = appendUint(b, roundEpoch, r.Epoch)
	b = appendTime(b, roundStart, r.StartTime)
	b = appendTime(b, roundLock, r.LockTime)
	b = appendTime(b, roundClose, r.CloseTime)
	b = appendUint(b, roundLockPrice, r.LockPrice)
	b = appendUint(b, roundClosePrice, r.ClosePrice)
	b = appendUint(b, roundTotal, r.TotalStake)
	b = appendUint(b, roundUp, r.UpStake)
	b = appendUint(b, roundDown, r.DownStake)
	b = appendUint(b, roundPayoutBase, r.PayoutBase)
	b = appendUint(b, roundPayoutPool, r.PayoutPool)
	b = appendBool(b, roundSettled, r.Settled)
	return b
}

// DecodeRound parses a round encoded by EncodeRound.
func DecodeRound(data []byte) (domain.Round, error) {
	var r domain.Round
	err := decodeFields(data, func(num protowire.Number, v uint64, _ []byte) {
		switch num {
		case roundEpoch:
			r.Epoch = v
		case roundStart:
			r.StartTime = decodeTime(v)
		case roundLock:
			r.LockTime = decodeTime(v)
		case roundClose:
			r.CloseTime = decodeTime(v)
		case roundLockPrice:
			r.LockPrice = v
		case roundClosePrice:
			r.ClosePrice = v
		case roundTotal:
			r.TotalStake = v
		case roundUp:
			r.UpStake = v
		case roundDown:
			r.DownStake = v
		case roundPayoutBase:
			r.PayoutBase = v
		case roundPayoutPool:
			r.PayoutPool = v
		case roundSettled:
			r.Settled = v != 0
		}
	})
	if err != nil {
		return domain.Round{}, fmt.Errorf("round: %w", err)
	}
	return r, nil
}

// EncodeWager serializes a wager.
func EncodeWager(w domain.Wager) []byte {
	b := []byte{recordVersion}
	b = appendUint(b, wagerEpoch, w.Epoch)
	b = appendString(b, wagerUser, string(w.User))
	b = appendUint(b, wagerDirection, uint64(w.Direction))
	b = appendUint(b, wagerStake, w.Stake)
	b = appendBool(b, wagerClaimed, w.Claimed)
	return b
}

// DecodeWager parses a wager encoded by EncodeWager.
func DecodeWager(data []byte) (domain.Wager, error) {
	var w domain.Wager
	err := decodeFields(data, func(num protowire.Number, v uint64, bs []byte) {
		switch num {
		case wagerEpoch:
			w.Epoch = v
		case wagerUser:
			w.User = domain.Address(bs)
		case wagerDirection:
			w.Direction = domain.Direction(v)
		case wagerStake:
			w.Stake = v
		case wagerClaimed:
			w.Claimed = v != 0
		}
	})
	if err != nil {
		return domain.Wager{}, fmt.Errorf("wager: %w", err)
	}
	if !w.Direction.Valid() {
		return domain.Wager{}, domain.ErrCorruptRecord.With("wager: direction %d", w.Direction)
	}
	return w, nil
}

// EncodeEpochs serializes a user's round history as a packed varint list.
func EncodeEpochs(epochs []uint64) []byte {
	b := []byte{recordVersion}
	if len(epochs) == 0 {
		return b
	}
	var packed []byte
	for _, e := range epochs {
		packed = protowire.AppendVarint(packed, e)
	}
	b = protowire.AppendTag(b, epochListField, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// DecodeEpochs parses a list encoded by EncodeEpochs.
func DecodeEpochs(data []byte) ([]uint64, error) {
	var packed []byte
	err := decodeFields(data, func(num protowire.Number, _ uint64, bs []byte) {
		if num == epochListField {
			packed = bs
		}
	})
	if err != nil {
		return nil, fmt.Errorf("epochs: %w", err)
	}
	var out []uint64
	for len(packed) > 0 {
		v, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			return nil, domain.ErrCorruptRecord.With("epochs: %v", protowire.ParseError(n))
		}
		out = append(out, v)
		packed = packed[n:]
	}
	return out, nil
}

// EncodeConfig serializes the market configuration.
func EncodeConfig(c domain.MarketConfig) []byte {
	b := []byte{recordVersion}
	b = appendString(b, cfgPoolID, c.PoolID)
	b = appendString(b, cfgSelf, string(c.Self))
	b = appendUint(b, cfgFeeBps, uint64(c.FeeBps))
	b = appendUint(b, cfgMinStake, c.MinStake)
	b = appendUint(b, cfgInterval, protowire.EncodeZigZag(int64(c.Interval)))
	b = appendUint(b, cfgBuffer, protowire.EncodeZigZag(int64(c.Buffer)))
	return b
}

// DecodeConfig parses a configuration encoded by EncodeConfig.
func DecodeConfig(data []byte) (domain.MarketConfig, error) {
	var c domain.MarketConfig
	err := decodeFields(data, func(num protowire.Number, v uint64, bs []byte) {
		switch num {
		case cfgPoolID:
			c.PoolID = string(bs)
		case cfgSelf:
			c.Self = domain.Address(bs)
		case cfgFeeBps:
			c.FeeBps = uint32(v)
		case cfgMinStake:
			c.MinStake = v
		case cfgInterval:
			c.Interval = time.Duration(protowire.DecodeZigZag(v))
		case cfgBuffer:
			c.Buffer = time.Duration(protowire.DecodeZigZag(v))
		}
	})
	if err != nil {
		return domain.MarketConfig{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// EncodeState serializes the market state.
func EncodeState(s domain.MarketState) []byte {
	b := []byte{recordVersion}
	b = appendString(b, stOwner, string(s.Owner))
	b = appendString(b, stPendingOwner, string(s.PendingOwner))
	b = appendUint(b, stEpoch, s.CurrentEpoch)
	b = appendUint(b, stTreasury, s.Treasury)
	b = appendBool(b, stGenesisStarted, s.GenesisStarted)
	b = appendBool(b, stGenesisLocked, s.GenesisLocked)
	b = appendBool(b, stAutomation, s.AutomationEnabled)
	b = appendBool(b, stPaused, s.Paused)
	b = appendString(b, stCallID, s.CallID)
	return b
}

// DecodeState parses a state encoded by EncodeState.
func DecodeState(data []byte) (domain.MarketState, error) {
	var s domain.MarketState
	err := decodeFields(data, func(num protowire.Number, v uint64, bs []byte) {
		switch num {
		case stOwner:
			s.Owner = domain.Address(bs)
		case stPendingOwner:
			s.PendingOwner = domain.Address(bs)
		case stEpoch:
			s.CurrentEpoch = v
		case stTreasury:
			s.Treasury = v
		case stGenesisStarted:
			s.GenesisStarted = v != 0
		case stGenesisLocked:
			s.GenesisLocked = v != 0
		case stAutomation:
			s.AutomationEnabled = v != 0
		case stPaused:
			s.Paused = v != 0
		case stCallID:
			s.CallID = string(bs)
		}
	})
	if err != nil {
		return domain.MarketState{}, fmt.Errorf("state: %w", err)
	}
	return s, nil
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendUint(b, num, 1)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(t.UnixNano()))
}

func decodeTime(v uint64) time.Time {
	return time.Unix(0, protowire.DecodeZigZag(v)).UTC()
}

// decodeFields checks the version byte and walks the body, calling fn with
// varint values or byte payloads. Fixed-width and group fields are skipped.
func decodeFields(data []byte, fn func(num protowire.Number, v uint64, bs []byte)) error {
	if len(data) == 0 {
		return domain.ErrCorruptRecord.With("empty record")
	}
	if data[0] != recordVersion {
		return domain.ErrCorruptRecord.With("unknown version %d", data[0])
	}
	b := data[1:]
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return domain.ErrCorruptRecord.With("tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return domain.ErrCorruptRecord.With("field %d: %v", num, protowire.ParseError(m))
			}
			fn(num, v, nil)
			n = m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return domain.ErrCorruptRecord.With("field %d: %v", num, protowire.ParseError(m))
			}
			fn(num, 0, v)
			n = m
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return domain.ErrCorruptRecord.With("field %d: %v", num, protowire.ParseError(m))
			}
			n = m
		}
		b = b[n:]
	}
	return nil
}
