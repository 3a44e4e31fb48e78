package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a market call was rejected.
type ErrorKind string

const (
	KindValidation    ErrorKind = "VALIDATION"
	KindPrecondition  ErrorKind = "PRECONDITION"
	KindAuthorization ErrorKind = "AUTHORIZATION"
	KindResource      ErrorKind = "RESOURCE"
	KindState         ErrorKind = "STATE"
)

// Error is a rejected market call. Code is stable and safe to show to users.
type Error struct {
	Kind ErrorKind
	Code string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code
	}
	return e.Code + ": " + e.Msg
}

// Is matches on Code so that annotated copies still satisfy errors.Is against
// the sentinel they were derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// With returns a copy of e carrying extra detail.
func (e *Error) With(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Msg: fmt.Sprintf(format, args...)}
}

func newError(kind ErrorKind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Validation
var (
	ErrStakeBelowMinimum   = newError(KindValidation, "BET_AMOUNT_MUST_BE_GREATER_THAN_MIN_BET_AMOUNT")
	ErrPaymentBelowStake   = newError(KindValidation, "TRANSFERRED_COINS_MUST_LARGER_THAN_BET_AMOUNT")
	ErrInvalidDirection    = newError(KindValidation, "INVALID_POSITION")
	ErrInvalidOwnerAddress = newError(KindValidation, "INVALID_OWNER_ADDRESS")
	ErrInvalidAddress      = newError(KindValidation, "INVALID_ADDRESS")
	ErrFeeTooHigh          = newError(KindValidation, "TREASURY_FEE_CANNOT_EXCEED_10_PERCENT")
	ErrInvalidConfig       = newError(KindValidation, "INVALID_CONFIG")
	ErrInvalidPrice        = newError(KindValidation, "INVALID_PRICE")
	ErrEmptyEpochList      = newError(KindValidation, "EPOCHS_ARG_MISSING")
)

// Precondition
var (
	ErrNotInitialized          = newError(KindPrecondition, "MARKET_NOT_INITIALIZED")
	ErrGenesisNotStarted       = newError(KindPrecondition, "CAN_ONLY_LOCK_AFTER_GENESIS_STARTED")
	ErrGenesisNotReady         = newError(KindPrecondition, "CAN_ONLY_RUN_AFTER_GENESIS_START_AND_LOCK")
	ErrResumeBeforeGenesisLock = newError(KindPrecondition, "CAN_ONLY_RESUME_AFTER_GENESIS_LOCK")
	ErrBetTooEarlyOrLate       = newError(KindPrecondition, "BET_IS_TOO_EARLY_OR_LATE")
	ErrRoundNotBiddable        = newError(KindPrecondition, "ROUND_NOT_BETTABLE")
	ErrRoundNotFound           = newError(KindPrecondition, "ROUND_NOT_FOUND")
	ErrRoundNotStarted         = newError(KindPrecondition, "ROUND_HAS_NOT_STARTED")
	ErrRoundNotEnded           = newError(KindPrecondition, "ROUND_HAS_NOT_ENDED")
	ErrLockBeforeStart         = newError(KindPrecondition, "CAN_ONLY_LOCK_ROUND_AFTER_ROUND_HAS_STARTED")
	ErrLockTooEarly            = newError(KindPrecondition, "CAN_ONLY_LOCK_ROUND_AFTER_LOCK_TIMESTAMP")
	ErrLockOutsideBuffer       = newError(KindPrecondition, "CAN_ONLY_LOCK_ROUND_WITHIN_BUFFER_SECONDS")
	ErrCloseBeforeLock         = newError(KindPrecondition, "CAN_ONLY_END_ROUND_AFTER_ROUND_HAS_LOCKED")
	ErrCloseTooEarly           = newError(KindPrecondition, "CAN_ONLY_END_ROUND_AFTER_CLOSE_TIMESTAMP")
	ErrCloseOutsideBuffer      = newError(KindPrecondition, "CAN_ONLY_END_ROUND_WITHIN_BUFFER_SECONDS")
	ErrPreviousRoundNotClosed  = newError(KindPrecondition, "CAN_START_ROUND_ONLY_AFTER_ROUND_(n-2)_CLOSED")
	ErrMarketPaused            = newError(KindPrecondition, "MARKET_PAUSED")
	ErrMarketNotPaused         = newError(KindPrecondition, "MARKET_NOT_PAUSED")
)

// Authorization
var (
	ErrNotOwner        = newError(KindAuthorization, "CALLER_IS_NOT_OWNER")
	ErrNotPendingOwner = newError(KindAuthorization, "CALLER_IS_NOT_PENDING_OWNER")
)

// Resource
var (
	ErrInsufficientBalance = newError(KindResource, "CONTRACT_HAS_NOT_ENOUGH_BALANCE_TO_CLAIM_REWARD")
	ErrInsufficientFunds   = newError(KindResource, "INSUFFICIENT_FUNDS")
	ErrAmountOverflow      = newError(KindResource, "AMOUNT_OVERFLOW")
)

// State
var (
	ErrAlreadyInitialized       = newError(KindState, "MARKET_ALREADY_INITIALIZED")
	ErrGenesisAlreadyStarted    = newError(KindState, "GENESIS_CAN_BE_STARTED_ONLY_ONCE")
	ErrGenesisAlreadyLocked     = newError(KindState, "GENESIS_CAN_BE_LOCKED_ONLY_ONCE")
	ErrRoundAlreadyLocked       = newError(KindState, "ROUND_ALREADY_LOCKED")
	ErrRoundAlreadyClosed       = newError(KindState, "ROUND_ALREADY_CLOSED")
	ErrAlreadyBet               = newError(KindState, "CAN_ONLY_BET_ONCE_PER_ROUND")
	ErrNotEligibleForClaim      = newError(KindState, "NOT_ELIGIBLE_FOR_CLAIM")
	ErrRewardsAlreadyCalculated = newError(KindState, "REWARDS_ALREADY_CALCULATED")
	ErrAutomationAlreadyPaused  = newError(KindState, "AUTOMATION_ALREADY_PAUSED")
	ErrAutomationAlreadyEnabled = newError(KindState, "AUTOMATION_ALREADY_ENABLED")
	ErrNothingToClaim           = newError(KindState, "NOTHING_TO_CLAIM")
	ErrReentrantCall            = newError(KindState, "REENTRANCY_GUARD_REENTRANT_CALL")
	ErrCorruptRecord            = newError(KindState, "CORRUPT_RECORD")
)
