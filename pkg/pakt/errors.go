package pakt

import (
	"fmt"
	"math/big"

	"github.com/alexbensimon/pakt/pkg/finance"
	"github.com/alexbensimon/pakt/pkg/identity"
)

// Kind identifies a rejected precondition. Kinds are errors themselves, so
// callers can test with errors.Is(err, pakt.KindIncorrectAmount).
type Kind string

func (k Kind) Error() string  { return "pakt: " + string(k) }
func (k Kind) String() string { return string(k) }

const (
	KindWalletAlreadyLinked     Kind = "WalletAlreadyLinked"
	KindSourceIDAlreadyLinked   Kind = "SourceIdAlreadyLinked"
	KindInvalidSourceID         Kind = "InvalidSourceId"
	KindNoSourceIDLinked        Kind = "NoSourceIdLinked"
	KindUnhandledGoalType       Kind = "UnhandledGoalType"
	KindDuplicateActiveGoalType Kind = "DuplicateActiveGoalType"
	KindLevelNotAllowed         Kind = "LevelNotAllowed"
	KindIncorrectAmount         Kind = "IncorrectAmount"
	KindNotEnoughAllowance      Kind = "NotEnoughAllowance"
	KindMustBeActive            Kind = "MustBeActive"
	KindNotFinishedYet          Kind = "NotFinishedYet"
	KindMustBeCustom            Kind = "MustBeCustom"
	KindMustNotBeCustom         Kind = "MustNotBeCustom"
	KindGoalNotReached          Kind = "GoalNotReached"
	KindNeedToPayFee            Kind = "NeedToPayFee"
	KindFailedTransfer          Kind = "FailedTransfer"
	KindPaktNotFound            Kind = "PaktNotFound"
	KindInsufficientReserve     Kind = "InsufficientReserve"
)

// Error is a ledger rejection with the offending values populated for its kind.
type Error struct {
	Kind     Kind
	Wallet   identity.Address
	SourceID *big.Int
	GoalType GoalType
	Level    Level
	Index    int
	Amount   *big.Int
}

func (e *Error) Unwrap() error { return e.Kind }

func (e *Error) Error() string {
	switch e.Kind {
	case KindWalletAlreadyLinked:
		return fmt.Sprintf("pakt: wallet %s is already linked", e.Wallet.Hex())
	case KindSourceIDAlreadyLinked:
		return fmt.Sprintf("pakt: source id %s is already linked", e.SourceID)
	case KindInvalidSourceID:
		return fmt.Sprintf("pakt: source id %s must be positive", e.SourceID)
	case KindNoSourceIDLinked:
		return fmt.Sprintf("pakt: wallet %s has no linked source id", e.Wallet.Hex())
	case KindUnhandledGoalType:
		return fmt.Sprintf("pakt: goal type %d is not handled", e.GoalType)
	case KindDuplicateActiveGoalType:
		return fmt.Sprintf("pakt: an active pakt of goal type %d already exists", e.GoalType)
	case KindLevelNotAllowed:
		return fmt.Sprintf("pakt: level %d is not allowed for goal type %d", e.Level, e.GoalType)
	case KindIncorrectAmount:
		return fmt.Sprintf("pakt: amount %s is not allowed at level %d", e.Amount, e.Level)
	case KindNotEnoughAllowance:
		return fmt.Sprintf("pakt: allowance does not cover %s", e.Amount)
	case KindNeedToPayFee:
		return fmt.Sprintf("pakt: unlock requires a fee of exactly %s", e.Amount)
	case KindFailedTransfer:
		return fmt.Sprintf("pakt: transfer of %s failed", e.Amount)
	case KindPaktNotFound:
		return fmt.Sprintf("pakt: wallet %s has no pakt at index %d", e.Wallet.Hex(), e.Index)
	case KindInsufficientReserve:
		return fmt.Sprintf("pakt: reserve cannot cover interest of %s", e.Amount)
	}
	return e.Kind.Error()
}

// Params returns the populated offending values keyed for API rendering.
func (e *Error) Params() map[string]any {
	p := map[string]any{}
	switch e.Kind {
	case KindWalletAlreadyLinked, KindNoSourceIDLinked:
		p["wallet"] = e.Wallet.Hex()
	case KindSourceIDAlreadyLinked, KindInvalidSourceID:
		p["sourceId"] = bigString(e.SourceID)
	case KindUnhandledGoalType, KindDuplicateActiveGoalType:
		p["goalType"] = e.GoalType
	case KindLevelNotAllowed:
		p["goalType"] = e.GoalType
		p["level"] = e.Level
	case KindIncorrectAmount:
		p["level"] = e.Level
		p["amount"] = bigString(e.Amount)
	case KindNotEnoughAllowance, KindNeedToPayFee, KindFailedTransfer, KindInsufficientReserve:
		p["amount"] = bigString(e.Amount)
	case KindPaktNotFound:
		p["wallet"] = e.Wallet.Hex()
		p["index"] = e.Index
	}
	return p
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func reject(kind Kind) *Error { return &Error{Kind: kind} }

func errAmount(kind Kind, amount *big.Int) *Error {
	return &Error{Kind: kind, Amount: finance.Copy(amount)}
}

func errIncorrectAmount(level Level, amount *big.Int) *Error {
	return &Error{Kind: KindIncorrectAmount, Level: level, Amount: finance.Copy(amount)}
}

func errNotFound(wallet identity.Address, index int) *Error {
	return &Error{Kind: KindPaktNotFound, Wallet: wallet, Index: index}
}
