package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/alexbensimon/pakt/pkg/identity"
)

var (
	ErrPaused        = errors.New("token: paused")
	ErrNotPaused     = errors.New("token: not paused")
	ErrZeroAddress   = errors.New("token: zero address")
	ErrInvalidAmount = errors.New("token: amount must not be negative")
)

// InsufficientBalanceError reports that Account holds less than Needed.
type InsufficientBalanceError struct {
	Account identity.Address
	Balance *big.Int
	Needed  *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("token: %s balance %s is below %s", e.Account.Hex(), e.Balance, e.Needed)
}

// InsufficientAllowanceError reports that Spender may move less than Needed
// on behalf of Owner.
type InsufficientAllowanceError struct {
	Owner     identity.Address
	Spender   identity.Address
	Allowance *big.Int
	Needed    *big.Int
}

func (e *InsufficientAllowanceError) Error() string {
	return fmt.Sprintf("token: allowance %s of %s over %s is below %s",
		e.Allowance, e.Spender.Hex(), e.Owner.Hex(), e.Needed)
}
