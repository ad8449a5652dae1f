package auth

import (
	"context"
	"errors"

	"github.com/alexbensimon/pakt/pkg/identity"
)

type contextKey string

const walletKey contextKey = "wallet"

// ErrNoWallet is returned when a request context carries no authenticated wallet.
var ErrNoWallet = errors.New("auth: no wallet in context")

// WithWallet attaches the authenticated wallet to ctx.
func WithWallet(ctx context.Context, wallet identity.Address) context.Context {
	return context.WithValue(ctx, walletKey, wallet)
}

// WalletFrom returns the authenticated wallet on ctx.
func WalletFrom(ctx context.Context) (identity.Address, error) {
	w, ok := ctx.Value(walletKey).(identity.Address)
	if !ok {
		return identity.ZeroAddress, ErrNoWallet
	}
	return w, nil
}
