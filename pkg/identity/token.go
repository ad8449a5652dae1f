package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "pakt/identity"
	tokenAudience = "pakt.api"
)

// WalletClaims binds a bearer token to one wallet address.
type WalletClaims struct {
	jwt.RegisteredClaims
	Wallet Address `json:"wallet"`
}

// TokenManager issues and validates wallet bearer tokens.
type TokenManager struct {
	keySet KeySet
	now    func() time.Time
}

func NewTokenManager(ks KeySet) *TokenManager {
	return &TokenManager{keySet: ks, now: time.Now}
}

// Issue mints a token for wallet valid for ttl.
func (tm *TokenManager) Issue(ctx context.Context, wallet Address, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("identity: token ttl must be positive, got %s", ttl)
	}
	now := tm.now().UTC()
	claims := WalletClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   wallet.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
		},
		Wallet: wallet,
	}
	return tm.keySet.Sign(ctx, claims)
}

// Validate parses a token and returns its claims. The subject and wallet
// claim must agree.
func (tm *TokenManager) Validate(tokenString string) (*WalletClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &WalletClaims{}, tm.keySet.KeyFunc(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*WalletClaims)
	if !ok || !tok.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.Subject != claims.Wallet.Hex() {
		return nil, errors.New("identity: token subject does not match wallet")
	}
	return claims, nil
}
