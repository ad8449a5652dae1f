package identity

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress_Checksum(t *testing.T) {
	vectors := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}
	for _, v := range vectors {
		a, err := ParseAddress(v)
		require.NoError(t, err, v)
		assert.Equal(t, v, a.Hex())
	}
}

func TestParseAddress_CaseInsensitiveForms(t *testing.T) {
	lower, err := ParseAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	upper, err := ParseAddress("0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED")
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
}

func TestParseAddress_Rejects(t *testing.T) {
	for _, in := range []string{
		"",
		"0x1234",
		"0xZZaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		"0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", // checksum broken
	} {
		_, err := ParseAddress(in)
		assert.Error(t, err, in)
	}
}

func TestAddress_JSONMapKeys(t *testing.T) {
	a := LabelAddress("alice")
	raw, err := json.Marshal(map[Address]int{a: 1})
	require.NoError(t, err)

	var back map[Address]int
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, 1, back[a])
}

func TestLabelAddress_Deterministic(t *testing.T) {
	assert.Equal(t, LabelAddress("ledger"), LabelAddress("ledger"))
	assert.NotEqual(t, LabelAddress("ledger"), LabelAddress("token"))
	assert.False(t, LabelAddress("ledger").IsZero())
	assert.True(t, ZeroAddress.IsZero())
}

func TestParseSourceID(t *testing.T) {
	id, err := ParseSourceID("108233913372384950120")
	require.NoError(t, err)
	assert.Equal(t, "108233913372384950120", id.String())

	_, err = ParseSourceID("0")
	assert.Error(t, err)
	_, err = ParseSourceID("-5")
	assert.Error(t, err)
	_, err = ParseSourceID("abc")
	assert.Error(t, err)
}

func TestTokenManager_RoundTrip(t *testing.T) {
	ks, err := NewEd25519KeySet()
	require.NoError(t, err)
	tm := NewTokenManager(ks)

	wallet := LabelAddress("alice")
	tok, err := tm.Issue(context.Background(), wallet, time.Hour)
	require.NoError(t, err)

	claims, err := tm.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, wallet, claims.Wallet)
	assert.Equal(t, wallet.Hex(), claims.Subject)
}

func TestTokenManager_Expired(t *testing.T) {
	ks, err := NewEd25519KeySet()
	require.NoError(t, err)
	tm := NewTokenManager(ks)

	tok, err := tm.Issue(context.Background(), LabelAddress("alice"), time.Minute)
	require.NoError(t, err)

	tm.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = tm.Validate(tok)
	assert.Error(t, err)
}

func TestKeySet_RotationKeepsOldKeys(t *testing.T) {
	ks, err := NewEd25519KeySet()
	require.NoError(t, err)
	tm := NewTokenManager(ks)

	old, err := tm.Issue(context.Background(), LabelAddress("bob"), time.Hour)
	require.NoError(t, err)
	require.NoError(t, ks.Rotate())

	_, err = tm.Validate(old)
	assert.NoError(t, err)

	for i := 0; i < maxRetainedKeys; i++ {
		require.NoError(t, ks.Rotate())
	}
	_, err = tm.Validate(old)
	assert.Error(t, err, "evicted key must no longer verify")
}

func TestSeededKeySet_SharedAcrossInstances(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	a, err := NewSeededKeySet(seed)
	require.NoError(t, err)
	b, err := NewSeededKeySet(seed)
	require.NoError(t, err)
	assert.Equal(t, a.CurrentKID(), b.CurrentKID())

	tok, err := NewTokenManager(a).Issue(context.Background(), LabelAddress("carol"), time.Hour)
	require.NoError(t, err)
	_, err = NewTokenManager(b).Validate(tok)
	assert.NoError(t, err)

	_, err = NewSeededKeySet([]byte("short"))
	assert.Error(t, err)
}
