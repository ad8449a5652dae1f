package finance

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWholeAndFormat(t *testing.T) {
	v := Whole(300, 18)
	assert.Equal(t, "300000000000000000000", v.String())
	assert.Equal(t, "300", FormatTokens(v, 18))
	assert.Equal(t, "0.1", FormatTokens(big.NewInt(100000000000000000), 18))
	assert.Equal(t, "1.05", FormatTokens(big.NewInt(105), 2))
}

func TestParseTokens(t *testing.T) {
	v, err := ParseTokens("12.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "12500000000000000000", v.String())

	v, err = ParseTokens(".25", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(25), v.Int64())

	_, err = ParseTokens("1.001", 2)
	assert.ErrorIs(t, err, ErrAmountSyntax)
	_, err = ParseTokens("-1", 18)
	assert.ErrorIs(t, err, ErrNegativeAmount)
	_, err = ParseTokens("1e5", 18)
	assert.ErrorIs(t, err, ErrAmountSyntax)
}

func TestParseBaseUnits(t *testing.T) {
	v, err := ParseBaseUnits(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int64())
	_, err = ParseBaseUnits("-1")
	assert.ErrorIs(t, err, ErrNegativeAmount)
	_, err = ParseBaseUnits("0x10")
	assert.ErrorIs(t, err, ErrAmountSyntax)
}

func TestMulDivAndMin(t *testing.T) {
	interest := MulDiv(Whole(100, 18), 10, 1000)
	assert.Equal(t, Whole(1, 18), interest)
	assert.Equal(t, int64(0), MulDiv(big.NewInt(99), 1, 1000).Int64())

	assert.Equal(t, int64(3), Min(big.NewInt(3), big.NewInt(7)).Int64())
	assert.Equal(t, int64(0), Min(nil, big.NewInt(7)).Int64())
}
