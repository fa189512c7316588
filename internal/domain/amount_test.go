package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountArithmetic(t *testing.T) {
	_, ok := MaxAmount().Add(NewAmount(1))
	assert.False(t, ok)

	_, ok = NewAmount(1).Sub(NewAmount(2))
	assert.False(t, ok)

	share, rem := NewAmount(40).DivMod(3)
	assert.Equal(t, NewAmount(13), share)
	assert.Equal(t, NewAmount(1), rem)

	_, ok = MaxAmount().MulUint64(2)
	assert.False(t, ok)
}

func TestParseTokens(t *testing.T) {
	a, err := ParseTokens("12.5")
	require.NoError(t, err)
	assert.Equal(t, "12500000000000000000", a.String())
	assert.Equal(t, "12.5", a.Display())

	_, err = ParseTokens("0.0000000000000000001")
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = ParseTokens("-1")
	assert.ErrorIs(t, err, ErrInvalidParameters)

	assert.Equal(t, Tokens(3), mustParseTokens(t, "3"))
}

func mustParseTokens(t *testing.T, s string) Amount {
	t.Helper()
	a, err := ParseTokens(s)
	require.NoError(t, err)
	return a
}

func TestAmountJSON(t *testing.T) {
	type wrap struct {
		Price Amount `json:"price"`
	}
	raw, err := json.Marshal(wrap{Price: MaxAmount()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":"115792089237316195423570985008687907853269984665640564039457584007913129639935"}`, string(raw))

	var back wrap
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Price.IsMax())

	require.NoError(t, json.Unmarshal([]byte(`{"price":42}`), &back))
	assert.Equal(t, NewAmount(42), back.Price)

	err = json.Unmarshal([]byte(`{"price":"4x"}`), &back)
	assert.Error(t, err)
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("ledger: purchase_ticket: %w", fmt.Errorf("%w: project 3", ErrSoldOut))
	assert.Equal(t, KindStateConflict, KindOf(err))
	assert.Equal(t, "SoldOut", CodeOf(err))
	assert.True(t, errors.Is(err, ErrSoldOut))

	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "Internal", CodeOf(errors.New("boom")))
}
