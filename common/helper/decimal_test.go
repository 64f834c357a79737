package helper

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseMoney(t *testing.T) {
	ok := map[string]string{"0": "0", "5": "5", "12.5": "12.5", " 7.25 ": "7.25"}
	for in, want := range ok {
		d, err := ParseMoney(in)
		if assert.NoError(t, err, in) {
			assert.True(t, d.Equal(decimal.RequireFromString(want)), in)
		}
	}
	for _, in := range []string{"", "-1", "01", "1.234", "abc", "1e3"} {
		_, err := ParseMoney(in)
		assert.ErrorIs(t, err, ErrMoneyFormat, in)
	}
}

func TestParseSignedMoney(t *testing.T) {
	d, err := ParseSignedMoney("-12.50")
	assert.NoError(t, err)
	assert.Equal(t, "-12.50", TrimDecimal(d))

	d, err = ParseSignedMoney("3")
	assert.NoError(t, err)
	assert.Equal(t, "3.00", TrimDecimal(d))

	_, err = ParseSignedMoney("--1")
	assert.ErrorIs(t, err, ErrMoneyFormat)
}
