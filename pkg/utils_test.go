package pkg

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in     string
		places int32
		want   string
	}{
		{"0", 2, "0.00"},
		{"12", 2, "12.00"},
		{"999.995", 2, "1,000.00"},
		{"12345.678", 2, "12,345.68"},
		{"1234567", 0, "1,234,567"},
		{"-4000.5", 2, "-4,000.50"},
		{"50", 6, "50.000000"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatAmount(decimal.RequireFromString(tc.in), tc.places), tc.in)
	}
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount(" 10.25 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("10.25")))

	_, err = ParseAmount("")
	assert.Error(t, err)

	_, err = ParseAmount("ten")
	assert.Error(t, err)
}

func TestParseAmountBounds(t *testing.T) {
	for _, in := range []string{
		"1e999999999",
		"1e31",
		"-1e31",
		"1e-999999999",
		"0.0000000000000000001",
		"1234567890123456789012345678901",
		"12345678901234567890.12345678901234567890123",
		"1" + strings.Repeat("0", MaxAmountLength),
	} {
		_, err := ParseAmount(in)
		assert.Error(t, err, in)
	}

	for _, in := range []string{"1e29", "0.000000000000000001", "0e999999999", "123456789012345678901234567890", "1e-18"} {
		_, err := ParseAmount(in)
		assert.NoError(t, err, in)
	}
}

func TestValidateAmountAndCurrency(t *testing.T) {
	assert.NoError(t, ValidateAmount(decimal.NewFromInt(1)))
	assert.ErrorIs(t, ValidateAmount(decimal.Zero), ErrNonPositiveAmount)
	assert.Error(t, ValidateAmount(decimal.NewFromInt(-5)))
	assert.Equal(t, "BOB", NormalizeCurrency(" bob "))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.50s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2.00m", FormatDuration(2*time.Minute))
	assert.Equal(t, "1.50h", FormatDuration(90*time.Minute))
}
