package rates

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()

	def := table.Default()
	assert.Equal(t, "BOB", def.Code)
	assert.Equal(t, "Bs", def.Symbol)
	assert.True(t, def.Rate.Equal(decimal.NewFromInt(12)))

	assert.Len(t, table.All(), 4)

	c, err := table.LookupCode("cop")
	require.NoError(t, err)
	assert.Equal(t, 4, c.ID)
}

func TestLookupUnknown(t *testing.T) {
	table := DefaultTable()

	_, err := table.Lookup(99)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = table.LookupCode("EUR")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewTableValidation(t *testing.T) {
	t.Run("non-positive rate", func(t *testing.T) {
		_, err := NewTable([]Currency{{ID: 1, Code: "BOB", Rate: decimal.Zero}}, 1)
		assert.Error(t, err)
	})

	t.Run("default must resolve", func(t *testing.T) {
		_, err := NewTable([]Currency{{ID: 1, Code: "BOB", Rate: decimal.NewFromInt(12)}}, 2)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("duplicate code", func(t *testing.T) {
		_, err := NewTable([]Currency{
			{ID: 1, Code: "BOB", Rate: decimal.NewFromInt(12)},
			{ID: 2, Code: "bob", Rate: decimal.NewFromInt(13)},
		}, 1)
		assert.Error(t, err)
	})
}

func TestConversionRoundTrip(t *testing.T) {
	amounts := []string{"0", "0.000001", "1", "50", "123.456789", "1000000"}

	for _, c := range DefaultTable().All() {
		for _, s := range amounts {
			x := decimal.RequireFromString(s)
			back := ConvertToCollateral(ConvertToLocal(x, c), c)
			assert.True(t, back.Sub(x).Abs().LessThan(decimal.New(1, -12)),
				"%s via %s: got %s", s, c.Code, back)
		}
	}
}

func TestConvertToLocal(t *testing.T) {
	bob, err := DefaultTable().LookupCode("BOB")
	require.NoError(t, err)

	assert.Equal(t, "600", ConvertToLocal(decimal.NewFromInt(50), bob).String())
	assert.Equal(t, "25", ConvertToCollateral(decimal.NewFromInt(300), bob).String())
}
