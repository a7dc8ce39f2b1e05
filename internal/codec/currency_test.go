package codec

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	for _, code := range []string{"BOB", "ARS", "MXN", "COP", strings.Repeat("X", Width)} {
		b, err := EncodeCurrency(code)
		require.NoError(t, err)
		assert.Equal(t, code, DecodeCurrency(b))
	}
}

func TestEncodeHexMatchesPadding(t *testing.T) {
	h, err := EncodeCurrencyHex("BOB")
	require.NoError(t, err)
	assert.Equal(t, "0x424f42"+strings.Repeat("0", 58), h)

	code, err := DecodeCurrencyHex(h)
	require.NoError(t, err)
	assert.Equal(t, "BOB", code)
}

func TestEncodeRejects(t *testing.T) {
	_, err := EncodeCurrency("")
	assert.True(t, errors.Is(err, ErrEmpty))

	_, err = EncodeCurrency("Bs€")
	assert.True(t, errors.Is(err, ErrNonASCII))

	_, err = EncodeCurrency("México")
	assert.True(t, errors.Is(err, ErrNonASCII))

	_, err = EncodeCurrency(strings.Repeat("A", Width+1))
	assert.True(t, errors.Is(err, ErrTooLong))
}

func TestDecodeHexWrongWidth(t *testing.T) {
	_, err := DecodeCurrencyHex("0x424f42")
	assert.Error(t, err)
}
