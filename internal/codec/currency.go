// Package codec кодирует коды валют в bytes32, который ожидают
// функции borrow/repay контракта.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Width ширина кодированного значения в байтах
const Width = 32

var (
	// ErrEmpty пустой код валюты
	ErrEmpty = errors.New("currency code is empty")
	// ErrNonASCII код содержит символы за пределами ASCII
	ErrNonASCII = errors.New("currency code must be ASCII")
	// ErrTooLong код не помещается в 32 байта
	ErrTooLong = errors.New("currency code exceeds 32 bytes")
)

// EncodeCurrency кодирует код валюты: один байт на символ, ASCII,
// дополнение нулями справа. Многобайтовые символы отклоняются.
func EncodeCurrency(code string) ([Width]byte, error) {
	var out [Width]byte

	code = strings.TrimSpace(code)
	if code == "" {
		return out, ErrEmpty
	}
	if len(code) > Width {
		return out, fmt.Errorf("%q: %w", code, ErrTooLong)
	}
	for i := 0; i < len(code); i++ {
		// 0x00 зарезервирован как терминатор
		if code[i] == 0 || code[i] > 0x7f {
			return out, fmt.Errorf("%q: %w", code, ErrNonASCII)
		}
	}

	copy(out[:], code)
	return out, nil
}

// DecodeCurrency обратная операция: читает байты до первого нуля
func DecodeCurrency(b [Width]byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c == 0 {
			break
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// EncodeCurrencyHex кодирует код в hex-строку вида 0x...
func EncodeCurrencyHex(code string) (string, error) {
	b, err := EncodeCurrency(code)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(b[:]), nil
}

// DecodeCurrencyHex декодирует hex-строку bytes32
func DecodeCurrencyHex(s string) (string, error) {
	raw, err := hexutil.Decode(s)
	if err != nil {
		return "", fmt.Errorf("failed to decode currency: %w", err)
	}
	if len(raw) != Width {
		return "", fmt.Errorf("currency must be %d bytes, got %d", Width, len(raw))
	}
	var b [Width]byte
	copy(b[:], raw)
	return DecodeCurrency(b), nil
}
