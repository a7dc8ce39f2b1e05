package pkg

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NormalizeCurrency приводит код валюты к верхнему регистру
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// Пределы суммы из запроса. Проверяются до любой арифметики: показатель
// вида 1e999999999 иначе раздувает big.Int при масштабировании.
const (
	MaxAmountLength  = 64 // символов в строке
	MaxAmountDigits  = 40 // значащих цифр
	MaxAmountInteger = 30 // цифр в целой части
	MaxAmountScale   = 18 // знаков после запятой
)

// ParseAmount разбирает десятичную сумму из строки запроса
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	if len(s) > MaxAmountLength {
		return decimal.Zero, fmt.Errorf("amount is longer than %d characters", MaxAmountLength)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	digits, exp := d.NumDigits(), int(d.Exponent())
	switch {
	case digits > MaxAmountDigits:
		return decimal.Zero, fmt.Errorf("amount %q has more than %d digits", s, MaxAmountDigits)
	case exp < -MaxAmountScale:
		return decimal.Zero, fmt.Errorf("amount %q has more than %d decimal places", s, MaxAmountScale)
	case d.Sign() != 0 && digits+exp > MaxAmountInteger:
		return decimal.Zero, fmt.Errorf("amount %q is too large", s)
	}
	return d, nil
}

// ErrNonPositiveAmount сумма равна нулю или отрицательна
var ErrNonPositiveAmount = errors.New("amount must be positive")

// ValidateAmount проверяет, что сумма положительная
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	return nil
}

// FormatAmount форматирует сумму с разделителем тысяч и фиксированным
// числом знаков: 12345.678 -> "12,345.68"
func FormatAmount(value decimal.Decimal, places int32) string {
	fixed := value.StringFixed(places)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}

	whole, frac, hasFrac := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}

// FormatDuration форматирует duration в удобочитаемый формат
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.2fm", d.Minutes())
	}
	return fmt.Sprintf("%.2fh", d.Hours())
}
