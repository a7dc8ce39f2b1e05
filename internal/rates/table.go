package rates

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotFound возвращается, когда валюта отсутствует в таблице
var ErrNotFound = errors.New("currency not found")

// DefaultCurrencyID идентификатор валюты по умолчанию (Боливия)
const DefaultCurrencyID = 1

// Currency описывает локальную валюту и ее курс к залоговому активу
type Currency struct {
	ID     int             `json:"id"`
	Name   string          `json:"name"`
	Code   string          `json:"code"`
	Rate   decimal.Decimal `json:"rate"` // локальных единиц за 1 единицу залога
	Symbol string          `json:"symbol"`
}

// Table неизменяемая таблица курсов. Строится один раз при старте
// и передается всем потребителям.
type Table struct {
	byID      map[int]Currency
	byCode    map[string]Currency
	ordered   []Currency
	defaultID int
}

// DefaultCurrencies статический набор валют
func DefaultCurrencies() []Currency {
	return []Currency{
		{ID: 1, Name: "Bolivia", Code: "BOB", Rate: decimal.NewFromInt(12), Symbol: "Bs"},
		{ID: 2, Name: "Argentina", Code: "ARS", Rate: decimal.NewFromInt(350), Symbol: "$"},
		{ID: 3, Name: "México", Code: "MXN", Rate: decimal.NewFromInt(17), Symbol: "$"},
		{ID: 4, Name: "Colombia", Code: "COP", Rate: decimal.NewFromInt(4000), Symbol: "$"},
	}
}

// DefaultTable строит таблицу из статического набора
func DefaultTable() *Table {
	t, err := NewTable(DefaultCurrencies(), DefaultCurrencyID)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTable проверяет валюты и строит таблицу
func NewTable(currencies []Currency, defaultID int) (*Table, error) {
	t := &Table{
		byID:      make(map[int]Currency, len(currencies)),
		byCode:    make(map[string]Currency, len(currencies)),
		defaultID: defaultID,
	}

	for _, c := range currencies {
		c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
		if c.Code == "" {
			return nil, fmt.Errorf("currency %d: empty code", c.ID)
		}
		if !c.Rate.IsPositive() {
			return nil, fmt.Errorf("currency %s: rate must be positive, got %s", c.Code, c.Rate)
		}
		if _, exists := t.byID[c.ID]; exists {
			return nil, fmt.Errorf("duplicate currency id %d", c.ID)
		}
		if _, exists := t.byCode[c.Code]; exists {
			return nil, fmt.Errorf("duplicate currency code %s", c.Code)
		}
		t.byID[c.ID] = c
		t.byCode[c.Code] = c
		t.ordered = append(t.ordered, c)
	}

	if _, ok := t.byID[defaultID]; !ok {
		return nil, fmt.Errorf("default currency %d: %w", defaultID, ErrNotFound)
	}

	sort.Slice(t.ordered, func(i, j int) bool { return t.ordered[i].ID < t.ordered[j].ID })
	return t, nil
}

// Lookup возвращает валюту по идентификатору
func (t *Table) Lookup(id int) (Currency, error) {
	c, ok := t.byID[id]
	if !ok {
		return Currency{}, fmt.Errorf("currency id %d: %w", id, ErrNotFound)
	}
	return c, nil
}

// LookupCode возвращает валюту по коду без учета регистра
func (t *Table) LookupCode(code string) (Currency, error) {
	c, ok := t.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Currency{}, fmt.Errorf("currency %q: %w", code, ErrNotFound)
	}
	return c, nil
}

// Default возвращает валюту по умолчанию
func (t *Table) Default() Currency {
	return t.byID[t.defaultID]
}

// All возвращает копию списка валют, упорядоченного по ID
func (t *Table) All() []Currency {
	out := make([]Currency, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// ConvertToLocal переводит сумму в залоговых единицах в локальную валюту
func ConvertToLocal(amount decimal.Decimal, c Currency) decimal.Decimal {
	return amount.Mul(c.Rate)
}

// ConvertToCollateral переводит локальную сумму в залоговые единицы.
// Деление выполняется с точностью decimal.DivisionPrecision знаков,
// округление половины от нуля.
func ConvertToCollateral(amount decimal.Decimal, c Currency) decimal.Decimal {
	return amount.Div(c.Rate)
}
