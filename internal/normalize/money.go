// Package normalize содержит чистые функции нормализации полей экспорта:
// денежные суммы, количества, адреса, имена, значения по умолчанию.
package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount возвращается, если строку не удалось разобрать как сумму.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidQuantity возвращается для нечислового или неположительного количества.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

var hundred = decimal.NewFromInt(100)

// ParseMoney разбирает сумму вида "12,34 EUR" или "12.34 EUR" в десятичное число с двумя знаками.
// Если встречаются и точка, и запятая, десятичным разделителем считается последний символ.
func ParseMoney(s string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-', r == '+':
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	sep := strings.LastIndexAny(cleaned, ".,")
	if sep >= 0 {
		intPart := strings.NewReplacer(".", "", ",", "").Replace(cleaned[:sep])
		cleaned = intPart + "." + cleaned[sep+1:]
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d.Round(2), nil
}

// ParseQuantity разбирает положительное целое количество.
func ParseQuantity(s string) (int, error) {
	q, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || q <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	return q, nil
}

// NetAmount выделяет сумму без налога: gross / (1 + rate/100). Результат не округляется,
// чтобы суммирование по позициям не накапливало ошибку.
func NetAmount(gross, taxRate decimal.Decimal) decimal.Decimal {
	return gross.Div(decimal.NewFromInt(1).Add(taxRate.Div(hundred)))
}
