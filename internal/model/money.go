package model

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round2 округляет значение до центов по правилу half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ToCents переводит денежную сумму в целые центы с округлением half-up.
func ToCents(d decimal.Decimal) int64 {
	return d.Round(2).Mul(hundred).IntPart()
}

// FromCents переводит центы в десятичную сумму.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// CentsToFloat используется только на границе JSON-ответов.
func CentsToFloat(cents int64) float64 {
	return FromCents(cents).InexactFloat64()
}

// CentsFromFloat переводит сумму из запроса клиента в центы.
func CentsFromFloat(v float64) int64 {
	return ToCents(decimal.NewFromFloat(v))
}
