package firestore

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is stored as decimal strings so Firestore never rounds through float64.

func encodeDecimal(value decimal.Decimal) string {
	return value.String()
}

func decodeDecimal(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode %s: %w", field, err)
	}
	return value, nil
}

func decodeDecimalPtr(field string, raw *string) (*decimal.Decimal, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	value, err := decodeDecimal(field, *raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
