package entity

import (
	"fmt"
	"math"
	"strconv"
)

// Price is a decimal amount with its currency code, as supplied by the host
// commerce framework (e.g. "49.00" EUR).
type Price struct {
	Number       string `json:"number" bson:"number"`
	CurrencyCode string `json:"currency_code" bson:"currency_code"`
}

// MinorUnits converts the decimal amount into integer minor units as required
// by the gateway API: the value is rounded to 2 decimal places first, then
// scaled by 100. Fractional-cent currencies are not supported.
func (p Price) MinorUnits() (int64, error) {
	value, err := strconv.ParseFloat(p.Number, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %v", p.Number, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative amount %q", p.Number)
	}
	return int64(math.Round(value * 100)), nil
}
