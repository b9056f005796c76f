package attribution

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var coinRegexp = regexp.MustCompile(`^([0-9]+)([a-zA-Z0-9/._:-]+)$`)

// Coin is one parsed "123udenom" token from an event amount attribute.
type Coin struct {
	Amount decimal.Decimal
	Denom  string
}

func (c Coin) String() string {
	return c.Amount.String() + c.Denom
}

// parseCoins splits a comma-joined coin list. Tokens that do not parse are
// skipped rather than failing the whole attribute.
func parseCoins(raw string) []Coin {
	parts := strings.Split(raw, ",")
	coins := make([]Coin, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		matches := coinRegexp.FindStringSubmatch(part)
		if len(matches) != 3 {
			continue
		}

		amount, err := decimal.NewFromString(matches[1])
		if err != nil {
			continue
		}
		coins = append(coins, Coin{Amount: amount, Denom: matches[2]})
	}

	return coins
}

// normalizeAmount re-renders a raw amount attribute through the coin parser so
// callers always see "amountdenom" with a canonical decimal amount. Raw values
// that contain no parseable coin pass through unchanged.
func normalizeAmount(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	coins := parseCoins(raw)
	if len(coins) == 0 {
		return &raw
	}

	rendered := coins[0].String()
	return &rendered
}
