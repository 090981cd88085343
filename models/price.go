package models

import (
	"strconv"
	"strings"
	"unicode"
)

// Price wraps the display string scraped from the site. Sellers format
// prices inconsistently ("€12,500", "12.500 EUR", "price on request"), so
// the raw string stays authoritative and the euro amount is derived on
// demand and cached.
type Price struct {
	display string
	amount  int
	ok      bool
	parsed  bool
}

func NewPrice(display string) Price {
	return Price{display: strings.TrimSpace(display)}
}

func (p Price) Display() string { return p.display }

func (p Price) IsZero() bool { return p.display == "" }

// Equal compares display strings exactly. Change detection never compares
// parsed amounts: a reformatted price is still a change worth recording.
func (p Price) Equal(other Price) bool {
	return p.display == other.display
}

// Amount returns the price in whole euros. ok is false when the string
// carries no usable digits; callers exclude those listings from numeric
// analysis rather than defaulting them to zero.
func (p *Price) Amount() (amount int, ok bool) {
	if !p.parsed {
		p.amount, p.ok = parseEuros(p.display)
		p.parsed = true
	}
	return p.amount, p.ok
}

// DropBetween returns how many euros the price fell from prev to cur.
// ok is false when either side is unparseable or the price did not drop.
func DropBetween(prev, cur Price) (drop int, ok bool) {
	prevAmount, prevOK := prev.Amount()
	curAmount, curOK := cur.Amount()
	if !prevOK || !curOK || prevAmount <= curAmount {
		return 0, false
	}
	return prevAmount - curAmount, true
}

// parseEuros strips currency symbols and thousands separators and reads the
// remaining digits as one integer, matching how the site formats amounts.
func parseEuros(s string) (int, bool) {
	var digits strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 || digits.Len() > 12 {
		return 0, false
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0, false
	}
	return n, true
}
