// Package symbol handles perp market symbol parsing and validation.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches: {BASE}-PERP
// Example: SOL-PERP
var symbolRegex = regexp.MustCompile(`^([A-Z0-9]{1,10})-PERP$`)

// ErrInvalidSymbol is returned for symbols that do not follow the
// {BASE}-PERP convention.
var ErrInvalidSymbol = errors.New("symbol: invalid market symbol")

// Symbol is a parsed perp market symbol.
type Symbol struct {
	Full string `json:"symbol"`
	Base string `json:"base"`
}

// Parse parses and validates a market symbol string.
// Format: {BASE}-PERP with an uppercase alphanumeric base asset.
func Parse(s string) (*Symbol, error) {
	matches := symbolRegex.FindStringSubmatch(s)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {BASE}-PERP)", ErrInvalidSymbol, s)
	}
	return &Symbol{Full: s, Base: matches[1]}, nil
}

// Normalize upper-cases and trims a raw symbol before parsing, so
// "sol-perp " resolves to SOL-PERP.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
