package domain

import (
	"regexp"
	"strings"
)

type Symbol string

// DefaultSymbols is the tracked set used when SYMBOLS is not configured.
var DefaultSymbols = []Symbol{
	"ATLAS", "POLIS", "RNDR", "PSY", "ORCA",
	"HNT", "SOL", "MNGO", "SBR", "RAY", "BONK",
}

var symbolRe = regexp.MustCompile(`^[A-Z0-9]{1,15}$`)

func ValidateSymbol(s string) bool {
	return symbolRe.MatchString(s)
}

// ParseSymbols splits a comma separated list, upper-cases each entry and drops
// blanks and duplicates. The first invalid entry is reported.
func ParseSymbols(raw string) ([]Symbol, error) {
	var out []Symbol
	seen := map[Symbol]bool{}
	for _, part := range strings.Split(raw, ",") {
		s := strings.ToUpper(strings.TrimSpace(part))
		if s == "" {
			continue
		}
		if !ValidateSymbol(s) {
			return nil, &InvalidSymbolError{Symbol: s}
		}
		if seen[Symbol(s)] {
			continue
		}
		seen[Symbol(s)] = true
		out = append(out, Symbol(s))
	}
	return out, nil
}
