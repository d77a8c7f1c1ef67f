package scanner

import (
	"strings"

	"github.com/rewired-gh/gapwatch/internal/models"
)

// excludedDescriptionWords mark instruments that are not common equity.
var excludedDescriptionWords = []string{"WARRANT", "UNIT", "PREF", "PREFERRED"}

// BuildUniverse turns an exchange listing into the ordered scan universe.
// Instruments whose description names a warrant, unit or preferred share are
// dropped. Priority tickers present in the listing come first, in the order
// given; the remaining symbols follow in listing order. No symbol appears twice.
func BuildUniverse(symbols []models.Symbol, priority []string) []string {
	eligible := make(map[string]bool, len(symbols))
	ordered := make([]string, 0, len(symbols))
	for _, s := range symbols {
		sym := strings.TrimSpace(s.Symbol)
		if sym == "" || eligible[sym] || isExcluded(s.Description) {
			continue
		}
		eligible[sym] = true
		ordered = append(ordered, sym)
	}

	universe := make([]string, 0, len(ordered))
	seen := make(map[string]bool, len(ordered))
	for _, p := range priority {
		sym := strings.ToUpper(strings.TrimSpace(p))
		if !eligible[sym] || seen[sym] {
			continue
		}
		seen[sym] = true
		universe = append(universe, sym)
	}
	for _, sym := range ordered {
		if !seen[sym] {
			universe = append(universe, sym)
		}
	}
	return universe
}

func isExcluded(description string) bool {
	d := strings.ToUpper(description)
	for _, w := range excludedDescriptionWords {
		if strings.Contains(d, w) {
			return true
		}
	}
	return false
}
