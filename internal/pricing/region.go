package pricing

import (
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeRegion folds case and collapses whitespace so "Tamil  Nadu" and "tamil nadu" compare equal.
func NormalizeRegion(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	// Casers carry state and must not be shared between goroutines.
	return cases.Fold().String(strings.Join(fields, " "))
}
