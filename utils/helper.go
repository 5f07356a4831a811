package utils

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

func DereferencePtr[T any](ptr *T) T {
	var zero T
	if ptr == nil {
		return zero
	}
	return *ptr
}

func UniqueSlice[T comparable](slice []T) []T {
	seen := make(map[T]bool, len(slice))
	result := make([]T, 0, len(slice))
	for _, v := range slice {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}

// DecimalMax returns the larger of a and b.
func DecimalMax(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// NormalizeName lowercases, strips punctuation, and collapses whitespace so
// that "Net  Income:" and "net income" compare equal.
func NormalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// SortedTokens returns the normalized tokens of s in sorted order.
// Token-sort comparison makes "Income, Net" and "Net Income" equivalent.
func SortedTokens(s string) []string {
	tokens := strings.Fields(NormalizeName(s))
	sort.Strings(tokens)
	return tokens
}
