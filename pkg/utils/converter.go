// Package utils provides small helpers shared by the keytrust packages.
package utils

import (
	"strings"
)

// ================================================================================
// Authority Conversion
// ================================================================================

// ParseAuthorities splits a space or comma delimited authority claim into a
// de-duplicated list, preserving first-seen order.
func ParseAuthorities(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
	return RemoveDuplicates(fields)
}

// JoinAuthorities renders authorities in the space-delimited claim form.
func JoinAuthorities(authorities []string) string {
	cleaned := make([]string, 0, len(authorities))
	for _, a := range authorities {
		if a = strings.TrimSpace(a); a != "" {
			cleaned = append(cleaned, a)
		}
	}
	return strings.Join(RemoveDuplicates(cleaned), " ")
}

// ================================================================================
// Masking
// ================================================================================

// MaskToken masks a token, showing only first 8 characters
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + strings.Repeat("*", len(token)-8)
}

// ================================================================================
// Slice Helpers
// ================================================================================

// RemoveDuplicates removes duplicate strings from slice
func RemoveDuplicates(slice []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(slice))

	for _, item := range slice {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}
	return result
}

// Contains reports whether slice contains value
func Contains(slice []string, value string) bool {
	for _, item := range slice {
		if item == value {
			return true
		}
	}
	return false
}
