package utils

import (
	"strings"

	"github.com/turtacn/keytrust/pkg/constants"
)

// ExtractBearerToken returns the credential carried by an Authorization header
// value. The scheme match is case-insensitive.
func ExtractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(constants.BearerPrefix) ||
		!strings.EqualFold(header[:len(constants.BearerPrefix)], constants.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(constants.BearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
