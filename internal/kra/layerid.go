package kra

import (
	"strings"

	"github.com/google/uuid"
)

// NormalizeLayerID canonicalizes a layer identifier. The document XML and the
// host API disagree on braces and letter case; both normalize to the same
// lower-case, brace-free form.
func NormalizeLayerID(id string) string {
	trimmed := strings.TrimSpace(id)
	if parsed, err := uuid.Parse(trimmed); err == nil {
		return parsed.String()
	}
	return strings.ToLower(strings.TrimSpace(strings.Trim(trimmed, "{}")))
}
