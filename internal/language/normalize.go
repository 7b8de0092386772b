package language

import "strings"

// NormalizeTag lowercases a language tag and joins its subtags with "-".
// Blank values and subtags with characters other than ASCII letters or digits
// yield "". The primary subtag must be alphabetic.
func NormalizeTag(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}

	parts := strings.FieldsFunc(trimmed, func(r rune) bool { return r == '-' || r == '_' })
	if len(parts) == 0 || !isSubtag(parts[0], false) {
		return ""
	}
	for _, part := range parts[1:] {
		if !isSubtag(part, true) {
			return ""
		}
	}
	return strings.Join(parts, "-")
}

// NormalizeCode returns the primary subtag, "pt" for "pt-BR".
func NormalizeCode(raw string) string {
	tag := NormalizeTag(raw)
	if primary, _, found := strings.Cut(tag, "-"); found {
		return primary
	}
	return tag
}

func isSubtag(value string, allowDigits bool) bool {
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
		case allowDigits && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return value != ""
}
