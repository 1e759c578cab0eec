package tools

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
)

// Provider constraint: every externally visible tool identifier must match
// this pattern regardless of how the capability declared it.
var sanitizedNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var whitespaceRun = regexp.MustCompile(`\s+`)

const (
	maxToolNameLength  = 64
	fallbackNamePrefix = "tool_"

	// fallbackContextChars bounds how much of the context identifier is
	// folded into a synthesized name.
	fallbackContextChars = 16
)

// SanitizeName normalizes a declared schema name or XML tag into a
// provider-safe identifier: trim, collapse whitespace to underscores,
// strip everything outside [A-Za-z0-9_-], truncate to 64 characters.
// If nothing survives, a fallback name is synthesized from the context
// identifier plus a short random suffix.
//
// The sanitization rule is deterministic; fallback synthesis is not, and
// collisions between generated names are resolved by the registry.
// generated reports that nothing of the declared name survived and a
// fallback was synthesized.
func SanitizeName(name, contextID string) (sanitized string, replaced, generated bool) {
	cleaned := strings.TrimSpace(name)
	cleaned = whitespaceRun.ReplaceAllString(cleaned, "_")
	cleaned = strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return -1
	}, cleaned)

	if cleaned == "" {
		return fallbackName(contextID), true, true
	}
	if len(cleaned) > maxToolNameLength {
		cleaned = cleaned[:maxToolNameLength]
	}
	return cleaned, cleaned != name, false
}

// fallbackName synthesizes a conforming name from a fixed prefix, a
// truncated context identifier, and a short random suffix.
func fallbackName(contextID string) string {
	ctx := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return -1
	}, contextID)
	if len(ctx) > fallbackContextChars {
		ctx = ctx[:fallbackContextChars]
	}
	name := fallbackNamePrefix
	if ctx != "" && !strings.HasPrefix(ctx, fallbackNamePrefix) {
		name += ctx + "_"
	}
	name += randomSuffix()
	if len(name) > maxToolNameLength {
		name = name[:maxToolNameLength]
	}
	return name
}

func randomSuffix() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is effectively unreachable; keep the name
		// conforming anyway.
		return "00000000"
	}
	return hex.EncodeToString(buf[:])
}
