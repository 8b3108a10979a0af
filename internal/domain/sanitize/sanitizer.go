// Package sanitize provides the input sanitization pipeline applied to
// free text before it is persisted or rendered as trusted content.
//
// The pipeline never fails: malformed input is degraded into safe text
// of bounded length rather than rejected, so a hostile description can
// never abort the operation that carried it.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sanitizer cleans free-text input according to a per-field rule table.
// Stateless once constructed; safe for concurrent use.
type Sanitizer struct {
	rules map[string]FieldRule
}

// New creates a Sanitizer with the storefront's default rule table.
func New() *Sanitizer {
	return NewWithRules(DefaultRules())
}

// NewWithRules creates a Sanitizer with a custom rule table.
// Fields absent from the table get DefaultRule.
func NewWithRules(rules map[string]FieldRule) *Sanitizer {
	if rules == nil {
		rules = map[string]FieldRule{}
	}
	return &Sanitizer{rules: rules}
}

// Rule returns the rule for a field, falling back to DefaultRule.
func (s *Sanitizer) Rule(field string) FieldRule {
	if r, ok := s.rules[field]; ok {
		return r
	}
	return DefaultRule
}

// Clean runs the full pipeline for the named field:
//
//  1. Truncate to the field's maximum length.
//  2. Strip non-printable control characters, keeping normal whitespace.
//  3. On any dangerous-construct match, strip angle brackets and quotes.
//  4. Filter markup: allow-listed bare tags for rich-text fields,
//     everything stripped otherwise.
//  5. Trim leading and trailing whitespace only. Internal whitespace is
//     preserved; titles and descriptions depend on it for display.
//
// Clean never returns an error.
func (s *Sanitizer) Clean(field, input string) string {
	rule := s.Rule(field)

	out := truncate(input, rule.MaxLength)
	out = stripControl(out)
	if Degrades(out) {
		out = stripDangerous(out)
	}
	if rule.RichText {
		out = filterRichText(out)
	} else {
		out = anyTagPattern.ReplaceAllString(out, "")
	}
	return strings.TrimSpace(out)
}

// Degrades reports whether the input matches a dangerous construct and
// would therefore be degraded by Clean. Exposed so callers can count
// degradations for anomaly monitoring.
func Degrades(input string) bool {
	for _, p := range dangerousPatterns {
		if p.MatchString(input) {
			return true
		}
	}
	return false
}

// truncate bounds the input to max bytes without splitting a rune.
func truncate(in string, max int) string {
	if max <= 0 {
		max = DefaultRule.MaxLength
	}
	if len(in) <= max {
		return in
	}
	cut := in[:max]
	if utf8.ValidString(cut) {
		return cut
	}
	// Back off the partial UTF-8 sequence at the cut point.
	for len(cut) > 0 && !utf8.RuneStart(cut[len(cut)-1]) {
		cut = cut[:len(cut)-1]
	}
	if len(cut) > 0 && cut[len(cut)-1] >= utf8.RuneSelf {
		// The final byte starts a multi-byte rune that was split.
		cut = cut[:len(cut)-1]
	}
	return cut
}

// stripControl removes non-printable control characters. Space, tab,
// newline, and carriage return survive; everything else in the control
// ranges is dropped.
func stripControl(in string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, in)
}

// stripDangerous removes angle brackets and quote characters. This is
// the graceful degradation path: the text survives, the markup doesn't.
func stripDangerous(in string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '"', '\'', '`':
			return -1
		}
		return r
	}, in)
}

// filterRichText keeps allow-listed bare tags and removes all others.
// A tag carrying attributes is removed even if its name is allowed.
func filterRichText(in string) string {
	return anyTagPattern.ReplaceAllStringFunc(in, func(tag string) string {
		m := tagPattern.FindStringSubmatch(tag)
		if m == nil {
			return "" // Attributes or malformed: drop the tag.
		}
		name := strings.ToLower(m[2])
		if !allowedRichTags[name] {
			return ""
		}
		// Normalize: "</ B >" -> "</b>", "<br />" -> "<br/>"
		var b strings.Builder
		b.WriteByte('<')
		b.WriteString(m[1])
		b.WriteString(name)
		b.WriteString(m[3])
		b.WriteByte('>')
		return b.String()
	})
}
