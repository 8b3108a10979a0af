package sanitize

import "regexp"

// Field names used across the storefront forms. The rule table is keyed
// by these; unknown fields fall back to DefaultRule.
const (
	FieldBadge       = "badge"
	FieldTitle       = "title"
	FieldSubtitle    = "subtitle"
	FieldDescription = "description"
	FieldReview      = "review"
	FieldFullName    = "full_name"
	FieldEmail       = "email"
	FieldColor       = "color"
	FieldSize        = "size"
	FieldSearch      = "search"
)

// FieldRule bounds and classifies a single free-text field.
type FieldRule struct {
	// MaxLength is the truncation bound applied before any other step.
	MaxLength int

	// RichText marks fields allowed to keep a small fixed tag set.
	// All other fields have markup stripped entirely.
	RichText bool
}

// DefaultRule applies to fields with no explicit entry.
var DefaultRule = FieldRule{MaxLength: 1000}

// DefaultRules is the storefront's field rule table.
func DefaultRules() map[string]FieldRule {
	return map[string]FieldRule{
		FieldBadge:       {MaxLength: 50},
		FieldTitle:       {MaxLength: 120},
		FieldSubtitle:    {MaxLength: 200},
		FieldDescription: {MaxLength: 5000, RichText: true},
		FieldReview:      {MaxLength: 2000, RichText: true},
		FieldFullName:    {MaxLength: 100},
		FieldEmail:       {MaxLength: 254},
		FieldColor:       {MaxLength: 30},
		FieldSize:        {MaxLength: 20},
		FieldSearch:      {MaxLength: 200},
	}
}

// allowedRichTags is the fixed tag set kept in rich-text fields.
// Attributes are never kept; a tag carrying attributes is removed.
var allowedRichTags = map[string]bool{
	"b": true, "i": true, "em": true, "strong": true, "u": true,
	"p": true, "br": true, "ul": true, "ol": true, "li": true,
}

// dangerousPatterns match constructs that must never reach storage as
// markup: script tags, inline event handlers, script-scheme URIs, and
// CSS injection vectors. A match triggers quote/bracket stripping, not
// rejection.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<\s*script\b`),
	regexp.MustCompile(`(?is)<\s*/\s*script\s*>`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)data\s*:`),
	regexp.MustCompile(`(?i)vbscript\s*:`),
	regexp.MustCompile(`(?i)expression\s*\(`),
	regexp.MustCompile(`(?i)url\s*\(`),
	regexp.MustCompile(`(?i)@import\b`),
}

// tagPattern matches any markup tag, capturing the closing slash and
// the tag name so the rich-text filter can consult the allow-list.
var tagPattern = regexp.MustCompile(`(?s)<\s*(/?)\s*([a-zA-Z][a-zA-Z0-9]*)\s*(/?)\s*>`)

// anyTagPattern matches any tag-like run for full markup stripping.
var anyTagPattern = regexp.MustCompile(`(?s)<[^>]*>`)
