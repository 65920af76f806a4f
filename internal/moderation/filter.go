// Package moderation provides the relay content filter and the report-driven
// ban subsystem. The filter screens outbound messages for link-like content
// before they reach the partner; the ban service turns accumulated reports
// into time-boxed suspensions.
package moderation

import (
	"regexp"
	"strings"
)

// Compiled patterns for the link filter. Compiled once at package init and
// reused for every call, safe for concurrent use.
var (
	// urlPattern matches explicit URLs, www. hosts, and bare domains with
	// common TLDs. The bare-domain variant requires a trailing "/" to avoid
	// false positives on version strings like "v2.0".
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	// phonePattern matches common phone number formats, anchored to
	// whitespace boundaries so short numbers and decimals don't trip it.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

// FilterResult is the outcome of a content check.
type FilterResult struct {
	Blocked bool
	Reason  string // "link", "phone"
	Term    string // the offending fragment, for logging
}

// Filter screens message text before relay. The zero value is not usable;
// create one with NewFilter.
type Filter struct {
	checks []filterCheck
}

type filterCheck struct {
	reason string
	match  func(string) (string, bool)
}

// NewFilter creates the relay content filter with the standard link and
// phone checks.
func NewFilter() *Filter {
	return &Filter{
		checks: []filterCheck{
			{reason: "link", match: matchLink},
			{reason: "phone", match: matchPhone},
		},
	}
}

// Check runs every check against text and returns a blocking result on the
// first match. Order matters: the first match wins.
func (f *Filter) Check(text string) FilterResult {
	for _, c := range f.checks {
		if term, ok := c.match(text); ok {
			return FilterResult{Blocked: true, Reason: c.reason, Term: term}
		}
	}
	return FilterResult{}
}

// matchLink flags anything URL-like. The keyword check runs first and
// catches "http" anywhere in the text; pasted links virtually always keep
// that substring even when the rest is mangled.
func matchLink(text string) (string, bool) {
	lower := strings.ToLower(text)
	if idx := strings.Index(lower, "http"); idx >= 0 {
		end := idx + 4
		if end > len(text) {
			end = len(text)
		}
		return text[idx:end], true
	}
	if m := urlPattern.FindString(text); m != "" {
		return m, true
	}
	return "", false
}

func matchPhone(text string) (string, bool) {
	if m := phonePattern.FindString(text); m != "" {
		return strings.TrimSpace(m), true
	}
	return "", false
}
