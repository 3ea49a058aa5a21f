package utils

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	urlPattern       = regexp.MustCompile(`https?://[^\s<>"'\])]+`)
	replyPrefix      = regexp.MustCompile(`^(?:(?:re|fw|fwd|aw|tr)\s*(?:\[\d+\])?\s*:\s*)+`)
	trailingURLPunct = ".,;:!?*"
	skipLinkMarkers  = []string{"unsubscribe", "optout", "opt-out", "preferences", "manage-subscription", "mailto:"}
)

// FoldText applies compatibility normalisation, strips combining marks,
// case-folds and collapses whitespace. Transformers are stateful, so they
// are built per call.
func FoldText(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFKC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = cases.Fold().String(folded)
	return strings.Join(strings.Fields(folded), " ")
}

// NormalizeSubject folds the subject and drops reply/forward prefixes
func NormalizeSubject(subject string) string {
	s := FoldText(subject)
	s = replyPrefix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ExtractLinks returns every http(s) URL in text, in order of appearance
func ExtractLinks(text string) []string {
	raw := urlPattern.FindAllString(text, -1)
	links := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, trailingURLPunct)
		if l != "" {
			links = append(links, l)
		}
	}
	return links
}

// FirstEntryLink returns the first link that is not an unsubscribe or
// preference-centre link
func FirstEntryLink(text string) string {
	for _, l := range ExtractLinks(text) {
		lower := strings.ToLower(l)
		skip := false
		for _, m := range skipLinkMarkers {
			if strings.Contains(lower, m) {
				skip = true
				break
			}
		}
		if !skip {
			return l
		}
	}
	return ""
}

// StripLinkQueries rewrites every URL in text to host+path so tracking
// parameters do not change the content
func StripLinkQueries(text string) string {
	return urlPattern.ReplaceAllStringFunc(text, func(raw string) string {
		u, err := url.Parse(strings.TrimRight(raw, trailingURLPunct))
		if err != nil {
			return raw
		}
		return strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/")
	})
}

// ContentTokens splits folded text into word tokens, dropping tokens that
// are only digits (dates, order numbers, tracking ids)
func ContentTokens(text string) []string {
	folded := FoldText(StripLinkQueries(text))
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '/'
	})
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, "./")
		if w == "" || isDigits(w) {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
