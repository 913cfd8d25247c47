package ssml

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Replacement is one pronunciation rule from a phoneme dictionary: a spoken
// term replaced by either an IPA phoneme tag or a plain-text alias.
type Replacement struct {
	Term  string
	IPA   string
	Alias string
}

// rule is a compiled replacement. The pattern's first alternative matches
// existing <phoneme>/<sub> tags so a term inside an already-substituted span
// is never rewritten twice.
type rule struct {
	re    *regexp.Regexp
	ipa   string
	alias string
}

// Ruleset applies a set of compiled pronunciation rules to escaped text.
type Ruleset struct {
	rules []rule
}

// dictEntry accepts both dictionary value shapes: a bare IPA string or an
// object with explicit ipa/alias fields.
type dictEntry struct {
	IPA   string `json:"ipa"`
	Alias string `json:"alias"`
}

func (e *dictEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.IPA = s
		return nil
	}
	type plain dictEntry
	return json.Unmarshal(data, (*plain)(e))
}

// ParseDictionary decodes a phoneme dictionary document mapping terms to
// pronunciations.
func ParseDictionary(data []byte) ([]Replacement, error) {
	var raw map[string]dictEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ssml: decode phoneme dictionary: %w", err)
	}
	out := make([]Replacement, 0, len(raw))
	for term, entry := range raw {
		if term == "" || (entry.IPA == "" && entry.Alias == "") {
			continue
		}
		out = append(out, Replacement{Term: term, IPA: entry.IPA, Alias: entry.Alias})
	}
	return out, nil
}

// Compile builds a Ruleset from replacements. Later entries override earlier
// ones for the same term; terms are matched longest-first so a multi-word
// entry wins over its substrings.
func Compile(replacements []Replacement) *Ruleset {
	byTerm := make(map[string]Replacement, len(replacements))
	for _, r := range replacements {
		byTerm[strings.ToLower(r.Term)] = r
	}
	merged := make([]Replacement, 0, len(byTerm))
	for _, r := range byTerm {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if len(merged[i].Term) != len(merged[j].Term) {
			return len(merged[i].Term) > len(merged[j].Term)
		}
		return merged[i].Term < merged[j].Term
	})

	rs := &Ruleset{rules: make([]rule, 0, len(merged))}
	for _, r := range merged {
		// No \b around the term: regexp word boundaries are ASCII-only, so
		// Thai and other non-ASCII terms would never match. Whole-word
		// checks happen per rune in [Ruleset.Apply] instead.
		re, err := regexp.Compile(
			`(?is)(<(?:phoneme|sub)\b[^>]*>.*?</(?:phoneme|sub)>)|(` +
				regexp.QuoteMeta(r.Term) + `)`)
		if err != nil {
			continue
		}
		rs.rules = append(rs.rules, rule{re: re, ipa: r.IPA, alias: r.Alias})
	}
	return rs
}

// Len returns the number of compiled rules.
func (rs *Ruleset) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Apply rewrites every whole-word occurrence of each term in text with its
// pronunciation tag. text must already be XML-escaped. applied reports
// whether any substitution happened.
func (rs *Ruleset) Apply(text string) (result string, applied bool) {
	if rs == nil {
		return text, false
	}
	result = text
	for _, r := range rs.rules {
		matches := r.re.FindAllStringSubmatchIndex(result, -1)
		if len(matches) == 0 {
			continue
		}
		var b strings.Builder
		last := 0
		changed := false
		for _, m := range matches {
			// Group 1 is an existing tag span, copied through untouched;
			// group 2 is a candidate term occurrence.
			start, end := m[4], m[5]
			if start < 0 || !wholeWord(result, start, end) {
				continue
			}
			b.WriteString(result[last:start])
			// The matched text keeps its original casing inside the tag.
			matched := result[start:end]
			if r.ipa != "" {
				fmt.Fprintf(&b, `<phoneme alphabet="ipa" ph="%s">%s</phoneme>`,
					escapeAttr(r.ipa), matched)
			} else {
				fmt.Fprintf(&b, `<sub alias="%s">%s</sub>`, escapeAttr(r.alias), matched)
			}
			last = end
			changed = true
		}
		if !changed {
			continue
		}
		b.WriteString(result[last:])
		result = b.String()
		applied = true
	}
	return result, applied
}

// wholeWord reports whether s[start:end] is not embedded inside a longer
// word. Boundaries are checked per rune so non-ASCII terms get the same
// whole-word treatment as ASCII ones.
func wholeWord(s string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(s[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		if r, _ := utf8.DecodeRuneInString(s[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
