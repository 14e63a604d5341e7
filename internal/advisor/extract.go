package advisor

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
)

// Models wrap their machine-readable proposal in a delimiter pair whose name
// carries a random suffix, so a tag string appearing in user content cannot
// confuse extraction. Formatting drifts in practice (code fences, bold
// markers, prose after the close tag), so extraction runs layered fallback
// strategies, strict first, and each tier stays independently testable.

// NewPayloadTag returns a fresh tag name with an unpredictable suffix, e.g.
// "budget_proposal_9f2c1a".
func NewPayloadTag(prefix string) string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		// Extraction still works with a fixed suffix; uniqueness is a
		// hardening measure, not a correctness requirement.
		return prefix + "_fallback"
	}
	return prefix + "_" + hex.EncodeToString(b)
}

var (
	codeFencePattern = regexp.MustCompile("(?m)^```[a-zA-Z]*\\s*$")
	boldMarkerRe     = strings.NewReplacer("**", "")
)

// ExtractTaggedArray recovers the JSON array wrapped in <tag>...</tag> from
// free-form model text. found=false is a normal outcome, not an error: the
// caller proceeds without a proposal.
func ExtractTaggedArray(text, tag string) (json.RawMessage, bool) {
	if raw, ok := extractStrict(text, tag); ok {
		return raw, true
	}
	if raw, ok := extractLoose(text, tag); ok {
		return raw, true
	}
	return nil, false
}

// ExtractBudgetLimits runs all three tiers, including the tag-free heuristic
// scan, and parses the result into budget-limit proposals.
func ExtractBudgetLimits(text, tag string) ([]ProposedBudgetLimit, bool) {
	raw, ok := ExtractTaggedArray(text, tag)
	if !ok {
		raw, ok = extractHeuristic(text)
	}
	if !ok {
		return nil, false
	}
	var limits []ProposedBudgetLimit
	if err := json.Unmarshal(raw, &limits); err != nil || len(limits) == 0 {
		return nil, false
	}
	for _, l := range limits {
		if l.Category == "" || l.SuggestedLimit <= 0 {
			return nil, false
		}
	}
	return limits, true
}

// Tier 1: open tag, minimally-matched bracket block, close tag, parsed
// directly.
func extractStrict(text, tag string) (json.RawMessage, bool) {
	pattern := regexp.MustCompile(`(?s)<` + regexp.QuoteMeta(tag) + `>\s*(\[.*?\])\s*</` + regexp.QuoteMeta(tag) + `>`)
	m := pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil, false
	}
	candidate := json.RawMessage(m[1])
	if !json.Valid(candidate) {
		return nil, false
	}
	return candidate, true
}

// Tier 2: locate the tag positions independently, slice the text between
// them, strip known noise and parse between the first '[' and the last ']'.
func extractLoose(text, tag string) (json.RawMessage, bool) {
	open := "<" + tag + ">"
	close := "</" + tag + ">"

	start := strings.Index(text, open)
	if start < 0 {
		return nil, false
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, close)
	if end < 0 {
		end = len(rest)
	}
	slice := rest[:end]

	slice = codeFencePattern.ReplaceAllString(slice, "")
	slice = boldMarkerRe.Replace(slice)

	first := strings.Index(slice, "[")
	last := strings.LastIndex(slice, "]")
	if first < 0 || last <= first {
		return nil, false
	}
	candidate := json.RawMessage(slice[first : last+1])
	if !json.Valid(candidate) {
		return nil, false
	}
	return candidate, true
}

// Tier 3: no usable tags at all. Scan the whole text for bracketed
// substrings whose elements look like budget proposals and take the first
// syntactically valid one.
func extractHeuristic(text string) (json.RawMessage, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		end := matchBracket(text, i)
		if end < 0 {
			continue
		}
		candidate := text[i : end+1]
		if !strings.Contains(candidate, `"category"`) || !strings.Contains(candidate, `"suggestedLimit"`) {
			continue
		}
		raw := json.RawMessage(candidate)
		if json.Valid(raw) {
			return raw, true
		}
	}
	return nil, false
}

// matchBracket returns the index of the ']' closing the '[' at start,
// respecting nesting and string literals, or -1.
func matchBracket(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '[':
			if !inString {
				depth++
			}
		case ']':
			if !inString {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}
