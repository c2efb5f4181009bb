// Package extract recovers plain narrative text from a model reply that may
// be raw prose, tag-wrapped markup, or a JSON envelope carrying the story
// text — possibly truncated mid-document by an output-length cutoff.
//
// Extract is pure and deterministic, never fails on malformed input, and is
// idempotent on text that is already plain narrative.
package extract

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// storyFields are the known field names a model may wrap the narrative in.
// "nextStrory" is a tolerated legacy misspelling that still appears in
// replies from models fine-tuned against old prompt templates.
var storyFields = []string{"story", "nextStory", "nextStrory", "next_story", "output_schema"}

// storyFieldRe captures the string value of a story field. The value match
// deliberately has no closing quote so a document truncated mid-string still
// yields its content.
var storyFieldRe = regexp.MustCompile(`"(?:story|nextStory|nextStrory|next_story|output_schema)"\s*:\s*"((?:\\.|[^"\\])*)`)

// entityReplacer undoes HTML escaping of the markup tags some providers
// apply to angle brackets.
var entityReplacer = strings.NewReplacer("&lt;", "<", "&gt;", ">")

// Extract returns the narrative text carried by raw. Structured envelopes
// are unwrapped; anything unrecognized is returned as-is because it is
// already plain prose.
func Extract(raw string) string {
	text := entityReplacer.Replace(raw)
	text = stripFences(text)

	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !containsStoryField(trimmed) {
		return text
	}

	// Targeted capture first: robust to a truncated document where a full
	// JSON parse cannot succeed.
	if m := storyFieldRe.FindStringSubmatch(trimmed); m != nil {
		return unescapeJSONString(m[1])
	}

	// Full parse after best-effort repair.
	if doc, ok := RepairObject(trimmed); ok {
		for _, field := range storyFields {
			if v := gjson.Get(doc, field); v.Exists() && v.Type == gjson.String {
				return v.String()
			}
		}
	}

	return text
}

// RepairObject returns a parseable JSON object document recovered from raw,
// heuristically closing a document left unterminated by an output-length
// cutoff (balance the trailing quote, append a closing brace). The second
// return is false when no candidate parses.
func RepairObject(raw string) (string, bool) {
	trimmed := strings.TrimSpace(stripFences(raw))

	start := strings.Index(trimmed, "{")
	if start < 0 {
		return "", false
	}
	trimmed = trimmed[start:]

	// The happy path: slice down to the outermost braces.
	if end := strings.LastIndex(trimmed, "}"); end > 0 {
		if doc := trimmed[:end+1]; gjson.Valid(doc) {
			return doc, true
		}
	}

	if gjson.Valid(trimmed) {
		return trimmed, true
	}

	for _, suffix := range []string{"\"}", "}", "\"]}", "]}"} {
		if doc := trimmed + suffix; gjson.Valid(doc) {
			return doc, true
		}
	}

	return "", false
}

func containsStoryField(s string) bool {
	for _, field := range storyFields {
		if strings.Contains(s, `"`+field+`"`) {
			return true
		}
	}
	return false
}

// stripFences removes surrounding markdown code-fence markers, including an
// optional language tag on the opening fence.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.Index(trimmed, "\n"); i >= 0 {
		trimmed = trimmed[i+1:]
	}

	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")

	return strings.TrimSpace(trimmed)
}

// unescapeJSONString converts the escape sequences found inside a captured
// JSON string value back into literal characters. Unknown escapes pass
// through untouched.
func unescapeJSONString(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}

		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case '"':
			b.WriteByte('"')
		case '\'':
			b.WriteByte('\'')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}

	return b.String()
}
