package correct

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Result is the validated outcome of a correction response. On any failure
// it is constructed purely from the original input, so partial model output
// never reaches a user-facing surface.
type Result struct {
	DisplayText string   // emotion tags stripped
	VoiceText   string   // tags preserved for TTS
	Changes     []string
	Unchanged   bool
	Error       string // diagnostic only, empty on success
}

// Parser recovers a structured correction result from raw model output.
// The output is expected to be a single JSON object but often arrives
// wrapped in prose or code fences, or with syntax defects typical of
// generative text.
type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

var (
	// A fenced block anywhere in the text, optionally tagged json. Models
	// sometimes prepend commentary before the fence.
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

	// A bracketed emotion/stage-direction token like [whispers] or
	// [long pause], with surrounding whitespace.
	emotionTagRe = regexp.MustCompile(`\s*\[[^\[\]]+\]\s*`)

	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// Parse extracts a correction result from raw model output. original is the
// text that was submitted for correction; it is the fallback for every
// missing field and for total parse failure.
func (p *Parser) Parse(raw, original string) Result {
	stripped := stripFences(raw)
	candidate := extractObject(stripped)

	obj, ok := parseCascade(candidate)
	if !ok {
		p.logger.Warn("correction response unparseable after repairs",
			"raw_len", len(raw), "stripped_len", len(stripped))
		return Result{
			DisplayText: StripEmotionTags(original),
			VoiceText:   original,
			Changes:     []string{},
			Unchanged:   true,
			Error:       fmt.Sprintf("unparseable correction response (raw %d chars, stripped %d chars)", len(raw), len(stripped)),
		}
	}

	voice := stringField(obj, "correctedVoice")
	if voice == "" {
		voice = stringField(obj, "corrected")
	}
	if voice == "" {
		voice = original
	}

	display := stringField(obj, "display")
	if display == "" {
		display = StripEmotionTags(voice)
	}

	changes := []string{}
	if rawChanges, ok := obj["changes"].([]any); ok {
		for _, c := range rawChanges {
			if s, ok := c.(string); ok {
				changes = append(changes, s)
			}
		}
	}

	unchanged := obj["unchanged"] == true

	return Result{
		DisplayText: display,
		VoiceText:   voice,
		Changes:     changes,
		Unchanged:   unchanged,
	}
}

// stripFences returns the interior of the first fenced block if one exists
// anywhere in the text, otherwise trims fence markers at the boundaries.
func stripFences(s string) string {
	if m := fencedBlockRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	out := strings.TrimSpace(s)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}

// extractObject takes the substring from the first { to the last } as the
// JSON candidate. Without braces the whole text is the candidate.
func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

// parseCascade tries a strict parse, then each repair, then both repairs
// combined. The first candidate that parses wins.
func parseCascade(candidate string) (map[string]any, bool) {
	attempts := []string{
		candidate,
		stripTrailingCommas(candidate),
		escapeRawNewlines(candidate),
		escapeRawNewlines(stripTrailingCommas(candidate)),
	}
	for _, attempt := range attempts {
		var obj map[string]any
		if err := json.Unmarshal([]byte(attempt), &obj); err == nil {
			return obj, true
		}
	}
	return nil, false
}

func stripTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// escapeRawNewlines escapes literal newline and carriage-return characters
// that occur inside quoted string values, tracking quote and backslash
// state left to right. Structural whitespace outside strings is untouched.
func escapeRawNewlines(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
			b.WriteRune(r)
		case '"':
			inString = !inString
			b.WriteRune(r)
		case '\n':
			if inString {
				b.WriteString(`\n`)
			} else {
				b.WriteRune(r)
			}
		case '\r':
			if inString {
				b.WriteString(`\r`)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripEmotionTags removes bracketed stage-direction tokens like [whispers]
// and normalizes the surrounding whitespace to single spaces.
func StripEmotionTags(s string) string {
	out := emotionTagRe.ReplaceAllString(s, " ")
	out = multiSpaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}
