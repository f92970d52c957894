package correct

import (
	"regexp"
	"strings"
)

// Voice directive sentinels. A voice rendition of a message is embedded
// after the display text as OPEN + voice + CLOSE. Consumers unaware of the
// convention see it as ordinary text.
const (
	VoiceOpen  = "[[tts:text]]"
	VoiceClose = "[[/tts:text]]"
)

// The closing sentinel tolerates one extra leading bracket; some models
// emit "[[[/tts:text]]" when closing the span.
var (
	voiceSpanRe = regexp.MustCompile(`(?is)\[\[tts:text\]\](.*?)\[{2,3}/tts:text\]\]`)
)

// EncodeVoice appends a voice rendition to display text using the sentinel
// pair.
func EncodeVoice(display, voice string) string {
	return display + "\n" + VoiceOpen + voice + VoiceClose
}

// StripVoiceDirectives removes all sentinel-delimited voice spans from text.
// If removal would leave nothing, the original text is returned; the user is
// never shown an empty message. Malformed or unterminated sentinels are left
// in place as ordinary text.
func StripVoiceDirectives(text string) string {
	out := strings.TrimSpace(voiceSpanRe.ReplaceAllString(text, ""))
	if out == "" {
		return text
	}
	return out
}

// VoiceHint extracts the inner content of the first voice span, or "" when
// no complete span exists.
func VoiceHint(text string) string {
	m := voiceSpanRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
