package correct

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	encoded := EncodeVoice("Fixed text", "[whispers] Fixed text")

	if got := StripVoiceDirectives(encoded); got != "Fixed text" {
		t.Errorf("display decode: expected %q, got %q", "Fixed text", got)
	}
	if got := VoiceHint(encoded); got != "[whispers] Fixed text" {
		t.Errorf("voice hint: expected %q, got %q", "[whispers] Fixed text", got)
	}
}

func TestStripVoiceDirectives_NoSpan(t *testing.T) {
	if got := StripVoiceDirectives("plain text"); got != "plain text" {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestStripVoiceDirectives_NeverEmpty(t *testing.T) {
	in := "[[tts:text]]only voice[[/tts:text]]"
	if got := StripVoiceDirectives(in); got != in {
		t.Errorf("expected original kept when removal empties the text, got %q", got)
	}
}

func TestStripVoiceDirectives_ExtraClosingBracket(t *testing.T) {
	in := "hello\n[[tts:text]]spoken[[[/tts:text]]"
	if got := StripVoiceDirectives(in); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
}

func TestStripVoiceDirectives_CaseInsensitive(t *testing.T) {
	in := "hi\n[[TTS:TEXT]]spoken[[/TTS:TEXT]]"
	if got := StripVoiceDirectives(in); got != "hi" {
		t.Errorf("expected %q, got %q", "hi", got)
	}
}

func TestVoiceHint_MalformedSentinel(t *testing.T) {
	in := "text [[tts:text]] never closed"
	if got := VoiceHint(in); got != "" {
		t.Errorf("expected no hint for unterminated span, got %q", got)
	}
	if got := StripVoiceDirectives(in); got != in {
		t.Errorf("unterminated span should stay as ordinary text, got %q", got)
	}
}

func TestVoiceHint_FirstSpanWins(t *testing.T) {
	in := "a\n[[tts:text]]first[[/tts:text]]\n[[tts:text]]second[[/tts:text]]"
	if got := VoiceHint(in); got != "first" {
		t.Errorf("expected first span, got %q", got)
	}
}
