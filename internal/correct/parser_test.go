package correct

import (
	"log/slog"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParse_WellFormed(t *testing.T) {
	p := NewParser(testLogger())
	raw := `{"correctedVoice": "[sighs] Hello there.", "display": "Hello there.", "changes": ["fixed greeting"], "unchanged": false}`

	r := p.Parse(raw, "helo there")
	if r.Error != "" {
		t.Fatalf("unexpected error: %s", r.Error)
	}
	if r.VoiceText != "[sighs] Hello there." {
		t.Errorf("voice: got %q", r.VoiceText)
	}
	if r.DisplayText != "Hello there." {
		t.Errorf("display: got %q", r.DisplayText)
	}
	if len(r.Changes) != 1 || r.Changes[0] != "fixed greeting" {
		t.Errorf("changes: got %v", r.Changes)
	}
	if r.Unchanged {
		t.Error("expected unchanged=false")
	}
}

func TestParse_FencedWithCommentary(t *testing.T) {
	p := NewParser(testLogger())
	raw := "Here is the corrected version:\n```json\n{\"correctedVoice\": \"Fixed.\"}\n```\nHope that helps!"

	r := p.Parse(raw, "fixd")
	if r.VoiceText != "Fixed." {
		t.Errorf("expected fenced interior used, got %q", r.VoiceText)
	}
}

func TestParse_TrailingComma(t *testing.T) {
	p := NewParser(testLogger())
	raw := `{"correctedVoice": "Done.", "changes": ["a", "b",], "unchanged": false,}`

	r := p.Parse(raw, "don")
	if r.Error != "" {
		t.Fatalf("unexpected error: %s", r.Error)
	}
	if r.VoiceText != "Done." {
		t.Errorf("voice: got %q", r.VoiceText)
	}
	if len(r.Changes) != 2 {
		t.Errorf("changes: got %v", r.Changes)
	}
}

func TestParse_RawNewlineInString(t *testing.T) {
	p := NewParser(testLogger())
	raw := "{\"correctedVoice\": \"line one\nline two\"}"

	r := p.Parse(raw, "orig")
	if r.Error != "" {
		t.Fatalf("unexpected error: %s", r.Error)
	}
	if r.VoiceText != "line one\nline two" {
		t.Errorf("voice: got %q", r.VoiceText)
	}
}

func TestParse_BothRepairsNeeded(t *testing.T) {
	p := NewParser(testLogger())
	raw := "{\"correctedVoice\": \"a\nb\", \"changes\": [\"x\",],}"

	r := p.Parse(raw, "orig")
	if r.Error != "" {
		t.Fatalf("unexpected error: %s", r.Error)
	}
	if r.VoiceText != "a\nb" {
		t.Errorf("voice: got %q", r.VoiceText)
	}
}

func TestParse_LegacyCorrectedField(t *testing.T) {
	p := NewParser(testLogger())
	r := p.Parse(`{"corrected": "Legacy text."}`, "orig")
	if r.VoiceText != "Legacy text." {
		t.Errorf("expected legacy field fallback, got %q", r.VoiceText)
	}
}

func TestParse_MissingFieldsFallBackToOriginal(t *testing.T) {
	p := NewParser(testLogger())
	r := p.Parse(`{"unchanged": true}`, "the original")
	if r.VoiceText != "the original" {
		t.Errorf("expected original as voice fallback, got %q", r.VoiceText)
	}
	if !r.Unchanged {
		t.Error("expected unchanged=true")
	}
}

func TestParse_DisplayDerivedFromVoice(t *testing.T) {
	p := NewParser(testLogger())
	r := p.Parse(`{"correctedVoice": "[whispers] quiet now [pause] ok"}`, "orig")
	if r.DisplayText != "quiet now ok" {
		t.Errorf("expected tags stripped for display, got %q", r.DisplayText)
	}
}

func TestParse_NonStringChangesDiscarded(t *testing.T) {
	p := NewParser(testLogger())
	r := p.Parse(`{"correctedVoice": "x", "changes": ["keep", 42, true, "also"]}`, "orig")
	if len(r.Changes) != 2 || r.Changes[0] != "keep" || r.Changes[1] != "also" {
		t.Errorf("expected non-strings discarded, got %v", r.Changes)
	}
}

func TestParse_UnchangedOnlyOnLiteralTrue(t *testing.T) {
	p := NewParser(testLogger())
	if r := p.Parse(`{"correctedVoice": "x", "unchanged": "true"}`, "orig"); r.Unchanged {
		t.Error("string \"true\" must not count as unchanged")
	}
	if r := p.Parse(`{"correctedVoice": "x", "unchanged": 1}`, "orig"); r.Unchanged {
		t.Error("numeric 1 must not count as unchanged")
	}
}

func TestParse_TotalFailure(t *testing.T) {
	p := NewParser(testLogger())
	r := p.Parse("not json at all", "the original message")

	if !r.Unchanged {
		t.Error("expected unchanged=true")
	}
	if r.VoiceText != "the original message" {
		t.Errorf("expected original as voice, got %q", r.VoiceText)
	}
	if r.Error == "" {
		t.Error("expected a diagnostic error string")
	}
	if len(r.Changes) != 0 {
		t.Errorf("expected no changes, got %v", r.Changes)
	}
	if strings.Contains(r.VoiceText, "not json") {
		t.Error("model garbage must never surface")
	}
}

func TestParse_ProseAroundObject(t *testing.T) {
	p := NewParser(testLogger())
	raw := `Sure! {"correctedVoice": "Clean."} Let me know.`
	r := p.Parse(raw, "orig")
	if r.VoiceText != "Clean." {
		t.Errorf("expected brace extraction, got %q", r.VoiceText)
	}
}

func TestStripEmotionTags(t *testing.T) {
	got := StripEmotionTags("[whispers] hello [long pause] world")
	if got != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", got)
	}

	if got := StripEmotionTags("no tags here"); got != "no tags here" {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestEscapeRawNewlines_OutsideStringsUntouched(t *testing.T) {
	in := "{\n\"a\": \"b\"\n}"
	if got := escapeRawNewlines(in); got != in {
		t.Errorf("structural newlines must stay, got %q", got)
	}
}

func TestEscapeRawNewlines_EscapedQuoteInString(t *testing.T) {
	in := "{\"a\": \"say \\\"hi\\\"\nnow\"}"
	want := "{\"a\": \"say \\\"hi\\\"\\nnow\"}"
	if got := escapeRawNewlines(in); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
