package correct

import (
	"fmt"
	"strings"

	"relaybot/internal/domain"
)

// PromptInput carries everything the prompt builder needs for one
// correction call.
type PromptInput struct {
	Text          string   // cleaned user text, directive markup removed
	VoiceHint     string   // pre-existing voice rendition, if any
	Context       string   // short free-text conversation context
	Speaker       string   // optional speaker descriptor
	Addressee     string   // optional addressee descriptor
	StyleNotes    string   // persona style guidance
	RecentReplies []string // recent display texts, oldest first
}

// BuildSystemPrompt produces the instruction prompt for the correction
// model. The model must answer with a single JSON object; the parser's
// repair cascade handles the cases where it does not.
func BuildSystemPrompt(in PromptInput) string {
	var b strings.Builder

	b.WriteString(`# Language Correction

You rewrite a single chat message so it reads naturally, fixing grammar,
spelling, and awkward phrasing while preserving the meaning, tone, and
language of the original.

## Output Format
Respond with ONE JSON object and nothing else:
{
  "correctedVoice": "corrected text, emotion tags like [whispers] preserved",
  "display": "corrected text with emotion tags removed",
  "changes": ["short note per fix"],
  "unchanged": false
}
Set "unchanged": true and echo the original when no fix is needed.

## Rules
1. Never add new information or drop content.
2. Keep emotion/stage-direction tags like [whispers] in correctedVoice only.
3. Keep the original language; do not translate.
4. Do not wrap the JSON in code fences.`)

	if in.Speaker != "" || in.Addressee != "" {
		b.WriteString("\n\n## Participants\n")
		if in.Speaker != "" {
			fmt.Fprintf(&b, "Speaker: %s\n", in.Speaker)
		}
		if in.Addressee != "" {
			fmt.Fprintf(&b, "Addressee: %s\n", in.Addressee)
		}
	}

	if in.StyleNotes != "" {
		b.WriteString("\n\n## Style\n")
		b.WriteString(in.StyleNotes)
	}

	if in.Context != "" {
		b.WriteString("\n\n## Conversation Context\n")
		b.WriteString(in.Context)
	}

	if len(in.RecentReplies) > 0 {
		b.WriteString("\n\n## Recent Replies\nAvoid repeating the openings of these recent messages:\n")
		for _, r := range in.RecentReplies {
			b.WriteString("- ")
			b.WriteString(firstLine(r))
			b.WriteByte('\n')
		}
	}

	if in.VoiceHint != "" {
		b.WriteString("\n\n## Voice Hint\nA spoken rendition was already chosen upstream; preserve its stylistic cues:\n")
		b.WriteString(in.VoiceHint)
	}

	return b.String()
}

// BuildMessages constructs the message list for the completion call.
func BuildMessages(in PromptInput) []domain.PromptMessage {
	return []domain.PromptMessage{
		{Role: "user", Content: "Correct this message:\n\n" + in.Text},
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}
