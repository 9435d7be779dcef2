package enhance

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const SystemPrompt = `You clean up exam questions that were extracted automatically from exam papers. The input is a JSON array of objects with "id" and "text".

For each question:
- Fix extraction artifacts: broken words, stray line numbers, page headers, doubled spaces, mangled punctuation
- Keep the meaning, the mathematical notation and the language of the original
- Do NOT answer the question, add hints or add new content
- If the text is already clean, return it unchanged

Return a JSON array with exactly one object per input, using the same "id" values and a "text" field holding the cleaned question.

Respond with ONLY the JSON array, no other text.`

// Rewrite is one cleaned question returned by the model.
type Rewrite struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type promptItem struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// BuildBatchPrompt renders texts as a numbered JSON array. IDs start at 1.
func BuildBatchPrompt(topic string, texts []string) string {
	items := make([]promptItem, len(texts))
	for i, t := range texts {
		items[i] = promptItem{ID: i + 1, Text: t}
	}
	body, _ := json.MarshalIndent(items, "", "  ")

	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %q\n", topic)
	sb.WriteString("---\n")
	sb.Write(body)
	return sb.String()
}

// ParseRewrites decodes the model reply. Markdown code fences are tolerated.
func ParseRewrites(raw string) ([]Rewrite, error) {
	text := stripCodeBlock(raw)
	var out []Rewrite
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("parse rewrites json: %w (raw: %s)", err, truncate(text, 200))
	}
	return out, nil
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}
