package sandbox

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/agentctl/agentctl/internal/agentkind"
)

// ExtractReport scans a child's stdout (a newline-delimited sequence of JSON
// objects) and returns the last message-text observed under the per-agent
// selector from spec.md §4.D. Non-JSON lines are ignored.
func ExtractReport(r io.Reader, agent agentkind.ID) string {
	scanner := bufio.NewScanner(r)
	const maxLine = 1024 * 1024
	buf := make([]byte, maxLine)
	scanner.Buffer(buf, maxLine)

	var last string
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			continue
		}
		if text, ok := extractLine(obj, agent); ok {
			last = text
		}
	}
	return last
}

func extractLine(obj map[string]any, agent agentkind.ID) (string, bool) {
	switch agent {
	case agentkind.Claude:
		if obj["type"] != "assistant" {
			return "", false
		}
		msg, ok := obj["message"].(map[string]any)
		if !ok {
			return "", false
		}
		content, ok := msg["content"].([]any)
		if !ok {
			return "", false
		}
		var b strings.Builder
		for _, item := range content {
			block, ok := item.(map[string]any)
			if !ok || block["type"] != "text" {
				continue
			}
			if text, ok := block["text"].(string); ok {
				b.WriteString(text)
			}
		}
		return b.String(), true

	case agentkind.Codex:
		if obj["type"] != "message" {
			return "", false
		}
		switch c := obj["content"].(type) {
		case string:
			return c, true
		case nil:
			return "", false
		default:
			data, err := json.Marshal(c)
			if err != nil {
				return "", false
			}
			return string(data), true
		}

	case agentkind.Gemini:
		if obj["type"] != "text" {
			return "", false
		}
		text, ok := obj["text"].(string)
		return text, ok

	default:
		return "", false
	}
}
