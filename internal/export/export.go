// Package export renders conversations for download.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/ollama-manager/internal/domain"
)

// Format names an export encoding.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
)

// ErrInvalidFormat is returned for formats other than md and json.
var ErrInvalidFormat = errors.New("invalid export format")

const markdownTitle = "# 对话导出\n\n"

var markdownHeadings = map[domain.Role]string{
	domain.RoleUser:      "## 用户\n",
	domain.RoleAssistant: "## 助手\n",
}

// Render encodes messages in the requested format. An empty format means
// Markdown.
func Render(format Format, messages []domain.Message) (string, error) {
	switch Format(strings.ToLower(strings.TrimSpace(string(format)))) {
	case FormatMarkdown, "":
		return Markdown(messages), nil
	case FormatJSON:
		return JSON(messages)
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
}

// Markdown writes a titled document with one section per message. Messages
// with unknown roles are left out.
func Markdown(messages []domain.Message) string {
	var b strings.Builder
	b.WriteString(markdownTitle)
	for _, msg := range messages {
		heading, ok := markdownHeadings[msg.Role]
		if !ok {
			continue
		}
		b.WriteString(heading)
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// JSON writes the message array indented by two spaces without escaping
// non-ASCII or HTML characters.
func JSON(messages []domain.Message) (string, error) {
	if messages == nil {
		messages = []domain.Message{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(messages); err != nil {
		return "", fmt.Errorf("encode messages: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
