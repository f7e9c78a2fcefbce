// Package prompt turns a conversation history into the text fed to the runner.
package prompt

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/ollama-manager/internal/domain"
)

// DefaultLanguage is the language the assistant is told to answer in.
const DefaultLanguage = "Chinese"

var roleLabels = map[domain.Role]string{
	domain.RoleUser:      "User",
	domain.RoleAssistant: "Assistant",
}

// Builder renders prompts with a fixed system directive.
type Builder struct {
	directive string
}

// NewBuilder creates a builder whose directive asks for answers in language.
// An empty language falls back to DefaultLanguage.
func NewBuilder(language string) *Builder {
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}
	return &Builder{
		directive: fmt.Sprintf("You are a helpful assistant that responds in %s. Please always answer in %s.\n\n", language, language),
	}
}

// Directive returns the instruction placed before the conversation.
func (b *Builder) Directive() string {
	return b.directive
}

// Build renders messages as "Role: content" lines after the directive.
// Messages with a role other than user or assistant produce no line and are
// logged at debug level.
func (b *Builder) Build(messages []domain.Message) string {
	var sb strings.Builder
	sb.WriteString(b.directive)
	for _, msg := range messages {
		label, ok := roleLabels[msg.Role]
		if !ok {
			slog.Debug("Skipping message with unknown role", "role", msg.Role)
			continue
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

var defaultBuilder = NewBuilder(DefaultLanguage)

// Build renders messages with the default directive.
func Build(messages []domain.Message) string {
	return defaultBuilder.Build(messages)
}
