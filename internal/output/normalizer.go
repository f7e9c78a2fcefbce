// Package output decodes runner output and maps runner failures to result categories.
package output

import (
	"strings"
	"unicode/utf8"

	"github.com/ashureev/ollama-manager/internal/domain"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// FallbackResponse replaces an empty runner reply.
const FallbackResponse = "抱歉，我无法生成响应。请尝试再次输入。"

const (
	portInUseMessage       = "错误：Ollama服务端口被占用，请检查是否有其他Ollama实例在运行"
	notRunningMessage      = "错误：Ollama服务未运行，请先启动Ollama服务"
	unknownMessagePrefix   = "错误："
	emptyStderrPlaceholder = "Ollama服务执行失败"
)

var (
	portInUseMarkers = []string{
		"bind: Only one usage of each socket address",
		"address already in use",
	}
	notRunningMarkers = []string{
		"connection refused",
		"服务未运行",
		"could not connect to ollama",
	}
)

// Decode converts raw runner bytes to text. Valid UTF-8 is returned as is;
// anything else is decoded as GBK with undecodable bytes replaced by U+FFFD.
func Decode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(b)
	if err != nil || !utf8.Valid(decoded) {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError))
	}
	return string(decoded)
}

// Classify maps a non-zero runner exit to a failed result using known stderr text.
func Classify(exitCode int, stderr string) domain.CompletionResult {
	stderr = strings.TrimSpace(stderr)
	switch {
	case containsAny(stderr, portInUseMarkers):
		return domain.Failure(domain.CategoryPortInUse, portInUseMessage, stderr)
	case containsAny(stderr, notRunningMarkers):
		return domain.Failure(domain.CategoryServiceNotRunning, notRunningMessage, stderr)
	}

	text := stderr
	if text == "" {
		text = emptyStderrPlaceholder
	}
	return domain.Failure(domain.CategoryUnknown, unknownMessagePrefix+text, stderr)
}

// Message returns the user-facing text for categories that carry no runner output.
func Message(category domain.ErrorCategory, detail string) string {
	switch category {
	case domain.CategoryInvalidRequest:
		return unknownMessagePrefix + "Model and messages are required"
	case domain.CategoryRunnerUnavailable:
		return unknownMessagePrefix + "无法启动Ollama，请确认已安装并在PATH中：" + detail
	case domain.CategoryTimeout:
		return unknownMessagePrefix + "Ollama响应超时，请稍后重试"
	case domain.CategoryPortInUse:
		return portInUseMessage
	case domain.CategoryServiceNotRunning:
		return notRunningMessage
	default:
		return unknownMessagePrefix + detail
	}
}

func containsAny(s string, markers []string) bool {
	lower := strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(s, m) || strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
