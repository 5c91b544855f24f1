// Package guardrails screens agent input before interpretation and cleans
// agent output before it reaches the user.
package guardrails

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const MaxInputLength = 1000

const (
	MsgEmptyInput    = "Please enter a message."
	MsgTooLong       = "Message is too long. Please keep it under 1000 characters."
	MsgInvalidInput  = "Your request contains invalid characters or patterns."
	MsgOffTopic      = "I can only help with task management. Try asking me to create, update, or find tasks."
	MsgEmptyResponse = "No response generated."
)

type pattern struct {
	name string
	re   *regexp.Regexp
}

var dangerousPatterns = []pattern{
	{"sql", regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|UNION|ALTER|CREATE|TRUNCATE)\b.*\b(FROM|INTO|TABLE|DATABASE)\b`)},
	{"code_exec", regexp.MustCompile(`(?i)(\beval\s*\(|\bexec\s*\(|\bsystem\s*\(|\bos\.\w+\()`)},
	{"script", regexp.MustCompile(`(?i)<script[\s\S]*?>[\s\S]*?</script>`)},
	{"path_traversal", regexp.MustCompile(`\.\./`)},
	{"shell", regexp.MustCompile("[;&|`$]")},
}

var offTopicPatterns = []pattern{
	{"credentials", regexp.MustCompile(`(?i)\b(password|credit card|ssn|social security|bank account)\b`)},
	{"hacking", regexp.MustCompile(`(?i)\b(hack|exploit|vulnerability|bypass|crack)\b`)},
	{"codegen", regexp.MustCompile(`(?i)\b(write code|generate script|create program|build app)\b`)},
	{"entertainment", regexp.MustCompile(`(?i)\b(tell me a joke|write a poem|sing a song|play a game)\b`)},
	{"trivia", regexp.MustCompile(`(?i)\b(who is|what is the capital|history of|explain quantum)\b`)},
}

var taskKeywords = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(task|todo|reminder|deadline|priority|due|complete|pending|progress)\b`),
	regexp.MustCompile(`(?i)\b(create|add|make|new|schedule|plan)\b`),
	regexp.MustCompile(`(?i)\b(update|change|modify|edit|set|mark)\b`),
	regexp.MustCompile(`(?i)\b(delete|remove|cancel|clear)\b`),
	regexp.MustCompile(`(?i)\b(list|show|get|find|search|fetch|view)\b`),
	regexp.MustCompile(`(?i)\b(high|medium|low|urgent|important)\b`),
	regexp.MustCompile(`(?i)\b(today|tomorrow|this week|next week|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
}

// Emails go first so digits in a local part are redacted with the address.
var redactions = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`), "[EMAIL REDACTED]"},
	{regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`), "[PHONE REDACTED]"},
	{regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "[CARD REDACTED]"},
	{regexp.MustCompile(`\b\d{3}-?\d{2}-?\d{4}\b`), "[SSN REDACTED]"},
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Task ids are UUIDs; all-digit groups in one would pass for a card number.
var uuidPattern = regexp.MustCompile(`\b[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}\b`)

var disclaimerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)I cannot|I'm unable to|I don't have access`),
	regexp.MustCompile(`(?i)as an AI|as a language model`),
}

type Result struct {
	Passed         bool
	Message        string
	SanitizedInput string
}

type Guard struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{logger: logger}
}

var defaultGuard = New(nil)

// ValidateInput rejects empty, oversized, injection-like and off-topic input.
// Off-topic input is rescued when it also mentions the task domain.
func (g *Guard) ValidateInput(input string) Result {
	if strings.TrimSpace(input) == "" {
		return Result{Message: MsgEmptyInput}
	}
	if utf8.RuneCountInString(input) > MaxInputLength {
		return Result{Message: MsgTooLong}
	}

	for _, p := range dangerousPatterns {
		if p.re.MatchString(input) {
			g.logger.Warn("[guardrail][input] blocked dangerous pattern", zap.String("category", p.name))
			return Result{Message: MsgInvalidInput}
		}
	}

	for _, p := range offTopicPatterns {
		if !p.re.MatchString(input) {
			continue
		}
		if !mentionsTasks(input) {
			g.logger.Info("[guardrail][input] off-topic request", zap.String("category", p.name))
			return Result{Message: MsgOffTopic}
		}
		break
	}

	return Result{Passed: true, Message: "Input validated", SanitizedInput: strings.TrimSpace(input)}
}

func mentionsTasks(input string) bool {
	for _, re := range taskKeywords {
		if re.MatchString(input) {
			return true
		}
	}
	return false
}

// SanitizeOutput redacts contact and payment data and strips markup.
func (g *Guard) SanitizeOutput(output string) string {
	if output == "" {
		return output
	}
	var b strings.Builder
	last := 0
	for _, loc := range uuidPattern.FindAllStringIndex(output, -1) {
		b.WriteString(redact(output[last:loc[0]]))
		b.WriteString(output[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(redact(output[last:]))
	return tagPattern.ReplaceAllString(b.String(), "")
}

func redact(s string) string {
	for _, r := range redactions {
		s = r.re.ReplaceAllString(s, r.replacement)
	}
	return s
}

// ValidateOutput rejects an empty response. Model disclaimers pass but are
// logged.
func (g *Guard) ValidateOutput(output string) Result {
	if strings.TrimSpace(output) == "" {
		return Result{Message: MsgEmptyResponse}
	}
	for _, re := range disclaimerPatterns {
		if re.MatchString(output) {
			g.logger.Warn("[guardrail][output] model disclaimer detected")
			break
		}
	}
	return Result{Passed: true, Message: "Output validated"}
}

func (g *Guard) ApplyInputGuardrails(input string) Result {
	res := g.ValidateInput(input)
	if !res.Passed {
		return res
	}
	return Result{Passed: true, Message: "All guardrails passed", SanitizedInput: res.SanitizedInput}
}

// ApplyOutputGuardrails returns the text to show the user. A failed
// validation degrades to the failure message.
func (g *Guard) ApplyOutputGuardrails(output string) string {
	if res := g.ValidateOutput(output); !res.Passed {
		return res.Message
	}
	return g.SanitizeOutput(output)
}

func ValidateInput(input string) Result          { return defaultGuard.ValidateInput(input) }
func SanitizeOutput(output string) string        { return defaultGuard.SanitizeOutput(output) }
func ValidateOutput(output string) Result        { return defaultGuard.ValidateOutput(output) }
func ApplyInputGuardrails(input string) Result   { return defaultGuard.ApplyInputGuardrails(input) }
func ApplyOutputGuardrails(output string) string { return defaultGuard.ApplyOutputGuardrails(output) }
