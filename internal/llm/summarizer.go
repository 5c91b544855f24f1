package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"taskagent/internal/models"
	"taskagent/internal/tools"
)

const summaryPrompt = `Summarize the user's tasks in one or two short sentences.
Focus on deadlines that are today or coming up soon.
Mention priorities and due dates where they are known.`

// Summarizer writes the short overview at the top of the daily digest.
type Summarizer struct {
	client *genai.Client
	model  string
}

func NewSummarizer(client *genai.Client, model string) *Summarizer {
	if model == "" {
		model = DefaultModel
	}
	return &Summarizer{client: client, model: model}
}

func (s *Summarizer) SummarizeTasks(ctx context.Context, tasks []models.Task) (string, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.model,
		[]*genai.Content{genai.NewContentFromText(TaskList(tasks), genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(summaryPrompt, genai.RoleUser),
		})
	if err != nil {
		return "", fmt.Errorf("gemini summarize: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini summarize: empty response")
	}
	return text, nil
}

// TaskList is the plain-text task listing handed to the model.
func TaskList(tasks []models.Task) string {
	if len(tasks) == 0 {
		return "The user has no open tasks."
	}
	lines := make([]string, len(tasks))
	for i, t := range tasks {
		lines[i] = "- " + tools.SummaryLine(t)
	}
	return strings.Join(lines, "\n")
}
