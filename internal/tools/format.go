package tools

import (
	"fmt"
	"strings"

	"taskagent/internal/embeddings"
	"taskagent/internal/models"
)

const (
	createdLayout = "Mon Jan 02 2006"
	noTasksFound  = "No tasks found for the given filters."
)

// SummaryLine renders a task on one line for the interpreter and for chat
// clients.
func SummaryLine(t models.Task) string {
	due := "No due date"
	if t.DueDate != nil {
		due = "Due: " + t.DueDate.UTC().Format(createdLayout)
	}
	return fmt.Sprintf("%s | %s | %s | Created: %s | %s",
		t.Title, t.Status, t.Priority, t.CreatedAt.UTC().Format(createdLayout), due)
}

func bulletList(tasks []models.Task) string {
	var b strings.Builder
	for i, t := range tasks {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("• ")
		b.WriteString(SummaryLine(t))
	}
	return b.String()
}

func titleHits(query string, tasks []models.Task) string {
	if len(tasks) == 0 {
		return fmt.Sprintf("No tasks found for %q.", query)
	}
	lines := make([]string, len(tasks))
	for i, t := range tasks {
		lines[i] = fmt.Sprintf("• task id: %s | Title: %s", t.ID, t.Title)
	}
	return strings.Join(lines, "\n")
}

func relatedHits(query string, matches []embeddings.Match) string {
	if len(matches) == 0 {
		return noRelated(query)
	}
	lines := make([]string, len(matches))
	for i, m := range matches {
		lines[i] = fmt.Sprintf("• %s | Status: %s | Priority: %s", m.Metadata.Title, m.Metadata.Status, m.Metadata.Priority)
	}
	return strings.Join(lines, "\n")
}

func noRelated(query string) string {
	return fmt.Sprintf("No related tasks found for %q.", query)
}

// ambiguity lists the candidates so the user can pick one by id.
func ambiguity(query string, tasks []models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Multiple tasks match %q:\n", query)
	for _, t := range tasks {
		fmt.Fprintf(&b, "%s | %s\n", t.ID, t.Title)
	}
	b.WriteString("Please retry with the id of the task you mean.")
	return b.String()
}
