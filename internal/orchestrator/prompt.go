// prompt.go renders the plan, execute and review prompts.
package orchestrator

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/warriorcabo/ai-orchestration-system/internal/session"
	"github.com/warriorcabo/ai-orchestration-system/prompts"
)

// historyWindow is how many previous entries the prompts carry.
const historyWindow = 5

var (
	taskTmpl    = template.Must(template.New("task").Parse(prompts.TaskTemplate))
	executeTmpl = template.Must(template.New("execute").Parse(prompts.ExecuteTemplate))
	reviewTmpl  = template.Must(template.New("review").Parse(prompts.ReviewTemplate))
)

type promptData struct {
	Message string
	History string
	Task    string
	Draft   string
}

// formatHistory renders entries as "User: ..." / "Assistant: ..." lines.
func formatHistory(entries []session.Entry) string {
	var lines []string
	for _, e := range entries {
		role := "User"
		if e.Role == session.RoleAssistant {
			role = "Assistant"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, e.Content))
	}
	return strings.Join(lines, "\n")
}

func render(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// BuildTaskPrompt renders the planner prompt.
func BuildTaskPrompt(message string, history []session.Entry) (string, error) {
	h := formatHistory(history)
	if h == "" {
		h = "(none)"
	}
	return render(taskTmpl, promptData{Message: message, History: h})
}

// BuildExecutePrompt renders the generator prompt. History is included
// only when there is no task specification to carry it.
func BuildExecutePrompt(task, message string, history []session.Entry) (string, error) {
	data := promptData{Message: message, Task: task}
	if task == "" {
		data.History = formatHistory(history)
	}
	return render(executeTmpl, data)
}

// BuildReviewPrompt renders the reviewer prompt for a draft.
func BuildReviewPrompt(message, draft string) (string, error) {
	return render(reviewTmpl, promptData{Message: message, Draft: draft})
}
