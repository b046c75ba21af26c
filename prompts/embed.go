// Package prompts embeds the prompt templates used by the orchestrator.
package prompts

import _ "embed"

//go:embed orchestrate/system.md
var DefaultSystemPrompt string

//go:embed orchestrate/task.md.tmpl
var TaskTemplate string

//go:embed orchestrate/execute.md.tmpl
var ExecuteTemplate string

//go:embed orchestrate/review.md.tmpl
var ReviewTemplate string
