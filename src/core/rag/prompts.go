package rag

import (
	"bytes"
	"fmt"
	"text/template"
)

const (
	SystemPrompt = `You are a helpful AI assistant. Answer the question based ONLY on the following context.
Be concise and accurate. You can respond in the same language as the question.`

	QuestionPromptTmpl = `Context from documents:
{{.Context}}

{{if .History}}Previous conversation:
{{range .History}}{{.Speaker}}: {{.Content}}
{{end}}
{{end}}Current question: {{.Question}}

Answer:`

	// ContextSeparator joins retrieved chunks in the prompt context.
	ContextSeparator = "\n\n---\n\n"
)

var questionPrompt = template.Must(template.New("question").Parse(QuestionPromptTmpl))

// PromptData is the input of QuestionPromptTmpl.
type PromptData struct {
	Context  string
	History  []PromptTurn
	Question string
}

type PromptTurn struct {
	Speaker string
	Content string
}

// BuildPrompt renders the user prompt. Only the last window messages of
// history are included; a window of 0 drops the history.
func BuildPrompt(docs, question string, history []Message, window int) (string, error) {
	data := PromptData{
		Context:  docs,
		Question: question,
	}

	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	if window > 0 {
		for _, m := range history {
			speaker := "Assistant"
			if m.Role == RoleUser {
				speaker = "User"
			}
			data.History = append(data.History, PromptTurn{Speaker: speaker, Content: m.Content})
		}
	}

	var buf bytes.Buffer
	if err := questionPrompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute question prompt: %w", err)
	}
	return buf.String(), nil
}
