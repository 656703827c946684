package coursegen

import (
	"strings"
	"text/template"
)

const outlineSystemPrompt = `You are an AI course generator that creates a structured course outline from a topic and a desired depth.
Your goal is a course that takes a learner from beginner level to mastery of the topic.
Respond only with JSON that matches the requested schema.`

var outlinePrompt = template.Must(template.New("outline").Parse(`Topic: {{.Topic}}
Depth: {{.Depth}} steps

{{if eq .Depth 20}}Create a high-level overview.{{else if eq .Depth 50}}Create a detailed, in-depth course.{{else}}Create a comprehensive, expert-level course designed for mastery. Cover fundamentals, advanced topics, practical applications and best practices.{{end}}

Generate exactly {{.Depth}} steps, numbered 1 to {{.Depth}} in order. Each step has a short title and a brief description of what it covers.
The outline must give a clear learning path and use easy to understand language.`))

const contentSystemPrompt = `You are an expert educator who makes content easy to understand and visually engaging.
Respond only with JSON that matches the requested schema.`

var contentPrompt = template.Must(template.New("content").Parse(`Based on the course outline and the current step, write detailed and easy to understand content for the step.

Format the content as Markdown. Use headings (#, ##), bullet points (*), numbered lists (1.), bold text (**text**) and relevant emojis or icons (like 💡, 🚀, ✅) where they help make the content structured, readable and engaging.

Topic: {{.Topic}}
Outline: {{.Outline}}
Step Number: {{.StepNumber}}
Step Title: {{.StepTitle}}`))

const questionSystemPrompt = `You are a patient tutor helping a learner who is working through one step of a course.
Answer the question clearly and concisely, using the step content as context when it is available.
Respond only with JSON that matches the requested schema.`

var questionPrompt = template.Must(template.New("question").Parse(`Topic: {{.Topic}}
Step Title: {{.StepTitle}}
{{if .StepContent}}Step Content:
{{.StepContent}}
{{else}}The content for this step has not been generated yet.
{{end}}
Question: {{.Question}}`))

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
