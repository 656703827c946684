// Package coursegen holds the three model-backed flows: course outlines,
// step content and answers to questions about a step.
package coursegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"stepwise/internal/llm"
	"stepwise/internal/models"
)

// Output budgets per flow. A 100 step outline is the largest response.
const (
	outlineMaxTokens  = 8192
	contentMaxTokens  = 4096
	questionMaxTokens = 1024
)

// Generator runs the generation flows against a provider.
type Generator struct {
	provider llm.Provider
}

func New(p llm.Provider) *Generator {
	return &Generator{provider: p}
}

// StepContentInput identifies the step to write.
type StepContentInput struct {
	Topic      string
	Outline    string
	StepNumber int
	StepTitle  string
}

// QuestionInput is a learner question about one step. StepContent may be
// empty when the step has not been generated yet.
type QuestionInput struct {
	Topic       string
	StepTitle   string
	StepContent string
	Question    string
}

// Outline generates a course outline with exactly depth steps numbered
// 1..depth.
func (g *Generator) Outline(ctx context.Context, topic string, depth models.Depth) ([]models.OutlineItem, error) {
	if !depth.Valid() {
		return nil, models.ErrInvalidDepth
	}
	topic, err := models.NormalizeTopic(topic)
	if err != nil {
		return nil, err
	}

	prompt, err := render(outlinePrompt, struct {
		Topic string
		Depth int
	}{topic, int(depth)})
	if err != nil {
		return nil, fmt.Errorf("render outline prompt: %w", err)
	}

	var out struct {
		CourseOutline []models.OutlineItem `json:"courseOutline"`
	}
	if err := g.generate(ctx, FlowOutline, outlineSystemPrompt, prompt, outlineSchema, outlineMaxTokens, &out); err != nil {
		return nil, err
	}
	if err := models.CheckOutline(out.CourseOutline, depth); err != nil {
		return nil, &GenerationError{Flow: FlowOutline, Err: err}
	}
	return out.CourseOutline, nil
}

// StepContent generates the Markdown body of one step.
func (g *Generator) StepContent(ctx context.Context, in StepContentInput) (string, error) {
	prompt, err := render(contentPrompt, in)
	if err != nil {
		return "", fmt.Errorf("render content prompt: %w", err)
	}

	var out struct {
		Content string `json:"content"`
	}
	if err := g.generate(ctx, FlowContent, contentSystemPrompt, prompt, contentSchema, contentMaxTokens, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Content) == "" {
		return "", &GenerationError{Flow: FlowContent, Err: errors.New("empty content")}
	}
	return out.Content, nil
}

// Answer answers a question about a step.
func (g *Generator) Answer(ctx context.Context, in QuestionInput) (string, error) {
	if strings.TrimSpace(in.Question) == "" {
		return "", errors.New("question is empty")
	}
	prompt, err := render(questionPrompt, in)
	if err != nil {
		return "", fmt.Errorf("render question prompt: %w", err)
	}

	var out struct {
		Answer string `json:"answer"`
	}
	if err := g.generate(ctx, FlowQuestion, questionSystemPrompt, prompt, answerSchema, questionMaxTokens, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Answer) == "" {
		return "", &GenerationError{Flow: FlowQuestion, Err: errors.New("empty answer")}
	}
	return out.Answer, nil
}

func (g *Generator) generate(ctx context.Context, flow, system, prompt string, schema *llm.Schema, maxTokens int, dst any) error {
	req := llm.UserPrompt(system, prompt, schema)
	req.MaxTokens = maxTokens

	resp, err := g.provider.Generate(llm.WithPurpose(ctx, flow), req)
	if err != nil {
		return classify(flow, err)
	}
	if err := json.Unmarshal(resp.Content, dst); err != nil {
		return &GenerationError{Flow: flow, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
