package coursegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepwise/internal/llm"
	"stepwise/internal/models"
)

func outlineJSON(n int) map[string]any {
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{"step": i + 1, "title": fmt.Sprintf("Step %d", i+1), "description": "covers things"}
	}
	return map[string]any{"courseOutline": items}
}

func TestOutlineLengthMatchesDepth(t *testing.T) {
	for _, depth := range []models.Depth{models.DepthOverview, models.DepthDeepDive, models.DepthMastery} {
		t.Run(fmt.Sprint(depth), func(t *testing.T) {
			m := llm.NewMockProvider()
			m.AddJSON(outlineJSON(int(depth)))

			items, err := New(m).Outline(context.Background(), "Music Theory", depth)
			require.NoError(t, err)
			require.Len(t, items, int(depth))
			for i, it := range items {
				assert.Equal(t, i+1, it.Step)
			}

			require.Equal(t, 1, m.CallCount())
			prompt := m.Calls[0].Messages[0].Content
			assert.Contains(t, prompt, "Topic: Music Theory")
			assert.Contains(t, prompt, fmt.Sprintf("Depth: %d steps", depth))
			assert.Equal(t, outlineSchema, m.Calls[0].Schema)
		})
	}
}

func TestOutlinePromptPerDepth(t *testing.T) {
	cases := map[models.Depth]string{
		models.DepthOverview: "high-level overview",
		models.DepthDeepDive: "detailed, in-depth course",
		models.DepthMastery:  "expert-level course designed for mastery",
	}
	for depth, want := range cases {
		p, err := render(outlinePrompt, struct {
			Topic string
			Depth int
		}{"Go", int(depth)})
		require.NoError(t, err)
		assert.Contains(t, p, want)
	}
}

func TestOutlineGenerationErrors(t *testing.T) {
	tests := []struct {
		name string
		resp llm.MockResponse
	}{
		{"empty outline", llm.MockResponse{Content: json.RawMessage(`{"courseOutline":[]}`)}},
		{"malformed shape", llm.MockResponse{Content: json.RawMessage(`{"steps":[]}`)}},
		{"not json", llm.MockResponse{Content: json.RawMessage(`Here is your course!`)}},
		{"truncated", llm.MockResponse{Err: &llm.ErrMaxTokensExceeded{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := llm.NewMockProvider(tt.resp)
			_, err := New(m).Outline(context.Background(), "Music Theory", models.DepthOverview)
			var gen *GenerationError
			require.ErrorAs(t, err, &gen)
			assert.Equal(t, FlowOutline, gen.Flow)
		})
	}

	t.Run("wrong length", func(t *testing.T) {
		m := llm.NewMockProvider()
		m.AddJSON(outlineJSON(12))
		_, err := New(m).Outline(context.Background(), "Music Theory", models.DepthOverview)
		var gen *GenerationError
		assert.ErrorAs(t, err, &gen)
	})
}

func TestOutlineTransportError(t *testing.T) {
	m := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})
	_, err := New(m).Outline(context.Background(), "Music Theory", models.DepthOverview)
	var tr *TransportError
	require.ErrorAs(t, err, &tr)
	var gen *GenerationError
	assert.False(t, errors.As(err, &gen))
}

func TestOutlineRejectsBadInputWithoutCalling(t *testing.T) {
	m := llm.NewMockProvider()
	g := New(m)

	_, err := g.Outline(context.Background(), "x", models.DepthOverview)
	assert.ErrorIs(t, err, models.ErrInvalidTopic)
	_, err = g.Outline(context.Background(), "Music Theory", models.Depth(30))
	assert.ErrorIs(t, err, models.ErrInvalidDepth)
	assert.Zero(t, m.CallCount())
}

func TestStepContent(t *testing.T) {
	m := llm.NewMockProvider()
	m.AddJSON(map[string]string{"content": "# Scales\n\n* 💡 A scale is an ordered set of notes."})

	in := StepContentInput{Topic: "Music Theory", Outline: `[{"step":5}]`, StepNumber: 5, StepTitle: "Scales"}
	content, err := New(m).StepContent(context.Background(), in)
	require.NoError(t, err)
	assert.NotEmpty(t, content)

	prompt := m.Calls[0].Messages[0].Content
	assert.Contains(t, prompt, "Step Number: 5")
	assert.Contains(t, prompt, "Step Title: Scales")
}

func TestStepContentEmptyIsGenerationError(t *testing.T) {
	m := llm.NewMockProvider()
	m.AddJSON(map[string]string{"content": "   "})
	_, err := New(m).StepContent(context.Background(), StepContentInput{Topic: "t", StepNumber: 1, StepTitle: "s"})
	var gen *GenerationError
	assert.ErrorAs(t, err, &gen)
}

func TestAnswer(t *testing.T) {
	m := llm.NewMockProvider()
	m.AddJSON(map[string]string{"answer": "A scale is a sequence of notes ordered by pitch."})

	answer, err := New(m).Answer(context.Background(), QuestionInput{
		Topic: "Music Theory", StepTitle: "Scales", StepContent: "# Scales", Question: "What is a scale?",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.Contains(t, m.Calls[0].Messages[0].Content, "Question: What is a scale?")
}

func TestAnswerWithoutContent(t *testing.T) {
	m := llm.NewMockProvider()
	m.AddJSON(map[string]string{"answer": "ok"})
	_, err := New(m).Answer(context.Background(), QuestionInput{Topic: "t", StepTitle: "s", Question: "why?"})
	require.NoError(t, err)
	assert.Contains(t, m.Calls[0].Messages[0].Content, "has not been generated yet")
}

