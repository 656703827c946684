package coursegen

import "stepwise/internal/llm"

var outlineSchema = &llm.Schema{
	Name:        "course-outline",
	Description: "A structured course outline with the specified number of steps.",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"courseOutline": map[string]any{
				"type":        "array",
				"description": "A structured course outline with the specified number of steps.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"step":        map[string]any{"type": "integer", "description": "The step number."},
						"title":       map[string]any{"type": "string", "description": "The title of the step."},
						"description": map[string]any{"type": "string", "description": "A brief description of what the step covers."},
					},
					"required":             []string{"step", "title", "description"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"courseOutline"},
		"additionalProperties": false,
	},
}

var contentSchema = &llm.Schema{
	Name:        "step-content",
	Description: "Detailed content for one course step.",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "The detailed content for the step, formatted in Markdown. Use headings, lists, bold text, and icons to make it engaging and readable.",
			},
		},
		"required":             []string{"content"},
		"additionalProperties": false,
	},
}

var answerSchema = &llm.Schema{
	Name:        "step-answer",
	Description: "An answer to a learner question about a course step.",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{"type": "string", "description": "The answer to the question."},
		},
		"required":             []string{"answer"},
		"additionalProperties": false,
	},
}
