package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepwise/internal/models"
)

func TestStepArg(t *testing.T) {
	n, err := stepArg("12")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	for _, bad := range []string{"0", "-1", "two"} {
		_, err := stepArg(bad)
		assert.Error(t, err, bad)
	}
}

func TestPrintCourse(t *testing.T) {
	content := "body"
	c := models.Course{ID: "c1", Topic: "Music Theory", Steps: []models.Step{
		{StepNumber: 1, Title: "Notes", Completed: true, Content: &content},
		{StepNumber: 2, Title: "Scales"},
	}}
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	printCourse(cmd, c)
	out := buf.String()
	assert.Contains(t, out, "Music Theory (2 steps, 50% complete)")
	assert.Contains(t, out, "[x]   1. Notes *")
	assert.Contains(t, out, "[ ]   2. Scales\n")
}

func TestBindFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.PersistentFlags().String("bind-check", "", "")

	assert.NoError(t, bindFlags(cmd, "bind-check"))
	assert.ErrorContains(t, bindFlags(cmd, "missing"), `"missing"`)
}
