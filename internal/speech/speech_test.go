package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepwise/internal/models"
	"stepwise/internal/render"
)

type fakeNarrator struct {
	mu    sync.Mutex
	texts []string
	fail  string
}

func (f *fakeNarrator) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != "" && strings.Contains(text, f.fail) {
		return nil, errors.New("quota exceeded")
	}
	f.texts = append(f.texts, text)
	return []byte("ID3" + text), nil
}

func strPtr(s string) *string { return &s }

func TestSplitText(t *testing.T) {
	text := strings.Repeat("One sentence here. ", 40)
	chunks := splitText(text, 100)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 100)
		assert.True(t, strings.HasSuffix(c, "."), c)
	}
	assert.Equal(t, strings.Join(strings.Fields(text), " "), strings.Join(chunks, " "))

	assert.Empty(t, splitText("   ", 100))
	assert.Equal(t, []string{"short"}, splitText("short", 100))
}

func TestSplitTextWithoutBoundaries(t *testing.T) {
	chunks := splitText(strings.Repeat("é", 80), 25)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 25)
		assert.True(t, strings.HasPrefix(c, "é"))
	}
}

func TestStepText(t *testing.T) {
	md := render.NewMarkdown()

	got, err := StepText(md, "Intervals", "## Thirds\n\nA **major** third.")
	require.NoError(t, err)
	assert.Equal(t, "Intervals. Thirds A major third.", got)

	got, err = StepText(md, "Intervals", "")
	require.NoError(t, err)
	assert.Equal(t, "Intervals.", got)
}

func TestExportCourse(t *testing.T) {
	dir := t.TempDir()
	c := models.Course{Steps: []models.Step{
		{StepNumber: 1, Title: "One", Content: strPtr("first")},
		{StepNumber: 2, Title: "Two"},
		{StepNumber: 3, Title: "Three", Content: strPtr("third")},
	}}
	n := &fakeNarrator{}

	written, err := ExportCourse(context.Background(), n, c, dir, ExportOptions{Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "step-01.mp3"),
		filepath.Join(dir, "step-03.mp3"),
	}, written)

	b, err := os.ReadFile(filepath.Join(dir, "step-03.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "ID3Three. third", string(b))

	_, err = os.Stat(filepath.Join(dir, "step-02.mp3"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportCourseReportsFailures(t *testing.T) {
	dir := t.TempDir()
	c := models.Course{Steps: []models.Step{
		{StepNumber: 1, Title: "One", Content: strPtr("fine")},
		{StepNumber: 2, Title: "Two", Content: strPtr("broken")},
	}}

	written, err := ExportCourse(context.Background(), &fakeNarrator{fail: "broken"}, c, dir, ExportOptions{Workers: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 2")
	assert.Equal(t, []string{filepath.Join(dir, "step-01.mp3")}, written)
}
