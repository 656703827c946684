package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"stepwise/internal/models"
	"stepwise/internal/render"
)

// ExportOptions tunes ExportCourse.
type ExportOptions struct {
	Workers int
	// Pause is slept by a worker after each file to stay under the API
	// request quota.
	Pause time.Duration
}

type job struct {
	step models.Step
	path string
}

// ExportCourse writes step-NN.mp3 into dir for every step that has content
// and returns the written paths in step order. Steps that fail are skipped
// and reported together in the returned error.
func ExportCourse(ctx context.Context, n Narrator, c models.Course, dir string, opts ExportOptions) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	var todo []job
	for _, s := range c.Steps {
		if !s.HasContent() {
			continue
		}
		todo = append(todo, job{step: s, path: filepath.Join(dir, fmt.Sprintf("step-%02d.mp3", s.StepNumber))})
	}
	if len(todo) == 0 {
		return nil, nil
	}

	jobs := make(chan job, len(todo))
	results := make(chan string, len(todo))
	failures := make(chan error, len(todo))
	md := render.NewMarkdown()
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := narrateStep(ctx, n, md, j); err != nil {
					failures <- fmt.Errorf("step %d: %w", j.step.StepNumber, err)
					continue
				}
				results <- j.path
				if opts.Pause > 0 {
					select {
					case <-ctx.Done():
					case <-time.After(opts.Pause):
					}
				}
			}
		}()
	}

	for _, j := range todo {
		jobs <- j
	}
	close(jobs)
	wg.Wait()
	close(results)
	close(failures)

	var written []string
	for p := range results {
		written = append(written, p)
	}
	sort.Strings(written)

	var errs []error
	for err := range failures {
		errs = append(errs, err)
	}
	return written, errors.Join(errs...)
}

func narrateStep(ctx context.Context, n Narrator, md *render.Markdown, j job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text, err := StepText(md, j.step.Title, *j.step.Content)
	if err != nil {
		return err
	}
	audio, err := n.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	return os.WriteFile(j.path, audio, 0o644)
}
