package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Depth is the requested course length in steps.
type Depth int

const (
	DepthOverview Depth = 20
	DepthDeepDive Depth = 50
	DepthMastery  Depth = 100
)

// MinTopicLength is the shortest topic accepted for generation.
const MinTopicLength = 2

var (
	ErrInvalidDepth = errors.New("depth must be one of 20, 50 or 100")
	ErrInvalidTopic = fmt.Errorf("topic must be at least %d characters", MinTopicLength)
)

// Valid reports whether d is one of the supported depths.
func (d Depth) Valid() bool {
	switch d {
	case DepthOverview, DepthDeepDive, DepthMastery:
		return true
	}
	return false
}

// ParseDepth accepts the numeric depth as sent by clients.
func ParseDepth(n int) (Depth, error) {
	d := Depth(n)
	if !d.Valid() {
		return 0, ErrInvalidDepth
	}
	return d, nil
}

// NormalizeTopic trims the topic and checks its length.
func NormalizeTopic(topic string) (string, error) {
	t := strings.TrimSpace(topic)
	if len([]rune(t)) < MinTopicLength {
		return "", ErrInvalidTopic
	}
	return t, nil
}

// OutlineItem is one generated entry of a course outline.
type OutlineItem struct {
	Step        int    `json:"step"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Step is one lesson of a course. Content stays nil until generated.
type Step struct {
	StepNumber int     `json:"step_number"`
	Title      string  `json:"title"`
	Content    *string `json:"content,omitempty"`
	Completed  bool    `json:"completed"`
}

// HasContent reports whether content was generated for the step.
func (s Step) HasContent() bool {
	return s.Content != nil && strings.TrimSpace(*s.Content) != ""
}

// Course is a generated learning path owned by one user.
type Course struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Topic     string    `json:"topic"`
	Depth     Depth     `json:"depth"`
	Outline   string    `json:"outline"`
	Steps     []Step    `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
	Version   int       `json:"version"`
}

// Progress summarizes completed steps.
type Progress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// Progress counts completed steps of the course.
func (c Course) Progress() Progress {
	p := Progress{Total: len(c.Steps)}
	for _, s := range c.Steps {
		if s.Completed {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Percent = float64(p.Completed) / float64(p.Total) * 100
	}
	return p
}

// Step returns the step with the given number.
func (c Course) Step(n int) (Step, bool) {
	for _, s := range c.Steps {
		if s.StepNumber == n {
			return s, true
		}
	}
	return Step{}, false
}

// Clone returns a deep copy so callers can mutate steps freely.
func (c Course) Clone() Course {
	out := c
	out.Steps = CloneSteps(c.Steps)
	return out
}

// CloneSteps deep-copies a step slice including content pointers.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s
		if s.Content != nil {
			c := *s.Content
			out[i].Content = &c
		}
	}
	return out
}

// CheckOutline verifies that an outline has exactly depth entries numbered
// 1..depth. Items are sorted by step number in place.
func CheckOutline(items []OutlineItem, depth Depth) error {
	if len(items) == 0 {
		return errors.New("outline is empty")
	}
	if len(items) != int(depth) {
		return fmt.Errorf("outline has %d steps, want %d", len(items), depth)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Step < items[j].Step })
	for i, it := range items {
		if it.Step != i+1 {
			return fmt.Errorf("outline step %d found at position %d", it.Step, i+1)
		}
		if strings.TrimSpace(it.Title) == "" {
			return fmt.Errorf("outline step %d has no title", it.Step)
		}
	}
	return nil
}

// NewCourse builds the course skeleton (titles only) from a checked outline.
func NewCourse(userID, topic string, depth Depth, outline []OutlineItem, now time.Time) (Course, error) {
	if err := CheckOutline(outline, depth); err != nil {
		return Course{}, err
	}
	raw, err := json.MarshalIndent(outline, "", "  ")
	if err != nil {
		return Course{}, fmt.Errorf("serialize outline: %w", err)
	}
	steps := make([]Step, len(outline))
	for i, it := range outline {
		steps[i] = Step{StepNumber: it.Step, Title: it.Title}
	}
	return Course{
		UserID:    userID,
		Topic:     topic,
		Depth:     depth,
		Outline:   string(raw),
		Steps:     steps,
		CreatedAt: now.UTC(),
	}, nil
}

// StepPatch carries the mutable fields of a step; nil fields are left alone.
type StepPatch struct {
	Content   *string `json:"content,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// ApplyStepPatch returns a copy of steps with patch merged into step n.
func ApplyStepPatch(steps []Step, n int, patch StepPatch) ([]Step, bool) {
	out := CloneSteps(steps)
	for i := range out {
		if out[i].StepNumber != n {
			continue
		}
		if patch.Content != nil {
			c := *patch.Content
			out[i].Content = &c
		}
		if patch.Completed != nil {
			out[i].Completed = *patch.Completed
		}
		return out, true
	}
	return out, false
}

// CheckSkeleton verifies that next keeps the step numbers and titles of
// current. Only content and completion may differ.
func CheckSkeleton(current, next []Step) error {
	if len(current) != len(next) {
		return fmt.Errorf("steps length %d, want %d", len(next), len(current))
	}
	for i := range current {
		if current[i].StepNumber != next[i].StepNumber {
			return fmt.Errorf("step %d: number changed to %d", current[i].StepNumber, next[i].StepNumber)
		}
		if current[i].Title != next[i].Title {
			return fmt.Errorf("step %d: title is immutable", current[i].StepNumber)
		}
	}
	return nil
}

// CourseUpdate is a partial update. Steps replaces the whole array when set.
// ExpectedVersion, when set, must match the stored version.
type CourseUpdate struct {
	Steps           []Step
	ExpectedVersion *int
}

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PhotoURL     string    `json:"photo_url"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated user as seen by request handlers.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photo_url"`
}

// Identity projects the account onto its public identity.
func (u User) Identity() Identity {
	return Identity{UID: u.ID, DisplayName: u.DisplayName, Email: u.Email, PhotoURL: u.PhotoURL}
}
