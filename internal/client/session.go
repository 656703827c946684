package client

import (
	"context"
	"errors"
	"fmt"

	"stepwise/internal/apperr"
	"stepwise/internal/models"
	"stepwise/internal/state"
)

// FallbackAnswer is shown when a question cannot be answered.
const FallbackAnswer = "Sorry, I couldn't process your question. Please try again."

// API is the part of Client a Session needs.
type API interface {
	ListCourses(ctx context.Context) ([]models.Course, error)
	CreateCourse(ctx context.Context, topic string, depth models.Depth) (models.Course, error)
	SetCompleted(ctx context.Context, id string, step int, completed bool) (models.Course, error)
	StepContent(ctx context.Context, id string, step int, force bool) (StepContent, error)
	Ask(ctx context.Context, id string, step int, question string) (Answer, error)
	DeleteCourse(ctx context.Context, id string) error
}

// Session applies user actions to the local state first and undoes them if
// the server rejects the change.
type Session struct {
	api   API
	state *state.Container
}

func NewSession(api API) *Session {
	return &Session{api: api, state: state.NewContainer(state.State{})}
}

// State exposes the container for readers and subscribers.
func (s *Session) State() *state.Container { return s.state }

func (s *Session) Load(ctx context.Context) error {
	courses, err := s.api.ListCourses(ctx)
	if err != nil {
		return asAppError("session.load", apperr.KindPersistence, "Failed to load courses.", err)
	}
	s.state.Dispatch(state.Loaded{Courses: courses})
	return nil
}

func (s *Session) Select(id string) (models.Course, bool) {
	return s.state.Dispatch(state.CourseSelected{ID: id}).Find(id)
}

// CreateCourse asks the server for a new course and selects it.
func (s *Session) CreateCourse(ctx context.Context, topic string, depth models.Depth) (models.Course, error) {
	c, err := s.api.CreateCourse(ctx, topic, depth)
	if err != nil {
		return models.Course{}, asAppError("session.create", apperr.KindTransport, "Failed to generate course from AI service.", err)
	}
	s.state.Dispatch(state.CourseAdded{Course: c})
	return c, nil
}

// ToggleCompleted flips the completion flag of one step.
func (s *Session) ToggleCompleted(ctx context.Context, courseID string, step int) (bool, error) {
	const op = "session.toggle_completed"

	c, ok := s.state.State().Find(courseID)
	if !ok {
		return false, apperr.New(apperr.KindNotFound, op, "Course not found.", nil)
	}
	cur, ok := c.Step(step)
	if !ok {
		return false, apperr.New(apperr.KindNotFound, op, "Step not found.", nil)
	}
	completed := !cur.Completed

	s.state.Dispatch(state.StepPatched{CourseID: courseID, StepNumber: step, Patch: models.StepPatch{Completed: &completed}})
	if _, err := s.api.SetCompleted(ctx, courseID, step, completed); err != nil {
		prev := cur.Completed
		s.state.Dispatch(state.StepPatched{CourseID: courseID, StepNumber: step, Patch: models.StepPatch{Completed: &prev}})
		return cur.Completed, apperr.New(apperr.KindPersistence, op, "Failed to save changes.", err)
	}
	return completed, nil
}

// EnsureContent returns the step's content, generating it when absent or
// when force is set.
func (s *Session) EnsureContent(ctx context.Context, courseID string, step int, force bool) (string, error) {
	const op = "session.ensure_content"

	c, ok := s.state.State().Find(courseID)
	if !ok {
		return "", apperr.New(apperr.KindNotFound, op, "Course not found.", nil)
	}
	cur, ok := c.Step(step)
	if !ok {
		return "", apperr.New(apperr.KindNotFound, op, "Step not found.", nil)
	}
	if cur.HasContent() && !force {
		return *cur.Content, nil
	}

	res, err := s.api.StepContent(ctx, courseID, step, force)
	if err != nil {
		return "", asAppError(op, apperr.KindTransport, "Failed to generate step content from AI service.", err)
	}
	content := res.Content
	s.state.Dispatch(state.StepPatched{CourseID: courseID, StepNumber: step, Patch: models.StepPatch{Content: &content}})
	return content, nil
}

// DeleteCourse removes a course. On failure it reappears where it was.
func (s *Session) DeleteCourse(ctx context.Context, courseID string) error {
	const op = "session.delete"

	before := s.state.State()
	c, ok := before.Find(courseID)
	if !ok {
		return apperr.New(apperr.KindNotFound, op, "Course not found.", nil)
	}
	s.state.Dispatch(state.CourseRemoved{ID: courseID})
	if err := s.api.DeleteCourse(ctx, courseID); err != nil {
		s.state.Dispatch(state.CourseRestored{Course: c, Index: before.IndexOf(courseID), Active: before.ActiveID == courseID})
		return apperr.New(apperr.KindPersistence, op, "Could not delete course from database.", err)
	}
	return nil
}

// Ask never fails: any error yields FallbackAnswer.
func (s *Session) Ask(ctx context.Context, courseID string, step int, question string) string {
	ans, err := s.api.Ask(ctx, courseID, step, question)
	if err != nil || ans.Text == "" {
		return FallbackAnswer
	}
	return ans.Text
}

// asAppError keeps the server's message and kind when there is one.
func asAppError(op string, kind apperr.Kind, fallback string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		k := apperr.Kind(apiErr.Kind)
		if k == "" {
			k = kind
		}
		return apperr.New(k, op, apiErr.Message, err)
	}
	return apperr.New(kind, op, fallback, fmt.Errorf("%s: %w", op, err))
}
