// Package course implements the user actions on courses: creating one from
// a generated outline, filling step content lazily, answering questions and
// keeping progress. Every failure leaves here as an *apperr.Error.
package course

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"stepwise/internal/apperr"
	"stepwise/internal/coursegen"
	"stepwise/internal/logger"
	"stepwise/internal/models"
	"stepwise/internal/store"
)

// FallbackAnswer replaces the answer whenever the model cannot provide one.
const FallbackAnswer = "Sorry, I couldn't process your question. Please try again."

const (
	msgOutlineGeneration = "The AI failed to generate a course for this topic. Please try a different topic."
	msgOutlineTransport  = "Failed to generate course from AI service."
	msgContentFailed     = "Failed to generate step content from AI service."
	msgSaveFailed        = "Failed to save changes."
	msgLoadFailed        = "Failed to load courses."
	msgDeleteFailed      = "Could not delete course from database."
	msgCourseNotFound    = "Course not found."
	msgStepNotFound      = "Step not found."
	msgConflict          = "This course was changed in another session. Reload it and try again."
)

// Generator is the model-backed part of the service.
type Generator interface {
	Outline(ctx context.Context, topic string, depth models.Depth) ([]models.OutlineItem, error)
	StepContent(ctx context.Context, in coursegen.StepContentInput) (string, error)
	Answer(ctx context.Context, in coursegen.QuestionInput) (string, error)
}

type Service struct {
	store       store.CourseStore
	gen         Generator
	log         *logger.Logger
	now         func() time.Time
	generations metric.Int64Counter
}

func NewService(s store.CourseStore, g Generator, log *logger.Logger) *Service {
	generations, _ := otel.Meter("stepwise").Int64Counter("stepwise.generations",
		metric.WithDescription("Course generations by flow and outcome"))
	return &Service{
		store:       s,
		gen:         g,
		log:         log.With("component", "course"),
		now:         time.Now,
		generations: generations,
	}
}

func (s *Service) countGeneration(ctx context.Context, flow string, err error) {
	var gen *coursegen.GenerationError
	outcome := "ok"
	switch {
	case err == nil:
	case apperr.Is(err, apperr.KindGeneration), errors.As(err, &gen):
		outcome = string(apperr.KindGeneration)
	default:
		outcome = string(apperr.KindTransport)
	}
	s.generations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome),
	))
}

// StepResult is the outcome of a content request. Generated is false when
// stored content was returned without calling the model.
type StepResult struct {
	Step      models.Step
	Generated bool
}

// Answer is the reply to a question. Fallback marks the fixed apology.
type Answer struct {
	Text     string `json:"answer"`
	Fallback bool   `json:"fallback"`
}

// Create generates an outline for topic and stores the course skeleton.
func (s *Service) Create(ctx context.Context, userID, topic string, depth int) (models.Course, error) {
	const op = "course.create"

	d, err := models.ParseDepth(depth)
	if err != nil {
		return models.Course{}, apperr.New(apperr.KindValidation, op, "Choose a depth of 20, 50 or 100 steps.", err)
	}
	topic, err = models.NormalizeTopic(topic)
	if err != nil {
		return models.Course{}, apperr.New(apperr.KindValidation, op, "Topic must be at least 2 characters.", err)
	}

	outline, err := s.gen.Outline(ctx, topic, d)
	if err != nil {
		err = s.generationFailure(op, msgOutlineGeneration, msgOutlineTransport, err)
		s.countGeneration(ctx, coursegen.FlowOutline, err)
		return models.Course{}, err
	}
	s.countGeneration(ctx, coursegen.FlowOutline, nil)

	c, err := models.NewCourse(userID, topic, d, outline, s.now())
	if err != nil {
		return models.Course{}, s.generationFailure(op, msgOutlineGeneration, msgOutlineTransport,
			&coursegen.GenerationError{Flow: coursegen.FlowOutline, Err: err})
	}

	id, err := s.store.Create(ctx, c)
	if err != nil {
		s.log.Error("store course failed", "user_id", userID, "error", err)
		return models.Course{}, apperr.New(apperr.KindPersistence, op, msgSaveFailed, err)
	}
	c.ID = id
	c.Version = 1
	s.log.Info("course created", "user_id", userID, "course_id", id, "depth", int(d))
	return c, nil
}

// List returns the user's courses, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]models.Course, error) {
	courses, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		s.log.Error("list courses failed", "user_id", userID, "error", err)
		return nil, apperr.New(apperr.KindPersistence, "course.list", msgLoadFailed, err)
	}
	return courses, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (models.Course, error) {
	c, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return models.Course{}, s.storeFailure("course.get", msgLoadFailed, err)
	}
	return c, nil
}

// UpdateSteps replaces the whole step array. Only content and completion
// may differ from the stored steps.
func (s *Service) UpdateSteps(ctx context.Context, userID, id string, steps []models.Step, expectedVersion *int) (models.Course, error) {
	const op = "course.update_steps"

	cur, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return models.Course{}, s.storeFailure(op, msgSaveFailed, err)
	}
	if err := models.CheckSkeleton(cur.Steps, steps); err != nil {
		return models.Course{}, apperr.New(apperr.KindValidation, op, "Steps can only change content and completion.", err)
	}
	if err := s.store.UpdatePartial(ctx, userID, id, models.CourseUpdate{Steps: steps, ExpectedVersion: expectedVersion}); err != nil {
		return models.Course{}, s.storeFailure(op, msgSaveFailed, err)
	}
	return s.Get(ctx, userID, id)
}

// SetCompleted flips the completion flag of one step and nothing else.
func (s *Service) SetCompleted(ctx context.Context, userID, id string, stepNumber int, completed bool) (models.Course, error) {
	const op = "course.set_completed"

	if _, err := s.patchStep(ctx, op, userID, id, stepNumber, models.StepPatch{Completed: &completed}); err != nil {
		return models.Course{}, err
	}
	return s.Get(ctx, userID, id)
}

// StepContent returns the content of a step, generating and storing it when
// it is absent or force is set.
func (s *Service) StepContent(ctx context.Context, userID, id string, stepNumber int, force bool) (StepResult, error) {
	const op = "course.step_content"

	c, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return StepResult{}, s.storeFailure(op, msgLoadFailed, err)
	}
	step, ok := c.Step(stepNumber)
	if !ok {
		return StepResult{}, apperr.New(apperr.KindNotFound, op, msgStepNotFound, nil)
	}
	if step.HasContent() && !force {
		return StepResult{Step: step}, nil
	}

	content, err := s.gen.StepContent(ctx, coursegen.StepContentInput{
		Topic:      c.Topic,
		Outline:    c.Outline,
		StepNumber: step.StepNumber,
		StepTitle:  step.Title,
	})
	if err != nil {
		err = s.generationFailure(op, msgContentFailed, msgContentFailed, err)
		s.countGeneration(ctx, coursegen.FlowContent, err)
		return StepResult{}, err
	}
	s.countGeneration(ctx, coursegen.FlowContent, nil)

	steps, err := s.patchStep(ctx, op, userID, id, stepNumber, models.StepPatch{Content: &content})
	if err != nil {
		return StepResult{}, err
	}

	step, _ = models.Course{Steps: steps}.Step(stepNumber)
	s.log.Info("step content generated", "user_id", userID, "course_id", id, "step", stepNumber, "forced", force)
	return StepResult{Step: step, Generated: true}, nil
}

// Ask answers a question about a step. Model failures never surface: the
// fixed FallbackAnswer is returned instead.
func (s *Service) Ask(ctx context.Context, userID, id string, stepNumber int, question string) (Answer, error) {
	const op = "course.ask"

	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, apperr.New(apperr.KindValidation, op, "Question must not be empty.", nil)
	}
	c, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return Answer{}, s.storeFailure(op, msgLoadFailed, err)
	}
	step, ok := c.Step(stepNumber)
	if !ok {
		return Answer{}, apperr.New(apperr.KindNotFound, op, msgStepNotFound, nil)
	}

	in := coursegen.QuestionInput{Topic: c.Topic, StepTitle: step.Title, Question: question}
	if step.Content != nil {
		in.StepContent = *step.Content
	}
	text, err := s.gen.Answer(ctx, in)
	s.countGeneration(ctx, coursegen.FlowQuestion, err)
	if err != nil {
		s.log.Warn("answer failed, using fallback", "user_id", userID, "course_id", id, "step", stepNumber, "error", err)
		return Answer{Text: FallbackAnswer, Fallback: true}, nil
	}
	return Answer{Text: text}, nil
}

// Delete removes the course and all of its steps.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.Delete(ctx, userID, id); err != nil {
		return s.storeFailure("course.delete", msgDeleteFailed, err)
	}
	s.log.Info("course deleted", "user_id", userID, "course_id", id)
	return nil
}

// mergeAttempts bounds how often patchStep re-reads after losing a race.
const mergeAttempts = 5

// patchStep merges p into one step and writes the steps back only if nobody
// else wrote in between. A lost race re-reads and merges again, so other
// steps changed meanwhile are kept.
func (s *Service) patchStep(ctx context.Context, op, userID, id string, stepNumber int, p models.StepPatch) ([]models.Step, error) {
	var err error
	for range mergeAttempts {
		var cur models.Course
		cur, err = s.store.Get(ctx, userID, id)
		if err != nil {
			return nil, s.storeFailure(op, msgSaveFailed, err)
		}
		steps, ok := models.ApplyStepPatch(cur.Steps, stepNumber, p)
		if !ok {
			return nil, apperr.New(apperr.KindNotFound, op, msgStepNotFound, nil)
		}
		version := cur.Version
		err = s.store.UpdatePartial(ctx, userID, id, models.CourseUpdate{Steps: steps, ExpectedVersion: &version})
		if err == nil {
			return steps, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, s.storeFailure(op, msgSaveFailed, err)
		}
		s.log.Debug("step write lost a race, merging again", "op", op, "course_id", id, "step", stepNumber)
	}
	return nil, s.storeFailure(op, msgSaveFailed, err)
}

func (s *Service) generationFailure(op, generationMsg, transportMsg string, err error) error {
	var gen *coursegen.GenerationError
	if errors.As(err, &gen) {
		s.log.Warn("generation failed", "op", op, "error", err)
		return apperr.New(apperr.KindGeneration, op, generationMsg, err)
	}
	if errors.Is(err, models.ErrInvalidTopic) || errors.Is(err, models.ErrInvalidDepth) {
		return apperr.New(apperr.KindValidation, op, err.Error(), err)
	}
	s.log.Error("model unreachable", "op", op, "error", err)
	return apperr.New(apperr.KindTransport, op, transportMsg, err)
}

func (s *Service) storeFailure(op, msg string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.New(apperr.KindNotFound, op, msgCourseNotFound, err)
	case errors.Is(err, store.ErrConflict):
		return apperr.New(apperr.KindConflict, op, msgConflict, err)
	}
	s.log.Error("store failed", "op", op, "error", err)
	return apperr.New(apperr.KindPersistence, op, msg, err)
}
