// Package state holds the client's view of the user's courses. All changes
// go through Reduce. An optimistic change is undone by a compensating action
// that touches only what the change touched.
package state

import (
	"sync"

	"stepwise/internal/models"
)

// State is the list of courses, newest first, and the selected course.
type State struct {
	Courses  []models.Course
	ActiveID string
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{ActiveID: s.ActiveID}
	if s.Courses != nil {
		out.Courses = make([]models.Course, len(s.Courses))
		for i, c := range s.Courses {
			out.Courses[i] = c.Clone()
		}
	}
	return out
}

// Active returns the selected course.
func (s State) Active() (models.Course, bool) {
	return s.Find(s.ActiveID)
}

// IndexOf returns the position of a course, or -1.
func (s State) IndexOf(id string) int {
	for i, c := range s.Courses {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s State) Find(id string) (models.Course, bool) {
	if id == "" {
		return models.Course{}, false
	}
	for _, c := range s.Courses {
		if c.ID == id {
			return c, true
		}
	}
	return models.Course{}, false
}

// Action is a state transition understood by Reduce.
type Action interface {
	isAction()
}

// Loaded replaces the course list. The selection survives when the course
// is still present.
type Loaded struct {
	Courses []models.Course
}

// CourseAdded puts a new course first and selects it.
type CourseAdded struct {
	Course models.Course
}

type CourseSelected struct {
	ID string
}

// StepPatched merges content and/or completion into one step.
type StepPatched struct {
	CourseID   string
	StepNumber int
	Patch      models.StepPatch
}

// CourseRemoved drops a course and clears the selection if it was selected.
type CourseRemoved struct {
	ID string
}

// CourseRestored puts a removed course back at Index, clamped to the list.
// Active reselects it when nothing else was selected in the meantime.
type CourseRestored struct {
	Course models.Course
	Index  int
	Active bool
}

// Restore replaces the whole state. It is for resets, not for undoing a
// single action.
type Restore struct {
	Snapshot State
}

func (Loaded) isAction()         {}
func (CourseAdded) isAction()    {}
func (CourseSelected) isAction() {}
func (StepPatched) isAction()    {}
func (CourseRemoved) isAction()  {}
func (CourseRestored) isAction() {}
func (Restore) isAction()        {}

// Reduce returns the state after applying a. s is never modified.
func Reduce(s State, a Action) State {
	next := s.Clone()

	switch a := a.(type) {
	case Loaded:
		next.Courses = make([]models.Course, len(a.Courses))
		for i, c := range a.Courses {
			next.Courses[i] = c.Clone()
		}
		if _, ok := next.Find(next.ActiveID); !ok {
			next.ActiveID = ""
		}

	case CourseAdded:
		next.Courses = append([]models.Course{a.Course.Clone()}, next.Courses...)
		next.ActiveID = a.Course.ID

	case CourseSelected:
		if _, ok := next.Find(a.ID); ok {
			next.ActiveID = a.ID
		}

	case StepPatched:
		for i, c := range next.Courses {
			if c.ID != a.CourseID {
				continue
			}
			if steps, ok := models.ApplyStepPatch(c.Steps, a.StepNumber, a.Patch); ok {
				next.Courses[i].Steps = steps
			}
			break
		}

	case CourseRemoved:
		kept := next.Courses[:0]
		for _, c := range next.Courses {
			if c.ID != a.ID {
				kept = append(kept, c)
			}
		}
		next.Courses = kept
		if next.ActiveID == a.ID {
			next.ActiveID = ""
		}

	case CourseRestored:
		if _, ok := next.Find(a.Course.ID); ok {
			break
		}
		i := min(max(a.Index, 0), len(next.Courses))
		next.Courses = append(next.Courses[:i], append([]models.Course{a.Course.Clone()}, next.Courses[i:]...)...)
		if a.Active && next.ActiveID == "" {
			next.ActiveID = a.Course.ID
		}

	case Restore:
		return a.Snapshot.Clone()
	}
	return next
}

// Container serializes dispatches and notifies subscribers after each one.
type Container struct {
	mu    sync.Mutex
	state State
	subs  []func(State)
}

func NewContainer(initial State) *Container {
	return &Container{state: initial.Clone()}
}

// Dispatch applies a and returns the new state.
func (c *Container) Dispatch(a Action) State {
	c.mu.Lock()
	c.state = Reduce(c.state, a)
	s := c.state.Clone()
	subs := append([]func(State){}, c.subs...)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(s.Clone())
	}
	return s
}

// Snapshot returns a copy of the current state.
func (c *Container) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// State is an alias of Snapshot for readers.
func (c *Container) State() State {
	return c.Snapshot()
}

// Subscribe registers fn to run after every dispatch.
func (c *Container) Subscribe(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}
