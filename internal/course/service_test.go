package course

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepwise/internal/apperr"
	"stepwise/internal/coursegen"
	"stepwise/internal/llm"
	"stepwise/internal/logger"
	"stepwise/internal/models"
	"stepwise/internal/store"
)

func outlineJSON(n int) map[string]any {
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{"step": i + 1, "title": fmt.Sprintf("Step %d", i+1), "description": "covers things"}
	}
	return map[string]any{"courseOutline": items}
}

// failingStore fails every write after the wrapped store accepted reads.
type failingStore struct {
	store.CourseStore
	failUpdate bool
	failDelete bool
	failCreate bool
	conflict   bool
}

var errDiskFull = errors.New("disk full")

func (f *failingStore) Create(ctx context.Context, c models.Course) (string, error) {
	if f.failCreate {
		return "", errDiskFull
	}
	return f.CourseStore.Create(ctx, c)
}

func (f *failingStore) UpdatePartial(ctx context.Context, userID, id string, u models.CourseUpdate) error {
	if f.failUpdate {
		return errDiskFull
	}
	if f.conflict {
		return store.ErrConflict
	}
	return f.CourseStore.UpdatePartial(ctx, userID, id, u)
}

func (f *failingStore) Delete(ctx context.Context, userID, id string) error {
	if f.failDelete {
		return errDiskFull
	}
	return f.CourseStore.Delete(ctx, userID, id)
}

type fixture struct {
	svc   *Service
	mock  *llm.MockProvider
	store *failingStore
}

func newFixture() fixture {
	m := llm.NewMockProvider()
	fs := &failingStore{CourseStore: store.NewMemory()}
	return fixture{svc: NewService(fs, coursegen.New(m), logger.Nop()), mock: m, store: fs}
}

func (f fixture) course(t *testing.T, user string) models.Course {
	t.Helper()
	f.mock.AddJSON(outlineJSON(20))
	c, err := f.svc.Create(context.Background(), user, "Music Theory", 20)
	require.NoError(t, err)
	return c
}

func TestCreateBuildsSkeleton(t *testing.T) {
	f := newFixture()
	c := f.course(t, "u1")

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "u1", c.UserID)
	assert.Equal(t, models.DepthOverview, c.Depth)
	require.Len(t, c.Steps, 20)
	for i, s := range c.Steps {
		assert.Equal(t, i+1, s.StepNumber)
		assert.Nil(t, s.Content)
		assert.False(t, s.Completed)
	}

	list, err := f.svc.List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)
}

func TestCreateRejectsBadInputWithoutCallingModel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "u1", "Music", 30)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.Create(ctx, "u1", " x ", 20)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	assert.Zero(t, f.mock.CallCount())
}

func TestCreateWrongStepCountIsGenerationFailure(t *testing.T) {
	f := newFixture()
	f.mock.AddJSON(outlineJSON(19))

	_, err := f.svc.Create(context.Background(), "u1", "Music Theory", 20)
	require.Error(t, err)
	assert.Equal(t, apperr.KindGeneration, apperr.KindOf(err))
	assert.Equal(t, msgOutlineGeneration, apperr.MessageOf(err))

	list, err := f.svc.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, list, "nothing is persisted on failure")
}

func TestCreateTransportFailure(t *testing.T) {
	f := newFixture()
	f.mock.AddResponse(llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("dial tcp")}})

	_, err := f.svc.Create(context.Background(), "u1", "Music Theory", 20)
	assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
	assert.Equal(t, msgOutlineTransport, apperr.MessageOf(err))
}

func TestCreatePersistenceFailure(t *testing.T) {
	f := newFixture()
	f.store.failCreate = true
	f.mock.AddJSON(outlineJSON(20))

	_, err := f.svc.Create(context.Background(), "u1", "Music Theory", 20)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	assert.ErrorIs(t, err, errDiskFull)
}

func TestStepContentGeneratesOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.course(t, "u1")

	f.mock.AddJSON(map[string]any{"content": "## Intervals\n\nA third spans..."})
	res, err := f.svc.StepContent(ctx, "u1", c.ID, 3, false)
	require.NoError(t, err)
	assert.True(t, res.Generated)
	require.NotNil(t, res.Step.Content)
	assert.Contains(t, *res.Step.Content, "Intervals")

	calls := f.mock.CallCount()
	res, err = f.svc.StepContent(ctx, "u1", c.ID, 3, false)
	require.NoError(t, err)
	assert.False(t, res.Generated)
	assert.Equal(t, calls, f.mock.CallCount(), "stored content is served without a model call")

	got, err := f.svc.Get(ctx, "u1", c.ID)
	require.NoError(t, err)
	for _, s := range got.Steps {
		if s.StepNumber == 3 {
			assert.True(t, s.HasContent())
		} else {
			assert.Nil(t, s.Content)
		}
	}
}

func TestStepContentForceRegenerates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.course(t, "u1")

	f.mock.AddJSON(map[string]any{"content": "first"})
	_, err := f.svc.StepContent(ctx, "u1", c.ID, 1, false)
	require.NoError(t, err)

	f.mock.AddJSON(map[string]any{"content": "second"})
	res, err := f.svc.StepContent(ctx, "u1", c.ID, 1, true)
	require.NoError(t, err)
	assert.True(t, res.Generated)
	assert.Equal(t, "second", *res.Step.Content)
}

func TestStepContentFailureLeavesStepEmpty(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.course(t, "u1")

	f.mock.AddResponse(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})
	_, err := f.svc.StepContent(ctx, "u1", c.ID, 2, false)
	require.Error(t, err)
	assert.Equal(t, msgContentFailed, apperr.MessageOf(err))

	got, err := f.svc.Get(ctx, "u1", c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Steps[1].Content)
}

func TestStepContentUnknownStep(t *testing.T) {
	f := newFixture()
	c := f.course(t, "u1")

	_, err := f.svc.StepContent(context.Background(), "u1", c.ID, 21, false)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSetCompletedTouchesOneStep(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.course(t, "u1")

	f.mock.AddJSON(map[string]any{"content": "body"})
	_, err := f.svc.StepContent(ctx, "u1", c.ID, 1, false)
	require.NoError(t, err)

	updated, err := f.svc.SetCompleted(ctx, "u1", c.ID, 1, true)
	require.NoError(t, err)
	assert.True(t, updated.Steps[0].Completed)
	assert.Equal(t, "body", *updated.Steps[0].Content)
	assert.Equal(t, 1, updated.Progress().Completed)

	got, err := f.svc.Get(ctx, "u1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Steps, got.Steps)

	updated, err = f.svc.SetCompleted(ctx, "u1", c.ID, 1, false)
	require.NoError(t, err)
	assert.Zero(t, updated.Progress().Completed)
}

func TestSetCompletedPersistenceFailure(t *testing.T) {
	f := newFixture()
	c := f.course(t, "u1")
	f.store.failUpdate = true

	_, err := f.svc.SetCompleted(context.Background(), "u1", c.ID, 1, true)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	assert.Equal(t, msgSaveFailed, apperr.MessageOf(err))
}

// raceStore holds the first n step writes until all n have read the course,
// so every writer merges into the same version.
type raceStore struct {
	store.CourseStore
	held    atomic.Int32
	arrived sync.WaitGroup
}

func newRaceStore(inner store.CourseStore, n int) *raceStore {
	r := &raceStore{CourseStore: inner}
	r.arrived.Add(n)
	r.held.Store(int32(n))
	return r
}

func (r *raceStore) UpdatePartial(ctx context.Context, userID, id string, u models.CourseUpdate) error {
	if r.held.Add(-1) >= 0 {
		r.arrived.Done()
		r.arrived.Wait()
	}
	return r.CourseStore.UpdatePartial(ctx, userID, id, u)
}

// echoGenerator writes the step number into the content.
type echoGenerator struct{}

func (echoGenerator) Outline(context.Context, string, models.Depth) ([]models.OutlineItem, error) {
	return nil, errors.New("not used")
}

func (echoGenerator) StepContent(_ context.Context, in coursegen.StepContentInput) (string, error) {
	return fmt.Sprintf("content %d", in.StepNumber), nil
}

func (echoGenerator) Answer(context.Context, coursegen.QuestionInput) (string, error) {
	return "", errors.New("not used")
}

func seededCourse(t *testing.T, s store.CourseStore) string {
	t.Helper()
	steps := make([]models.Step, 5)
	for i := range steps {
		steps[i] = models.Step{StepNumber: i + 1, Title: fmt.Sprintf("Step %d", i+1)}
	}
	id, err := s.Create(context.Background(), models.Course{UserID: "u1", Topic: "Music Theory", Depth: models.DepthOverview, Steps: steps})
	require.NoError(t, err)
	return id
}

func TestConcurrentStepContentKeepsBothSteps(t *testing.T) {
	rs := newRaceStore(store.NewMemory(), 2)
	id := seededCourse(t, rs)
	svc := NewService(rs, echoGenerator{}, logger.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, n := range []int{3, 4} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.StepContent(ctx, "u1", id, n, false)
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got, err := svc.Get(ctx, "u1", id)
	require.NoError(t, err)
	require.NotNil(t, got.Steps[2].Content)
	require.NotNil(t, got.Steps[3].Content)
	assert.Equal(t, "content 3", *got.Steps[2].Content)
	assert.Equal(t, "content 4", *got.Steps[3].Content)
}

func TestConcurrentToggleKeepsGeneratedContent(t *testing.T) {
	rs := newRaceStore(store.NewMemory(), 2)
	id := seededCourse(t, rs)
	svc := NewService(rs, echoGenerator{}, logger.Nop())
	ctx := context.Background()

	var wg sync.WaitGroup
	var contentErr, toggleErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, contentErr = svc.StepContent(ctx, "u1", id, 2, false)
	}()
	go func() {
		defer wg.Done()
		_, toggleErr = svc.SetCompleted(ctx, "u1", id, 2, true)
	}()
	wg.Wait()
	require.NoError(t, contentErr)
	require.NoError(t, toggleErr)

	got, err := svc.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.True(t, got.Steps[1].Completed)
	require.NotNil(t, got.Steps[1].Content)
	assert.Equal(t, "content 2", *got.Steps[1].Content)
}

func TestSetCompletedReturnsStoredVersion(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.course(t, "u1")

	updated, err := f.svc.SetCompleted(ctx, "u1", c.ID, 2, true)
	require.NoError(t, err)
	got, err := f.svc.Get(ctx, "u1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Version, updated.Version)

	steps := models.CloneSteps(updated.Steps)
	steps[2].Completed = true
	version := updated.Version
	_, err = f.svc.UpdateSteps(ctx, "u1", c.ID, steps, &version)
	assert.NoError(t, err, "the returned version is accepted by a versioned update")
}

func TestStepWriteGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFixture()
	c := f.course(t, "u1")
	f.store.conflict = true

	_, err := f.svc.SetCompleted(context.Background(), "u1", c.ID, 1, true)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestUpdateStepsVersioning(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.course(t, "u1")

	steps := models.CloneSteps(c.Steps)
	steps[4].Completed = true
	stale := c.Version

	updated, err := f.svc.UpdateSteps(ctx, "u1", c.ID, steps, &stale)
	require.NoError(t, err)
	assert.True(t, updated.Steps[4].Completed)
	assert.Equal(t, stale+1, updated.Version)

	_, err = f.svc.UpdateSteps(ctx, "u1", c.ID, steps, &stale)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	renamed := models.CloneSteps(c.Steps)
	renamed[0].Title = "Other"
	_, err = f.svc.UpdateSteps(ctx, "u1", c.ID, renamed, nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAskFallsBackOnModelFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.course(t, "u1")

	f.mock.AddJSON(map[string]any{"answer": "A fifth is seven semitones."})
	ans, err := f.svc.Ask(ctx, "u1", c.ID, 2, "What is a fifth?")
	require.NoError(t, err)
	assert.False(t, ans.Fallback)
	assert.Equal(t, "A fifth is seven semitones.", ans.Text)

	f.mock.AddResponse(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})
	ans, err = f.svc.Ask(ctx, "u1", c.ID, 2, "And a fourth?")
	require.NoError(t, err)
	assert.True(t, ans.Fallback)
	assert.Equal(t, FallbackAnswer, ans.Text)

	_, err = f.svc.Ask(ctx, "u1", c.ID, 2, "   ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestOwnershipIsEnforced(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.course(t, "owner")

	_, err := f.svc.Get(ctx, "intruder", c.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.SetCompleted(ctx, "intruder", c.ID, 1, true)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	err = f.svc.Delete(ctx, "intruder", c.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.svc.Get(ctx, "owner", c.ID)
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.course(t, "u1")

	f.store.failDelete = true
	err := f.svc.Delete(ctx, "u1", c.ID)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	assert.Equal(t, msgDeleteFailed, apperr.MessageOf(err))

	f.store.failDelete = false
	require.NoError(t, f.svc.Delete(ctx, "u1", c.ID))

	_, err = f.svc.Get(ctx, "u1", c.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
