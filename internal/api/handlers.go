package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"stepwise/internal/apperr"
	"stepwise/internal/course"
	"stepwise/internal/logger"
	"stepwise/internal/models"
	"stepwise/internal/render"
	"stepwise/internal/speech"
	"stepwise/internal/store"
)

const minPasswordLength = 8

// ApiHandler serves the JSON API.
type ApiHandler struct {
	Courses  *course.Service
	Users    store.UserStore
	Auth     AuthConfig
	Markdown *render.Markdown
	// Narrator is nil when speech synthesis is not configured.
	Narrator speech.Narrator
	Log      *logger.Logger
	now      func() time.Time
}

func NewApiHandler(courses *course.Service, users store.UserStore, auth AuthConfig, narrator speech.Narrator, log *logger.Logger) *ApiHandler {
	return &ApiHandler{
		Courses:  courses,
		Users:    users,
		Auth:     auth,
		Markdown: render.NewMarkdown(),
		Narrator: narrator,
		Log:      log.With("component", "api"),
		now:      time.Now,
	}
}

// Credentials - body of register and login requests.
type Credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// CourseView is a course with its progress summary.
type CourseView struct {
	models.Course
	Progress models.Progress `json:"progress"`
}

func newCourseView(c models.Course) CourseView {
	return CourseView{Course: c, Progress: c.Progress()}
}

type CreateCourseRequest struct {
	Topic string `json:"topic"`
	Depth int    `json:"depth"`
}

type PatchCourseRequest struct {
	Steps   []models.Step `json:"steps"`
	Version *int          `json:"version,omitempty"`
}

type CompletedRequest struct {
	Completed bool `json:"completed"`
}

type QuestionRequest struct {
	Question string `json:"question"`
}

// StepContentResponse is the body returned for a content request.
type StepContentResponse struct {
	StepNumber  int    `json:"step_number"`
	Content     string `json:"content"`
	ContentHTML string `json:"content_html"`
	Generated   bool   `json:"generated"`
}

func (h *ApiHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	creds.Email = strings.TrimSpace(creds.Email)
	if _, err := mail.ParseAddress(creds.Email); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	if len(creds.Password) < minPasswordLength {
		respondWithError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	displayName := strings.TrimSpace(creds.DisplayName)
	if displayName == "" {
		displayName = strings.SplitN(creds.Email, "@", 2)[0]
	}
	user, err := h.Users.CreateUser(r.Context(), models.User{
		Email:        creds.Email,
		DisplayName:  displayName,
		PasswordHash: string(hashedPassword),
		CreatedAt:    h.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			respondWithError(w, http.StatusConflict, "Email already exists")
			return
		}
		h.Log.Error("create user failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database error")
		return
	}

	h.Log.Info("user registered", "user_id", user.ID)
	respondWithJSON(w, http.StatusCreated, user.Identity())
}

func (h *ApiHandler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	user, err := h.Users.GetUserByEmail(r.Context(), strings.TrimSpace(creds.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		} else {
			h.Log.Error("load user failed", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Database error")
		}
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		respondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	tokenString, expires, err := h.Auth.IssueToken(user.Identity(), h.now())
	if err != nil {
		h.Log.Error("issue token failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}

	http.SetCookie(w, h.Auth.sessionCookie(tokenString, expires))
	respondWithJSON(w, http.StatusOK, map[string]any{"token": tokenString, "user": user.Identity()})
}

func (h *ApiHandler) LogoutUser(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.Auth.clearedCookie())
	w.WriteHeader(http.StatusNoContent)
}

func (h *ApiHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token (no user ID)")
		return
	}
	respondWithJSON(w, http.StatusOK, id)
}

func (h *ApiHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	courses, err := h.Courses.List(r.Context(), uid)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	views := make([]CourseView, len(courses))
	for i, c := range courses {
		views[i] = newCourseView(c)
	}
	respondWithJSON(w, http.StatusOK, views)
}

func (h *ApiHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req CreateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	c, err := h.Courses.Create(r.Context(), uid, req.Topic, req.Depth)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, newCourseView(c))
}

func (h *ApiHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	c, err := h.Courses.Get(r.Context(), uid, mux.Vars(r)["course_id"])
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newCourseView(c))
}

func (h *ApiHandler) PatchCourse(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req PatchCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Steps == nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	c, err := h.Courses.UpdateSteps(r.Context(), uid, mux.Vars(r)["course_id"], req.Steps, req.Version)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newCourseView(c))
}

func (h *ApiHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.Courses.Delete(r.Context(), uid, mux.Vars(r)["course_id"]); err != nil {
		respondWithAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ApiHandler) SetStepCompleted(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	stepNumber, ok := stepFromPath(w, r)
	if !ok {
		return
	}
	var req CompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	c, err := h.Courses.SetCompleted(r.Context(), uid, mux.Vars(r)["course_id"], stepNumber, req.Completed)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newCourseView(c))
}

func (h *ApiHandler) StepContent(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	stepNumber, ok := stepFromPath(w, r)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	res, err := h.Courses.StepContent(r.Context(), uid, mux.Vars(r)["course_id"], stepNumber, force)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	var content string
	if res.Step.Content != nil {
		content = *res.Step.Content
	}
	contentHTML, err := h.Markdown.HTML(content)
	if err != nil {
		h.Log.Warn("render step content failed", "step", stepNumber, "error", err)
	}
	respondWithJSON(w, http.StatusOK, StepContentResponse{
		StepNumber:  res.Step.StepNumber,
		Content:     content,
		ContentHTML: string(contentHTML),
		Generated:   res.Generated,
	})
}

func (h *ApiHandler) AskQuestion(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	stepNumber, ok := stepFromPath(w, r)
	if !ok {
		return
	}
	var req QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	ans, err := h.Courses.Ask(r.Context(), uid, mux.Vars(r)["course_id"], stepNumber, req.Question)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ans)
}

// StepAudio narrates a step that already has content.
func (h *ApiHandler) StepAudio(w http.ResponseWriter, r *http.Request) {
	if h.Narrator == nil {
		respondWithError(w, http.StatusNotFound, "Narration is not enabled")
		return
	}
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	stepNumber, ok := stepFromPath(w, r)
	if !ok {
		return
	}
	c, err := h.Courses.Get(r.Context(), uid, mux.Vars(r)["course_id"])
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	step, found := c.Step(stepNumber)
	if !found || !step.HasContent() {
		respondWithError(w, http.StatusNotFound, "Step has no content yet")
		return
	}

	audio, err := h.narrate(r.Context(), step)
	if err != nil {
		h.Log.Error("narration failed", "course_id", c.ID, "step", stepNumber, "error", err)
		respondWithError(w, http.StatusBadGateway, "Failed to narrate step")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

func (h *ApiHandler) narrate(ctx context.Context, step models.Step) ([]byte, error) {
	text, err := speech.StepText(h.Markdown, step.Title, *step.Content)
	if err != nil {
		return nil, err
	}
	return h.Narrator.Synthesize(ctx, text)
}

func (h *ApiHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token (no user ID)")
		return "", false
	}
	return id.UID, true
}

func stepFromPath(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(mux.Vars(r)["step_number"])
	if err != nil || n < 1 {
		respondWithError(w, http.StatusBadRequest, "Invalid step number")
		return 0, false
	}
	return n, true
}

// --- Response helpers ---

// respondWithJSON writes payload as JSON with the given status.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithAppError maps a classified failure onto status, message and kind.
func respondWithAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	respondWithJSON(w, apperr.HTTPStatus(kind), map[string]string{
		"error": apperr.MessageOf(err),
		"kind":  string(kind),
	})
}
