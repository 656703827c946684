// Package web serves the browser pages: a landing page with the login form
// and the learning page with the course history and the active course.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"stepwise/internal/api"
	"stepwise/internal/apperr"
	"stepwise/internal/course"
	"stepwise/internal/logger"
	"stepwise/internal/models"
	"stepwise/internal/render"
)

// ContentPlaceholder is shown for a step whose content was not generated yet.
const ContentPlaceholder = "Click a step to generate and view its content."

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

type Pages struct {
	courses  *course.Service
	auth     api.AuthConfig
	markdown *render.Markdown
	log      *logger.Logger
	tmpl     *template.Template
	now      func() time.Time
}

func NewPages(courses *course.Service, auth api.AuthConfig, log *logger.Logger) (*Pages, error) {
	p := &Pages{
		courses:  courses,
		auth:     auth,
		markdown: render.NewMarkdown(),
		log:      log.With("component", "web"),
		now:      time.Now,
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"ago": func(t time.Time) string { return humanize.RelTime(t, p.now(), "ago", "from now") },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	p.tmpl = tmpl
	return p, nil
}

// Register mounts the pages and static assets on r.
func (p *Pages) Register(r *mux.Router) {
	static, _ := fs.Sub(staticFS, "static")
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.HandleFunc("/", p.Landing).Methods(http.MethodGet)
	r.HandleFunc("/app", p.App).Methods(http.MethodGet)
	r.HandleFunc("/app/courses", p.CreateCourse).Methods(http.MethodPost)

	// Old bookmarks.
	for _, path := range []string{"/login", "/register", "/learn"} {
		r.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
		}).Methods(http.MethodGet)
	}
}

type stepView struct {
	models.Step
	HTML template.HTML
}

type appPage struct {
	User     models.Identity
	Courses  []models.Course
	Active   *models.Course
	ActiveID string
	Steps    []stepView
	Progress models.Progress
	Depths   []models.Depth
	Error    string
	Topic    string
	Empty    string
}

func (p *Pages) identity(r *http.Request) (models.Identity, bool) {
	claims, err := p.auth.FromRequest(r)
	if err != nil {
		return models.Identity{}, false
	}
	return claims.Identity(), true
}

func (p *Pages) Landing(w http.ResponseWriter, r *http.Request) {
	if _, ok := p.identity(r); ok {
		http.Redirect(w, r, "/app", http.StatusSeeOther)
		return
	}
	p.render(w, http.StatusOK, "landing.html", nil)
}

func (p *Pages) App(w http.ResponseWriter, r *http.Request) {
	id, ok := p.identity(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	page, status := p.appPage(r, id, r.URL.Query().Get("course"))
	p.render(w, status, "app.html", page)
}

// CreateCourse handles the new course form and redirects to the course.
func (p *Pages) CreateCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := p.identity(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	topic := r.PostFormValue("topic")
	depth, _ := strconv.Atoi(r.PostFormValue("depth"))

	c, err := p.courses.Create(r.Context(), id.UID, topic, depth)
	if err != nil {
		page, _ := p.appPage(r, id, "")
		page.Error = apperr.MessageOf(err)
		page.Topic = topic
		p.render(w, apperr.HTTPStatus(apperr.KindOf(err)), "app.html", page)
		return
	}
	http.Redirect(w, r, "/app?course="+c.ID, http.StatusSeeOther)
}

func (p *Pages) appPage(r *http.Request, id models.Identity, activeID string) (appPage, int) {
	page := appPage{
		User:   id,
		Depths: []models.Depth{models.DepthOverview, models.DepthDeepDive, models.DepthMastery},
		Empty:  ContentPlaceholder,
	}
	courses, err := p.courses.List(r.Context(), id.UID)
	if err != nil {
		page.Error = apperr.MessageOf(err)
		return page, http.StatusInternalServerError
	}
	page.Courses = courses
	if activeID == "" {
		return page, http.StatusOK
	}

	for i := range courses {
		if courses[i].ID != activeID {
			continue
		}
		c := courses[i]
		page.Active = &c
		page.ActiveID = c.ID
		page.Progress = c.Progress()
		page.Steps = make([]stepView, len(c.Steps))
		for j, s := range c.Steps {
			page.Steps[j] = stepView{Step: s}
			if s.Content == nil {
				continue
			}
			html, err := p.markdown.HTML(*s.Content)
			if err != nil {
				p.log.Warn("render step failed", "course_id", c.ID, "step", s.StepNumber, "error", err)
				continue
			}
			page.Steps[j].HTML = html
		}
		return page, http.StatusOK
	}
	page.Error = "Course not found."
	return page, http.StatusNotFound
}

func (p *Pages) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := p.tmpl.ExecuteTemplate(w, name, data); err != nil {
		p.log.Error("render template failed", "template", name, "error", err)
	}
}
