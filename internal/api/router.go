package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Register mounts the API under /api on r.
func (h *ApiHandler) Register(r *mux.Router) {
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/register", h.RegisterUser).Methods(http.MethodPost)
	apiRouter.HandleFunc("/login", h.LoginUser).Methods(http.MethodPost)
	apiRouter.HandleFunc("/logout", h.LogoutUser).Methods(http.MethodPost)

	s := apiRouter.PathPrefix("/").Subrouter()
	s.Use(AuthMiddleware(h.Auth))
	s.HandleFunc("/me", h.Me).Methods(http.MethodGet)
	s.HandleFunc("/courses", h.ListCourses).Methods(http.MethodGet)
	s.HandleFunc("/courses", h.CreateCourse).Methods(http.MethodPost)
	s.HandleFunc("/courses/{course_id}", h.GetCourse).Methods(http.MethodGet)
	s.HandleFunc("/courses/{course_id}", h.PatchCourse).Methods(http.MethodPatch)
	s.HandleFunc("/courses/{course_id}", h.DeleteCourse).Methods(http.MethodDelete)
	s.HandleFunc("/courses/{course_id}/steps/{step_number:[0-9]+}/completed", h.SetStepCompleted).Methods(http.MethodPut)
	s.HandleFunc("/courses/{course_id}/steps/{step_number:[0-9]+}/content", h.StepContent).Methods(http.MethodPost)
	s.HandleFunc("/courses/{course_id}/steps/{step_number:[0-9]+}/questions", h.AskQuestion).Methods(http.MethodPost)
	s.HandleFunc("/courses/{course_id}/steps/{step_number:[0-9]+}/audio", h.StepAudio).Methods(http.MethodGet)
}
