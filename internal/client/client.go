// Package client talks to the course API and keeps a local view of the
// user's courses that is updated optimistically.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stepwise/internal/models"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// StepContent is the server's answer to a content request.
type StepContent struct {
	StepNumber  int    `json:"step_number"`
	Content     string `json:"content"`
	ContentHTML string `json:"content_html"`
	Generated   bool   `json:"generated"`
}

// Answer is the reply to a question.
type Answer struct {
	Text     string `json:"answer"`
	Fallback bool   `json:"fallback"`
}

// Client is a typed client for the JSON API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) Register(ctx context.Context, email, password, displayName string) (models.Identity, error) {
	var id models.Identity
	err := c.do(ctx, http.MethodPost, "/api/register", map[string]string{
		"email": email, "password": password, "display_name": displayName,
	}, &id)
	return id, err
}

// Login stores the returned token on c and returns it.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/login", map[string]string{"email": email, "password": password}, &out); err != nil {
		return "", err
	}
	c.Token = out.Token
	return out.Token, nil
}

func (c *Client) Me(ctx context.Context) (models.Identity, error) {
	var id models.Identity
	err := c.do(ctx, http.MethodGet, "/api/me", nil, &id)
	return id, err
}

func (c *Client) ListCourses(ctx context.Context) ([]models.Course, error) {
	var out []models.Course
	err := c.do(ctx, http.MethodGet, "/api/courses", nil, &out)
	return out, err
}

func (c *Client) CreateCourse(ctx context.Context, topic string, depth models.Depth) (models.Course, error) {
	var out models.Course
	err := c.do(ctx, http.MethodPost, "/api/courses", map[string]any{"topic": topic, "depth": int(depth)}, &out)
	return out, err
}

func (c *Client) GetCourse(ctx context.Context, id string) (models.Course, error) {
	var out models.Course
	err := c.do(ctx, http.MethodGet, "/api/courses/"+url.PathEscape(id), nil, &out)
	return out, err
}

// UpdateSteps replaces the steps. A nil version means last write wins.
func (c *Client) UpdateSteps(ctx context.Context, id string, steps []models.Step, version *int) (models.Course, error) {
	var out models.Course
	err := c.do(ctx, http.MethodPatch, "/api/courses/"+url.PathEscape(id), map[string]any{"steps": steps, "version": version}, &out)
	return out, err
}

func (c *Client) SetCompleted(ctx context.Context, id string, step int, completed bool) (models.Course, error) {
	var out models.Course
	err := c.do(ctx, http.MethodPut, c.stepPath(id, step, "completed"), map[string]bool{"completed": completed}, &out)
	return out, err
}

func (c *Client) StepContent(ctx context.Context, id string, step int, force bool) (StepContent, error) {
	path := c.stepPath(id, step, "content")
	if force {
		path += "?force=true"
	}
	var out StepContent
	err := c.do(ctx, http.MethodPost, path, nil, &out)
	return out, err
}

func (c *Client) Ask(ctx context.Context, id string, step int, question string) (Answer, error) {
	var out Answer
	err := c.do(ctx, http.MethodPost, c.stepPath(id, step, "questions"), map[string]string{"question": question}, &out)
	return out, err
}

func (c *Client) DeleteCourse(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/courses/"+url.PathEscape(id), nil, nil)
}

// StepAudio downloads the MP3 narration of a step.
func (c *Client) StepAudio(ctx context.Context, id string, step int) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, c.stepPath(id, step, "audio"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) stepPath(id string, step int, leaf string) string {
	return fmt.Sprintf("/api/courses/%s/steps/%d/%s", url.PathEscape(id), step, leaf)
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if dst == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// send performs the request and turns non-2xx answers into *APIError.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		apiErr.Message = payload.Error
		apiErr.Kind = payload.Kind
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return nil, apiErr
}
