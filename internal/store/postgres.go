package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"stepwise/internal/models"
)

// Postgres keeps each course as one row whose steps column is a JSONB
// document.
type Postgres struct {
	DB *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{DB: db}
}

func (p *Postgres) Close() error { return p.DB.Close() }

func (p *Postgres) Create(ctx context.Context, c models.Course) (string, error) {
	steps, err := json.Marshal(c.Steps)
	if err != nil {
		return "", fmt.Errorf("encode steps: %w", err)
	}
	id := uuid.NewString()
	_, err = p.DB.ExecContext(ctx, `
		INSERT INTO courses (id, user_id, topic, depth, outline, steps, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)`,
		id, c.UserID, c.Topic, int(c.Depth), c.Outline, string(steps), c.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert course: %w", err)
	}
	return id, nil
}

const courseColumns = `id, user_id, topic, depth, outline, steps, created_at, version`

func (p *Postgres) ListForUser(ctx context.Context, userID string) ([]models.Course, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	courses := []models.Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return courses, nil
}

func (p *Postgres) Get(ctx context.Context, userID, id string) (models.Course, error) {
	row := p.DB.QueryRowContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = $1 AND user_id = $2`, id, userID)
	c, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Course{}, ErrNotFound
	}
	return c, err
}

func (p *Postgres) UpdatePartial(ctx context.Context, userID, id string, u models.CourseUpdate) error {
	var steps any
	if u.Steps != nil {
		b, err := json.Marshal(u.Steps)
		if err != nil {
			return fmt.Errorf("encode steps: %w", err)
		}
		steps = string(b)
	}
	var expected any
	if u.ExpectedVersion != nil {
		expected = *u.ExpectedVersion
	}

	res, err := p.DB.ExecContext(ctx, `
		UPDATE courses
		SET steps = COALESCE($3::jsonb, steps), version = version + 1
		WHERE id = $1 AND user_id = $2 AND ($4::int IS NULL OR version = $4::int)`,
		id, userID, steps, expected,
	)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if n > 0 {
		return nil
	}
	if u.ExpectedVersion == nil {
		return ErrNotFound
	}
	// Distinguish a stale version from a missing course.
	if _, err := p.Get(ctx, userID, id); err != nil {
		return err
	}
	return ErrConflict
}

func (p *Postgres) Delete(ctx context.Context, userID, id string) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM courses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCourse(s scanner) (models.Course, error) {
	var (
		c     models.Course
		depth int
		steps []byte
	)
	if err := s.Scan(&c.ID, &c.UserID, &c.Topic, &depth, &c.Outline, &steps, &c.CreatedAt, &c.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("scan course: %w", err)
	}
	c.Depth = models.Depth(depth)
	c.CreatedAt = c.CreatedAt.UTC()
	if err := json.Unmarshal(steps, &c.Steps); err != nil {
		return c, fmt.Errorf("decode steps of course %s: %w", c.ID, err)
	}
	return c, nil
}

func (p *Postgres) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	u.ID = uuid.NewString()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	err := p.DB.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, display_name, photo_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, u.PhotoURL,
	).Scan(&u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

const userColumns = `id, email, password_hash, display_name, photo_url, created_at`

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return p.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (p *Postgres) GetUser(ctx context.Context, id string) (models.User, error) {
	return p.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (p *Postgres) getUser(ctx context.Context, query string, arg any) (models.User, error) {
	var u models.User
	err := p.DB.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.PhotoURL, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}
