package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"stepwise/internal/models"
)

// Redis stores each course as a JSON document under course:{id} and indexes
// a user's courses in a sorted set scored by creation time.
type Redis struct {
	rdb *goredis.Client
	now func() time.Time
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb, now: time.Now}, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

func courseKey(id string) string { return "course:" + id }
func userCoursesKey(uid string) string { return "user:" + uid + ":courses" }
func userKey(id string) string { return "account:" + id }
func emailKey(email string) string { return "account:email:" + email }

func (r *Redis) Create(ctx context.Context, c models.Course) (string, error) {
	c = c.Clone()
	c.ID = uuid.NewString()
	c.Version = 1
	doc, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode course: %w", err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, courseKey(c.ID), doc, 0)
		pipe.ZAdd(ctx, userCoursesKey(c.UserID), goredis.Z{Score: float64(c.CreatedAt.UnixMilli()), Member: c.ID})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store course: %w", err)
	}
	return c.ID, nil
}

func (r *Redis) ListForUser(ctx context.Context, userID string) ([]models.Course, error) {
	ids, err := r.rdb.ZRevRange(ctx, userCoursesKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list course ids: %w", err)
	}
	courses := []models.Course{}
	if len(ids) == 0 {
		return courses, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = courseKey(id)
	}
	docs, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}
	for _, d := range docs {
		s, ok := d.(string)
		if !ok {
			// Index entry outlived its document.
			continue
		}
		var c models.Course
		if err := json.Unmarshal([]byte(s), &c); err != nil {
			return nil, fmt.Errorf("decode course: %w", err)
		}
		courses = append(courses, c)
	}
	return courses, nil
}

func (r *Redis) Get(ctx context.Context, userID, id string) (models.Course, error) {
	return r.load(ctx, r.rdb, userID, id)
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func (r *Redis) load(ctx context.Context, g getter, userID, id string) (models.Course, error) {
	raw, err := g.Get(ctx, courseKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return models.Course{}, ErrNotFound
	}
	if err != nil {
		return models.Course{}, fmt.Errorf("load course: %w", err)
	}
	var c models.Course
	if err := json.Unmarshal(raw, &c); err != nil {
		return models.Course{}, fmt.Errorf("decode course: %w", err)
	}
	if c.UserID != userID {
		return models.Course{}, ErrNotFound
	}
	return c, nil
}

func (r *Redis) UpdatePartial(ctx context.Context, userID, id string, u models.CourseUpdate) error {
	key := courseKey(id)
	err := r.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		c, err := r.load(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if u.ExpectedVersion != nil && *u.ExpectedVersion != c.Version {
			return ErrConflict
		}
		if u.Steps != nil {
			c.Steps = models.CloneSteps(u.Steps)
		}
		c.Version++
		doc, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode course: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, doc, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, goredis.TxFailedErr) {
		if u.ExpectedVersion != nil {
			return ErrConflict
		}
		return fmt.Errorf("update course: concurrent write: %w", err)
	}
	return err
}

func (r *Redis) Delete(ctx context.Context, userID, id string) error {
	if _, err := r.Get(ctx, userID, id); err != nil {
		return err
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, courseKey(id))
		pipe.ZRem(ctx, userCoursesKey(userID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

func (r *Redis) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	u.ID = uuid.NewString()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = r.now().UTC()

	ok, err := r.rdb.SetNX(ctx, emailKey(u.Email), u.ID, 0).Result()
	if err != nil {
		return models.User{}, fmt.Errorf("reserve email: %w", err)
	}
	if !ok {
		return models.User{}, ErrEmailTaken
	}
	doc, err := json.Marshal(redisUser{User: u, PasswordHash: u.PasswordHash})
	if err != nil {
		return models.User{}, fmt.Errorf("encode user: %w", err)
	}
	if err := r.rdb.Set(ctx, userKey(u.ID), doc, 0).Err(); err != nil {
		r.rdb.Del(ctx, emailKey(u.Email))
		return models.User{}, fmt.Errorf("store user: %w", err)
	}
	return u, nil
}

func (r *Redis) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	id, err := r.rdb.Get(ctx, emailKey(strings.ToLower(strings.TrimSpace(email)))).Result()
	if errors.Is(err, goredis.Nil) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("lookup email: %w", err)
	}
	return r.GetUser(ctx, id)
}

func (r *Redis) GetUser(ctx context.Context, id string) (models.User, error) {
	raw, err := r.rdb.Get(ctx, userKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	var ru redisUser
	if err := json.Unmarshal(raw, &ru); err != nil {
		return models.User{}, fmt.Errorf("decode user: %w", err)
	}
	u := ru.User
	u.PasswordHash = ru.PasswordHash
	return u, nil
}

// redisUser persists the hash that models.User hides from JSON.
type redisUser struct {
	models.User
	PasswordHash string `json:"password_hash"`
}
