package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/labflow/labflow/internal/platform/apperr"
)

// userRepoMem backs development mode when no database is configured.
type userRepoMem struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*User
	created []uuid.UUID
}

func NewUserRepoMem() UserRepository {
	return &userRepoMem{users: make(map[uuid.UUID]*User)}
}

func (r *userRepoMem) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	cp := *u
	r.users[u.ID] = &cp
	r.created = append(r.created, u.ID)
	return nil
}

func (r *userRepoMem) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	cp := *u
	return &cp, nil
}

func (r *userRepoMem) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (r *userRepoMem) List(_ context.Context, limit, offset int) ([]*User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := len(r.created)
	if offset >= total {
		return nil, total, nil
	}
	ids := r.created[offset:]
	if limit < len(ids) {
		ids = ids[:limit]
	}
	list := make([]*User, len(ids))
	for i, id := range ids {
		cp := *r.users[id]
		list[i] = &cp
	}
	return list, total, nil
}
