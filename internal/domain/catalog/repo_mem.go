package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/labflow/labflow/internal/platform/apperr"
)

// testRepoMem backs development mode when no database is configured.
type testRepoMem struct {
	mu    sync.Mutex
	tests map[uuid.UUID]*LabTest
}

func NewTestRepoMem() TestRepository {
	return &testRepoMem{tests: make(map[uuid.UUID]*LabTest)}
}

func (r *testRepoMem) Create(_ context.Context, t *LabTest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	r.tests[t.ID] = &cp
	return nil
}

func (r *testRepoMem) GetByID(_ context.Context, id uuid.UUID) (*LabTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tests[id]
	if !ok {
		return nil, apperr.NotFound("lab test not found")
	}
	cp := *t
	return &cp, nil
}

func (r *testRepoMem) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*LabTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*LabTest
	for _, id := range ids {
		if t, ok := r.tests[id]; ok {
			cp := *t
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (r *testRepoMem) Update(_ context.Context, t *LabTest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tests[t.ID]; !ok {
		return apperr.NotFound("lab test not found")
	}
	t.UpdatedAt = time.Now()
	cp := *t
	r.tests[t.ID] = &cp
	return nil
}

func (r *testRepoMem) List(_ context.Context, category string, activeOnly bool, limit, offset int) ([]*LabTest, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var list []*LabTest
	for _, t := range r.tests {
		if category != "" && t.Category != category {
			continue
		}
		if activeOnly && !t.Active {
			continue
		}
		cp := *t
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Category != list[j].Category {
			return list[i].Category < list[j].Category
		}
		return list[i].Name < list[j].Name
	})

	total := len(list)
	if offset >= total {
		return nil, total, nil
	}
	list = list[offset:]
	if limit < len(list) {
		list = list[:limit]
	}
	return list, total, nil
}
