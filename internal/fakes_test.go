package internal

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/lychee-technology/customapi"
)

type memoryDefinitionStore struct {
	mu   sync.Mutex
	defs map[uuid.UUID]*customapi.Definition
}

func newMemoryDefinitionStore(defs ...*customapi.Definition) *memoryDefinitionStore {
	s := &memoryDefinitionStore{defs: map[uuid.UUID]*customapi.Definition{}}
	for _, def := range defs {
		if def.ID == uuid.Nil {
			def.ID = uuid.New()
		}
		s.defs[def.ID] = def
	}
	return s
}

func (s *memoryDefinitionStore) FindByID(_ context.Context, id uuid.UUID) (*customapi.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[id]
	if !ok {
		return nil, customapi.NewDefinitionNotFoundError(id.String())
	}
	out := *def
	return &out, nil
}

func (s *memoryDefinitionStore) FindBySlug(_ context.Context, slug string) (*customapi.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range s.defs {
		if def.Slug == slug {
			out := *def
			return &out, nil
		}
	}
	return nil, customapi.NewDefinitionNotFoundError(slug)
}

func (s *memoryDefinitionStore) SlugExists(_ context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, def := range s.defs {
		if def.Slug != slug {
			continue
		}
		if excludeID != nil && *excludeID == id {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *memoryDefinitionStore) List(_ context.Context, opts customapi.ListOptions) ([]*customapi.Definition, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*customapi.Definition
	for _, def := range s.defs {
		if opts.ContentType != "" && def.SelectedContentType.UID != opts.ContentType {
			continue
		}
		out := *def
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Slug < all[j].Slug })
	total := int64(len(all))

	page, size := max(opts.Page, 1), opts.PageSize
	if size <= 0 {
		size = 25
	}
	start := min((page-1)*size, len(all))
	end := min(start+size, len(all))
	return all[start:end], total, nil
}

func (s *memoryDefinitionStore) Create(_ context.Context, def *customapi.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.defs {
		if existing.Slug == def.Slug {
			return customapi.NewSlugConflictError(def.Slug)
		}
	}
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	out := *def
	s.defs[def.ID] = &out
	return nil
}

func (s *memoryDefinitionStore) Update(_ context.Context, def *customapi.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[def.ID]; !ok {
		return customapi.NewDefinitionNotFoundError(def.ID.String())
	}
	out := *def
	s.defs[def.ID] = &out
	return nil
}

func (s *memoryDefinitionStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[id]; !ok {
		return customapi.NewDefinitionNotFoundError(id.String())
	}
	delete(s.defs, id)
	return nil
}

type fakeDocuments struct {
	mu        sync.Mutex
	rows      []customapi.Row
	total     int64
	queryErr  error
	countErr  error
	lastQuery *customapi.DocumentQuery
	lastUID   string
}

func (f *fakeDocuments) Query(ctx context.Context, uid string, q *customapi.DocumentQuery) ([]customapi.Row, error) {
	f.mu.Lock()
	f.lastQuery = q
	f.lastUID = uid
	f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, ctx.Err()
}

func (f *fakeDocuments) Count(ctx context.Context, _ string, _ customapi.FilterSpec) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.total, ctx.Err()
}

var (
	_ customapi.DefinitionStore = (*memoryDefinitionStore)(nil)
	_ customapi.DocumentService = (*fakeDocuments)(nil)
)
