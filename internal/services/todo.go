package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/tasknest/apiserver/internal/store"
	"github.com/tasknest/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	slugLength      = 6
	slugAlphabet    = "abcdefghijklmnopqrstuvwxyz0123456789"
	maxSlugAttempts = 10
)

// TodoRepository defines persistence operations for todos.
type TodoRepository interface {
	GetVisibleBySlug(ctx context.Context, slug string, viewer primitive.ObjectID) (types.Todo, error)
	GetOwnedBySlug(ctx context.Context, slug string, owner primitive.ObjectID) (types.Todo, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Search(ctx context.Context, owner primitive.ObjectID, search, tag string) ([]types.Todo, error)
	DistinctTags(ctx context.Context, owner primitive.ObjectID) ([]string, error)
	Create(ctx context.Context, todo types.Todo) (types.Todo, error)
	Update(ctx context.Context, todo types.Todo) (types.Todo, error)
	Delete(ctx context.Context, slug string, owner primitive.ObjectID) error
}

// TodoService encapsulates todo use-cases. Slug assignment happens here,
// on the write path: a short random identifier is drawn, collision-checked
// against the store, and retried on a clash. Once assigned it never changes.
type TodoService struct {
	repo TodoRepository
}

func NewTodoService(repo TodoRepository) *TodoService {
	return &TodoService{repo: repo}
}

// Get returns the todo with the given slug when the viewer owns it or
// it is public. store.ErrNotFound otherwise, so existence never leaks.
func (s *TodoService) Get(ctx context.Context, slug string, viewer primitive.ObjectID) (types.Todo, error) {
	return s.repo.GetVisibleBySlug(ctx, slug, viewer)
}

// Search returns the owner's todos matching the free-text search and
// optional tag filter.
func (s *TodoService) Search(ctx context.Context, owner primitive.ObjectID, search, tag string) ([]types.Todo, error) {
	return s.repo.Search(ctx, owner, search, tag)
}

// Tags returns every distinct tag across the owner's todos.
func (s *TodoService) Tags(ctx context.Context, owner primitive.ObjectID) ([]string, error) {
	return s.repo.DistinctTags(ctx, owner)
}

// Create assigns a fresh slug and persists the todo. An insert that
// loses a slug race against a concurrent create is retried with a new
// slug rather than surfaced.
func (s *TodoService) Create(ctx context.Context, todo types.Todo) (types.Todo, error) {
	if todo.Priority == "" {
		todo.Priority = types.PriorityLow
	}
	if todo.Status == "" {
		todo.Status = types.StatusActive
	}
	if todo.Tags == nil {
		todo.Tags = []string{}
	}

	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		slug, err := newSlug()
		if err != nil {
			return types.Todo{}, err
		}
		exists, err := s.repo.SlugExists(ctx, slug)
		if err != nil {
			return types.Todo{}, err
		}
		if exists {
			continue
		}

		todo.Slug = slug
		created, err := s.repo.Create(ctx, todo)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return types.Todo{}, err
		}
		return created, nil
	}
	return types.Todo{}, fmt.Errorf("could not assign a unique slug after %d attempts", maxSlugAttempts)
}

// TodoPatch carries the mutable fields of a todo. Nil fields are left
// unchanged. The slug is not here: it is immutable.
type TodoPatch struct {
	Title       *string
	Description *string
	Tags        []string
	File        *string
	Thumbnail   *string
	IsPublic    *bool
	Priority    *types.TodoPriority
	Status      *types.TodoStatus
}

// Update applies the patch to the owner's todo. A non-owner gets
// store.ErrNotFound, indistinguishable from a missing slug.
func (s *TodoService) Update(ctx context.Context, slug string, owner primitive.ObjectID, patch TodoPatch) (types.Todo, error) {
	todo, err := s.repo.GetOwnedBySlug(ctx, slug, owner)
	if err != nil {
		return types.Todo{}, err
	}

	if patch.Title != nil {
		todo.Title = *patch.Title
	}
	if patch.Description != nil {
		todo.Description = *patch.Description
	}
	if patch.Tags != nil {
		todo.Tags = patch.Tags
	}
	if patch.File != nil {
		todo.File = *patch.File
	}
	if patch.Thumbnail != nil {
		todo.Thumbnail = *patch.Thumbnail
	}
	if patch.IsPublic != nil {
		todo.IsPublic = *patch.IsPublic
	}
	if patch.Priority != nil {
		todo.Priority = *patch.Priority
	}
	if patch.Status != nil {
		todo.Status = *patch.Status
	}

	return s.repo.Update(ctx, todo)
}

// Delete removes the owner's todo and returns it. A non-owner gets
// store.ErrNotFound.
func (s *TodoService) Delete(ctx context.Context, slug string, owner primitive.ObjectID) (types.Todo, error) {
	todo, err := s.repo.GetOwnedBySlug(ctx, slug, owner)
	if err != nil {
		return types.Todo{}, err
	}
	if err := s.repo.Delete(ctx, slug, owner); err != nil {
		return types.Todo{}, err
	}
	return todo, nil
}

func newSlug() (string, error) {
	buf := make([]byte, slugLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = slugAlphabet[int(buf[i])%len(slugAlphabet)]
	}
	return string(buf), nil
}
