package store

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/tasknest/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// TodoRepository handles persistence for todos.
type TodoRepository struct {
	col *mongo.Collection
}

func NewTodoRepository(db *mongo.Database) *TodoRepository {
	return &TodoRepository{col: db.Collection(todosCollection)}
}

// GetVisibleBySlug returns the todo with the given slug if the viewer
// owns it or it is public. Everything else reports ErrNotFound so the
// response never reveals whether the slug exists.
func (r *TodoRepository) GetVisibleBySlug(ctx context.Context, slug string, viewer primitive.ObjectID) (types.Todo, error) {
	filter := bson.M{
		"slug": slug,
		"$or": bson.A{
			bson.M{"created_by": viewer},
			bson.M{"is_public": true},
		},
	}
	var todo types.Todo
	err := r.col.FindOne(ctx, filter).Decode(&todo)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Todo{}, ErrNotFound
		}
		return types.Todo{}, err
	}
	return todo, nil
}

// GetOwnedBySlug returns the todo with the given slug only when the
// owner matches.
func (r *TodoRepository) GetOwnedBySlug(ctx context.Context, slug string, owner primitive.ObjectID) (types.Todo, error) {
	var todo types.Todo
	err := r.col.FindOne(ctx, bson.M{"slug": slug, "created_by": owner}).Decode(&todo)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Todo{}, ErrNotFound
		}
		return types.Todo{}, err
	}
	return todo, nil
}

// SlugExists reports whether any todo already uses the given slug.
func (r *TodoRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	count, err := r.col.CountDocuments(ctx, bson.M{"slug": slug})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Search returns the owner's todos whose title, description, tags,
// priority or status match the free-text search, optionally restricted
// to a single tag. An empty search matches everything.
func (r *TodoRepository) Search(ctx context.Context, owner primitive.ObjectID, search, tag string) ([]types.Todo, error) {
	filter := bson.M{"created_by": owner}

	if search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
			bson.M{"tags": pattern},
			bson.M{"priority": pattern},
			bson.M{"status": pattern},
		}
	}
	if tag != "" {
		filter["tags"] = tag
	}

	cursor, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	todos := []types.Todo{}
	if err := cursor.All(ctx, &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

// DistinctTags returns every tag used across the owner's todos.
func (r *TodoRepository) DistinctTags(ctx context.Context, owner primitive.ObjectID) ([]string, error) {
	values, err := r.col.Distinct(ctx, "tags", bson.M{"created_by": owner})
	if err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(values))
	for _, value := range values {
		if tag, ok := value.(string); ok {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

func (r *TodoRepository) Create(ctx context.Context, todo types.Todo) (types.Todo, error) {
	now := time.Now()
	todo.CreatedAt = now
	todo.UpdatedAt = now

	result, err := r.col.InsertOne(ctx, todo)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Todo{}, ErrDuplicate
		}
		return types.Todo{}, err
	}
	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		todo.ID = id
	}
	return todo, nil
}

// Update replaces the owner's todo identified by slug. The slug and
// owner fields in the filter keep both immutable.
func (r *TodoRepository) Update(ctx context.Context, todo types.Todo) (types.Todo, error) {
	todo.UpdatedAt = time.Now()

	result, err := r.col.ReplaceOne(ctx, bson.M{"slug": todo.Slug, "created_by": todo.CreatedBy}, todo)
	if err != nil {
		return types.Todo{}, err
	}
	if result.MatchedCount == 0 {
		return types.Todo{}, ErrNotFound
	}
	return todo, nil
}

func (r *TodoRepository) Delete(ctx context.Context, slug string, owner primitive.ObjectID) error {
	result, err := r.col.DeleteOne(ctx, bson.M{"slug": slug, "created_by": owner})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
