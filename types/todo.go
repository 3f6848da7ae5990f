package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TodoPriority is the relative importance of a todo item.
type TodoPriority string

const (
	PriorityLow    TodoPriority = "LOW"
	PriorityMedium TodoPriority = "MEDIUM"
	PriorityHigh   TodoPriority = "HIGH"
)

// Valid reports whether p is one of the known priorities.
func (p TodoPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// TodoStatus is the progress state of a todo item.
type TodoStatus string

const (
	StatusActive    TodoStatus = "ACTIVE"
	StatusOnWork    TodoStatus = "ONWORK"
	StatusCompleted TodoStatus = "COMPLETED"
)

// Valid reports whether s is one of the known statuses.
func (s TodoStatus) Valid() bool {
	switch s {
	case StatusActive, StatusOnWork, StatusCompleted:
		return true
	}
	return false
}

// Todo represents a single todo item owned by a user.
type Todo struct {
	// ID is the unique internal identifier of the todo.
	ID primitive.ObjectID `json:"id" bson:"_id,omitempty"`

	// Slug is the short random public identifier, assigned once at
	// creation and never changed afterwards. Unique across all todos.
	Slug string `json:"slug" bson:"slug"`

	// Title is the short human-readable name of the todo.
	Title string `json:"title" bson:"title"`

	// Description contains the full free-text body of the todo.
	Description string `json:"description" bson:"description"`

	// Tags are free-form labels used for categorization, filtering,
	// and search.
	Tags []string `json:"tags" bson:"tags"`

	// File is an optional URL of an attachment in object storage.
	File string `json:"file,omitempty" bson:"file,omitempty"`

	// Thumbnail is an optional URL of a preview image in object storage.
	Thumbnail string `json:"thumbnail,omitempty" bson:"thumbnail,omitempty"`

	// CreatedBy identifies the owning user. Only the owner may mutate
	// or delete the todo.
	CreatedBy primitive.ObjectID `json:"created_by" bson:"created_by"`

	// IsPublic makes the todo readable by any authenticated user
	// through its slug. Private todos are visible to the owner only.
	IsPublic bool `json:"isPublic" bson:"is_public"`

	// Priority indicates the relative importance of the todo.
	Priority TodoPriority `json:"priority" bson:"priority"`

	// Status is the progress state of the todo.
	Status TodoStatus `json:"status" bson:"status"`

	// CreatedAt is the timestamp when the todo was created.
	CreatedAt time.Time `json:"created_at" bson:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the todo.
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
