package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tasknest/apiserver/internal/services"
	"github.com/tasknest/apiserver/internal/store"
	"github.com/tasknest/apiserver/types"
)

// TodoHandler provides HTTP handlers for todos.
type TodoHandler struct {
	todos *services.TodoService
	users *services.UserService
}

// NewTodoHandler constructs a handler with the provided services.
func NewTodoHandler(todos *services.TodoService, users *services.UserService) *TodoHandler {
	return &TodoHandler{
		todos: todos,
		users: users,
	}
}

// TodoRouter registers todo routes on the given router. Every route
// requires authentication; public todos are still read through an
// authenticated GET by slug.
func TodoRouter(
	r chi.Router,
	todos *services.TodoService,
	users *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewTodoHandler(todos, users)

	r.Use(authMiddleware)
	r.Get("/mine", handler.ListMine)
	r.Get("/tags", handler.ListTags)
	r.Get("/{slug}", handler.GetTodo)
	r.Post("/create", handler.CreateTodo)
	r.Put("/update/{slug}", handler.UpdateTodo)
	r.Delete("/delete/{slug}", handler.DeleteTodo)
}

// ListMine returns the caller's todos filtered by the optional search
// and tag query parameters.
func (h *TodoHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeErrors(w, http.StatusUnauthorized, toastError("You are not authorized"))
		return
	}

	search := r.URL.Query().Get("search")
	tag := r.URL.Query().Get("tag")

	todos, err := h.todos.Search(r.Context(), user.ID, search, tag)
	if err != nil {
		log.Printf("todo search failed for %s: %v", user.Email, err)
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	writeData(w, http.StatusOK, todos)
}

// ListTags returns every distinct tag across the caller's todos.
func (h *TodoHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeErrors(w, http.StatusUnauthorized, toastError("You are not authorized"))
		return
	}

	tags, err := h.todos.Tags(r.Context(), user.ID)
	if err != nil {
		log.Printf("tag listing failed for %s: %v", user.Email, err)
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	writeData(w, http.StatusOK, tags)
}

// todoOwner is the public projection of a todo's owner.
type todoOwner struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// todoView is a todo enriched with its owner and the viewer's
// relationship to it.
type todoView struct {
	types.Todo
	Owner   *todoOwner `json:"createdByUser,omitempty"`
	IsOwner bool       `json:"isOwner"`
}

// GetTodo returns a single todo by slug when the caller owns it or it
// is public. Anything else is a 404; the response never distinguishes
// "private" from "absent".
func (h *TodoHandler) GetTodo(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeErrors(w, http.StatusUnauthorized, toastError("You are not authorized"))
		return
	}

	slug := chi.URLParam(r, "slug")
	todo, err := h.todos.Get(r.Context(), slug, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrors(w, http.StatusNotFound, toastError("Todo not found"))
			return
		}
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	view := todoView{
		Todo:    todo,
		IsOwner: todo.CreatedBy == user.ID,
	}
	if owner, err := h.users.GetByID(r.Context(), todo.CreatedBy); err == nil {
		view.Owner = &todoOwner{
			ID:     owner.ID.Hex(),
			Name:   owner.Name,
			Email:  owner.Email,
			Avatar: owner.Avatar,
		}
	}

	writeData(w, http.StatusOK, view)
}

type TodoRequest struct {
	Title       *string             `json:"title,omitempty"`
	Description *string             `json:"description,omitempty"`
	Tags        []string            `json:"tags"`
	File        *string             `json:"file,omitempty"`
	Thumbnail   *string             `json:"thumbnail,omitempty"`
	IsPublic    *bool               `json:"isPublic,omitempty"`
	Priority    *types.TodoPriority `json:"priority,omitempty"`
	Status      *types.TodoStatus   `json:"status,omitempty"`
}

// CreateTodo creates a todo owned by the caller and assigns its slug.
func (h *TodoHandler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeErrors(w, http.StatusUnauthorized, toastError("You are not authorized"))
		return
	}

	var req TodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, toastError("invalid request body"))
		return
	}

	if errs := validateTodo(req, true); len(errs) > 0 {
		writeErrors(w, http.StatusUnprocessableEntity, errs...)
		return
	}

	todo := types.Todo{
		Title:       strings.TrimSpace(*req.Title),
		Description: strings.TrimSpace(*req.Description),
		Tags:        req.Tags,
		CreatedBy:   user.ID,
	}
	if req.File != nil {
		todo.File = *req.File
	}
	if req.Thumbnail != nil {
		todo.Thumbnail = *req.Thumbnail
	}
	if req.IsPublic != nil {
		todo.IsPublic = *req.IsPublic
	}
	if req.Priority != nil {
		todo.Priority = *req.Priority
	}
	if req.Status != nil {
		todo.Status = *req.Status
	}

	created, err := h.todos.Create(r.Context(), todo)
	if err != nil {
		log.Printf("todo creation failed for %s: %v", user.Email, err)
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	writeData(w, http.StatusOK, created, toastMessage("Todo created successfully"))
}

// UpdateTodo applies a partial update to the caller's todo. The slug is
// immutable; a non-owner gets a 404 and a server-side warning, since
// guessing other users' slugs can indicate probing.
func (h *TodoHandler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeErrors(w, http.StatusUnauthorized, toastError("You are not authorized"))
		return
	}

	var req TodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, toastError("invalid request body"))
		return
	}

	if errs := validateTodo(req, false); len(errs) > 0 {
		writeErrors(w, http.StatusUnprocessableEntity, errs...)
		return
	}

	slug := chi.URLParam(r, "slug")
	patch := services.TodoPatch{
		Tags:      req.Tags,
		File:      req.File,
		Thumbnail: req.Thumbnail,
		IsPublic:  req.IsPublic,
		Priority:  req.Priority,
		Status:    req.Status,
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		patch.Title = &title
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		patch.Description = &description
	}

	updated, err := h.todos.Update(r.Context(), slug, user.ID, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("todo update refused for %s on slug %q, possible probing", user.Email, slug)
			writeErrors(w, http.StatusNotFound, toastError("Todo not found"))
			return
		}
		log.Printf("todo update failed for %s: %v", user.Email, err)
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	writeData(w, http.StatusOK, updated, toastMessage("Todo saved successfully"))
}

// DeleteTodo removes the caller's todo and returns it. A non-owner gets
// a 404 and a server-side warning.
func (h *TodoHandler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeErrors(w, http.StatusUnauthorized, toastError("You are not authorized"))
		return
	}

	slug := chi.URLParam(r, "slug")
	deleted, err := h.todos.Delete(r.Context(), slug, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("todo delete refused for %s on slug %q, possible probing", user.Email, slug)
			writeErrors(w, http.StatusNotFound, toastError("Todo not found"))
			return
		}
		log.Printf("todo delete failed for %s: %v", user.Email, err)
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	writeData(w, http.StatusOK, deleted, toastMessage("Todo deleted successfully"))
}

func validateTodo(req TodoRequest, creating bool) []APIMessage {
	var errs []APIMessage

	if creating && req.Title == nil {
		errs = append(errs, fieldError("title", "title is required"))
	}
	if req.Title != nil && !lenBetween(*req.Title, 3, 50) {
		errs = append(errs, fieldError("title", "title must be between 3 and 50 characters"))
	}

	if creating && req.Description == nil {
		errs = append(errs, fieldError("description", "description is required"))
	}
	if req.Description != nil && !lenBetween(*req.Description, 3, 500) {
		errs = append(errs, fieldError("description", "description must be between 3 and 500 characters"))
	}

	if creating && req.Tags == nil {
		errs = append(errs, fieldError("tags", "tags must be an array of strings"))
	}

	if req.File != nil && *req.File != "" && !validURL(*req.File) {
		errs = append(errs, fieldError("file", "file must be a valid URL"))
	}
	if req.Thumbnail != nil && *req.Thumbnail != "" && !validURL(*req.Thumbnail) {
		errs = append(errs, fieldError("thumbnail", "thumbnail must be a valid URL"))
	}

	if req.Priority != nil && !req.Priority.Valid() {
		errs = append(errs, fieldError("priority", "priority must be LOW, MEDIUM or HIGH"))
	}
	if req.Status != nil && !req.Status.Valid() {
		errs = append(errs, fieldError("status", "status must be ACTIVE, ONWORK or COMPLETED"))
	}

	return errs
}
