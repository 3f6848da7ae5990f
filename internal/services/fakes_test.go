package services

import (
	"context"
	"sync"

	"github.com/tasknest/apiserver/internal/mailer"
	"github.com/tasknest/apiserver/internal/store"
	"github.com/tasknest/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]types.User)}
}

func (r *fakeUserRepo) GetByID(_ context.Context, id primitive.ObjectID) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.ID == id {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[email]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Email]; ok {
		return types.User{}, store.ErrDuplicate
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	r.users[user.Email] = user
	return user, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for email, existing := range r.users {
		if existing.ID == user.ID {
			delete(r.users, email)
			r.users[user.Email] = user
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for email, existing := range r.users {
		if existing.ID == id {
			delete(r.users, email)
			return nil
		}
	}
	return store.ErrNotFound
}

// fakeOTPRepo enforces the one-record-per-email invariant the way the
// real store's unique index does.
type fakeOTPRepo struct {
	mu   sync.Mutex
	otps map[string]types.OTP
}

func newFakeOTPRepo() *fakeOTPRepo {
	return &fakeOTPRepo{otps: make(map[string]types.OTP)}
}

func (r *fakeOTPRepo) GetByEmail(_ context.Context, email string) (types.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	otp, ok := r.otps[email]
	if !ok {
		return types.OTP{}, store.ErrNotFound
	}
	return otp, nil
}

func (r *fakeOTPRepo) GetByEmailAndPurpose(_ context.Context, email string, purpose types.OTPPurpose) (types.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	otp, ok := r.otps[email]
	if !ok || otp.Purpose != purpose {
		return types.OTP{}, store.ErrNotFound
	}
	return otp, nil
}

func (r *fakeOTPRepo) Create(_ context.Context, otp types.OTP) (types.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.otps[otp.Email]; ok {
		return types.OTP{}, store.ErrDuplicate
	}
	if otp.ID.IsZero() {
		otp.ID = primitive.NewObjectID()
	}
	r.otps[otp.Email] = otp
	return otp, nil
}

func (r *fakeOTPRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for email, otp := range r.otps {
		if otp.ID == id {
			delete(r.otps, email)
			return nil
		}
	}
	return store.ErrNotFound
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []mailer.OTPMail
}

func (n *recordingNotifier) SendOTP(_ context.Context, mail mailer.OTPMail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, mail)
	return nil
}

func (n *recordingNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *recordingNotifier) last() mailer.OTPMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return mailer.OTPMail{}
	}
	return n.sent[len(n.sent)-1]
}

type fakeTodoRepo struct {
	mu    sync.Mutex
	todos map[string]types.Todo

	// slugCollisions makes the first N SlugExists calls report a clash.
	slugCollisions int
	slugChecks     int
}

func newFakeTodoRepo() *fakeTodoRepo {
	return &fakeTodoRepo{todos: make(map[string]types.Todo)}
}

func (r *fakeTodoRepo) GetVisibleBySlug(_ context.Context, slug string, viewer primitive.ObjectID) (types.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo, ok := r.todos[slug]
	if !ok || (todo.CreatedBy != viewer && !todo.IsPublic) {
		return types.Todo{}, store.ErrNotFound
	}
	return todo, nil
}

func (r *fakeTodoRepo) GetOwnedBySlug(_ context.Context, slug string, owner primitive.ObjectID) (types.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo, ok := r.todos[slug]
	if !ok || todo.CreatedBy != owner {
		return types.Todo{}, store.ErrNotFound
	}
	return todo, nil
}

func (r *fakeTodoRepo) SlugExists(_ context.Context, slug string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slugChecks++
	if r.slugChecks <= r.slugCollisions {
		return true, nil
	}
	_, ok := r.todos[slug]
	return ok, nil
}

func (r *fakeTodoRepo) Search(_ context.Context, owner primitive.ObjectID, search, tag string) ([]types.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Todo
	for _, todo := range r.todos {
		if todo.CreatedBy == owner {
			out = append(out, todo)
		}
	}
	return out, nil
}

func (r *fakeTodoRepo) DistinctTags(_ context.Context, owner primitive.ObjectID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, todo := range r.todos {
		if todo.CreatedBy != owner {
			continue
		}
		for _, tag := range todo.Tags {
			if !seen[tag] {
				seen[tag] = true
				out = append(out, tag)
			}
		}
	}
	return out, nil
}

func (r *fakeTodoRepo) Create(_ context.Context, todo types.Todo) (types.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.todos[todo.Slug]; ok {
		return types.Todo{}, store.ErrDuplicate
	}
	if todo.ID.IsZero() {
		todo.ID = primitive.NewObjectID()
	}
	r.todos[todo.Slug] = todo
	return todo, nil
}

func (r *fakeTodoRepo) Update(_ context.Context, todo types.Todo) (types.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.todos[todo.Slug]
	if !ok || existing.CreatedBy != todo.CreatedBy {
		return types.Todo{}, store.ErrNotFound
	}
	r.todos[todo.Slug] = todo
	return todo, nil
}

func (r *fakeTodoRepo) Delete(_ context.Context, slug string, owner primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo, ok := r.todos[slug]
	if !ok || todo.CreatedBy != owner {
		return store.ErrNotFound
	}
	delete(r.todos, slug)
	return nil
}
