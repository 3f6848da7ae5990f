package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tasknest/apiserver/internal/mailer"
	"github.com/tasknest/apiserver/internal/services"
	"github.com/tasknest/apiserver/internal/storage"
	"github.com/tasknest/apiserver/internal/store"
	"github.com/tasknest/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret"

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]types.User
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
			if email != user.Email {
				if _, taken := r.users[user.Email]; taken {
					return types.User{}, store.ErrDuplicate
				}
			}
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

type fakeOTPRepo struct {
	mu   sync.Mutex
	otps map[string]types.OTP
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

// codeFor returns the stored code for an email so tests can play the
// role of the mail recipient.
func (r *fakeOTPRepo) codeFor(email string) (types.OTP, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	otp, ok := r.otps[email]
	return otp, ok
}

type fakeTodoRepo struct {
	mu    sync.Mutex
	todos map[string]types.Todo
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
	_, ok := r.todos[slug]
	return ok, nil
}

func (r *fakeTodoRepo) Search(_ context.Context, owner primitive.ObjectID, search, tag string) ([]types.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []types.Todo{}
	for _, todo := range r.todos {
		if todo.CreatedBy != owner {
			continue
		}
		if tag != "" && !contains(todo.Tags, tag) {
			continue
		}
		out = append(out, todo)
	}
	return out, nil
}

func (r *fakeTodoRepo) DistinctTags(_ context.Context, owner primitive.ObjectID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	out := []string{}
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

func contains(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
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

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *fakeBlobStore) EnsureBucket(context.Context) error { return nil }

func (s *fakeBlobStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[key] = data
	return nil
}

func (s *fakeBlobStore) URL(key string) string { return "https://blobs.test/" + key }

func (s *fakeBlobStore) Bucket() string { return "test-bucket" }

type testEnv struct {
	router   *chi.Mux
	users    *fakeUserRepo
	otps     *fakeOTPRepo
	todos    *fakeTodoRepo
	blobs    *fakeBlobStore
	notifier *recordingNotifier
	userSvc  *services.UserService
	todoSvc  *services.TodoService
}

// newTestEnv wires the full route tree over in-memory fakes. The OTP
// cooldown is zero so flows can re-issue codes back to back; cooldown
// rejection itself is covered with a dedicated non-zero env.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithCooldown(t, 0)
}

func newTestEnvWithCooldown(t *testing.T, cooldown time.Duration) *testEnv {
	t.Helper()

	env := &testEnv{
		users:    &fakeUserRepo{users: make(map[string]types.User)},
		otps:     &fakeOTPRepo{otps: make(map[string]types.OTP)},
		todos:    &fakeTodoRepo{todos: make(map[string]types.Todo)},
		blobs:    &fakeBlobStore{},
		notifier: &recordingNotifier{},
	}

	env.userSvc = services.NewUserService(env.users)
	otpSvc := services.NewOTPService(env.otps, env.users, env.notifier, cooldown)
	env.todoSvc = services.NewTodoService(env.todos)
	uploader := storage.NewUploader(env.blobs, "")

	authMiddleware := RequireAuth(env.userSvc, testSecret)

	router := chi.NewRouter()
	router.Route("/user", func(r chi.Router) {
		UserRouter(r, env.userSvc, otpSvc, testSecret)
	})
	router.Route("/todo", func(r chi.Router) {
		TodoRouter(r, env.todoSvc, env.userSvc, authMiddleware)
	})
	router.Route("/asset", func(r chi.Router) {
		AssetRouter(r, uploader, env.userSvc, testSecret, authMiddleware)
	})
	env.router = router
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Messages []APIMessage    `json:"messages"`
	Errors   []APIMessage    `json:"errors"`
	Data     json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return env
}

func firstMessage(env envelope) string {
	if len(env.Errors) > 0 {
		return env.Errors[0].Msg
	}
	if len(env.Messages) > 0 {
		return env.Messages[0].Msg
	}
	return ""
}

// registerAndLogin walks a user through the full registration flow and
// returns the bearer token.
func (e *testEnv) registerAndLogin(t *testing.T, name, email, password string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/user/register", "", RegisterRequest{
		Name: name, Email: email, Password: password,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rec.Code, rec.Body.String())
	}

	otp, ok := e.otps.codeFor(email)
	if !ok {
		t.Fatalf("no OTP issued for %s", email)
	}
	rec = e.do(t, http.MethodPost, "/user/verify-otp", "", VerifyOTPRequest{
		Email: email, OTP: otp.Code, Type: types.OTPRegistration,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify %s: status %d body %s", email, rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, "/user/login", "", LoginRequest{Email: email, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, rec.Code, rec.Body.String())
	}

	var data struct {
		Token string `json:"token"`
	}
	env := decodeEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode login data: %v", err)
	}
	if data.Token == "" {
		t.Fatalf("expected a token for %s", email)
	}
	return data.Token
}
