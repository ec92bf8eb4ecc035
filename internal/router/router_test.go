package router

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/session"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/todo"
	todoentity "github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/todo/entity"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/user"
	userentity "github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/user/entity"
)

type users struct {
	mu   sync.Mutex
	rows map[int64]userentity.User
}

func (s *users) Create(_ context.Context, u *userentity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.rows {
		if x.Email == u.Email {
			return &pq.Error{Code: "23505"}
		}
	}
	u.ID = int64(len(s.rows) + 1)
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	s.rows[u.ID] = *u
	return nil
}

func (s *users) GetByEmail(_ context.Context, email string) (*userentity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.rows {
		if x.Email == email {
			return &x, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *users) GetByID(_ context.Context, id int64) (*userentity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if x, ok := s.rows[id]; ok {
		return &x, nil
	}
	return nil, sql.ErrNoRows
}

func (s *users) Update(_ context.Context, u *userentity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[u.ID]; !ok {
		return sql.ErrNoRows
	}
	s.rows[u.ID] = *u
	return nil
}

type sessions struct {
	mu   sync.Mutex
	rows map[string]session.Session
}

func (s *sessions) Save(_ context.Context, x *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[x.TokenHash] = *x
	return nil
}

func (s *sessions) Get(_ context.Context, h string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if x, ok := s.rows[h]; ok {
		return &x, nil
	}
	return nil, sql.ErrNoRows
}

func (s *sessions) Delete(_ context.Context, h string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, h)
	return nil
}

func (s *sessions) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

type todos struct {
	mu   sync.Mutex
	rows map[int64]todoentity.Todo
}

func (s *todos) Create(_ context.Context, t *todoentity.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[t.ID] = *t
	return nil
}

func (s *todos) ListByOwner(_ context.Context, userID int64) ([]todoentity.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []todoentity.Todo
	for _, t := range s.rows {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *todos) GetScoped(_ context.Context, userID, id int64) (*todoentity.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.rows[id]; ok && t.UserID == userID {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (s *todos) UpdateScoped(_ context.Context, userID, id int64, apply func(*todoentity.Todo) error) (*todoentity.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	if !ok || t.UserID != userID {
		return nil, sql.ErrNoRows
	}
	if err := apply(&t); err != nil {
		return nil, err
	}
	s.rows[id] = t
	return &t, nil
}

func (s *todos) DeleteScoped(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.rows[id]; ok && t.UserID == userID {
		delete(s.rows, id)
		return nil
	}
	return sql.ErrNoRows
}

type counter struct{ n int64 }

func (c *counter) Next() int64 { c.n++; return 1_000_000 + c.n }

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func newTestServer(t *testing.T, db Pinger) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	h := RegisterRoutes(Deps{
		Logger:   logger,
		DB:       db,
		Users:    user.NewUserService(&users{rows: map[int64]userentity.User{}}, user.BcryptHasher{Cost: bcrypt.MinCost}, logger),
		Sessions: session.NewManager(&sessions{rows: map[string]session.Session{}}, time.Hour, logger),
		Codec:    session.NewCookieCodec("0123456789abcdef0123456789abcdef", false),
		Todos:    todo.NewService(&todos{rows: map[int64]todoentity.Todo{}}, &counter{}, logger),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type todoJSON struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Deadline    string  `json:"deadline"`
	Completed   bool    `json:"completed"`
}

type errJSON struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields"`
}

func signup(t *testing.T, base, email string) *client {
	t.Helper()
	c := &client{t: t, base: base}
	reg := map[string]string{"email": email, "password": "Str0ng!Pass", "first_name": "Ada"}
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/users/register", reg, nil))

	var login struct {
		Token string `json:"token"`
		User  struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	creds := map[string]string{"email": email, "password": "Str0ng!Pass"}
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/users/login", creds, &login))
	require.NotEmpty(t, login.Token)
	assert.Equal(t, email, login.User.Email)
	c.token = login.Token
	return c
}

func TestTodoLifecycle(t *testing.T) {
	srv := newTestServer(t, pinger{})
	ada := signup(t, srv.URL, "ada@example.com")

	var created todoJSON
	status := ada.do(http.MethodPost, "/api/todos", map[string]string{"title": "Buy milk", "deadline": "2025-01-01T00:00:00Z"}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Buy milk", created.Title)
	assert.False(t, created.Completed)
	require.NotEmpty(t, created.ID)

	var list []todoJSON
	require.Equal(t, http.StatusOK, ada.do(http.MethodGet, "/api/todos", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	var patched todoJSON
	require.Equal(t, http.StatusOK, ada.do(http.MethodPatch, "/api/todos/"+created.ID, map[string]bool{"completed": true}, &patched))
	assert.True(t, patched.Completed)
	assert.Equal(t, "Buy milk", patched.Title)

	var put todoJSON
	require.Equal(t, http.StatusOK, ada.do(http.MethodPut, "/api/todos/"+created.ID, map[string]string{"title": "Buy oat milk"}, &put))
	assert.Equal(t, "Buy oat milk", put.Title)
	assert.True(t, put.Completed)

	var got todoJSON
	require.Equal(t, http.StatusOK, ada.do(http.MethodGet, "/api/todos/"+created.ID, nil, &got))
	assert.Equal(t, put, got)

	require.Equal(t, http.StatusOK, ada.do(http.MethodDelete, "/api/todos/"+created.ID, nil, nil))

	var e errJSON
	assert.Equal(t, http.StatusNotFound, ada.do(http.MethodGet, "/api/todos/"+created.ID, nil, &e))
	assert.Equal(t, "not_found", e.Code)
}

func TestCreateWithoutDeadline(t *testing.T) {
	srv := newTestServer(t, pinger{})
	ada := signup(t, srv.URL, "ada@example.com")

	var e errJSON
	status := ada.do(http.MethodPost, "/api/todos", map[string]string{"title": "Buy milk"}, &e)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", e.Code)
	assert.Contains(t, e.Fields, "deadline")

	var list []todoJSON
	require.Equal(t, http.StatusOK, ada.do(http.MethodGet, "/api/todos", nil, &list))
	assert.Empty(t, list)
}

func TestOtherUsersTodosAreInvisible(t *testing.T) {
	srv := newTestServer(t, pinger{})
	ada := signup(t, srv.URL, "ada@example.com")
	grace := signup(t, srv.URL, "grace@example.com")

	var created todoJSON
	require.Equal(t, http.StatusCreated, ada.do(http.MethodPost, "/api/todos", map[string]string{"title": "private", "deadline": "2025-01-01T00:00:00Z"}, &created))

	var missing, foreign errJSON
	require.Equal(t, http.StatusNotFound, grace.do(http.MethodGet, "/api/todos/123", nil, &missing))
	require.Equal(t, http.StatusNotFound, grace.do(http.MethodGet, "/api/todos/"+created.ID, nil, &foreign))
	assert.Equal(t, missing, foreign)

	assert.Equal(t, http.StatusNotFound, grace.do(http.MethodPatch, "/api/todos/"+created.ID, map[string]bool{"completed": true}, nil))
	assert.Equal(t, http.StatusNotFound, grace.do(http.MethodDelete, "/api/todos/"+created.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, grace.do(http.MethodGet, "/api/todos/not-a-number", nil, nil))

	var list []todoJSON
	require.Equal(t, http.StatusOK, grace.do(http.MethodGet, "/api/todos", nil, &list))
	assert.Empty(t, list)

	var mine todoJSON
	require.Equal(t, http.StatusOK, ada.do(http.MethodGet, "/api/todos/"+created.ID, nil, &mine))
	assert.False(t, mine.Completed)
}

func TestLogoutRevokesToken(t *testing.T) {
	srv := newTestServer(t, pinger{})
	ada := signup(t, srv.URL, "ada@example.com")

	require.Equal(t, http.StatusOK, ada.do(http.MethodGet, "/api/todos", nil, nil))
	require.Equal(t, http.StatusOK, ada.do(http.MethodPost, "/api/users/logout", nil, nil))

	var e errJSON
	assert.Equal(t, http.StatusUnauthorized, ada.do(http.MethodGet, "/api/todos", nil, &e))
	assert.Equal(t, "unauthenticated", e.Code)
	assert.Equal(t, http.StatusUnauthorized, ada.do(http.MethodPost, "/api/todos", map[string]string{"title": "x", "deadline": "2025-01-01T00:00:00Z"}, nil))

	anon := &client{t: t, base: srv.URL}
	assert.Equal(t, http.StatusOK, anon.do(http.MethodPost, "/api/users/logout", nil, nil))
}

func TestGateRejectsAnonymous(t *testing.T) {
	srv := newTestServer(t, pinger{})
	anon := &client{t: t, base: srv.URL}

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/todos"},
		{http.MethodPost, "/api/todos"},
		{http.MethodGet, "/api/todos/1"},
		{http.MethodPut, "/api/todos/1"},
		{http.MethodPatch, "/api/todos/1"},
		{http.MethodDelete, "/api/todos/1"},
		{http.MethodGet, "/api/users/me"},
		{http.MethodPut, "/api/users/me"},
	} {
		assert.Equal(t, http.StatusUnauthorized, anon.do(tc.method, tc.path, nil, nil), tc.method+" "+tc.path)
	}
}

func TestLoginFailuresLookAlike(t *testing.T) {
	srv := newTestServer(t, pinger{})
	signup(t, srv.URL, "ada@example.com")
	anon := &client{t: t, base: srv.URL}

	var unknown, wrong errJSON
	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodPost, "/api/users/login", map[string]string{"email": "nobody@example.com", "password": "Str0ng!Pass"}, &unknown))
	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodPost, "/api/users/login", map[string]string{"email": "ada@example.com", "password": "Wr0ng!Pass"}, &wrong))
	assert.Equal(t, unknown, wrong)
}

func TestRegisterConflictAndWeakPassword(t *testing.T) {
	srv := newTestServer(t, pinger{})
	signup(t, srv.URL, "ada@example.com")
	anon := &client{t: t, base: srv.URL}

	var dup errJSON
	assert.Equal(t, http.StatusConflict, anon.do(http.MethodPost, "/api/users/register",
		map[string]string{"email": "ada@example.com", "password": "Str0ng!Pass", "first_name": "Ada"}, &dup))
	assert.Equal(t, "conflict", dup.Code)

	var weak errJSON
	assert.Equal(t, http.StatusBadRequest, anon.do(http.MethodPost, "/api/users/register",
		map[string]string{"email": "grace@example.com", "password": "password", "first_name": "Grace"}, &weak))
	assert.Equal(t, "weak_credential", weak.Code)
}

func TestProfile(t *testing.T) {
	srv := newTestServer(t, pinger{})
	ada := signup(t, srv.URL, "ada@example.com")

	var me struct {
		User map[string]any `json:"user"`
	}
	require.Equal(t, http.StatusOK, ada.do(http.MethodGet, "/api/users/me", nil, &me))
	assert.Equal(t, "ada@example.com", me.User["email"])
	assert.NotContains(t, me.User, "password_hash")

	require.Equal(t, http.StatusOK, ada.do(http.MethodPut, "/api/users/me", map[string]string{"first_name": "Augusta"}, &me))
	assert.Equal(t, "Augusta", me.User["first_name"])
}

func TestHealth(t *testing.T) {
	up := newTestServer(t, pinger{})
	resp, err := http.Get(up.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	down := newTestServer(t, pinger{err: errors.New("db down")})
	resp, err = http.Get(down.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, pinger{})
	signup(t, srv.URL, "ada@example.com")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), "todo_login_attempts_total")
	assert.Contains(t, buf.String(), `route="POST /api/users/login"`)
}

func TestRecoverMiddleware(t *testing.T) {
	h := RequestIDMiddleware(RecoverMiddleware(zap.NewNop().Sugar())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error","code":"storage_error"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDIsKeptWhenValid(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	const id = "6f1c1f9e-5a43-4d0e-9f57-0b3a2c4f2f10"
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, id)
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, id, seen)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "<script>")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.NotEqual(t, "<script>", seen)
	assert.NotEmpty(t, seen)
}
