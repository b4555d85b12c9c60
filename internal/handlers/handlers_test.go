package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kaitanna/kaitanna-backend/internal/auth"
	"github.com/kaitanna/kaitanna-backend/internal/kv"
	"github.com/kaitanna/kaitanna-backend/internal/middleware"
	"github.com/kaitanna/kaitanna-backend/internal/models"
	"github.com/kaitanna/kaitanna-backend/internal/mood"
	"github.com/kaitanna/kaitanna-backend/internal/services"
	"go.uber.org/zap"
)

type memChats struct {
	mu       sync.Mutex
	sessions map[string]models.ChatSession
	messages []models.ChatMessage
}

func newMemChats() *memChats {
	return &memChats{sessions: make(map[string]models.ChatSession)}
}

func (m *memChats) CreateSession(_ context.Context, s models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memChats) ListSessions(_ context.Context, userID string) ([]models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChatSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (m *memChats) GetSession(_ context.Context, userID, id string) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	return &s, nil
}

func (m *memChats) RenameSession(_ context.Context, userID, id, title string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return false, nil
	}
	s.Title, s.UpdatedAt = title, at
	m.sessions[id] = s
	return true, nil
}

func (m *memChats) TouchSession(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastMessageAt = at
		m.sessions[id] = s
	}
	return nil
}

func (m *memChats) DeleteSession(_ context.Context, userID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return false, nil
	}
	delete(m.sessions, id)
	return true, nil
}

func (m *memChats) InsertMessage(_ context.Context, msg models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memChats) ListMessages(_ context.Context, sessionID string, limit int64) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChatMessage
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (m *memChats) DeleteAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

type stubGenerator struct {
	reply string
	err   error
}

func (g stubGenerator) Generate(context.Context, string) (string, error) {
	return g.reply, g.err
}

type stubAvatars struct {
	url string
	err error
}

func (s stubAvatars) UploadAvatar(_ context.Context, _ string, file io.Reader) (string, error) {
	if _, err := io.ReadAll(file); err != nil {
		return "", err
	}
	return s.url, s.err
}

type testEnv struct {
	auth     *auth.Service
	moods    *services.MoodStore
	journals *services.JournalStore
	router   chi.Router
}

// newTestEnv wires the handlers onto a router the same way the server does,
// with every backend in memory.
func newTestEnv(t *testing.T, gen stubGenerator) *testEnv {
	t.Helper()
	log := zap.NewNop()
	mem := kv.NewMemory()

	authSvc := auth.NewService(
		auth.NewKVDirectory(mem, log),
		auth.NewSessionRegistry(mem),
		auth.NewTokens("test-secret", auth.SessionDuration),
		auth.NewHub(),
		log,
	)
	moods := services.NewMoodStore(mem, time.UTC, log)
	journals := services.NewJournalStore(nil, mem, log)

	var chat *services.ChatService
	if gen.reply != "" || gen.err != nil {
		chat = services.NewChatService(newMemChats(), gen, log)
	} else {
		chat = services.NewChatService(nil, nil, log)
	}
	authSvc.OnAccountDelete(moods.DeleteAllForUser)
	authSvc.OnAccountDelete(journals.DeleteAllForUser)
	authSvc.OnAccountDelete(chat.DeleteAllForUser)

	authH := NewAuthHandler(authSvc, log)
	moodH := NewMoodHandler(moods, time.UTC, log)
	journalH := NewJournalHandler(journals, log)
	dashH := NewDashboardHandler(moods, journals, time.UTC, log)
	chatH := NewChatHandler(chat, log)
	profileH := NewProfileHandler(authSvc, nil, log)

	r := chi.NewRouter()
	r.Post("/api/auth/signup", authH.Signup)
	r.Post("/api/auth/login", authH.Login)
	r.Post("/api/auth/logout", authH.Logout)
	r.Get("/api/auth/me", authH.Me)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(authSvc))
		r.Delete("/api/auth/account", authH.DeleteAccount)
		r.Get("/api/profile", profileH.GetProfile)
		r.Put("/api/profile", profileH.UpdateProfile)
		r.Post("/api/profile/avatar", profileH.UploadAvatar)
		r.Get("/api/moods/catalog", moodH.Catalog)
		r.Post("/api/moods", moodH.Create)
		r.Get("/api/moods", moodH.List)
		r.Get("/api/moods/chart", moodH.Chart)
		r.Get("/api/moods/distribution", moodH.Distribution)
		r.Delete("/api/moods/{id}", moodH.Delete)
		r.Post("/api/journals", journalH.CreateJournal)
		r.Get("/api/journals", journalH.GetJournals)
		r.Put("/api/journals/{id}", journalH.UpdateJournal)
		r.Delete("/api/journals/{id}", journalH.DeleteJournal)
		r.Get("/api/dashboard", dashH.GetDashboard)
		r.Get("/api/chat/sessions", chatH.ListSessions)
		r.Post("/api/chat/sessions", chatH.CreateSession)
		r.Put("/api/chat/sessions/{id}", chatH.RenameSession)
		r.Delete("/api/chat/sessions/{id}", chatH.DeleteSession)
		r.Get("/api/chat/sessions/{id}/messages", chatH.Messages)
		r.Post("/api/chat/sessions/{id}/messages", chatH.SendMessage)
	})

	return &testEnv{auth: authSvc, moods: moods, journals: journals, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: invalid JSON response %q", method, path, rec.Body.String())
	}
	return rec, out
}

func (e *testEnv) signup(t *testing.T, username string) string {
	t.Helper()
	rec, body := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "supersecret",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %v", rec.Code, body)
	}
	session := body["session"].(map[string]interface{})
	return session["token"].(string)
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})
	token := env.signup(t, "river")

	rec, body := env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}
	user := body["user"].(map[string]interface{})
	if user["username"] != "river" {
		t.Errorf("me username = %v", user["username"])
	}
	if _, leaked := user["PasswordHash"]; leaked {
		t.Error("password hash in response")
	}

	rec, _ = env.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
	rec, _ = env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("me after logout status = %d, want 401", rec.Code)
	}

	rec, body = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"identifier": "river@example.com",
		"password":   "supersecret",
	})
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("login status = %d, body %v", rec.Code, body)
	}
}

func TestAuthErrors(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})
	env.signup(t, "taken")

	tests := []struct {
		name string
		path string
		body interface{}
		want int
	}{
		{"bad json", "/api/auth/signup", "nope", http.StatusBadRequest},
		{"short username", "/api/auth/signup", map[string]string{"username": "ab", "email": "a@b.co", "password": "supersecret"}, http.StatusBadRequest},
		{"bad email", "/api/auth/signup", map[string]string{"username": "fresh", "email": "nope", "password": "supersecret"}, http.StatusBadRequest},
		{"short password", "/api/auth/signup", map[string]string{"username": "fresh", "email": "f@b.co", "password": "short"}, http.StatusBadRequest},
		{"username taken", "/api/auth/signup", map[string]string{"username": "TAKEN", "email": "new@b.co", "password": "supersecret"}, http.StatusConflict},
		{"email taken", "/api/auth/signup", map[string]string{"username": "other", "email": "taken@example.com", "password": "supersecret"}, http.StatusConflict},
		{"wrong password", "/api/auth/login", map[string]string{"identifier": "taken", "password": "wrongpassword"}, http.StatusUnauthorized},
		{"unknown user", "/api/auth/login", map[string]string{"identifier": "ghost", "password": "supersecret"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodPost, tt.path, "", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %v)", rec.Code, tt.want, body)
			}
			if body["success"] != false || body["message"] == "" {
				t.Errorf("error envelope = %v", body)
			}
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})
	for _, path := range []string{"/api/moods", "/api/journals", "/api/dashboard", "/api/profile", "/api/chat/sessions"} {
		rec, _ := env.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, rec.Code)
		}
	}
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})
	token := env.signup(t, "ember")
	env.signup(t, "cinder")

	rec, body := env.do(t, http.MethodPut, "/api/profile", token, map[string]string{"username": "ember_2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %v", rec.Code, body)
	}
	if got := body["user"].(map[string]interface{})["username"]; got != "ember_2" {
		t.Errorf("username = %v", got)
	}

	rec, _ = env.do(t, http.MethodPut, "/api/profile", token, map[string]string{"username": "cinder"})
	if rec.Code != http.StatusConflict {
		t.Errorf("taken username status = %d, want 409", rec.Code)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/profile/avatar", token, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("avatar without uploader status = %d, want 503", rec.Code)
	}
}

func TestMoodEndpoints(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})
	token := env.signup(t, "sunny")

	rec, body := env.do(t, http.MethodGet, "/api/moods/catalog", token, nil)
	if rec.Code != http.StatusOK || len(body["moods"].([]interface{})) != 28 {
		t.Fatalf("catalog status = %d, moods = %v", rec.Code, body["moods"])
	}

	rec, _ = env.do(t, http.MethodPost, "/api/moods", token, map[string]string{"mood": "Elated"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown mood status = %d, want 400", rec.Code)
	}

	env.do(t, http.MethodPost, "/api/moods", token, map[string]string{"mood": "Sad"})
	rec, body = env.do(t, http.MethodPost, "/api/moods", token, map[string]string{"mood": "Joyful", "note": " sunny day "})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %v", rec.Code, body)
	}
	entry := body["entry"].(map[string]interface{})
	if entry["note"] != "sunny day" {
		t.Errorf("note = %v", entry["note"])
	}

	rec, body = env.do(t, http.MethodGet, "/api/moods", token, nil)
	if rec.Code != http.StatusOK || body["total"].(float64) != 1 {
		t.Fatalf("same-day moods should collapse to one, got %v", body["total"])
	}
	listed := body["entries"].([]interface{})[0].(map[string]interface{})
	if listed["mood"] != "Joyful" || listed["emoji"] != mood.EmojiOf("Joyful") || listed["category"] != "happy" {
		t.Errorf("listed entry = %v", listed)
	}

	rec, body = env.do(t, http.MethodGet, "/api/moods/chart?range=month", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("chart status = %d", rec.Code)
	}
	buckets := body["buckets"].([]interface{})
	if len(buckets) != 30 {
		t.Fatalf("month chart has %d buckets, want 30", len(buckets))
	}
	today := buckets[len(buckets)-1].(map[string]interface{})
	if today["dominant"] != "happy" || today["total"].(float64) != 1 {
		t.Errorf("today bucket = %v", today)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/moods/chart?range=decade", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad range status = %d, want 400", rec.Code)
	}

	rec, body = env.do(t, http.MethodGet, "/api/moods/distribution", token, nil)
	if rec.Code != http.StatusOK || len(body["distribution"].([]interface{})) != 6 {
		t.Fatalf("distribution = %v", body)
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/moods/"+entry["id"].(string), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	_, body = env.do(t, http.MethodGet, "/api/moods", token, nil)
	if body["total"].(float64) != 0 {
		t.Errorf("total after delete = %v", body["total"])
	}
}

func TestMoodsAreScopedToUser(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")

	_, body := env.do(t, http.MethodPost, "/api/moods", alice, map[string]string{"mood": "Calm"})
	id := body["entry"].(map[string]interface{})["id"].(string)

	env.do(t, http.MethodDelete, "/api/moods/"+id, bob, nil)
	_, body = env.do(t, http.MethodGet, "/api/moods", alice, nil)
	if body["total"].(float64) != 1 {
		t.Error("another user deleted alice's mood")
	}
	_, body = env.do(t, http.MethodGet, "/api/moods", bob, nil)
	if body["total"].(float64) != 0 {
		t.Error("bob sees alice's moods")
	}
}

func TestJournalEndpoints(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})
	token := env.signup(t, "writer")

	rec, _ := env.do(t, http.MethodPost, "/api/journals", token, map[string]string{"title": "  ", "content": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank title status = %d, want 400", rec.Code)
	}

	rec, body := env.do(t, http.MethodPost, "/api/journals", token, map[string]string{"title": "Morning", "content": "Went for a run"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %v", rec.Code, body)
	}
	if body["source"] != "local" {
		t.Errorf("source = %v, want local", body["source"])
	}
	journal := body["journal"].(map[string]interface{})
	id := journal["id"].(string)
	if journal["edited"] != false {
		t.Error("new entry reported as edited")
	}
	env.do(t, http.MethodPost, "/api/journals", token, map[string]string{"title": "Evening", "content": "Read a book"})

	_, body = env.do(t, http.MethodGet, "/api/journals?q=RUN", token, nil)
	if body["total"].(float64) != 1 {
		t.Errorf("search total = %v, want 1", body["total"])
	}

	rec, body = env.do(t, http.MethodPut, "/api/journals/"+id, token, map[string]string{"title": "Morning", "content": "Went for a long run"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	if body["journal"].(map[string]interface{})["content"] != "Went for a long run" {
		t.Errorf("updated journal = %v", body["journal"])
	}

	rec, _ = env.do(t, http.MethodPut, "/api/journals/missing", token, map[string]string{"title": "a", "content": "b"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("update missing status = %d, want 404", rec.Code)
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/journals/"+id, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec, _ = env.do(t, http.MethodDelete, "/api/journals/"+id, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})
	token := env.signup(t, "dash")
	env.do(t, http.MethodPost, "/api/moods", token, map[string]string{"mood": "Grateful"})
	for _, title := range []string{"one", "two", "three", "four"} {
		env.do(t, http.MethodPost, "/api/journals", token, map[string]string{"title": title, "content": "text"})
	}

	rec, body := env.do(t, http.MethodGet, "/api/dashboard", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rec.Code)
	}
	if body["journal_count"].(float64) != 4 {
		t.Errorf("journal_count = %v", body["journal_count"])
	}
	if n := len(body["recent_journals"].([]interface{})); n != dashboardRecentJournals {
		t.Errorf("recent_journals has %d entries", n)
	}
	if n := len(body["week"].([]interface{})); n != 7 {
		t.Errorf("week has %d buckets", n)
	}
	summary := body["mood"].(map[string]interface{})
	if summary["total_entries"].(float64) != 1 || summary["current_streak"].(float64) != 1 {
		t.Errorf("mood summary = %v", summary)
	}
}

func TestChatUnavailable(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})
	token := env.signup(t, "quiet")

	rec, _ := env.do(t, http.MethodGet, "/api/chat/sessions", token, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestChatFlow(t *testing.T) {
	env := newTestEnv(t, stubGenerator{reply: "I'm here for you."})
	token := env.signup(t, "talker")

	rec, body := env.do(t, http.MethodPost, "/api/chat/sessions", token, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body %v", rec.Code, body)
	}
	session := body["session"].(map[string]interface{})
	if session["title"] != services.DefaultChatTitle {
		t.Errorf("title = %v", session["title"])
	}
	id := session["id"].(string)

	rec, body = env.do(t, http.MethodPost, "/api/chat/sessions/"+id+"/messages", token, map[string]string{"content": "Rough day"})
	if rec.Code != http.StatusOK {
		t.Fatalf("send status = %d, body %v", rec.Code, body)
	}
	if body["reply"].(map[string]interface{})["sender"] != "kaitanna" {
		t.Errorf("reply = %v", body["reply"])
	}

	_, body = env.do(t, http.MethodGet, "/api/chat/sessions/"+id+"/messages", token, nil)
	if n := len(body["messages"].([]interface{})); n != 2 {
		t.Errorf("messages = %d, want 2", n)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/chat/sessions/"+id+"/messages", token, map[string]string{"content": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message status = %d, want 400", rec.Code)
	}
	rec, _ = env.do(t, http.MethodGet, "/api/chat/sessions/"+id+"/messages?limit=zero", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}

	rec, _ = env.do(t, http.MethodPut, "/api/chat/sessions/"+id, token, map[string]string{"title": "Work"})
	if rec.Code != http.StatusOK {
		t.Errorf("rename status = %d", rec.Code)
	}

	other := env.signup(t, "snoop")
	rec, _ = env.do(t, http.MethodGet, "/api/chat/sessions/"+id+"/messages", other, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign session status = %d, want 404", rec.Code)
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/chat/sessions/"+id, token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec, _ = env.do(t, http.MethodDelete, "/api/chat/sessions/"+id, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestChatGenerationFailure(t *testing.T) {
	env := newTestEnv(t, stubGenerator{err: errors.New("provider down")})
	token := env.signup(t, "unlucky")

	_, body := env.do(t, http.MethodPost, "/api/chat/sessions", token, nil)
	id := body["session"].(map[string]interface{})["id"].(string)

	rec, body := env.do(t, http.MethodPost, "/api/chat/sessions/"+id+"/messages", token, map[string]string{"content": "hello?"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if body["user_message"] == nil {
		t.Error("stored user message missing from failure response")
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})
	token := env.signup(t, "leaving")
	_, body := env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	userID := body["user"].(map[string]interface{})["id"].(string)

	env.do(t, http.MethodPost, "/api/moods", token, map[string]string{"mood": "Tired"})
	env.do(t, http.MethodPost, "/api/journals", token, map[string]string{"title": "bye", "content": "bye"})

	rec, _ := env.do(t, http.MethodDelete, "/api/auth/account", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete account status = %d", rec.Code)
	}

	ctx := context.Background()
	moods, _ := env.moods.ListByUser(ctx, userID)
	journals, _, _ := env.journals.ListByUser(ctx, userID, "")
	if len(moods) != 0 || len(journals) != 0 {
		t.Errorf("left behind %d moods and %d journals", len(moods), len(journals))
	}

	rec, _ = env.do(t, http.MethodGet, "/api/profile", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("profile after delete status = %d, want 401", rec.Code)
	}
}

func uploadAvatar(t *testing.T, h *ProfileHandler, userID string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "me.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/profile/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = req.WithContext(middleware.WithClaims(req.Context(), &auth.Claims{UserID: userID}))
	rec := httptest.NewRecorder()
	h.UploadAvatar(rec, req)
	return rec
}

func TestUploadAvatar(t *testing.T) {
	env := newTestEnv(t, stubGenerator{})
	token := env.signup(t, "pictured")
	_, body := env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	userID := body["user"].(map[string]interface{})["id"].(string)

	png := []byte("\x89PNG\r\n\x1a\n0000000000")
	tests := []struct {
		name    string
		avatars stubAvatars
		want    int
	}{
		{"uploaded", stubAvatars{url: "https://cdn.example.com/a.png"}, http.StatusOK},
		{"rejected image", stubAvatars{err: services.ErrNotAnImage}, http.StatusBadRequest},
		{"provider failure", stubAvatars{err: errors.New("cloud down")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewProfileHandler(env.auth, tt.avatars, zap.NewNop())
			rec := uploadAvatar(t, h, userID, png)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	profile, err := env.auth.Profile(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if profile.AvatarURL != "https://cdn.example.com/a.png" {
		t.Errorf("avatar_url = %q", profile.AvatarURL)
	}
}

func TestMoodChartMatchesDistributionAtMonthBoundary(t *testing.T) {
	mem := kv.NewMemory()
	ctx := context.Background()
	seed := []models.MoodEntry{
		{ID: "jan31", UserID: "u1", Mood: "Sad", Date: time.Date(2026, time.January, 31, 9, 0, 0, 0, time.UTC)},
		{ID: "feb10", UserID: "u1", Mood: "Joyful", Date: time.Date(2026, time.February, 10, 9, 0, 0, 0, time.UTC)},
		{ID: "mar01", UserID: "u1", Mood: "Calm", Date: time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)},
	}
	if err := kv.SaveCollection(ctx, mem, kv.MoodEntriesKey, seed); err != nil {
		t.Fatal(err)
	}

	h := NewMoodHandler(services.NewMoodStore(mem, time.UTC, zap.NewNop()), time.UTC, zap.NewNop())
	h.now = func() time.Time { return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC) }

	call := func(handler http.HandlerFunc, path string) map[string]interface{} {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req = req.WithContext(middleware.WithClaims(req.Context(), &auth.Claims{UserID: "u1"}))
		rec := httptest.NewRecorder()
		handler(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		var out map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatal(err)
		}
		return out
	}

	chart := call(h.Chart, "/api/moods/chart?range=month")
	buckets := chart["buckets"].([]interface{})
	first := buckets[0].(map[string]interface{})
	if first["full_date"] != "2026-01-31" {
		t.Fatalf("first bucket = %v, want 2026-01-31", first["full_date"])
	}
	if first["total"].(float64) != 0 {
		t.Errorf("entry before the month cutoff was charted: %v", first)
	}
	charted := 0.0
	for _, b := range buckets {
		charted += b.(map[string]interface{})["total"].(float64)
	}

	dist := call(h.Distribution, "/api/moods/distribution?range=month")
	if dist["total"].(float64) != 2 || charted != 2 {
		t.Errorf("chart counted %v entries, distribution %v; want 2 each", charted, dist["total"])
	}
}
