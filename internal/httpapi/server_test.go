package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/edustack-labs/edustack/internal/auth"
	"github.com/edustack-labs/edustack/internal/chat"
	"github.com/edustack-labs/edustack/internal/llm"
	"github.com/edustack-labs/edustack/internal/platform"
)

type stubProvider struct {
	calls atomic.Int64
	fail  error
	reply string
}

func (p *stubProvider) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	p.calls.Add(1)
	if p.fail != nil {
		return nil, p.fail
	}
	reply := p.reply
	if reply == "" {
		reply = "echo: " + req.Messages[len(req.Messages)-1].Content
	}
	return &llm.Response{Text: reply, Model: "stub-model"}, nil
}

func (p *stubProvider) Name() string  { return "stub" }
func (p *stubProvider) Model() string { return "stub-model" }

func newTestServer(t *testing.T, provider llm.Provider) (*Server, *chat.Service) {
	t.Helper()
	svc, err := chat.NewService(chat.Options{Provider: provider})
	if err != nil {
		t.Fatalf("chat.NewService: %v", err)
	}
	t.Cleanup(svc.Close)

	srv, err := New(Options{
		Chat:          svc,
		ProviderName:  provider.Name(),
		ProviderModel: provider.Model(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, svc
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChatEndpoint(t *testing.T) {
	t.Parallel()

	p := &stubProvider{reply: "hello there"}
	srv, _ := newTestServer(t, p)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/chat", `{"message":"hi","session_id":"s1"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response != "hello there" || resp.SessionID != "s1" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestChatEndpoint_BlankSessionUsesDefault(t *testing.T) {
	t.Parallel()

	srv, svc := newTestServer(t, &stubProvider{})
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/chat", `{"message":"hi"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp chatResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.SessionID != chat.DefaultSessionID {
		t.Fatalf("session_id = %q", resp.SessionID)
	}
	if svc.Registry().Len() != 1 {
		t.Fatalf("registry size = %d", svc.Registry().Len())
	}
}

func TestChatEndpoint_EmptyMessageRejectedWithoutProviderCall(t *testing.T) {
	t.Parallel()

	p := &stubProvider{}
	srv, _ := newTestServer(t, p)
	h := srv.Handler()

	for _, body := range []string{`{"message":""}`, `{"message":"   "}`, `{}`} {
		rec := doJSON(t, h, http.MethodPost, "/chat", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d", body, rec.Code)
		}
	}
	if n := p.calls.Load(); n != 0 {
		t.Fatalf("provider called %d times for blank input", n)
	}
}

func TestChatEndpoint_UpstreamFailureIsBadGateway(t *testing.T) {
	t.Parallel()

	p := &stubProvider{fail: &llm.UpstreamError{Kind: llm.KindRateLimit, Provider: "stub", Message: "429 too many requests"}}
	srv, _ := newTestServer(t, p)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/chat", `{"message":"hi"}`, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "rate_limit") {
		t.Fatalf("body %q does not name the failure class", body)
	}
	if strings.Contains(body, "429") {
		t.Fatalf("body %q leaks raw provider detail", body)
	}
}

func TestChatEndpoint_MethodAndJSONValidation(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &stubProvider{})
	h := srv.Handler()

	if rec := doJSON(t, h, http.MethodGet, "/chat", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /chat status = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/chat", `{not json`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid json status = %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &stubProvider{})
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d", rec.Code)
	}
	var basic map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &basic)
	if basic["status"] != "healthy" {
		t.Fatalf("/health body = %s", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/health/details", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/health/details status = %d", rec.Code)
	}
	var details healthDetailsResp
	if err := json.Unmarshal(rec.Body.Bytes(), &details); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if details.Services["database"] != "not_configured" {
		t.Fatalf("database status = %q", details.Services["database"])
	}
	if details.Services["llm"] != "stub/stub-model" {
		t.Fatalf("llm status = %q", details.Services["llm"])
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, &stubProvider{})
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodOptions, "/chat", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS origin header")
	}
}

func TestAuthGating(t *testing.T) {
	t.Parallel()

	svc, err := chat.NewService(chat.Options{Provider: &stubProvider{}})
	if err != nil {
		t.Fatalf("chat.NewService: %v", err)
	}
	t.Cleanup(svc.Close)

	tokens, err := auth.NewManager("test-secret")
	if err != nil {
		t.Fatalf("auth.NewManager: %v", err)
	}
	srv, err := New(Options{
		Chat:         svc,
		Tokens:       tokens,
		Users:        platform.NewUsers(nil),
		Institutions: platform.NewInstitutions(nil),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := srv.Handler()

	// No token.
	if rec := doJSON(t, h, http.MethodGet, "/api/auth/users", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}

	// Garbage token.
	hdr := http.Header{"Authorization": []string{"Bearer not-a-token"}}
	if rec := doJSON(t, h, http.MethodGet, "/api/auth/users", "", hdr); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}

	// Valid token, insufficient role.
	studentToken, err := tokens.Issue(auth.Identity{ID: "11111111-1111-1111-1111-111111111111", Email: "s@x.edu", Role: "student"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	hdr = http.Header{"Authorization": []string{"Bearer " + studentToken}}
	if rec := doJSON(t, h, http.MethodGet, "/api/auth/users", "", hdr); rec.Code != http.StatusForbidden {
		t.Fatalf("student on admin endpoint status = %d", rec.Code)
	}

	// Admin can pass the gate but super_admin-only stays closed.
	adminToken, err := tokens.Issue(auth.Identity{ID: "22222222-2222-2222-2222-222222222222", Email: "a@x.edu", Role: "admin"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	hdr = http.Header{"Authorization": []string{"Bearer " + adminToken}}
	if rec := doJSON(t, h, http.MethodPut, "/api/auth/users/role", `{"user_id":"x","role":"admin"}`, hdr); rec.Code != http.StatusForbidden {
		t.Fatalf("admin on super_admin endpoint status = %d", rec.Code)
	}
}

func TestSignupValidation(t *testing.T) {
	t.Parallel()

	svc, err := chat.NewService(chat.Options{Provider: &stubProvider{}})
	if err != nil {
		t.Fatalf("chat.NewService: %v", err)
	}
	t.Cleanup(svc.Close)

	tokens, _ := auth.NewManager("test-secret")
	srv, err := New(Options{
		Chat:         svc,
		Tokens:       tokens,
		Users:        platform.NewUsers(nil),
		Institutions: platform.NewInstitutions(nil),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := srv.Handler()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing email", `{"password":"longenough","first_name":"A","last_name":"B"}`, http.StatusBadRequest},
		{"short password", `{"email":"a@x.edu","password":"short","first_name":"A","last_name":"B"}`, http.StatusBadRequest},
		{"missing name", `{"email":"a@x.edu","password":"longenough","last_name":"B"}`, http.StatusBadRequest},
		{"bad role", `{"email":"a@x.edu","password":"longenough","first_name":"A","last_name":"B","role":"root"}`, http.StatusBadRequest},
		{"super_admin blocked", `{"email":"a@x.edu","password":"longenough","first_name":"A","last_name":"B","role":"super_admin"}`, http.StatusForbidden},
	}
	for _, tc := range cases {
		rec := doJSON(t, h, http.MethodPost, "/api/auth/signup", tc.body, nil)
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d (body %s)", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}
