package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/support-router/internal/api/http/handlers"
	"github.com/spec-kit/support-router/internal/auth"
	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/observability"
	"github.com/spec-kit/support-router/internal/outbound"
	"github.com/spec-kit/support-router/internal/repository/sqlitestore"
	"github.com/spec-kit/support-router/internal/service"
)

const testOpsKey = "ops-secret"

type testServer struct {
	t      *testing.T
	app    *fiber.App
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlitestore.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	repos := store.Repositories()
	t.Cleanup(func() { repos.Close() })

	policy := config.DefaultRoutingPolicy()
	policy.ReadRetryAttempts = 1
	metrics := observability.NewMetrics()
	coordinator := service.NewCoordinator(service.CoordinatorDependencies{
		Store:     repos,
		Policy:    policy,
		Formatter: outbound.NewDeepLinkFormatter("https://wa.me/", "+15550100"),
		Metrics:   metrics,
	})

	opsHash, err := auth.HashOpsKey(testOpsKey, 4)
	if err != nil {
		t.Fatal(err)
	}
	tokens := auth.NewTokenManager("test-secret", 5)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-router", "test", repos, nil),
		Tickets:        handlers.NewTicketsHandler(coordinator),
		Sessions:       handlers.NewSessionsHandler(coordinator),
		Admin:          handlers.NewAdminHandler(coordinator),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		OpsKeys:        auth.NewOpsKeyVerifier(opsHash),
		Metrics:        metrics,
	})
	return &testServer{t: t, app: app, tokens: tokens}
}

func (s *testServer) token(id string, role domain.Role) string {
	s.t.Helper()
	token, _, err := s.tokens.GenerateToken(domain.Principal{ID: id, Role: role})
	if err != nil {
		s.t.Fatal(err)
	}
	return token
}

type response struct {
	status int
	header map[string]string
	body   map[string]any
	raw    string
}

func (s *testServer) do(method, path, token string, payload any, headers ...string) response {
	s.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			s.t.Fatal(err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := response{status: resp.StatusCode, raw: string(raw), header: map[string]string{}}
	for k := range resp.Header {
		out.header[k] = resp.Header.Get(k)
	}
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		_ = json.Unmarshal(raw, &out.body)
	}
	return out
}

func (r response) data() map[string]any {
	data, _ := r.body["data"].(map[string]any)
	return data
}

func (r response) errorCode() string {
	errBody, _ := r.body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func (r response) errorKind() string {
	errBody, _ := r.body["error"].(map[string]any)
	kind, _ := errBody["kind"].(string)
	return kind
}

func (s *testServer) expect(r response, status int) {
	s.t.Helper()
	if r.status != status {
		s.t.Fatalf("status = %d, want %d; body %s", r.status, status, r.raw)
	}
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.token("root", domain.RoleAdmin)
	agent := s.token("a1", domain.RoleAgent)
	user := s.token("u1", domain.RoleUser)

	s.expect(s.do("PUT", "/v1/admin/agents/a1", admin, map[string]any{
		"display_name":        "Agent One",
		"contact_handle":      "+1 555 0001",
		"authorized_for_work": true,
	}), fiber.StatusOK)

	started := s.do("POST", "/v1/sessions", agent, nil)
	s.expect(started, fiber.StatusCreated)
	if started.data()["resumed"] != false {
		t.Fatalf("first start should not resume: %s", started.raw)
	}
	s.expect(s.do("POST", "/v1/sessions", agent, nil), fiber.StatusOK)

	created := s.do("POST", "/v1/tickets", user, map[string]any{
		"category": "billing",
		"summary":  "card declined",
	}, "Idempotency-Key", "req-1")
	s.expect(created, fiber.StatusCreated)
	ticket := created.data()["ticket"].(map[string]any)
	id := ticket["id"].(string)
	if !strings.HasPrefix(id, "TCK-") {
		t.Fatalf("ticket id %q is not a public id", id)
	}
	if ticket["status"] != string(domain.TicketStatusNew) {
		t.Fatalf("status = %v", ticket["status"])
	}

	replay := s.do("POST", "/v1/tickets", user, map[string]any{
		"category": "billing",
		"summary":  "card declined",
	}, "Idempotency-Key", "req-1")
	s.expect(replay, fiber.StatusOK)
	if replay.data()["reused"] != true {
		t.Fatalf("replay should reuse: %s", replay.raw)
	}

	assigned := s.do("POST", "/v1/tickets/"+id+"/assign", agent, nil)
	s.expect(assigned, fiber.StatusOK)
	if got := assigned.data()["ticket"].(map[string]any)["assigned_agent_id"]; got != "a1" {
		t.Fatalf("assigned_agent_id = %v", got)
	}
	message, _ := assigned.data()["message"].(map[string]any)
	if link, _ := message["link"].(string); !strings.HasPrefix(link, "https://wa.me/15550001?text=") {
		t.Fatalf("assignment link = %q", link)
	}

	s.expect(s.do("POST", "/v1/tickets/"+id+"/status", agent, map[string]any{"status": "in_progress"}), fiber.StatusOK)

	closed := s.do("POST", "/v1/tickets/"+id+"/close", agent, map[string]any{"resolution": "card replaced"})
	s.expect(closed, fiber.StatusOK)
	if closed.data()["status"] != string(domain.TicketStatusClosed) {
		t.Fatalf("status = %v", closed.data()["status"])
	}

	trail := s.do("GET", "/v1/tickets/"+id+"/events", agent, nil)
	s.expect(trail, fiber.StatusOK)
	items, _ := trail.body["data"].([]any)
	var types []string
	for _, item := range items {
		types = append(types, item.(map[string]any)["event_type"].(string))
	}
	want := []string{"created", "assigned", "status_changed", "closed"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("trail = %v, want %v", types, want)
	}

	ended := s.do("POST", "/v1/sessions/end", agent, map[string]any{"reason": "logout"})
	s.expect(ended, fiber.StatusOK)
	if ended.data()["ended"] != true {
		t.Fatalf("end should report ended: %s", ended.raw)
	}

	presence := s.do("GET", "/v1/agents/a1/events", agent, nil)
	s.expect(presence, fiber.StatusOK)
	if n := len(presence.body["data"].([]any)); n != 2 {
		t.Fatalf("presence events = %d, want 2", n)
	}
}

func TestErrorEnvelope(t *testing.T) {
	s := newTestServer(t)
	agent := s.token("a1", domain.RoleAgent)
	user := s.token("u1", domain.RoleUser)
	admin := s.token("root", domain.RoleAdmin)

	created := s.do("POST", "/v1/tickets", user, map[string]any{"summary": "help"})
	s.expect(created, fiber.StatusCreated)
	id := created.data()["ticket"].(map[string]any)["id"].(string)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
		kind   string
	}{
		{"missing token", "POST", "/v1/tickets", "", map[string]any{"summary": "x"}, 401, "UNAUTHORIZED", "UNAUTHORIZED"},
		{"user cannot assign", "POST", "/v1/tickets/" + id + "/assign", user, nil, 403, "FORBIDDEN", "FORBIDDEN"},
		{"unknown ticket", "GET", "/v1/tickets/TCK-MISSING", agent, nil, 404, "THREAD_NOT_FOUND", "NOT_FOUND"},
		{"no session", "POST", "/v1/tickets/" + id + "/assign", agent, nil, 412, "AGENT_SESSION_INACTIVE", "PRECONDITION_FAILED"},
		{"empty summary", "POST", "/v1/tickets", s.token("u2", domain.RoleUser), map[string]any{"summary": " "}, 400, "VALIDATION_FAILED", "INVALID_INPUT"},
		{"bad end reason", "POST", "/v1/sessions/end", agent, map[string]any{"reason": "timeout"}, 400, "VALIDATION_FAILED", "INVALID_INPUT"},
		{"agent cannot administer", "PUT", "/v1/admin/agents/a1", agent, map[string]any{"authorized_for_work": true}, 403, "FORBIDDEN", "FORBIDDEN"},
		{"close requires resolution", "POST", "/v1/tickets/" + id + "/close", admin, map[string]any{}, 400, "VALIDATION_FAILED", "INVALID_INPUT"},
		{"unknown route", "GET", "/v1/nowhere", "", nil, 404, "NOT_FOUND", "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := s.do(tt.method, tt.path, tt.token, tt.body)
			if r.status != tt.status || r.errorCode() != tt.code || r.errorKind() != tt.kind {
				t.Fatalf("got %d %s/%s, want %d %s/%s; body %s",
					r.status, r.errorKind(), r.errorCode(), tt.status, tt.kind, tt.code, r.raw)
			}
		})
	}
}

func TestTicketsHiddenFromOtherUsers(t *testing.T) {
	s := newTestServer(t)
	created := s.do("POST", "/v1/tickets", s.token("u1", domain.RoleUser), map[string]any{"summary": "mine"})
	s.expect(created, fiber.StatusCreated)
	id := created.data()["ticket"].(map[string]any)["id"].(string)

	s.expect(s.do("GET", "/v1/tickets/"+id, s.token("u1", domain.RoleUser), nil), fiber.StatusOK)
	other := s.do("GET", "/v1/tickets/"+id, s.token("u2", domain.RoleUser), nil)
	if other.status != fiber.StatusNotFound || other.errorCode() != "THREAD_NOT_FOUND" {
		t.Fatalf("other user got %d %s", other.status, other.errorCode())
	}
}

func TestRateLimitSetsRetryAfter(t *testing.T) {
	s := newTestServer(t)
	user := s.token("u1", domain.RoleUser)
	admin := s.token("root", domain.RoleAdmin)

	created := s.do("POST", "/v1/tickets", user, map[string]any{"summary": "first"})
	s.expect(created, fiber.StatusCreated)
	id := created.data()["ticket"].(map[string]any)["id"].(string)
	s.expect(s.do("POST", "/v1/tickets/"+id+"/close", admin, map[string]any{"resolution": "duplicate"}), fiber.StatusOK)

	limited := s.do("POST", "/v1/tickets", user, map[string]any{"summary": "second"})
	if limited.status != fiber.StatusTooManyRequests || limited.errorCode() != "RATE_LIMITED" {
		t.Fatalf("got %d %s", limited.status, limited.errorCode())
	}
	if got := limited.header[fiber.HeaderRetryAfter]; got != "900" {
		t.Fatalf("Retry-After = %q, want 900", got)
	}
}

func TestOpsSweepAccess(t *testing.T) {
	s := newTestServer(t)

	r := s.do("POST", "/v1/ops/sweep", "", nil, auth.OpsKeyHeader, testOpsKey)
	s.expect(r, fiber.StatusOK)
	if _, ok := r.data()["sweep"].(map[string]any); !ok {
		t.Fatalf("missing sweep report: %s", r.raw)
	}

	s.expect(s.do("POST", "/v1/ops/sweep", "", nil, auth.OpsKeyHeader, "wrong"), fiber.StatusUnauthorized)
	s.expect(s.do("POST", "/v1/ops/sweep", s.token("a1", domain.RoleAgent), nil), fiber.StatusForbidden)
	s.expect(s.do("POST", "/v1/ops/sweep", s.token("root", domain.RoleAdmin), nil), fiber.StatusOK)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	s.expect(s.do("GET", "/health/live", "", nil), fiber.StatusOK)
	ready := s.do("GET", "/health/ready", "", nil)
	s.expect(ready, fiber.StatusOK)
	deps, _ := ready.body["dependencies"].(map[string]any)
	if deps["store"] != "ok" || deps["redis"] != "disabled" {
		t.Fatalf("dependencies = %v", deps)
	}

	metrics := s.do("GET", "/metrics", "", nil)
	s.expect(metrics, fiber.StatusOK)
	if !strings.Contains(metrics.raw, "http_requests_total") {
		t.Fatalf("metrics output missing request counter")
	}
}

func TestRequestIDIsAssignedAndLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	app := fiber.New()
	RegisterMiddlewares(app, zap.New(core), observability.NewMetrics(), 0)
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	rid := resp.Header.Get(fiber.HeaderXRequestID)
	if rid == "" {
		t.Fatal("response carries no request id")
	}
	served := logs.FilterMessage("request served").All()
	if len(served) != 1 {
		t.Fatalf("logged %d request lines, want 1", len(served))
	}
	if got := served[0].ContextMap()["request_id"]; got != rid {
		t.Fatalf("logged request_id = %v, want %s", got, rid)
	}

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-42")
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(fiber.HeaderXRequestID); got != "req-42" {
		t.Fatalf("inbound request id not kept, got %q", got)
	}
}
