package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/support-router/internal/domain"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expires, err := tm.GenerateToken(domain.Principal{ID: "g1", Role: domain.RoleAgent, Tenant: "acme"})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expires) > 5*time.Minute {
		t.Fatalf("expiry too far out: %v", expires)
	}

	p, err := tm.Resolve(t.Context(), token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.ID != "g1" || p.Role != domain.RoleAgent || p.Tenant != "acme" {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestTokenRejections(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, _, err := tm.GenerateToken(domain.Principal{ID: "g1", Role: domain.RoleAgent})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewTokenManager("other", 5).Resolve(t.Context(), token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}

	expired := NewTokenManager("secret", 5)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, err := expired.GenerateToken(domain.Principal{ID: "g1", Role: domain.RoleAgent})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tm.Resolve(t.Context(), old); err == nil {
		t.Fatal("expired token must be rejected")
	}

	if _, _, err := tm.GenerateToken(domain.Principal{ID: "x", Role: domain.RoleSystem}); err == nil {
		t.Fatal("system role cannot be minted")
	}
}

func newAuthApp(t *testing.T, tm *TokenManager, keys *OpsKeyVerifier) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		de := apperrors.ToDomainError(err)
		return c.Status(de.HTTPStatus).SendString(de.Code)
	}})
	mw := NewAuthMiddleware(tm)
	whoami := func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(string(p.Role) + ":" + p.ID)
	}
	app.Get("/any", mw.Handle, RequireAnyRole(), whoami)
	app.Get("/agent", mw.Handle, RequireAgent(), whoami)
	app.Get("/admin", mw.Handle, RequireAdmin(), whoami)
	app.Post("/ops", mw.OpsAccess(keys), whoami)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func bearer(t *testing.T, tm *TokenManager, id string, role domain.Role) map[string]string {
	t.Helper()
	token, _, err := tm.GenerateToken(domain.Principal{ID: id, Role: role})
	if err != nil {
		t.Fatal(err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestMiddlewareRoleGuards(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	app := newAuthApp(t, tm, NewOpsKeyVerifier(""))

	tests := []struct {
		name    string
		path    string
		headers map[string]string
		status  int
		body    string
	}{
		{"missing header", "/any", nil, http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"malformed header", "/any", map[string]string{"Authorization": "Token abc"}, http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"garbage token", "/any", map[string]string{"Authorization": "Bearer abc"}, http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"user on any", "/any", bearer(t, tm, "c1", domain.RoleUser), http.StatusOK, "user:c1"},
		{"user on agent route", "/agent", bearer(t, tm, "c1", domain.RoleUser), http.StatusForbidden, apperrors.CodeForbidden},
		{"agent on agent route", "/agent", bearer(t, tm, "g1", domain.RoleAgent), http.StatusOK, "agent:g1"},
		{"admin on agent route", "/agent", bearer(t, tm, "a1", domain.RoleAdmin), http.StatusOK, "admin:a1"},
		{"agent on admin route", "/admin", bearer(t, tm, "g1", domain.RoleAgent), http.StatusForbidden, apperrors.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, app, http.MethodGet, tt.path, tt.headers)
			if status != tt.status || body != tt.body {
				t.Fatalf("got %d %q, want %d %q", status, body, tt.status, tt.body)
			}
		})
	}
}

func TestOpsAccess(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	hash, err := HashOpsKey("sweep-key", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	app := newAuthApp(t, tm, NewOpsKeyVerifier(hash))

	status, body := doRequest(t, app, http.MethodPost, "/ops", map[string]string{OpsKeyHeader: "sweep-key"})
	if status != http.StatusOK || body != "admin:ops-key" {
		t.Fatalf("ops key: %d %q", status, body)
	}
	status, _ = doRequest(t, app, http.MethodPost, "/ops", map[string]string{OpsKeyHeader: "wrong"})
	if status != http.StatusUnauthorized {
		t.Fatalf("wrong ops key: %d", status)
	}
	status, _ = doRequest(t, app, http.MethodPost, "/ops", bearer(t, tm, "g1", domain.RoleAgent))
	if status != http.StatusForbidden {
		t.Fatalf("agent on ops: %d", status)
	}
	status, body = doRequest(t, app, http.MethodPost, "/ops", bearer(t, tm, "a1", domain.RoleAdmin))
	if status != http.StatusOK || body != "admin:a1" {
		t.Fatalf("admin on ops: %d %q", status, body)
	}
}

func TestOpsKeyVerifierWithoutHash(t *testing.T) {
	if NewOpsKeyVerifier("").Verify("anything") {
		t.Fatal("unconfigured verifier must reject")
	}
	var v *OpsKeyVerifier
	if v.Verify("anything") {
		t.Fatal("nil verifier must reject")
	}
}
