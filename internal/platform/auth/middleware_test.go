package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func runJWT(t *testing.T, cfg JWTConfig, header string) (echo.Context, bool, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	called := false
	var inner echo.Context
	err := JWTMiddleware(cfg)(func(c echo.Context) error {
		called = true
		inner = c
		return nil
	})(c)
	if inner == nil {
		inner = c
	}
	return inner, called, err
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != want {
		t.Errorf("expected %d, got %d", want, he.Code)
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "pregtrack"}
	expired := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			Issuer:    "pregtrack",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}, testSigningKey)
	wrongKey := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "pregtrack"},
	}, []byte("another-key"))
	wrongIssuer := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", Issuer: "someone-else"},
	}, testSigningKey)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage", "Bearer not.a.jwt"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + wrongKey},
		{"wrong issuer", "Bearer " + wrongIssuer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, called, err := runJWT(t, cfg, tt.header)
			if called {
				t.Error("handler should not run")
			}
			assertStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"},
	})
	signed, err := token.SignedString(testSigningKey)
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+signed)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_ClaimsExtraction(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "pregtrack", Audience: "pregtrack-api"}
	token, err := IssueToken(cfg, "u-42", "Dr. Jones", "north", []string{"veterinarian"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	c, called, err := runJWT(t, cfg, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected handler to run")
	}
	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != "u-42" {
		t.Errorf("expected u-42, got %s", UserIDFromContext(ctx))
	}
	if UserNameFromContext(ctx) != "Dr. Jones" {
		t.Errorf("expected Dr. Jones, got %s", UserNameFromContext(ctx))
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != "veterinarian" {
		t.Errorf("unexpected roles %v", roles)
	}
	if b, _ := c.Get(BranchClaimKey).(string); b != "north" {
		t.Errorf("expected branch north, got %q", b)
	}
}

func TestIssueToken_RequiresKey(t *testing.T) {
	if _, err := IssueToken(JWTConfig{}, "u", "", "b", nil, time.Hour); err == nil {
		t.Error("expected error without a signing key")
	}
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := DevAuthMiddleware("main")(func(c echo.Context) error {
		ctx := c.Request().Context()
		if UserIDFromContext(ctx) != "dev-user" {
			t.Errorf("expected dev-user, got %s", UserIDFromContext(ctx))
		}
		if !HasAnyRole(RolesFromContext(ctx), "admin") {
			t.Error("expected admin role")
		}
		if b, _ := c.Get(BranchClaimKey).(string); b != "main" {
			t.Errorf("expected main branch, got %q", b)
		}
		return nil
	})(c)
	if err != nil {
		t.Fatal(err)
	}
}

func TestDevAuthMiddleware_LeavesAuthorizedRequests(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	c := e.NewContext(req, httptest.NewRecorder())

	err := DevAuthMiddleware("main")(func(c echo.Context) error {
		if UserIDFromContext(c.Request().Context()) != "" {
			t.Error("expected no injected user")
		}
		return nil
	})(c)
	if err != nil {
		t.Fatal(err)
	}
}

func TestUserNameFromContext_FallsBackToID(t *testing.T) {
	ctx := WithUser(context.Background(), "u-7", "", nil)
	if got := UserNameFromContext(ctx); got != "u-7" {
		t.Errorf("expected u-7, got %s", got)
	}
	if got := UserNameFromContext(context.Background()); got != "" {
		t.Errorf("expected empty name, got %s", got)
	}
}
