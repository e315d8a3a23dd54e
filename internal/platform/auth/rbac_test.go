package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHasRole(t *testing.T) {
	tests := []struct {
		roles    []string
		required []string
		want     bool
	}{
		{[]string{RoleRegistrar}, []string{RoleRegistrar}, true},
		{[]string{RoleNurse}, []string{RoleRegistrar}, false},
		{[]string{RoleAdmin}, []string{RoleRegistrar}, true},
		{[]string{RoleNurse, RolePhysician}, []string{RolePhysician}, true},
		{nil, []string{RoleRegistrar}, false},
	}
	for _, tt := range tests {
		if got := HasRole(tt.roles, tt.required...); got != tt.want {
			t.Errorf("HasRole(%v, %v) = %v, want %v", tt.roles, tt.required, got, tt.want)
		}
	}
}

func requireRoleWith(t *testing.T, roles []string, required ...string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(context.Background(), "u", roles))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := RequireRole(required...)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	return rec, err
}

func TestRequireRole_Allowed(t *testing.T) {
	rec, err := requireRoleWith(t, []string{RoleRegistrar}, RoleAdmin, RoleRegistrar)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	_, err := requireRoleWith(t, []string{RoleNurse}, RoleRegistrar)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestRequireRole_NoIdentity(t *testing.T) {
	_, err := requireRoleWith(t, nil, RoleRegistrar)
	if err == nil {
		t.Error("expected forbidden without roles")
	}
}

func TestAuthSkipper(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())
	c.SetPath("/health")
	if !AuthSkipper(c) {
		t.Error("expected /health to be public")
	}
	c.SetPath("/api/v1/intake/sessions")
	if AuthSkipper(c) {
		t.Error("expected API routes to require auth")
	}
	if !IsPublicPath("/health/db") {
		t.Error("expected /health/db to be public")
	}
}
