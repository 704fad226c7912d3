package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func requestWithRoles(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestRequireRoleAllowsMatchingRole(t *testing.T) {
	c := requestWithRoles("lab_tech")
	called := false
	h := RequireRole("lab_tech", "physician")(func(c echo.Context) error {
		called = true
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler was not called")
	}
}

func TestRequireRoleAdminBypass(t *testing.T) {
	c := requestWithRoles("admin")
	h := RequireRole("physician")(func(c echo.Context) error { return nil })
	if err := h(c); err != nil {
		t.Fatalf("admin should pass any role check, got %v", err)
	}
}

func TestRequireRoleRejectsMissingRole(t *testing.T) {
	c := requestWithRoles("nurse")
	h := RequireRole("physician")(func(c echo.Context) error { return nil })
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}
