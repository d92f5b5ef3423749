package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/labflow/labflow/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *Service) {
	t.Helper()
	svc := newTestService()
	return NewHandler(svc), echo.New(), svc
}

func TestHandler_Login(t *testing.T) {
	h, e, svc := newTestHandler(t)
	_, err := svc.CreateUser(context.Background(), CreateUserInput{
		Name: "Dr. Somsak", Email: "somsak@clinic.test", Password: "correcthorse", Role: auth.RoleDoctor,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := `{"email":"somsak@clinic.test","password":"correcthorse"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected token in response")
	}
	if resp.User == nil || resp.User.Role != auth.RoleDoctor {
		t.Errorf("expected doctor user in response, got %+v", resp.User)
	}
}

func TestHandler_Login_BadPassword(t *testing.T) {
	h, e, svc := newTestHandler(t)
	_, err := svc.CreateUser(context.Background(), CreateUserInput{
		Name: "Dr. Somsak", Email: "somsak@clinic.test", Password: "correcthorse", Role: auth.RoleDoctor,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := `{"email":"somsak@clinic.test","password":"nope"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err = h.Login(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_Me(t *testing.T) {
	h, e, svc := newTestHandler(t)
	u, err := svc.CreateUser(context.Background(), CreateUserInput{
		Name: "Lab Tech", Email: "tech@lab.test", Password: "hunter2hunter2", Role: auth.RoleLab,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := auth.WithIdentity(req.Context(), auth.Identity{ID: u.ID, Name: u.Name, Role: u.Role})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Me(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
