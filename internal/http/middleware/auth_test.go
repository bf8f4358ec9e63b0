package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-datashare-backend/internal/auth"
)

type fakeVerifier struct {
	claims auth.Claims
	err    error
}

func (f fakeVerifier) Verify(token string) (auth.Claims, error) {
	if token == "" {
		return auth.Claims{}, auth.ErrTokenMissing
	}
	return f.claims, f.err
}

func newAuthRouter(v TokenVerifier, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	grp := r.Group("", RequireAuth(v))
	if role != "" {
		grp = grp.Group("", RequireRole(role))
	}
	grp.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString("userID"), "role": RoleFrom(c)})
	})
	return r
}

func serve(r *gin.Engine, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth_MissingToken(t *testing.T) {
	r := newAuthRouter(fakeVerifier{}, "")
	for _, h := range []string{"", "Bearer ", "Token abc", "abc"} {
		if w := serve(r, h); w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d, want 401", h, w.Code)
		}
	}
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	r := newAuthRouter(fakeVerifier{err: auth.ErrTokenInvalid}, "")
	if w := serve(r, "Bearer junk"); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRequireAuth_SetsIdentity(t *testing.T) {
	r := newAuthRouter(fakeVerifier{claims: auth.Claims{Username: "hospital_b", Role: "receiver"}}, "")
	w := serve(r, "Bearer good")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `"user":"hospital_b"`) || !strings.Contains(body, `"role":"receiver"`) {
		t.Fatalf("identity not propagated: %s", body)
	}
}

func TestRequireAuth_BearerIsCaseInsensitive(t *testing.T) {
	r := newAuthRouter(fakeVerifier{claims: auth.Claims{Username: "u", Role: "sender"}}, "")
	if w := serve(r, "bearer good"); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestRequireRole_WrongRoleForbidden(t *testing.T) {
	r := newAuthRouter(fakeVerifier{claims: auth.Claims{Username: "u", Role: "receiver"}}, "sender")
	w := serve(r, "Bearer good")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestRequireRole_MatchPasses(t *testing.T) {
	r := newAuthRouter(fakeVerifier{claims: auth.Claims{Username: "u", Role: "sender"}}, "sender")
	if w := serve(r, "Bearer good"); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestRequireAnyRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/either",
		RequireAuth(fakeVerifier{claims: auth.Claims{Username: "u", Role: "receiver"}}),
		RequireAnyRole("sender", "receiver"),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)
	r.GET("/none",
		RequireAuth(fakeVerifier{claims: auth.Claims{Username: "u", Role: "receiver"}}),
		RequireAnyRole("sender"),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	req := httptest.NewRequest(http.MethodGet, "/either", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("either: status = %d, want 200", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/none", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("none: status = %d, want 403", w.Code)
	}
}
