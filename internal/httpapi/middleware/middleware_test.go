package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(log zerolog.Logger, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(log), RequestID(), Logger(log))
	r.Use(extra...)
	r.GET("/who", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(SubjectKey))
	})
	r.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})
	return r
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	r := newEngine(zerolog.Nop())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/who", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("request id header missing")
	}

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
}

func TestRecoveryLogsAndReturns500(t *testing.T) {
	var buf bytes.Buffer
	r := newEngine(zerolog.New(&buf))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":50000`) {
		t.Fatalf("body = %s", w.Body.String())
	}
	if !strings.Contains(buf.String(), "kaboom") {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}

func TestAuthRequired(t *testing.T) {
	const secret = "s3cret"
	r := newEngine(zerolog.Nop(), AuthRequired(secret))

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/who", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := do(""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: status = %d", w.Code)
	}

	tok, err := SignToken(secret, "ops", jwt.RegisteredClaims{})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	w := do("Bearer " + tok)
	if w.Code != http.StatusOK || w.Body.String() != "ops" {
		t.Fatalf("valid token: %d %q", w.Code, w.Body.String())
	}

	other, _ := SignToken("other", "ops", jwt.RegisteredClaims{})
	if w := do("Bearer " + other); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: status = %d", w.Code)
	}

	expired, _ := SignToken(secret, "ops", jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	if w := do("Bearer " + expired); w.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: status = %d", w.Code)
	}
}
