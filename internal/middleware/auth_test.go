package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"echochat/internal/server/auth"
)

const secret = "gate-secret"

func newEngine(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Gate(auth.NewVerifier(secret), "JWT"))
	handlers := append(extra, func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		c.JSON(http.StatusOK, gin.H{"ok": ok, "username": p.Username, "ctx_user": c.GetString(ContextUsername)})
	})
	r.GET("/who", handlers...)
	return r
}

type whoResp struct {
	OK       bool   `json:"ok"`
	Username string `json:"username"`
	CtxUser  string `json:"ctx_user"`
}

func do(t *testing.T, r http.Handler, mutate func(*http.Request)) (int, whoResp) {
	t.Helper()
	httpReq := httptest.NewRequest(http.MethodGet, "/who", nil)
	if mutate != nil {
		mutate(httpReq)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httpReq)
	var out whoResp
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func token(t *testing.T, username string) string {
	t.Helper()
	tok, _, err := auth.SignAccessToken("id-"+username, username, time.Minute, secret)
	require.NoError(t, err)
	return tok
}

func TestGate_Anonymous(t *testing.T) {
	req := require.New(t)
	code, out := do(t, newEngine(), nil)
	req.Equal(http.StatusOK, code)
	req.False(out.OK)
	req.Empty(out.CtxUser)
}

func TestGate_BearerHeader(t *testing.T) {
	req := require.New(t)
	tok := token(t, "alice")
	code, out := do(t, newEngine(), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tok)
	})
	req.Equal(http.StatusOK, code)
	req.True(out.OK)
	req.Equal("alice", out.Username)
	req.Equal("alice", out.CtxUser)
}

func TestGate_HeaderWinsOverCookie(t *testing.T) {
	req := require.New(t)
	code, out := do(t, newEngine(), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token(t, "alice"))
		r.AddCookie(&http.Cookie{Name: "JWT", Value: token(t, "bob")})
	})
	req.Equal(http.StatusOK, code)
	req.Equal("alice", out.Username)
}

func TestGate_Cookie(t *testing.T) {
	req := require.New(t)
	code, out := do(t, newEngine(), func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "JWT", Value: token(t, "bob")})
	})
	req.Equal(http.StatusOK, code)
	req.Equal("bob", out.Username)
}

func TestGate_TamperedTokenProceedsAnonymous(t *testing.T) {
	req := require.New(t)
	tok := token(t, "alice")
	parts := strings.Split(tok, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	code, out := do(t, newEngine(), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tampered)
	})
	req.Equal(http.StatusOK, code)
	req.False(out.OK)
}

func TestGate_NullCookieProceedsAnonymous(t *testing.T) {
	req := require.New(t)
	code, out := do(t, newEngine(), func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "JWT", Value: "null"})
	})
	req.Equal(http.StatusOK, code)
	req.False(out.OK)
}

func TestGate_Idempotent(t *testing.T) {
	req := require.New(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := Gate(auth.NewVerifier(secret), "JWT")
	// 第二次经过 Gate 时请求头换成另一个用户，不能覆盖第一次的结果
	r.Use(g, func(c *gin.Context) {
		c.Request.Header.Set("Authorization", "Bearer "+token(t, "mallory"))
		c.Next()
	}, g)
	r.GET("/who", func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		c.JSON(http.StatusOK, gin.H{"ok": ok, "username": p.Username, "ctx_user": c.GetString(ContextUsername)})
	})

	code, out := do(t, r, func(hr *http.Request) {
		hr.Header.Set("Authorization", "Bearer "+token(t, "alice"))
	})
	req.Equal(http.StatusOK, code)
	req.Equal("alice", out.Username)
	req.Equal("alice", out.CtxUser)
}

func TestRequireAuth(t *testing.T) {
	req := require.New(t)
	r := newEngine(RequireAuth())

	code, _ := do(t, r, nil)
	req.Equal(http.StatusUnauthorized, code)

	code, out := do(t, r, func(hr *http.Request) {
		hr.Header.Set("Authorization", "Bearer "+token(t, "alice"))
	})
	req.Equal(http.StatusOK, code)
	req.Equal("alice", out.Username)
}
