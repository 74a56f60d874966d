package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"echochat/internal/log"
	"echochat/internal/server/auth"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
)

// Gate Gin 中间件：依次从 Authorization: Bearer 头、cookie 取凭证。
// 没有凭证或校验失败时以匿名身份继续，由下游接口自行决定是否要求登录；
// 校验通过后把 Principal 写入请求 context，已有 Principal 时不重复校验。
func Gate(verifier auth.Verifier, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if p, ok := auth.PrincipalFrom(ctx); ok {
			setPrincipal(c, p)
			c.Next()
			return
		}

		raw, source := credential(c, cookieName)
		if raw == "" {
			c.Next()
			return
		}

		p, err := verifier.Verify(raw)
		if err != nil {
			l := log.Ctx(ctx)
			l.Debug().Err(err).Str("source", source).Msg("凭证校验失败，按匿名处理")
			c.Next()
			return
		}

		c.Request = c.Request.WithContext(auth.WithPrincipal(ctx, p))
		setPrincipal(c, p)
		c.Next()
	}
}

// RequireAuth 要求已通过 Gate 解析出 Principal，否则 401
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := auth.PrincipalFrom(c.Request.Context()); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "未登录或访问令牌无效"})
			return
		}
		c.Next()
	}
}

// PrincipalFrom 从 gin.Context 取 Principal
func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	return auth.PrincipalFrom(c.Request.Context())
}

func setPrincipal(c *gin.Context, p auth.Principal) {
	c.Set(ContextUserID, p.UserID)
	c.Set(ContextUsername, p.Username)
}

func credential(c *gin.Context, cookieName string) (string, string) {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if tok := strings.TrimSpace(parts[1]); tok != "" {
				return tok, "header"
			}
		}
	}
	if cookieName != "" {
		if v, err := c.Cookie(cookieName); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), "cookie"
		}
	}
	return "", ""
}
