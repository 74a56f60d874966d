package handler

import (
	"net/http"
	"net/url"
	"strings"

	"echochat/internal/log"
)

// originChecker 生成 websocket 的 Origin 校验函数。
// 未配置或包含 "*" 时放行所有来源；没有 Origin 头的非浏览器客户端同样放行。
func originChecker(allowed []string) func(*http.Request) bool {
	normalized := make(map[string]bool, len(allowed))
	allowAll := len(allowed) == 0
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
			continue
		}
		if n, ok := normalizeOrigin(o); ok {
			normalized[n] = true
		} else if o != "" {
			l := log.L()
			l.Warn().Str("origin", o).Msg("忽略无效的 allowed_origins 配置")
		}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		n, ok := normalizeOrigin(origin)
		return ok && normalized[n]
	}
}

func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}
