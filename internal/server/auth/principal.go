package auth

import "context"

// Principal 凭证校验通过后得到的身份
type Principal struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type principalKey struct{}

// WithPrincipal 将 Principal 绑定到 context；已绑定时保持原值不覆盖
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if _, ok := PrincipalFrom(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
