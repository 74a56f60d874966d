package auth

import "time"

const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultCookieName = "JWT"

	// 三段式 JWT 的最短长度，低于它的凭证不做解析直接拒绝
	minCredentialLength = 10
)
