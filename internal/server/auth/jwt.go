package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedCredential = errors.New("malformed credential")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrExpired             = errors.New("credential expired")
)

// Claims 定义访问令牌的负载，sub 为用户 ID
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// SignAccessToken 生成访问令牌
func SignAccessToken(userID, username string, ttl time.Duration, secret string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	return s, exp, err
}

// Verifier 校验 HS256 访问令牌，无状态
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) Verifier {
	return Verifier{secret: []byte(secret)}
}

// Verify 校验凭证并返回 Principal。
// 结构明显不对的凭证（空串、"null"、"undefined"、不是三段、过短）在解析前就返回 ErrMalformedCredential。
func (v Verifier) Verify(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if !wellFormed(raw) {
		return Principal{}, ErrMalformedCredential
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Principal{}, ErrMalformedCredential
	case errors.Is(err, jwt.ErrTokenExpired):
		return Principal{}, ErrExpired
	default:
		return Principal{}, ErrInvalidSignature
	}

	userID := claims.Subject
	if userID == "" {
		userID = claims.UserID
	}
	if userID == "" || claims.Username == "" {
		return Principal{}, ErrMalformedCredential
	}
	return Principal{UserID: userID, Username: claims.Username}, nil
}

func wellFormed(raw string) bool {
	if raw == "" || strings.EqualFold(raw, "null") || strings.EqualFold(raw, "undefined") {
		return false
	}
	if len(raw) <= minCredentialLength {
		return false
	}
	return strings.Count(raw, ".") == 2
}
