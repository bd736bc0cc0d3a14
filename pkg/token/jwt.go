// Package token 提供了用于生成和验证 JSON Web Tokens (JWT) 的功能。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken token 签名或内容无效。
var ErrInvalidToken = errors.New("invalid token")

// JWTManager 负责管理 JWT 的生成和验证。
type JWTManager struct {
	secretKey []byte        // secretKey 用于签名和验证 token 的密钥
	tokenDur  time.Duration // tokenDur 定义了 token 的有效期
	issuer    string
}

// CustomClaims 定义了 token 中携带的数据，Subject 为调用方标识，Domain 为签发时的知识库领域。
type CustomClaims struct {
	Domain string `json:"domain,omitempty"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
// expireHours 小于等于 0 时签发的 token 不过期。
func NewJWTManager(secret, issuer string, expireHours int) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		tokenDur:  time.Hour * time.Duration(expireHours),
		issuer:    issuer,
	}
}

// GenerateToken 为调用方签发访问 token。
func (m *JWTManager) GenerateToken(subject, domain string) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		Domain: domain,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if m.tokenDur > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.tokenDur))
	}
	// 使用 HS256 签名方法创建新的 token 对象
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// VerifyToken 验证给定的 token 字符串。
// 签名不匹配、已过期或签发者不一致时返回错误。
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
