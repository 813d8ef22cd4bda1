// Package auth 只负责校验外部账号服务签发的访问令牌，本服务不签发令牌、不保存密码。
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrWrongTokenType is returned for refresh tokens and other non-access tokens.
var ErrWrongTokenType = errors.New("not an access token")

// TokenClaims 表示 JWT 中的业务字段，便于中间件读取用户信息。
type TokenClaims struct {
	UserID    uint   `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Verifier validates RS256 access tokens against the account service's public key.
type Verifier struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

// NewVerifier 解析 PEM 公钥。
func NewVerifier(publicKeyPEM []byte) (*Verifier, error) {
	if len(publicKeyPEM) == 0 {
		return nil, errors.New("public key pem is required")
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}
	return &Verifier{
		publicKey: publicKey,
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired()),
	}, nil
}

// LoadVerifier reads the key from inline PEM, falling back to a file path.
func LoadVerifier(inlinePEM, path string) (*Verifier, error) {
	if strings.TrimSpace(inlinePEM) != "" {
		return NewVerifier([]byte(inlinePEM))
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return NewVerifier(raw)
}

// ValidateToken 解析并验证访问令牌。
func (v *Verifier) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, errors.New("token string is empty")
	}

	token, err := v.parser.ParseWithClaims(tokenString, &TokenClaims{}, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.TokenType != "access" {
		return nil, ErrWrongTokenType
	}
	if claims.UserID == 0 {
		return nil, errors.New("token has no user")
	}
	return claims, nil
}
