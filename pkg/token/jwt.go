// Package token 负责签发和校验聊天会话令牌。
//
// 令牌是 HS256 签名的 JWT，载荷包含会话 ID、创建时间和随机 clientKey，
// 校验时无需查询服务端状态。
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken 是所有校验失败的统一错误，不区分签名错误还是过期。
var ErrInvalidToken = errors.New("invalid session token")

// Manager 负责会话令牌的签发与校验。
type Manager struct {
	secretKey []byte        // secretKey 用于签名和验证 token 的密钥
	tokenDur  time.Duration // tokenDur 定义了会话令牌的有效期
	now       func() time.Time
}

// Claims 是会话令牌的载荷。
type Claims struct {
	SessionID string `json:"sid"`
	CreatedAt int64  `json:"cat"`
	ClientKey string `json:"ck"`
	jwt.RegisteredClaims
}

// Issued 是签发结果。
type Issued struct {
	Token     string
	ClientKey string
	ExpiresAt time.Time
}

// NewManager 创建一个新的 Manager 实例。
// secret: 用于签名的密钥字符串。
// ttl: 令牌有效期。
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secretKey: []byte(secret),
		tokenDur:  ttl,
		now:       time.Now,
	}
}

// Issue 为会话生成随机 clientKey 并签发令牌。
func (m *Manager) Issue(sessionID string, createdAt time.Time) (Issued, error) {
	clientKey, err := GenerateRandomString(32)
	if err != nil {
		return Issued{}, err
	}
	now := m.now()
	// exp 在令牌里只精确到秒，返回给客户端的过期时间与之一致
	expiresAt := now.Add(m.tokenDur).Truncate(time.Second)
	claims := Claims{
		SessionID: sessionID,
		CreatedAt: createdAt.UnixMilli(),
		ClientKey: clientKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return Issued{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return Issued{Token: signed, ClientKey: clientKey, ExpiresAt: expiresAt}, nil
}

// Verify 重新计算签名并检查过期时间，成功时返回载荷。
// 任何失败都返回 ErrInvalidToken。
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ClientKey == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// KeysEqual 以常数时间比较两个 clientKey。
func KeysEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GenerateRandomString 生成 length 字节的随机数并返回其十六进制编码。
func GenerateRandomString(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
