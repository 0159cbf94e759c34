package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// visitorIssuer は訪問者トークンの発行者。
const visitorIssuer = "storefront-gateway"

// contextKeyVisitorID はGinコンテキストに訪問者IDを格納するキー。
const contextKeyVisitorID = "visitor_id"

// VisitorClaims は訪問者トークンのクレーム。
// サインインを伴わない匿名の訪問者を識別するために使用する。
type VisitorClaims struct {
	jwt.RegisteredClaims
	// VisitorID は訪問者の一意識別子。
	VisitorID string `json:"visitor_id"`
}

// SessionConfig は訪問者セッションの設定。
type SessionConfig struct {
	// Secret はトークン署名用の秘密鍵。
	Secret string
	// Cookie はトークンを保存するクッキー名。
	Cookie string
	// TTL はトークンとクッキーの有効期間。
	TTL time.Duration
	// Secure はクッキーにSecure属性を付けるかどうか。
	Secure bool
}

// GenerateVisitorToken は訪問者IDから署名済みトークンを生成する。
func GenerateVisitorToken(secret, visitorID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := VisitorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    visitorIssuer,
			Subject:   visitorID,
		},
		VisitorID: visitorID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("訪問者トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseVisitorToken は訪問者トークンを検証してクレームを返す。
// 署名方式がHS256以外のもの、発行者が異なるもの、期限切れのものは拒否する。
func ParseVisitorToken(secret, tokenString string) (*VisitorClaims, error) {
	claims := &VisitorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(visitorIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("訪問者トークンの検証に失敗: %w", err)
	}
	if !token.Valid || claims.VisitorID == "" {
		return nil, errors.New("訪問者トークンが無効です")
	}
	return claims, nil
}

// VisitorSession は匿名訪問者のセッションを管理するGinミドルウェアを返す。
//
// クッキーのトークンが有効であればその訪問者IDをコンテキストに設定する。
// トークンがない、または無効な場合は新しい訪問者IDを採番してクッキーを発行する。
func VisitorSession(cfg SessionConfig) gin.HandlerFunc {
	maxAge := int(cfg.TTL.Seconds())

	return func(c *gin.Context) {
		if raw, err := c.Cookie(cfg.Cookie); err == nil && raw != "" {
			if claims, err := ParseVisitorToken(cfg.Secret, raw); err == nil {
				c.Set(contextKeyVisitorID, claims.VisitorID)
				c.Next()
				return
			}
		}

		visitorID := uuid.NewString()
		token, err := GenerateVisitorToken(cfg.Secret, visitorID, cfg.TTL)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "セッションの発行に失敗しました",
			})
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cfg.Cookie, token, maxAge, "/", "", cfg.Secure, true)
		c.Set(contextKeyVisitorID, visitorID)
		c.Next()
	}
}

// GetVisitorID はGinコンテキストから訪問者IDを取得する。
// VisitorSessionミドルウェアが事前に適用されている必要がある。
func GetVisitorID(c *gin.Context) string {
	return c.GetString(contextKeyVisitorID)
}
