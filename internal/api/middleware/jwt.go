package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"gw-lending/internal/identity"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Роли токенов
const (
	RoleWallet   = "wallet"
	RoleReviewer = "reviewer"
)

// Claims структура JWT claims. Для кошелька Subject это адрес,
// для оператора имя пользователя.
type Claims struct {
	Role       string `json:"role"`
	ReviewerID int64  `json:"reviewer_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTMiddleware middleware для проверки JWT токенов
type JWTMiddleware struct {
	secret []byte
	logger *logrus.Logger
}

// NewJWTMiddleware создает новый JWT middleware
func NewJWTMiddleware(secret string, logger *logrus.Logger) *JWTMiddleware {
	return &JWTMiddleware{
		secret: []byte(secret),
		logger: logger,
	}
}

// parse достает и проверяет токен из заголовка Authorization
func (m *JWTMiddleware) parse(c *gin.Context, role string) (*Claims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
		return nil, false
	}

	// Проверяем формат "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
		return nil, false
	}

	token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Проверяем алгоритм подписи
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		m.logger.Warnf("Invalid token: %v", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return nil, false
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
		return nil, false
	}
	if claims.Role != role {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Token role is not allowed here"})
		return nil, false
	}
	return claims, true
}

// WalletAuth пропускает запросы с токеном кошелька. Адрес кладется
// в контекст запроса, откуда его читает identity.Provider.
func (m *JWTMiddleware) WalletAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := m.parse(c, RoleWallet)
		if !ok {
			return
		}
		if !common.IsHexAddress(claims.Subject) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}

		address := common.HexToAddress(claims.Subject)
		c.Set("owner", address.Hex())
		c.Request = c.Request.WithContext(identity.WithOwner(c.Request.Context(), address))
		c.Next()
	}
}

// ReviewerAuth пропускает запросы с токеном оператора
func (m *JWTMiddleware) ReviewerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := m.parse(c, RoleReviewer)
		if !ok {
			return
		}
		c.Set("reviewer_id", claims.ReviewerID)
		c.Set("username", claims.Subject)
		c.Next()
	}
}

func (m *JWTMiddleware) sign(claims Claims, expiration time.Duration) (string, error) {
	now := time.Now()
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiration))
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		m.logger.Errorf("Failed to sign token: %v", err)
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// GenerateWalletToken токен сессии кошелька
func (m *JWTMiddleware) GenerateWalletToken(address common.Address, expiration time.Duration) (string, error) {
	return m.sign(Claims{
		Role:             RoleWallet,
		RegisteredClaims: jwt.RegisteredClaims{Subject: address.Hex()},
	}, expiration)
}

// GenerateReviewerToken токен оператора проверки квитанций
func (m *JWTMiddleware) GenerateReviewerToken(id int64, username string, expiration time.Duration) (string, error) {
	return m.sign(Claims{
		Role:             RoleReviewer,
		ReviewerID:       id,
		RegisteredClaims: jwt.RegisteredClaims{Subject: username},
	}, expiration)
}

// GetOwner извлекает адрес кошелька из контекста
func GetOwner(c *gin.Context) (common.Address, error) {
	owner, exists := c.Get("owner")
	if !exists {
		return common.Address{}, fmt.Errorf("owner not found in context")
	}

	hex, ok := owner.(string)
	if !ok {
		return common.Address{}, fmt.Errorf("invalid owner type")
	}

	return common.HexToAddress(hex), nil
}

// GetUsername извлекает имя оператора из контекста
func GetUsername(c *gin.Context) (string, error) {
	username, exists := c.Get("username")
	if !exists {
		return "", fmt.Errorf("username not found in context")
	}

	name, ok := username.(string)
	if !ok {
		return "", fmt.Errorf("invalid username type")
	}

	return name, nil
}
