package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
)

// JWTManager handles JWT token operations
type JWTManager struct {
	secret               []byte
	issuer               string
	accessTokenDuration  time.Duration
	refreshTokenDuration time.Duration
	now                  func() time.Time
}

// Claims represents the JWT claims
type Claims struct {
	UserClaims
	jwt.RegisteredClaims
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret, issuer string, accessDuration, refreshDuration time.Duration) *JWTManager {
	return &JWTManager{
		secret:               []byte(secret),
		issuer:               issuer,
		accessTokenDuration:  accessDuration,
		refreshTokenDuration: refreshDuration,
		now:                  time.Now,
	}
}

func (m *JWTManager) sign(user *database.User, tokenType string, ttl time.Duration) (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserClaims: UserClaims{
			UserID:    user.ID,
			Email:     user.Email,
			IsAdmin:   user.IsAdmin,
			TokenType: tokenType,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// GenerateAccessToken generates a new access token
func (m *JWTManager) GenerateAccessToken(user *database.User) (string, error) {
	return m.sign(user, TokenTypeAccess, m.accessTokenDuration)
}

// GenerateRefreshToken generates a new refresh token
func (m *JWTManager) GenerateRefreshToken(user *database.User) (string, error) {
	return m.sign(user, TokenTypeRefresh, m.refreshTokenDuration)
}

// GenerateTokenPair generates both access and refresh tokens
func (m *JWTManager) GenerateTokenPair(user *database.User) (*TokenPair, error) {
	accessToken, err := m.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}
	refreshToken, err := m.GenerateRefreshToken(user)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    m.AccessTokenTTL(),
		TokenType:    "Bearer",
	}, nil
}

// ValidateToken parses a token and checks its signature, issuer, expiry and type
func (m *JWTManager) ValidateToken(tokenString, expectedType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.TokenType != expectedType || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AccessTokenTTL returns the access token lifetime in seconds
func (m *JWTManager) AccessTokenTTL() int64 {
	return int64(m.accessTokenDuration.Seconds())
}
