package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/medleyhq/medley/lib/config"
	"github.com/medleyhq/medley/models"
)

// Token kinds. A token is only accepted where its kind is expected.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
	KindSession = "session"
)

var ErrInvalidToken = errors.New("token is invalid or expired")

type Claims struct {
	Username string `json:"username"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

// UserID returns the numeric user id held in the subject claim.
func (c *Claims) UserID() uint {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// TokenPair is returned by signup and token obtain.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// JWTManager signs and verifies HS256 tokens for the API and web sessions.
type JWTManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

func NewJWTManager(cfg config.AuthConfig) (*JWTManager, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth secret is required but was empty")
	}
	return &JWTManager{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		sessionTTL: cfg.SessionTTL,
		now:        time.Now,
	}, nil
}

func (m *JWTManager) ttl(kind string) time.Duration {
	switch kind {
	case KindRefresh:
		return m.refreshTTL
	case KindSession:
		return m.sessionTTL
	default:
		return m.accessTTL
	}
}

// GenerateToken signs a token of the given kind for user.
func (m *JWTManager) GenerateToken(user *models.User, kind string) (string, error) {
	now := m.now()
	claims := &Claims{
		Username: user.Username,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl(kind))),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (m *JWTManager) GeneratePair(user *models.User) (TokenPair, error) {
	access, err := m.GenerateToken(user, KindAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.GenerateToken(user, KindRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// ValidateToken verifies the signature, expiry and kind of a token.
func (m *JWTManager) ValidateToken(tokenString, kind string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Kind != kind || claims.UserID() == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new access token.
func (m *JWTManager) Refresh(refreshToken string) (string, error) {
	claims, err := m.ValidateToken(refreshToken, KindRefresh)
	if err != nil {
		return "", err
	}
	user := &models.User{Username: claims.Username}
	user.ID = claims.UserID()
	return m.GenerateToken(user, KindAccess)
}
