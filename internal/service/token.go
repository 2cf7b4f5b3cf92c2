package service

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessToken это выданный токен и срок его действия.
type AccessToken struct {
	Token     string        `json:"access_token"`
	ExpiresIn time.Duration `json:"expires_in"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// TokenManager отвечает за выпуск и проверку JWT. Субъект токена содержит адрес кошелька.
type TokenManager struct {
	accessSecret []byte
	accessTTL    time.Duration
	now          func() time.Time
}

// NewTokenManager создаёт менеджер токенов.
func NewTokenManager(accessSecret string, accessTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret: []byte(accessSecret),
		accessTTL:    accessTTL,
		now:          time.Now,
	}
}

// Issue выпускает access токен для адреса.
func (m *TokenManager) Issue(addr common.Address) (*AccessToken, error) {
	now := m.now()
	exp := now.Add(m.accessTTL)

	claims := jwt.RegisteredClaims{
		Subject:   addr.Hex(),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
	if err != nil {
		return nil, err
	}
	return &AccessToken{Token: token, ExpiresIn: m.accessTTL, ExpiresAt: exp}, nil
}

// ParseAccess извлекает адрес из access токена.
func (m *TokenManager) ParseAccess(token string) (common.Address, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный алгоритм подписи %v", t.Header["alg"])
		}
		return m.accessSecret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return common.Address{}, err
	}
	if !parsed.Valid {
		return common.Address{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !common.IsHexAddress(claims.Subject) {
		return common.Address{}, jwt.ErrTokenInvalidClaims
	}
	return common.HexToAddress(claims.Subject), nil
}
