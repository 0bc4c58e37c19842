package services

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	"promptpot-backend/internal/config"
)

type Role string

const (
	RolePlayer Role = "player"
	RoleAdmin  Role = "admin"
	RoleOracle Role = "oracle"
)

func (r Role) Valid() bool {
	switch r {
	case RolePlayer, RoleAdmin, RoleOracle:
		return true
	}
	return false
}

type Claims struct {
	Address string `json:"addr"`
	Role    Role   `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Caller() common.Address {
	return common.HexToAddress(c.Address)
}

type JWTService struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func NewJWTService(cfg *config.Config) *JWTService {
	ttl := cfg.JWTTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTService{
		secret: []byte(cfg.JWTSecret),
		ttl:    ttl,
		issuer: "promptpot",
	}
}

func (s *JWTService) GenerateToken(addr common.Address, role Role) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("invalid role %q", role)
	}
	if addr == (common.Address{}) {
		return "", fmt.Errorf("token subject is the zero address")
	}

	now := time.Now()
	claims := &Claims{
		Address: addr.Hex(),
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   addr.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %v", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if !common.IsHexAddress(claims.Address) || !claims.Role.Valid() {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
