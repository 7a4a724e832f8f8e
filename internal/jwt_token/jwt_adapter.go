package jwttoken

import (
	"github.com/ethereum/go-ethereum/common"

	"brickvault/internal/platform/middleware"
)

// JWTServiceAdapter narrows JWTService to the middleware.TokenValidator shape.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.TokenClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.TokenClaims{Address: common.HexToAddress(claims.Address)}, nil
}
