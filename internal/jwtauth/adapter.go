package jwtauth

import (
	"sabha/internal/platform/middleware"
)

func ToMiddlewareClaims(claims *Claims) *middleware.JWTClaims {
	return &middleware.JWTClaims{
		MemberID:  claims.MemberID,
		SessionID: claims.SessionID,
	}
}

// Adapter bridges the token service to the auth middleware's validator
// interface so the middleware stays free of jwt library types.
type Adapter struct {
	service *Service
}

func NewAdapter(service *Service) *Adapter {
	return &Adapter{service: service}
}

func (a *Adapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
