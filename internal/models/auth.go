package models

import "github.com/golang-jwt/jwt/v5"

// ActorClaims identifies the operator performing a request. Tokens are issued
// by the identity provider; this service only validates and decodes them.
type ActorClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Actor returns the audit identity recorded on status changes.
func (c *ActorClaims) Actor() string {
	if c == nil {
		return "system"
	}
	if c.Name != "" {
		return c.Name
	}
	return c.UserID
}
