// This file implements the login and signup calls. Both are public endpoints;
// the returned bearer token is opaque to us beyond its decodable payload.
package backend

import (
	"context"
	"time"
)

// Credentials is the login/signup request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthUser is the user record echoed back alongside a fresh token.
type AuthUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenResponse is the successful auth response.
type TokenResponse struct {
	Token string   `json:"token"`
	User  AuthUser `json:"user"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.postJSON(ctx, "backend.login", "/auth/login", "", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup registers a new account and returns its first bearer token.
func (c *Client) Signup(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.postJSON(ctx, "backend.signup", "/auth/signup", "", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
