// Package auth mendelegasikan verifikasi token ke service eksternal.
// Core tidak menerbitkan atau memvalidasi token sendiri.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"
)

const RoleAdmin = "admin"

type Identity struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

var ErrUnauthenticated = errors.New("unauthenticated")

type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type HTTPVerifier struct {
	c *resty.Client
}

func NewHTTPVerifier(verifyURL string) *HTTPVerifier {
	c := resty.New().
		SetBaseURL(verifyURL).
		SetTimeout(5 * time.Second)
	return &HTTPVerifier{c: c}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	var id Identity
	resp, err := v.c.R().
		SetContext(ctx).
		SetBody(map[string]string{"token": token}).
		SetResult(&id).
		Post("")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, ErrUnauthenticated
	}
	if id.Subject == "" {
		return nil, ErrUnauthenticated
	}
	return &id, nil
}
