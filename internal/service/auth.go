package service

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/jwt"
)

// ControlAudience is the aud claim of control API tokens.
const ControlAudience = "nostrconnect-control"

var tracer = otel.Tracer("auth")

// AuthService checks the control API bearer token. With no token
// configured every caller is the operator. Besides the static token, a JWT
// signed by the current session key is accepted.
type AuthService struct {
	token  string
	issuer func() string
}

func NewAuthService(token string, issuer func() string) *AuthService {
	return &AuthService{token: token, issuer: issuer}
}

func (s *AuthService) Required() bool {
	return s.token != ""
}

type AuthResult struct {
	Requester string
}

func (s *AuthService) AuthToken(ctx context.Context, token string) (*AuthResult, error) {
	_, span := tracer.Start(ctx, "Auth.Service.AuthToken")
	defer span.End()

	if !s.Required() {
		return &AuthResult{Requester: domain.RequesterOperator}, nil
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1 {
		return &AuthResult{Requester: domain.RequesterOperator}, nil
	}

	if s.issuer == nil || strings.Count(token, ".") != 2 {
		span.RecordError(errors.Wrap(domain.ErrUnauthorized, "token mismatch"))
		return nil, domain.ErrUnauthorized
	}

	_, claims, err := jwt.Validate(token)
	if err != nil {
		span.RecordError(errors.Wrap(err, "Auth.Service.AuthToken: jwt.Validate failed"))
		return nil, domain.ErrUnauthorized
	}
	if claims.Audience != ControlAudience || claims.Issuer != s.issuer() {
		span.RecordError(errors.Wrap(domain.ErrUnauthorized, "foreign token"))
		return nil, domain.ErrUnauthorized
	}

	return &AuthResult{Requester: domain.RequesterOperator}, nil
}
