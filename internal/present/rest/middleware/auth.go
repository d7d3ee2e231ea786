package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/internal/present/rest/presenter"
	"github.com/totegamma/nostrconnect/internal/service"
)

var tracer = otel.Tracer("auth")

type AuthMiddleware struct {
	auth *service.AuthService
}

func NewAuthMiddleware(auth *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// IdentifyIdentity puts the requester into the request context. Callers
// without a valid token are anonymous.
func (s *AuthMiddleware) IdentifyIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.Middleware.IdentifyIdentity")
		defer span.End()

		requester := domain.RequesterAnonymous
		token := ""

		authHeader := c.Request().Header.Get("authorization")
		if authHeader != "" {
			split := strings.Split(authHeader, " ")
			if len(split) != 2 {
				span.RecordError(fmt.Errorf("invalid authentication header"))
				goto skipCheckAuthorization
			}

			authType, value := split[0], split[1]
			if authType != "Bearer" {
				span.RecordError(fmt.Errorf("only Bearer is acceptable"))
				goto skipCheckAuthorization
			}
			token = value
		} else if c.QueryParam("token") != "" {
			// browsers cannot set headers on websocket upgrades
			token = c.QueryParam("token")
		}

		if token != "" || !s.auth.Required() {
			result, err := s.auth.AuthToken(ctx, token)
			if err != nil {
				span.RecordError(errors.Wrap(err, "AuthMiddleware.IdentifyIdentity: s.auth.AuthToken failed"))
				goto skipCheckAuthorization
			}
			requester = result.Requester
		}

	skipCheckAuthorization:
		ctx = context.WithValue(ctx, domain.RequesterCtxKey, requester)
		span.SetAttributes(attribute.String("Requester", requester))
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// RequireOperator rejects anonymous requests.
func (s *AuthMiddleware) RequireOperator(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requester, _ := c.Request().Context().Value(domain.RequesterCtxKey).(string)
		if requester != domain.RequesterOperator {
			return presenter.Unauthorized(c)
		}
		return next(c)
	}
}
