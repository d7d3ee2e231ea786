package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/trace"

	"github.com/totegamma/nostrconnect/internal/present/rest"
	restmw "github.com/totegamma/nostrconnect/internal/present/rest/middleware"
	"github.com/totegamma/nostrconnect/internal/service"
)

// Server builds the control API.
func (a *App) Server() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if a.Config.Server.EnableTrace {
		e.Use(otelecho.Middleware(serviceName))
		e.Use(traceHeader)
	}
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	auth := restmw.NewAuthMiddleware(service.NewAuthService(a.Config.Server.Token, func() string {
		return a.Session.Identity().PublicKey
	}))
	rest.NewHandler(a.Session, a.Signal, auth).RegisterRoutes(e)

	if a.Config.Server.EnableMetrics {
		e.GET("/metrics", echo.WrapHandler(a.Metrics.Handler()))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	return e
}

// traceHeader exposes the trace id so a caller can look the request up.
func traceHeader(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		span := trace.SpanFromContext(c.Request().Context())
		if sc := span.SpanContext(); sc.HasTraceID() {
			c.Response().Header().Set("trace-id", sc.TraceID().String())
		}
		return next(c)
	}
}

// Serve connects the configured relays and runs the control API until ctx
// is done.
func (a *App) Serve(ctx context.Context) error {
	e := a.Server()

	connecting := a.Session.ConnectRelays(ctx)
	connecting.Then(func(_ struct{}, err error) {
		if err != nil {
			slog.WarnContext(
				ctx, "some relays could not be connected",
				slog.String("error", err.Error()),
				slog.String("module", "app"),
			)
		}
	})

	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(
			ctx, "control api listening",
			slog.String("listen", a.Config.Server.Listen),
			slog.String("pubkey", a.Session.Identity().PublicKey),
			slog.String("module", "app"),
		)
		errCh <- e.Start(a.Config.Server.Listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
