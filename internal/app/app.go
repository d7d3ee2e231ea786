// Package app wires the session, its stores and transports, and the control
// API from a config.Config.
package app

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/totegamma/nostrconnect/client"
	"github.com/totegamma/nostrconnect/internal/config"
	"github.com/totegamma/nostrconnect/internal/infra/providers"
	"github.com/totegamma/nostrconnect/internal/infra/telemetry"
	"github.com/totegamma/nostrconnect/internal/service"
	"github.com/totegamma/nostrconnect/internal/usecase"
)

const (
	serviceName = "nostrconnect"
	Version     = "0.1.0"
)

type App struct {
	Config  config.Config
	Session *usecase.Session
	Signal  *service.SignalService
	Metrics *telemetry.Metrics

	client  *client.Client
	closers []func() error
}

// New opens the configured store and restores the session from it.
func New(ctx context.Context, conf config.Config) (*App, error) {
	a := &App{
		Config:  conf,
		Metrics: telemetry.NewMetrics(),
	}

	if conf.Server.EnableTrace {
		shutdown, err := telemetry.SetupTraceProvider(ctx, conf.Server.TraceEndpoint, serviceName, Version)
		if err != nil {
			return nil, errors.Wrap(err, "failed to setup trace provider")
		}
		a.closers = append(a.closers, func() error {
			return shutdown(context.Background())
		})
	}

	store, closeStore, err := providers.NewStore(ctx, conf.Store, conf.Session.Namespace)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to open store")
	}
	a.closers = append(a.closers, closeStore)

	pubsub, err := providers.NewPubSub(ctx, conf.Events)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to setup event bus")
	}
	a.closers = append(a.closers, pubsub.Close)
	a.Signal = service.NewSignalService(pubsub.Publisher, pubsub.Subscriber, conf.Events.Topic)

	a.client = providers.NewClient(serviceName + "/" + Version)

	session, err := usecase.NewSession(
		ctx,
		conf.SessionConfig(),
		store,
		a.client,
		providers.NewRemoteSigner(),
		a.Metrics.Notifier(a.Signal),
	)
	if err != nil {
		a.client.Close()
		a.Close()
		return nil, errors.Wrap(err, "failed to open session")
	}
	a.Session = session

	slog.DebugContext(
		ctx, "session restored",
		slog.String("pubkey", session.Identity().PublicKey),
		slog.String("state", session.State().String()),
		slog.String("store", conf.Store.Driver),
		slog.String("module", "app"),
	)

	return a, nil
}

// Close stops the session and releases everything New opened, in reverse
// order.
func (a *App) Close() error {
	if a.Session != nil {
		a.Session.Close()
		a.client.Close()
	}

	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
