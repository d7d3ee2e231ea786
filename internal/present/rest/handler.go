package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/totegamma/nostrconnect"
	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/internal/present/rest/middleware"
	"github.com/totegamma/nostrconnect/internal/present/rest/presenter"
	"github.com/totegamma/nostrconnect/internal/service"
	"github.com/totegamma/nostrconnect/internal/usecase"
	"github.com/totegamma/nostrconnect/internal/utils"
)

type Handler struct {
	session *usecase.Session
	signal  *service.SignalService
	auth    *middleware.AuthMiddleware
}

func NewHandler(
	session *usecase.Session,
	signal *service.SignalService,
	auth *middleware.AuthMiddleware,
) *Handler {
	return &Handler{
		session: session,
		signal:  signal,
		auth:    auth,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("", h.auth.IdentifyIdentity, h.auth.RequireOperator)
	g.GET("/session", h.handleSession)
	g.GET("/invitation", h.handleInvitation)
	g.POST("/relays", h.handleAddRelay)
	g.DELETE("/relays", h.handleRemoveRelay)
	g.PUT("/connect-relay", h.handleConnectRelay)
	g.POST("/handshake", h.handleHandshake)
	g.POST("/delegation", h.handleDelegate)
	g.GET("/delegation", h.handleDelegation)
	g.DELETE("/signer", h.handleDropSigner)
	g.POST("/notes", h.handlePublish)
	g.POST("/logout", h.handleLogout)
	g.GET("/realtime", h.handleRealtime)
}

// respond maps session errors onto status codes.
func respond(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidRelayURI),
		errors.Is(err, nostrconnect.ErrInvalidConditions):
		return presenter.BadRequest(c, err)
	case errors.Is(err, domain.ErrNotBound),
		errors.Is(err, domain.ErrSuperseded):
		return presenter.Conflict(c, err)
	case errors.Is(err, domain.ErrUntrustedDelegation):
		return presenter.Forbidden(c, err)
	case errors.Is(err, domain.ErrHandshakeTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return presenter.Timeout(c, err)
	case errors.Is(err, domain.ErrSigningFailure),
		errors.Is(err, domain.ErrTransportFailure):
		return presenter.BadGateway(c, err)
	default:
		return presenter.InternalError(c, err)
	}
}

func wantWait(c echo.Context) bool {
	wait, _ := strconv.ParseBool(c.QueryParam("wait"))
	return wait
}

func (h *Handler) status(c echo.Context) error {
	status, err := h.session.Status(c.Request().Context())
	if err != nil {
		return respond(c, err)
	}
	return presenter.OK(c, status)
}

func (h *Handler) handleSession(c echo.Context) error {
	return h.status(c)
}

func (h *Handler) handleInvitation(c echo.Context) error {
	inv := h.session.Invitation()
	return presenter.OK(c, echo.Map{
		"invitation": inv.String(),
		"pubkey":     inv.PublicKey,
		"relay":      inv.Relay,
		"name":       inv.Name,
	})
}

type relayRequest struct {
	URL string `json:"url"`
}

func (h *Handler) handleAddRelay(c echo.Context) error {
	ctx := c.Request().Context()

	var req relayRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	pending, err := h.session.AddRelay(ctx, req.URL)
	if err != nil {
		return respond(c, err)
	}
	if wantWait(c) {
		if _, err := pending.Wait(ctx); err != nil {
			return respond(c, err)
		}
	}
	return presenter.Accepted(c, echo.Map{"relays": h.session.Relays()})
}

func (h *Handler) handleRemoveRelay(c echo.Context) error {
	ctx := c.Request().Context()

	url := c.QueryParam("url")
	if url == "" {
		return presenter.BadRequestMessage(c, "url parameter is required")
	}

	pending := h.session.RemoveRelay(ctx, url)
	if wantWait(c) {
		if _, err := pending.Wait(ctx); err != nil {
			return respond(c, err)
		}
	}
	return presenter.OK(c, echo.Map{"relays": h.session.Relays()})
}

func (h *Handler) handleConnectRelay(c echo.Context) error {
	ctx := c.Request().Context()

	var req relayRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	pending, err := h.session.Rebind(ctx, req.URL)
	if err != nil {
		return respond(c, err)
	}
	return h.awaitSigner(c, pending)
}

func (h *Handler) handleHandshake(c echo.Context) error {
	return h.awaitSigner(c, h.session.BeginHandshake(c.Request().Context()))
}

func (h *Handler) awaitSigner(c echo.Context, pending *utils.Pending[string]) error {
	ctx := c.Request().Context()
	if !wantWait(c) {
		return presenter.Accepted(c, echo.Map{
			"state":        h.session.State(),
			"connectRelay": h.session.ConnectRelay(),
			"invitation":   h.session.Invitation().String(),
		})
	}

	signer, err := pending.Wait(ctx)
	if err != nil {
		return respond(c, err)
	}
	return presenter.OK(c, echo.Map{
		"state":  h.session.State(),
		"signer": signer,
	})
}

type delegationRequest struct {
	NotBefore *int64 `json:"notBefore"`
	NotAfter  *int64 `json:"notAfter"`
	ValidFor  string `json:"validFor"`
	Kinds     []int  `json:"kinds"`
}

func (h *Handler) handleDelegate(c echo.Context) error {
	ctx := c.Request().Context()

	var req delegationRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	if req.NotAfter != nil {
		var notBefore *time.Time
		if req.NotBefore != nil {
			t := time.Unix(*req.NotBefore, 0)
			notBefore = &t
		}
		notAfter := time.Unix(*req.NotAfter, 0)

		cred, err := h.session.RequestDelegation(ctx, notBefore, notAfter, req.Kinds).Wait(ctx)
		if err != nil {
			return respond(c, err)
		}
		if err := h.session.VerifyAndInstall(ctx, cred); err != nil {
			return respond(c, err)
		}
		return h.status(c)
	}

	var validFor time.Duration
	if req.ValidFor != "" {
		d, err := time.ParseDuration(req.ValidFor)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid validFor")
		}
		validFor = d
	}

	if _, err := h.session.Delegate(ctx, validFor, req.Kinds).Wait(ctx); err != nil {
		return respond(c, err)
	}
	return h.status(c)
}

func (h *Handler) handleDelegation(c echo.Context) error {
	ctx := c.Request().Context()

	cred, err := h.session.ActiveCredential(ctx)
	if err != nil {
		return respond(c, err)
	}
	if cred == nil {
		return presenter.NotFound(c, "no trusted delegation")
	}
	return presenter.OK(c, echo.Map{
		"credential": cred,
		"tag":        cred.Tag().Tag(),
		"expired":    cred.Expired(time.Now()),
	})
}

func (h *Handler) handleDropSigner(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := h.session.DropRemoteSigner(ctx).Wait(ctx); err != nil {
		return respond(c, err)
	}
	return h.status(c)
}

type noteRequest struct {
	Content string `json:"content"`
}

func (h *Handler) handlePublish(c echo.Context) error {
	ctx := c.Request().Context()

	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}
	if req.Content == "" {
		return presenter.BadRequestMessage(c, "content is required")
	}

	id, err := h.session.PublishNote(ctx, req.Content).Wait(ctx)
	if err != nil {
		return respond(c, err)
	}
	return presenter.OK(c, echo.Map{"id": id})
}

func (h *Handler) handleLogout(c echo.Context) error {
	if err := h.session.Unbind(c.Request().Context()); err != nil {
		return respond(c, err)
	}
	return h.status(c)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Request struct {
	Type string `json:"type"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	output, err := h.signal.Subscribe(ctx)
	if err != nil {
		slog.ErrorContext(
			ctx, "Failed to subscribe to session events",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return nil
	}

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}
				return
			}

			switch req.Type {
			case "h": // heartbeat
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event, ok := <-output:
			if !ok {
				return nil
			}
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
