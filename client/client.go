package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
	"github.com/patrickmn/go-cache"

	"github.com/totegamma/nostrconnect"
)

const (
	defaultTimeout = 10 * time.Second
	subBuffer      = 64
)

var (
	ErrRejected     = errors.New("event rejected by relay")
	ErrNotConnected = errors.New("relay not connected")
)

// Client is a pool of relay connections speaking the NIP-01 wire protocol.
type Client struct {
	mu        sync.Mutex
	relays    map[nostrconnect.RelayURL]*conn
	dialer    *websocket.Dialer
	accepted  *cache.Cache
	userAgent string
	timeout   time.Duration
}

func New(userAgent string) *Client {
	return &Client{
		relays: map[nostrconnect.RelayURL]*conn{},
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		accepted:  cache.New(10*time.Minute, 15*time.Minute),
		userAgent: userAgent,
		timeout:   defaultTimeout,
	}
}

type okResult struct {
	ok     bool
	reason string
}

type subscription struct {
	id     string
	mu     sync.Mutex
	closed bool
	ch     chan nostr.Event
	done   <-chan struct{}
}

func (s *subscription) deliver(ev nostr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	case <-s.done:
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

type conn struct {
	url  nostrconnect.RelayURL
	ws   *websocket.Conn
	wmu  sync.Mutex
	done chan struct{}

	mu   sync.Mutex
	subs map[string]*subscription
	oks  map[string]chan okResult
}

func (c *conn) write(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(defaultTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

func (c *conn) alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Connect opens a connection to relay unless one is already open.
func (c *Client) Connect(ctx context.Context, relay nostrconnect.RelayURL) error {
	_, err := c.connection(ctx, relay)
	return err
}

func (c *Client) connection(ctx context.Context, relay nostrconnect.RelayURL) (*conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.relays[relay]; ok && existing.alive() {
		return existing, nil
	}

	header := http.Header{}
	if c.userAgent != "" {
		header.Set("User-Agent", c.userAgent)
	}

	ws, _, err := c.dialer.DialContext(ctx, relay.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", relay, err)
	}

	cn := &conn{
		url:  relay,
		ws:   ws,
		done: make(chan struct{}),
		subs: map[string]*subscription{},
		oks:  map[string]chan okResult{},
	}
	c.relays[relay] = cn
	go c.readLoop(cn)

	slog.Info(
		"relay connected",
		slog.String("relay", relay.String()),
		slog.String("module", "client"),
	)
	return cn, nil
}

func (c *Client) readLoop(cn *conn) {
	defer func() {
		close(cn.done)
		cn.ws.Close()

		cn.mu.Lock()
		for id, sub := range cn.subs {
			sub.close()
			delete(cn.subs, id)
		}
		for id, ch := range cn.oks {
			close(ch)
			delete(cn.oks, id)
		}
		cn.mu.Unlock()

		c.mu.Lock()
		if c.relays[cn.url] == cn {
			delete(c.relays, cn.url)
		}
		c.mu.Unlock()
	}()

	for {
		_, message, err := cn.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
				slog.Debug(
					"relay read failed",
					slog.String("relay", cn.url.String()),
					slog.String("error", err.Error()),
					slog.String("module", "client"),
				)
			}
			return
		}

		switch env := nostr.ParseMessage(message).(type) {
		case *nostr.EventEnvelope:
			if env.SubscriptionID == nil {
				continue
			}
			cn.mu.Lock()
			sub, ok := cn.subs[*env.SubscriptionID]
			cn.mu.Unlock()
			if ok {
				sub.deliver(env.Event)
			}
		case *nostr.OKEnvelope:
			cn.mu.Lock()
			ch, ok := cn.oks[env.EventID]
			delete(cn.oks, env.EventID)
			cn.mu.Unlock()
			if ok {
				ch <- okResult{ok: env.OK, reason: env.Reason}
				close(ch)
			}
		case *nostr.ClosedEnvelope:
			cn.mu.Lock()
			sub, ok := cn.subs[env.SubscriptionID]
			delete(cn.subs, env.SubscriptionID)
			cn.mu.Unlock()
			if ok {
				sub.close()
			}
			slog.Info(
				"subscription closed by relay",
				slog.String("relay", cn.url.String()),
				slog.String("reason", env.Reason),
				slog.String("module", "client"),
			)
		case *nostr.NoticeEnvelope:
			slog.Info(
				"relay notice",
				slog.String("relay", cn.url.String()),
				slog.String("notice", string(*env)),
				slog.String("module", "client"),
			)
		case *nostr.EOSEEnvelope:
		case nil:
			slog.Debug(
				"unparsable relay message",
				slog.String("relay", cn.url.String()),
				slog.String("module", "client"),
			)
		}
	}
}

// Disconnect closes the connection to relay, if any.
func (c *Client) Disconnect(ctx context.Context, relay nostrconnect.RelayURL) error {
	c.mu.Lock()
	cn, ok := c.relays[relay]
	delete(c.relays, relay)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	cn.wmu.Lock()
	err := cn.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	cn.wmu.Unlock()

	select {
	case <-cn.done:
	case <-ctx.Done():
		cn.ws.Close()
	case <-time.After(time.Second):
		cn.ws.Close()
	}

	slog.Info(
		"relay disconnected",
		slog.String("relay", relay.String()),
		slog.String("module", "client"),
	)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

// Publish sends ev to every relay and succeeds if at least one accepted it.
func (c *Client) Publish(ctx context.Context, relays []nostrconnect.RelayURL, ev nostr.Event) error {
	if len(relays) == 0 {
		return ErrNotConnected
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		sent bool
	)
	for _, relay := range relays {
		wg.Add(1)
		go func(relay nostrconnect.RelayURL) {
			defer wg.Done()
			err := c.publishOne(ctx, relay, ev)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", relay, err))
				return
			}
			sent = true
		}(relay)
	}
	wg.Wait()

	if sent {
		if len(errs) > 0 {
			slog.WarnContext(
				ctx, "some relays did not accept the event",
				slog.String("id", ev.ID),
				slog.String("error", errors.Join(errs...).Error()),
				slog.String("module", "client"),
			)
		}
		return nil
	}
	return errors.Join(errs...)
}

func (c *Client) publishOne(ctx context.Context, relay nostrconnect.RelayURL, ev nostr.Event) error {
	cacheKey := string(relay) + ":" + ev.ID
	if _, found := c.accepted.Get(cacheKey); found {
		return nil
	}

	cn, err := c.connection(ctx, relay)
	if err != nil {
		return err
	}

	ch := make(chan okResult, 1)
	cn.mu.Lock()
	cn.oks[ev.ID] = ch
	cn.mu.Unlock()

	if err := cn.write(&nostr.EventEnvelope{Event: ev}); err != nil {
		cn.mu.Lock()
		delete(cn.oks, ev.ID)
		cn.mu.Unlock()
		return err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		if !res.ok {
			return fmt.Errorf("%w: %s", ErrRejected, res.reason)
		}
		c.accepted.Set(cacheKey, struct{}{}, cache.DefaultExpiration)
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	cn.mu.Lock()
	delete(cn.oks, ev.ID)
	cn.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("no OK from %s", relay)
}

// Subscribe streams events matching filter from relay. The channel is
// closed when ctx is done, the relay closes the subscription or the
// connection drops.
func (c *Client) Subscribe(ctx context.Context, relay nostrconnect.RelayURL, filter nostr.Filter) (<-chan nostr.Event, error) {
	cn, err := c.connection(ctx, relay)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		id:   uuid.NewString(),
		ch:   make(chan nostr.Event, subBuffer),
		done: ctx.Done(),
	}
	cn.mu.Lock()
	cn.subs[sub.id] = sub
	cn.mu.Unlock()

	if err := cn.write(&nostr.ReqEnvelope{SubscriptionID: sub.id, Filters: nostr.Filters{filter}}); err != nil {
		cn.mu.Lock()
		delete(cn.subs, sub.id)
		cn.mu.Unlock()
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-cn.done:
			return
		}
		cn.mu.Lock()
		_, ok := cn.subs[sub.id]
		delete(cn.subs, sub.id)
		cn.mu.Unlock()
		if ok {
			closeEnv := nostr.CloseEnvelope(sub.id)
			if err := cn.write(&closeEnv); err != nil {
				slog.Debug(
					"failed to close subscription",
					slog.String("relay", relay.String()),
					slog.String("error", err.Error()),
					slog.String("module", "client"),
				)
			}
		}
		sub.close()
	}()

	return sub.ch, nil
}

// Relays lists the open connections.
func (c *Client) Relays() []nostrconnect.RelayURL {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]nostrconnect.RelayURL, 0, len(c.relays))
	for r, cn := range c.relays {
		if cn.alive() {
			out = append(out, r)
		}
	}
	return out
}

// Close disconnects every relay.
func (c *Client) Close() {
	for _, r := range c.Relays() {
		c.Disconnect(context.Background(), r)
	}
}
