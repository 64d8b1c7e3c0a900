package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/flowchat-server/internal/auth"
	"github.com/vovakirdan/flowchat-server/internal/config"
	"github.com/vovakirdan/flowchat-server/internal/core"
	"github.com/vovakirdan/flowchat-server/internal/proto"
	"github.com/vovakirdan/flowchat-server/internal/service/realtime"
)

// Realtime is the connection-facing side of the realtime service.
type Realtime interface {
	Connect(ctx context.Context, c *core.Client) error
	Disconnect(ctx context.Context, c *core.Client)
	Handle(ctx context.Context, c *core.Client, cmd core.Command)
	Stats() realtime.Stats
}

// WSHandler authenticates, upgrades and bridges connections to core.Client.
type WSHandler struct {
	gate *auth.Gate
	rt   Realtime
	cfg  config.Config
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(gate *auth.Gate, rt Realtime, cfg config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{gate: gate, rt: rt, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	identity, err := h.gate.Authenticate(r)
	if err != nil {
		h.log.Info().Err(err).Str("remote", r.RemoteAddr).Msg("ws connection rejected")
		writeJSONError(w, stdhttp.StatusUnauthorized, auth.Reason(err))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.cfg.AllowedOrigins,
		InsecureSkipVerify: slices.Contains(h.cfg.AllowedOrigins, "*"),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(uuid.NewString(), identity.UserID, identity.Username, h.cfg.ClientBuffer)
	client.Email = identity.Email
	log := h.log.With().Str("conn_id", client.ID).Str("user_id", client.UserID).Logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := h.rt.Connect(ctx, client); err != nil {
		log.Error().Err(err).Msg("connection setup failed")
		conn.Close(websocket.StatusInternalError, "connection setup failed")
		return
	}
	defer h.rt.Disconnect(ctx, client)

	errCh := make(chan error, 3)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, &log)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &log)
	}()
	go func() {
		errCh <- h.pingLoop(ctx, conn)
	}()

	err = <-errCh
	cancel() // stop the other goroutines
	<-errCh
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			if err := writeError(ctx, conn, "", core.NewError(core.ErrCodeRateLimited, "too many events")); err != nil {
				return err
			}
			continue
		}

		var inbound proto.Inbound
		if typ != websocket.MessageText || json.Unmarshal(data, &inbound) != nil {
			log.Debug().Msg("undecodable ws frame")
			if err := writeError(ctx, conn, "", core.NewError(core.ErrCodeBadRequest, "invalid frame")); err != nil {
				return err
			}
			continue
		}

		cmd, cerr := inboundToCommand(inbound)
		if cerr != nil {
			if err := writeError(ctx, conn, inbound.Event, cerr); err != nil {
				return err
			}
			continue
		}
		h.rt.Handle(ctx, client, cmd)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				log.Error().Err(err).Str("event", event.Kind.String()).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pingLoop closes the connection when a ping is not answered within PingTimeout.
func (h *WSHandler) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	if h.cfg.PingInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			timeout := h.cfg.PingTimeout
			if timeout <= 0 {
				timeout = h.cfg.PingInterval
			}
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, event string, cerr *core.CoreError) error {
	return wsjson.Write(ctx, conn, proto.Outbound{
		Event: core.EventError.String(),
		Data:  proto.Error{Code: cerr.Code, Message: cerr.Message, Event: event},
	})
}

func writeJSONError(w stdhttp.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
