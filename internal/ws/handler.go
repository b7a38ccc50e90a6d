package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/nowserving/internal/auth"
	"github.com/DoyleJ11/nowserving/internal/engine"
	"github.com/DoyleJ11/nowserving/internal/hub"
	"github.com/DoyleJ11/nowserving/internal/metrics"
	"github.com/DoyleJ11/nowserving/internal/types"
)

const (
	defaultWriteTimeout = 3 * time.Second
	defaultPingInterval = 25 * time.Second
	defaultOutboxSize   = 8
	readLimit           = 4096
	leaveTimeout        = time.Second
)

type Options struct {
	// OriginPatterns are host patterns accepted besides same-origin requests.
	OriginPatterns     []string
	InsecureSkipVerify bool
	WriteTimeout       time.Duration
	PingInterval       time.Duration
	OutboxSize         int
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = defaultOutboxSize
	}
	return o
}

func Handler(h *hub.Hub, verifier auth.Verifier, log *zap.Logger, opts Options) http.HandlerFunc {
	opts = opts.withDefaults()
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		// Classification happens once, before the upgrade.
		role, err := auth.Classify(verifier, auth.BearerToken(r))
		if err != nil {
			metrics.WebSocketHandshakesTotal.WithLabelValues("rejected").Inc()
			log.Info("handshake rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:     opts.OriginPatterns,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(readLimit)
		metrics.WebSocketHandshakesTotal.WithLabelValues(string(role)).Inc()

		out := make(chan hub.Snapshot, opts.OutboxSize)
		clientID := uuid.NewString()
		clog := log.With(zap.String("client_id", clientID), zap.String("role", string(role)))

		if err := h.Submit(r.Context(), hub.Join{ClientID: clientID, Role: role, Outbox: out}); err != nil {
			clog.Warn("join failed", zap.Error(err))
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
			defer cancel()
			_ = h.Submit(ctx, hub.Leave{ClientID: clientID})
		}()
		clog.Info("client connected")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writeLoop(writeCtx, conn, out, opts, clog)

		// Reader loop
		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Info("client disconnected")
				default:
					clog.Debug("read ended", zap.Error(err))
				}
				return
			}
			if typ != websocket.MessageText {
				metrics.WebSocketMalformedMessages.Inc()
				continue
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				metrics.WebSocketMalformedMessages.Inc()
				clog.Debug("ignoring malformed message", zap.Error(err))
				continue
			}

			cmd, ok := toEngineCommand(cm)
			if !ok {
				metrics.WebSocketMalformedMessages.Inc()
				clog.Debug("ignoring unknown message type", zap.String("type", cm.Type))
				continue
			}

			if err := h.Submit(r.Context(), hub.FromClient{ClientID: clientID, Cmd: cmd}); err != nil {
				if !errors.Is(err, context.Canceled) {
					clog.Warn("submit failed", zap.Error(err))
				}
				return
			}
		}
	}
}

// writeLoop drains the outbox until the hub closes it, pinging in between so
// silent displays are still noticed when they vanish.
func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan hub.Snapshot, opts Options, log *zap.Logger) {
	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-out:
			if !ok {
				// Evicted or hub stopped.
				_ = conn.Close(websocket.StatusGoingAway, "no more updates")
				return
			}
			payload, err := json.Marshal(types.ServerMessage{
				Type:    types.MsgStateSnapshot,
				Version: snap.Version,
				State:   &snap.State,
			})
			if err != nil {
				log.Error("encode snapshot", zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				_ = conn.CloseNow()
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				_ = conn.CloseNow()
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func toEngineCommand(m types.ClientMessage) (engine.Command, bool) {
	switch m.Type {
	case types.MsgNext:
		return engine.Command{Type: engine.CmdAllocate, GroupID: m.GroupID, CounterID: m.CounterID}, true
	case types.MsgReset:
		return engine.Command{Type: engine.CmdReset, GroupID: m.GroupID}, true
	case types.MsgSetStart:
		return engine.Command{Type: engine.CmdSetStart, GroupID: m.GroupID, StartNumber: string(m.StartNumber)}, true
	default:
		return engine.Command{}, false
	}
}
