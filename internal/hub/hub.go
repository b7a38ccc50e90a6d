package hub

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/nowserving/internal/auth"
	"github.com/DoyleJ11/nowserving/internal/engine"
	"github.com/DoyleJ11/nowserving/internal/metrics"
)

var ErrHubClosed = errors.New("hub closed")

type Msg interface{ isHubMsg() }

type Join struct {
	ClientID string
	Role     auth.Role     // fixed for the life of the connection
	Outbox   chan Snapshot // buffered; closed by the hub when the client is removed
}

func (Join) isHubMsg() {}

type Leave struct{ ClientID string }

func (Leave) isHubMsg() {}

// FromClient carries a mutation intent. The sender's role comes from the
// client table, never from the message.
type FromClient struct {
	ClientID string
	Cmd      engine.Command
}

func (FromClient) isHubMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isHubMsg() {}

type Shutdown struct{}

func (Shutdown) isHubMsg() {}

type Snapshot struct {
	Version int
	State   engine.Snapshot
}

type View struct {
	Version    int
	NumClients int
	NumStaff   int
	State      engine.Snapshot
}

type client struct {
	role   auth.Role
	outbox chan Snapshot
}

// Hub is the single writer of the queue registry. Every intent, join and
// leave is processed in order on one goroutine, so allocations never race.
type Hub struct {
	inbox    chan Msg
	registry *engine.Registry
	version  int
	clients  map[string]client
	clock    clockwork.Clock
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewHub(parent context.Context, registry *engine.Registry, clock clockwork.Clock, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}

	h := &Hub{
		inbox:    make(chan Msg, 64),
		registry: registry,
		clients:  make(map[string]client),
		clock:    clock,
		log:      log.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go h.loop()
	return h
}

// Expose the inbox so tests or WS layer can send messages.
func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// Done is closed once the hub goroutine has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Submit enqueues m unless ctx ends or the hub has stopped first.
func (h *Hub) Submit(ctx context.Context, m Msg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}
}

// State asks the hub for a consistent view of the registry.
func (h *Hub) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := h.Submit(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-h.done:
		return View{}, ErrHubClosed
	}
}

func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

func (h *Hub) loop() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			metrics.HubInboxDepth.Set(float64(len(h.inbox)))

			switch msg := m.(type) {
			case Join:
				h.handleJoin(msg)

			case Leave:
				if c, ok := h.clients[msg.ClientID]; ok {
					h.remove(msg.ClientID, c)
				}

			case FromClient:
				h.handleIntent(msg)

			case GetState:
				msg.Reply <- h.view()

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) handleJoin(msg Join) {
	if old, ok := h.clients[msg.ClientID]; ok {
		h.remove(msg.ClientID, old)
	}

	// Late joiners get the current state right away.
	select {
	case msg.Outbox <- h.snapshot():
	default:
		h.log.Warn("join outbox full, dropping client", zap.String("client_id", msg.ClientID))
		close(msg.Outbox)
		return
	}

	h.clients[msg.ClientID] = client{role: msg.Role, outbox: msg.Outbox}
	metrics.HubConnectedClients.WithLabelValues(string(msg.Role)).Inc()
	h.log.Debug("client joined",
		zap.String("client_id", msg.ClientID),
		zap.String("role", string(msg.Role)),
		zap.Int("clients", len(h.clients)),
	)
}

func (h *Hub) handleIntent(msg FromClient) {
	cmdType := string(msg.Cmd.Type)

	c, ok := h.clients[msg.ClientID]
	if !ok || c.role != auth.RoleStaff {
		h.drop(msg, "unauthorized", nil)
		return
	}

	cmd := msg.Cmd
	cmd.GroupID = h.registry.Resolve(cmd.GroupID)

	res, err := engine.Apply(h.registry, cmd, h.clock.Now())
	if err != nil {
		h.drop(msg, outcome(err), err)
		return
	}

	h.version++
	metrics.QueueIntentsTotal.WithLabelValues(cmdType, "applied").Inc()
	if res.Type == engine.CmdAllocate {
		metrics.QueueTicketsIssued.WithLabelValues(res.Group.ID).Inc()
	}
	h.log.Info("queue updated",
		zap.String("client_id", msg.ClientID),
		zap.String("command", cmdType),
		zap.String("group", res.Group.ID),
		zap.Int("ticket", res.Ticket),
		zap.Int("next_ticket", res.Group.NextTicket),
		zap.Int("version", h.version),
	)

	h.broadcast(h.snapshot())
}

// drop discards an intent. Nothing goes back to the client; the reason is
// only visible in logs and metrics.
func (h *Hub) drop(msg FromClient, reason string, err error) {
	metrics.QueueIntentsTotal.WithLabelValues(string(msg.Cmd.Type), reason).Inc()
	fields := []zap.Field{
		zap.String("client_id", msg.ClientID),
		zap.String("command", string(msg.Cmd.Type)),
		zap.String("group", msg.Cmd.GroupID),
		zap.String("reason", reason),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	h.log.Debug("intent dropped", fields...)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, engine.ErrUnknownGroup):
		return "unknown_group"
	case errors.Is(err, engine.ErrInvalidCounter):
		return "invalid_counter"
	case errors.Is(err, engine.ErrInvalidInput):
		return "invalid_input"
	default:
		return "unsupported"
	}
}

func (h *Hub) snapshot() Snapshot {
	return Snapshot{Version: h.version, State: h.registry.Snapshot()}
}

func (h *Hub) view() View {
	v := View{
		Version:    h.version,
		NumClients: len(h.clients),
		State:      h.registry.Snapshot(),
	}
	for _, c := range h.clients {
		if c.role == auth.RoleStaff {
			v.NumStaff++
		}
	}
	return v
}

func (h *Hub) broadcast(snap Snapshot) {
	metrics.HubBroadcastsTotal.Inc()
	for id, c := range h.clients {
		select {
		case c.outbox <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			metrics.HubSlowClientsEvicted.Inc()
			h.log.Warn("evicting slow client", zap.String("client_id", id))
			h.remove(id, c)
		}
	}
}

func (h *Hub) remove(id string, c client) {
	close(c.outbox)
	delete(h.clients, id)
	metrics.HubConnectedClients.WithLabelValues(string(c.role)).Dec()
	h.log.Debug("client left", zap.String("client_id", id), zap.Int("clients", len(h.clients)))
}

func (h *Hub) shutdown() {
	for id, c := range h.clients {
		h.remove(id, c) // Tell client no more snapshots
	}
	h.cancel()
}
