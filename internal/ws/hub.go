package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/agoranet/go-messenger-backend/internal/domain"
	"github.com/agoranet/go-messenger-backend/internal/services"
)

// fanoutChannel is the Redis pub/sub channel carrying per-user envelopes
// between nodes.
const fanoutChannel = "messenger:events"

// Broker carries fanout envelopes between nodes. Implementations must
// deliver every published payload to every subscriber, the publishing
// node included.
type Broker interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

// redisBroker implements Broker on a Redis pub/sub channel.
type redisBroker struct {
	rdb *redis.Client
}

func (b redisBroker) Publish(ctx context.Context, payload []byte) error {
	return b.rdb.Publish(ctx, fanoutChannel, payload).Err()
}

func (b redisBroker) Subscribe(ctx context.Context) (<-chan []byte, error) {
	sub := b.rdb.Subscribe(ctx, fanoutChannel)
	out := make(chan []byte, 64)
	go func() {
		defer sub.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				out <- []byte(msg.Payload)
			}
		}
	}()
	return out, nil
}

var (
	// wsSessions gauges the number of live websocket connections on this node.
	wsSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connected_sessions",
		Help: "Current number of connected websocket sessions.",
	})

	// wsDelivered counts events written to local connections by type.
	wsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_events_delivered_total",
		Help: "Total realtime events delivered to local connections.",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(wsSessions, wsDelivered)
}

// pendingCall tracks one in-flight call attempt per conversation between
// the request frame and its terminal signal. Every node mirrors the
// attempt from the fanout stream so a transition may arrive on any node;
// only the resolved summary row is durable.
type pendingCall struct {
	CallerID  string
	CalleeID  string
	Video     bool
	StartedAt time.Time
	Accepted  bool
}

// Hub owns the per-user connection registry and relays events between
// clients, services, and the Redis broker.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	deliver    chan envelope

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // userID -> connections

	callMu sync.Mutex
	calls  map[string]*pendingCall // conversationID -> attempt

	nodeID   string
	broker   Broker
	messages *services.MessageService
	convs    *services.ConversationService
	callSvc  *services.CallService
}

// NewHub constructs a Hub. The Redis client is optional; without it events
// fan out to local connections only.
func NewHub(rdb *redis.Client, msgs *services.MessageService, convs *services.ConversationService, calls *services.CallService) *Hub {
	h := &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan envelope, 256),
		clients:    make(map[string]map[*Client]struct{}),
		calls:      make(map[string]*pendingCall),
		nodeID:     uuid.NewString(),
		messages:   msgs,
		convs:      convs,
		callSvc:    calls,
	}
	if rdb != nil {
		h.broker = redisBroker{rdb: rdb}
	}
	return h
}

// Run processes registration and local delivery. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[c.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.userID] = set
			}
			set[c] = struct{}{}
			wsSessions.Inc()
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[c.userID]; ok {
				if _, present := set[c]; present {
					delete(set, c)
					close(c.send)
					wsSessions.Dec()
					if len(set) == 0 {
						delete(h.clients, c.userID)
					}
				}
			}
			h.mu.Unlock()

		case env := <-h.deliver:
			h.deliverLocal(env)
		}
	}
}

// SubscribeFanout consumes the broker stream and hands envelopes to the
// local registry. Call signaling observed from other nodes also updates
// the local pending-attempt map so a terminal frame can resolve correctly
// no matter which node its client is connected to. Call in a goroutine;
// returns when ctx is done.
func (h *Hub) SubscribeFanout(ctx context.Context) {
	if h.broker == nil {
		return
	}
	ch, err := h.broker.Subscribe(ctx)
	if err != nil {
		log.Error().Err(err).Msg("ws: fanout subscribe failed")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Warn().Err(err).Msg("ws: malformed fanout envelope")
				continue
			}
			if env.Origin != h.nodeID && isCallFrame(env.Event.Type) {
				h.applyPeerCallState(env)
			}
			h.deliver <- env
		}
	}
}

// applyPeerCallState mirrors a call transition that happened on another
// node. Only the map is touched; the node that received the terminal frame
// from its own client writes the history row, everyone else just clears
// the attempt.
func (h *Hub) applyPeerCallState(env envelope) {
	ev := env.Event
	h.callMu.Lock()
	defer h.callMu.Unlock()

	switch ev.Type {
	case FrameCallRequest:
		var p callPayload
		_ = json.Unmarshal(ev.Payload, &p)
		h.calls[ev.ConversationID] = &pendingCall{
			CallerID:  ev.From,
			CalleeID:  env.UserID,
			Video:     p.Video,
			StartedAt: time.Now().UTC(),
		}

	case FrameCallAccept:
		if pc := h.calls[ev.ConversationID]; pc != nil {
			pc.Accepted = true
		}

	case FrameCallReject, FrameCallBusy, FrameCallCancel, FrameCallMissed, FrameCallEnd:
		delete(h.calls, ev.ConversationID)
	}
}

// NotifyUser implements services.Notifier. With Redis configured the event
// crosses the broker so every node can deliver it; otherwise it goes
// straight to local connections.
func (h *Hub) NotifyUser(ctx context.Context, userID, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("ws: payload marshal failed")
		return
	}
	env := envelope{UserID: userID, Event: Event{Type: event, Payload: raw}}

	if h.broker != nil {
		env.Origin = h.nodeID
		data, _ := json.Marshal(env)
		if err := h.broker.Publish(ctx, data); err != nil {
			log.Warn().Err(err).Msg("ws: fanout publish failed, delivering locally")
			h.deliverLocal(env)
		}
		return
	}
	h.deliverLocal(env)
}

// deliverLocal writes the event to every live connection of the target
// user. Slow consumers are dropped rather than allowed to block the hub.
func (h *Hub) deliverLocal(env envelope) {
	data, err := json.Marshal(env.Event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[env.UserID]
	for c := range set {
		select {
		case c.send <- data:
			wsDelivered.WithLabelValues(env.Event.Type).Inc()
		default:
			delete(set, c)
			close(c.send)
			wsSessions.Dec()
		}
	}
	if len(set) == 0 {
		delete(h.clients, env.UserID)
	}
}

// handleInbound dispatches one client frame. Runs on the client's read
// goroutine so a slow service call never stalls the hub loop.
func (h *Hub) handleInbound(ctx context.Context, c *Client, data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.sendError("malformed frame")
		return
	}
	ev.From = c.userID

	switch {
	case ev.Type == FrameTyping:
		h.relayToPeer(ctx, c, ev)

	case ev.Type == FrameSendMessage:
		var p sendMessagePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			c.sendError("malformed send_message payload")
			return
		}
		if _, err := h.messages.Send(ctx, c.userID, p.PeerID, p.Body, p.Type, p.ParentID); err != nil {
			c.sendError(err.Error())
		}

	case ev.Type == FrameMarkRead:
		if ev.ConversationID == "" {
			c.sendError("conversation_id required")
			return
		}
		if _, err := h.messages.MarkConversationRead(ctx, c.userID, ev.ConversationID); err != nil {
			c.sendError(err.Error())
		}

	case isCallFrame(ev.Type):
		h.handleCallFrame(ctx, c, ev)

	default:
		c.sendError("unknown frame type")
	}
}

// relayToPeer forwards an ephemeral frame to the other participant of the
// addressed conversation. Membership is enforced; delivery is best-effort.
func (h *Hub) relayToPeer(ctx context.Context, c *Client, ev Event) {
	conv, err := h.convs.Get(ctx, c.userID, ev.ConversationID)
	if err != nil {
		c.sendError("conversation not found")
		return
	}
	peer, err := h.convs.OtherUser(conv, c.userID)
	if err != nil {
		return
	}

	if h.broker != nil {
		data, _ := json.Marshal(envelope{UserID: peer, Event: ev, Origin: h.nodeID})
		_ = h.broker.Publish(ctx, data)
		return
	}
	h.deliver <- envelope{UserID: peer, Event: ev}
}

// handleCallFrame relays a signaling frame to the peer and, on a terminal
// signal, resolves the attempt into exactly one history row. Signals that
// arrive after resolution find no pending state and are dropped, so
// duplicates never produce extra rows.
func (h *Hub) handleCallFrame(ctx context.Context, c *Client, ev Event) {
	conv, err := h.convs.Get(ctx, c.userID, ev.ConversationID)
	if err != nil {
		c.sendError("conversation not found")
		return
	}
	peer, err := h.convs.OtherUser(conv, c.userID)
	if err != nil {
		return
	}

	// Relay first; the signaling plane must not wait on persistence.
	if h.broker != nil {
		data, _ := json.Marshal(envelope{UserID: peer, Event: ev, Origin: h.nodeID})
		_ = h.broker.Publish(ctx, data)
	} else {
		h.deliver <- envelope{UserID: peer, Event: ev}
	}

	h.callMu.Lock()
	defer h.callMu.Unlock()

	switch ev.Type {
	case FrameCallRequest:
		var p callPayload
		_ = json.Unmarshal(ev.Payload, &p)
		h.calls[ev.ConversationID] = &pendingCall{
			CallerID:  c.userID,
			CalleeID:  peer,
			Video:     p.Video,
			StartedAt: time.Now().UTC(),
		}

	case FrameCallAccept:
		if pc := h.calls[ev.ConversationID]; pc != nil {
			pc.Accepted = true
		}

	case FrameCallReject, FrameCallBusy:
		h.resolveCall(ctx, c.userID, ev.ConversationID, domain.CallStatusRejected)

	case FrameCallCancel:
		h.resolveCall(ctx, c.userID, ev.ConversationID, domain.CallStatusCancelled)

	case FrameCallMissed:
		h.resolveCall(ctx, c.userID, ev.ConversationID, domain.CallStatusMissed)

	case FrameCallEnd:
		pc := h.calls[ev.ConversationID]
		if pc == nil {
			return
		}
		status := domain.CallStatusCancelled
		if pc.Accepted {
			status = domain.CallStatusAccepted
		}
		h.resolveCall(ctx, c.userID, ev.ConversationID, status)
	}
}

// resolveCall consumes the pending attempt (if any) and writes the summary
// row. Caller holds callMu.
func (h *Hub) resolveCall(ctx context.Context, actorID, conversationID, status string) {
	pc := h.calls[conversationID]
	if pc == nil {
		return
	}
	delete(h.calls, conversationID)

	res := services.CallResolution{
		ConversationID: conversationID,
		CallerID:       pc.CallerID,
		CalleeID:       pc.CalleeID,
		Status:         status,
		Video:          pc.Video,
		StartedAt:      pc.StartedAt,
	}
	if status == domain.CallStatusAccepted {
		now := time.Now().UTC()
		res.EndedAt = &now
	}
	if _, err := h.callSvc.Resolve(ctx, actorID, res); err != nil {
		log.Error().Err(err).
			Str("conversation_id", conversationID).
			Str("status", status).
			Msg("ws: call resolution failed")
	}
}

// Online reports whether a user has at least one live local connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}
