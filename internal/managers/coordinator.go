package managers

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"signaling/internal/agent"
	"signaling/internal/metrics"
	"signaling/internal/models"
	"signaling/internal/registry"
	"signaling/internal/session"
)

const presenceChannel = "signaling:presence"

// defaultRoomID is used when an agent request carries no room id.
const defaultRoomID = "main-room"

// Coordinator owns the signaling state: the room registry and the set of
// connected clients. Membership transitions and relay fan-out are
// serialized under one mutex so per-room delivery order matches processing
// order. Provisioner calls never run under that mutex.
type Coordinator struct {
	log         *zap.Logger
	registry    *registry.Registry
	provisioner agent.Provisioner
	rdb         *redis.Client // nil disables cross-instance presence
	instanceID  string

	mu      sync.Mutex
	clients map[string]*session.Client

	ctx    context.Context
	cancel context.CancelFunc
}

func NewCoordinator(reg *registry.Registry, provisioner agent.Provisioner, rdb *redis.Client, log *zap.Logger) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		log:         log,
		registry:    reg,
		provisioner: provisioner,
		rdb:         rdb,
		instanceID:  uuid.New().String(),
		clients:     make(map[string]*session.Client),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// InstanceID identifies this coordinator in cross-instance presence events.
func (co *Coordinator) InstanceID() string { return co.instanceID }

// Run starts the presence subscriber when Redis is configured.
func (co *Coordinator) Run() {
	if co.rdb != nil {
		go co.subscribeToPresenceEvents()
	}
}

// Shutdown stops the presence subscriber and closes every client.
func (co *Coordinator) Shutdown() {
	co.cancel()

	co.mu.Lock()
	defer co.mu.Unlock()
	for _, c := range co.clients {
		c.Close()
	}
	co.clients = make(map[string]*session.Client)
}

// Connect registers a new transport connection and acknowledges it.
// Joining a room is a separate explicit step.
func (co *Coordinator) Connect(c *session.Client) {
	co.mu.Lock()
	co.clients[c.ID] = c
	co.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	c.Send(models.EventConnected, models.Connected{Status: "success"})
	co.log.Info("client connected", zap.String("connectionId", c.ID))
}

// JoinRoom registers connID in roomID, notifies prior members, replies to
// the joiner, and applies the call-initiation policy: the newest arrival
// into a non-empty room originates the offer, so two participants never
// race to initiate.
func (co *Coordinator) JoinRoom(connID, roomID string) {
	if roomID == "" {
		co.SendError(connID, "Room ID is required")
		return
	}

	co.mu.Lock()
	client, ok := co.clients[connID]
	if !ok {
		// Connection already torn down; nothing to reply to.
		co.mu.Unlock()
		return
	}

	existing := co.registry.Join(connID, roomID)
	for _, memberID := range existing {
		co.sendToLocked(memberID, models.EventUserJoined, models.UserJoined{UserID: connID, RoomID: roomID})
	}
	client.Send(models.EventRoomJoined, models.RoomJoined{RoomID: roomID, Participants: existing})
	if len(existing) > 0 {
		client.Send(models.EventInitiateCall, models.InitiateCall{ShouldCreateOffer: true})
	}
	metrics.RoomsActive.Set(float64(co.registry.RoomCount()))
	co.mu.Unlock()

	co.log.Info("client joined room", zap.String("connectionId", connID), zap.String("roomId", roomID))
	co.publishPresence("user-joined", roomID, connID)
}

// relayField maps an event kind to the payload field the original wire
// format carries it in.
func relayField(kind string) string {
	if kind == models.EventICECandidate {
		return "candidate"
	}
	return kind
}

// Relay fans a handshake message out to every other member of the sender's
// room, unchanged except for the added sender id. The payload is never
// inspected.
func (co *Coordinator) Relay(connID, kind string, data json.RawMessage) {
	co.mu.Lock()
	roomID, ok := co.registry.RoomOf(connID)
	if !ok {
		co.mu.Unlock()
		co.SendError(connID, "Not in a room")
		return
	}

	field := relayField(kind)
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(data, &fields)
	payload := fields[field]
	if payload == nil {
		payload = json.RawMessage("null")
	}

	out := map[string]any{
		field:  payload,
		"from": connID,
	}
	members, _ := co.registry.Members(roomID)
	for _, memberID := range members {
		if memberID == connID {
			continue
		}
		co.sendToLocked(memberID, kind, out)
	}
	co.mu.Unlock()

	metrics.RelayedMessages.WithLabelValues(kind).Inc()
}

// LeaveRoom removes connID from its room, tells the remaining members, and
// acknowledges the leaver. A leave from a connection that is not in any
// room is a benign race and stays silent.
func (co *Coordinator) LeaveRoom(connID string) {
	co.mu.Lock()
	roomID, orphanedAgent, ok := co.registry.Leave(connID)
	if ok {
		co.notifyLeftLocked(roomID, connID)
		co.sendToLocked(connID, models.EventLeftRoom, models.LeftRoom{Status: "success"})
		metrics.RoomsActive.Set(float64(co.registry.RoomCount()))
	}
	co.mu.Unlock()

	if ok {
		co.log.Info("client left room", zap.String("connectionId", connID), zap.String("roomId", roomID))
		co.publishPresence("user-left", roomID, connID)
	}
	co.endOrphanedAgent(orphanedAgent)
}

// Disconnect runs the leave teardown and then discards all per-connection
// state. Safe to call for connections that never joined a room.
func (co *Coordinator) Disconnect(connID string) {
	co.mu.Lock()
	_, tracked := co.clients[connID]
	roomID, orphanedAgent, left := co.registry.Leave(connID)
	if left {
		co.notifyLeftLocked(roomID, connID)
		metrics.RoomsActive.Set(float64(co.registry.RoomCount()))
	}
	delete(co.clients, connID)
	co.mu.Unlock()

	if tracked {
		metrics.ConnectionsActive.Dec()
		co.log.Info("client disconnected", zap.String("connectionId", connID))
	}
	if left {
		co.publishPresence("user-left", roomID, connID)
	}
	co.endOrphanedAgent(orphanedAgent)
}

// RequestAgent provisions an AI participant for roomID and announces it to
// the whole room. The provisioner call runs outside the coordinator lock
// so unrelated rooms are never stalled by it. On failure only the
// requester hears about it and no descriptor is stored.
func (co *Coordinator) RequestAgent(ctx context.Context, connID, roomID string) {
	if roomID == "" {
		roomID = defaultRoomID
	}

	// Conversation slots are scarce; end stale ones first, sparing agents
	// still bound to live rooms.
	if ended, err := co.provisioner.CleanupConversations(ctx, co.registry.ActiveConversationIDs()); err != nil {
		co.log.Warn("conversation cleanup failed", zap.Error(err))
	} else if ended > 0 {
		co.log.Info("ended stale conversations", zap.Int("count", ended))
		time.Sleep(2 * time.Second)
	}

	descriptor, err := co.provisioner.CreateConversation(ctx, roomID)
	if err != nil {
		co.log.Error("agent provisioning failed", zap.String("roomId", roomID), zap.Error(err))
		metrics.AgentRequests.WithLabelValues("error").Inc()
		co.SendError(connID, "Error creating AI agent: "+err.Error())
		return
	}

	co.mu.Lock()
	if !co.registry.SetAgent(roomID, descriptor) {
		co.mu.Unlock()
		// Room died while provisioning; release the conversation.
		co.endOrphanedAgent(descriptor)
		metrics.AgentRequests.WithLabelValues("room_gone").Inc()
		co.SendError(connID, "Room not found")
		return
	}
	co.broadcastLocked(roomID, models.EventAgentJoined, models.AgentJoined{
		AgentData: descriptor,
		RoomID:    roomID,
	})
	co.mu.Unlock()

	metrics.AgentRequests.WithLabelValues("success").Inc()
	co.log.Info("agent joined room",
		zap.String("roomId", roomID),
		zap.String("conversationId", descriptor.ConversationID))
}

// SendToAgent forwards a text message to the room's agent and echoes the
// exchange to every member. Requires an agent already present.
func (co *Coordinator) SendToAgent(ctx context.Context, connID, roomID, message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		co.SendError(connID, "Message required")
		return
	}
	if roomID == "" {
		roomID = defaultRoomID
	}

	descriptor, ok := co.registry.Agent(roomID)
	if !ok {
		co.SendError(connID, "No AI agent active in this room")
		return
	}

	acked, err := co.provisioner.SendMessage(ctx, descriptor.ConversationID, message)
	if err != nil {
		co.log.Error("agent message failed", zap.String("roomId", roomID), zap.Error(err))
		co.SendError(connID, "Error sending message to AI: "+err.Error())
		return
	}

	aiResponse := "I'm listening! Continue talking to me through the video interface for the full conversational experience."
	if acked {
		aiResponse = "I received your message! I'll respond through the video interface above with full audio and video."
	}

	co.mu.Lock()
	co.broadcastLocked(roomID, models.EventAIMessage, models.AIMessage{
		UserMessage: message,
		AIResponse:  aiResponse,
		Sender:      connID,
		Timestamp:   float64(time.Now().UnixMilli()) / 1000,
		Note:        "Main conversation happens in the video interface above",
	})
	co.mu.Unlock()
}

// SendError delivers an error event to one connection.
func (co *Coordinator) SendError(connID, message string) {
	co.mu.Lock()
	co.sendToLocked(connID, models.EventError, models.ErrorMessage{Message: message})
	co.mu.Unlock()
}

func (co *Coordinator) notifyLeftLocked(roomID, connID string) {
	members, ok := co.registry.Members(roomID)
	if !ok {
		return
	}
	for _, memberID := range members {
		co.sendToLocked(memberID, models.EventUserLeft, models.UserLeft{UserID: connID})
	}
}

func (co *Coordinator) broadcastLocked(roomID, eventType string, v any) {
	members, ok := co.registry.Members(roomID)
	if !ok {
		return
	}
	for _, memberID := range members {
		co.sendToLocked(memberID, eventType, v)
	}
}

func (co *Coordinator) sendToLocked(connID, eventType string, v any) {
	if c, ok := co.clients[connID]; ok {
		c.Send(eventType, v)
	}
}

// endOrphanedAgent releases the provisioner conversation of a destroyed
// room, best-effort.
func (co *Coordinator) endOrphanedAgent(descriptor *models.AgentDescriptor) {
	if descriptor == nil || descriptor.ConversationID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := co.provisioner.EndConversation(ctx, descriptor.ConversationID); err != nil {
			co.log.Warn("failed to end orphaned conversation",
				zap.String("conversationId", descriptor.ConversationID), zap.Error(err))
		}
	}()
}

func (co *Coordinator) publishPresence(eventType, roomID, connID string) {
	if co.rdb == nil {
		return
	}
	event := models.PresenceEvent{
		Type:       eventType,
		RoomID:     roomID,
		UserID:     connID,
		InstanceID: co.instanceID,
		Timestamp:  time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := co.rdb.Publish(co.ctx, presenceChannel, data).Err(); err != nil {
		co.log.Warn("failed to publish presence event", zap.Error(err))
	}
}

// subscribeToPresenceEvents applies joins and leaves seen on other
// instances to the members connected here.
func (co *Coordinator) subscribeToPresenceEvents() {
	pubsub := co.rdb.Subscribe(co.ctx, presenceChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	co.log.Info("subscribed to presence events", zap.String("instanceId", co.instanceID))

	for {
		select {
		case <-co.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event models.PresenceEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				co.log.Warn("failed to unmarshal presence event", zap.Error(err))
				continue
			}
			if event.InstanceID == co.instanceID {
				continue
			}
			co.handlePresenceEvent(&event)
		}
	}
}

func (co *Coordinator) handlePresenceEvent(event *models.PresenceEvent) {
	co.mu.Lock()
	defer co.mu.Unlock()

	switch event.Type {
	case "user-joined":
		co.broadcastLocked(event.RoomID, models.EventUserJoined,
			models.UserJoined{UserID: event.UserID, RoomID: event.RoomID})
	case "user-left":
		co.broadcastLocked(event.RoomID, models.EventUserLeft,
			models.UserLeft{UserID: event.UserID})
	default:
		co.log.Warn("unknown presence event type", zap.String("type", event.Type))
	}
}
