package models

import (
	"encoding/json"
	"time"
)

// Envelope is the frame exchanged on the signaling WebSocket. Data is left
// opaque until the event type is known.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals v into the data field of an envelope. A marshal
// failure produces an envelope with empty data; payload types here are all
// plain structs so that does not happen in practice.
func NewEnvelope(eventType string, v any) Envelope {
	data, _ := json.Marshal(v)
	return Envelope{Type: eventType, Data: data}
}

// Inbound event types.
const (
	EventJoinRoom     = "join-room"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"
	EventLeaveRoom    = "leave-room"
	EventRequestAgent = "request-ai-agent"
	EventSendToAI     = "send-to-ai"
)

// Outbound event types.
const (
	EventConnected    = "connected"
	EventRoomJoined   = "room-joined"
	EventUserJoined   = "user-joined"
	EventInitiateCall = "initiate-call"
	EventUserLeft     = "user-left"
	EventLeftRoom     = "left-room"
	EventAgentJoined  = "ai-agent-joined"
	EventAIMessage    = "ai-message-sent"
	EventError        = "error"
)

// Room is a named set of participant connection ids plus an optional AI
// agent. The registry's lock governs all access; Room itself carries no
// synchronization.
type Room struct {
	ID        string
	Members   map[string]struct{}
	Agent     *AgentDescriptor
	CreatedAt time.Time
}

func NewRoom(id string) *Room {
	return &Room{
		ID:        id,
		Members:   make(map[string]struct{}),
		CreatedAt: time.Now(),
	}
}

// MemberIDs returns the member set as a slice. Order is unspecified.
func (r *Room) MemberIDs() []string {
	ids := make([]string, 0, len(r.Members))
	for id := range r.Members {
		ids = append(ids, id)
	}
	return ids
}

// AgentDescriptor is the result of provisioning an AI participant for a
// room. Field names follow the provisioner's wire format.
type AgentDescriptor struct {
	AgentID         string `json:"agent_id"`
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
	ReplicaID       string `json:"replica_id"`
	AgentName       string `json:"agent_name"`
	Status          string `json:"status"`
	Type            string `json:"type"`
}

// RoomStatus is a diagnostic snapshot of a room served over HTTP.
type RoomStatus struct {
	ID          string    `json:"id"`
	MemberCount int       `json:"memberCount"`
	Members     []string  `json:"members"`
	HasAgent    bool      `json:"hasAgent"`
	CreatedAt   time.Time `json:"createdAt"`
}

// JoinRoomRequest is the join-room payload.
type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
}

// RoomJoined is the reply to a successful join.
type RoomJoined struct {
	RoomID       string   `json:"roomId"`
	Participants []string `json:"participants"`
}

// UserJoined notifies pre-existing members about a new participant.
type UserJoined struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

// InitiateCall instructs the designated participant to create the offer.
type InitiateCall struct {
	ShouldCreateOffer bool `json:"shouldCreateOffer"`
}

// UserLeft notifies remaining members about a departed participant.
type UserLeft struct {
	UserID string `json:"userId"`
}

// LeftRoom acknowledges an explicit leave-room request.
type LeftRoom struct {
	Status string `json:"status"`
}

// Connected acknowledges a new transport connection.
type Connected struct {
	Status string `json:"status"`
}

// ErrorMessage is sent to the originator of an invalid request.
type ErrorMessage struct {
	Message string `json:"message"`
}

// RequestAgentPayload is the request-ai-agent payload.
type RequestAgentPayload struct {
	RoomID string `json:"roomId"`
}

// SendToAIPayload is the send-to-ai payload.
type SendToAIPayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// AgentJoined announces a provisioned AI agent to a room.
type AgentJoined struct {
	AgentData *AgentDescriptor `json:"agent_data"`
	RoomID    string           `json:"room_id"`
}

// AIMessage echoes a user's text to the agent plus the agent's
// acknowledgement back to the whole room.
type AIMessage struct {
	UserMessage string  `json:"user_message"`
	AIResponse  string  `json:"ai_response"`
	Sender      string  `json:"sender"`
	Timestamp   float64 `json:"timestamp"`
	Note        string  `json:"note"`
}

// PresenceEvent crosses instances over Redis pub/sub so every instance can
// tell its local members about remote joins and leaves.
type PresenceEvent struct {
	Type       string    `json:"type"` // "user-joined" or "user-left"
	RoomID     string    `json:"roomId"`
	UserID     string    `json:"userId"`
	InstanceID string    `json:"instanceId"`
	Timestamp  time.Time `json:"timestamp"`
}
