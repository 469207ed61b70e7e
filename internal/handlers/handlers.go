package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"signaling/internal/config"
	"signaling/internal/managers"
	"signaling/internal/models"
	"signaling/internal/registry"
	"signaling/internal/session"
	"signaling/internal/utils"
)

type Handlers struct {
	log          *zap.Logger
	coordinator  *managers.Coordinator
	registry     *registry.Registry
	upgrader     websocket.Upgrader
	webrtcConfig webrtc.Configuration
	jwtSecret    []byte
}

func NewHandlers(cfg *config.Config, coordinator *managers.Coordinator, reg *registry.Registry, log *zap.Logger) *Handlers {
	return &Handlers{
		log:          log,
		coordinator:  coordinator,
		registry:     reg,
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		webrtcConfig: utils.BuildWebRTCConfig(cfg),
		jwtSecret:    []byte(cfg.JWTSecret),
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type webRTCConfigResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

// GetWebRTCConfig serves the ICE servers clients need for the handshake.
func (h *Handlers) GetWebRTCConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, webRTCConfigResponse{ICEServers: h.webrtcConfig.ICEServers})
}

// GetRoomStatus serves a diagnostic snapshot of one room.
func (h *Handlers) GetRoomStatus(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		http.Error(w, "roomId is required", http.StatusBadRequest)
		return
	}
	status, ok := h.registry.Snapshot(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, status)
}

// SignalingWS is the signaling WebSocket endpoint. Each connection gets an
// opaque id at upgrade time; the coordinator never authenticates it beyond
// the optional room-token gate here.
func (h *Handlers) SignalingWS(w http.ResponseWriter, r *http.Request) {
	if len(h.jwtSecret) > 0 {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "token is required", http.StatusUnauthorized)
			return
		}
		if _, err := utils.ValidateRoomToken(h.jwtSecret, token); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := uuid.New().String()
	client := session.NewClient(connID, conn)
	h.coordinator.Connect(client)
	defer h.coordinator.Disconnect(connID)

	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		h.dispatch(r.Context(), connID, env)
	}
}

// dispatch routes one inbound event. Any panic below is converted to an
// error event so one room's failure never takes the process down.
func (h *Handlers) dispatch(ctx context.Context, connID string, env models.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("panic handling event",
				zap.String("event", env.Type),
				zap.String("connectionId", connID),
				zap.Any("panic", rec))
			h.coordinator.SendError(connID, "internal server error")
		}
	}()

	switch env.Type {
	case models.EventJoinRoom:
		var req models.JoinRoomRequest
		if !h.decode(connID, env.Data, &req) {
			return
		}
		h.coordinator.JoinRoom(connID, req.RoomID)

	case models.EventOffer, models.EventAnswer, models.EventICECandidate:
		h.coordinator.Relay(connID, env.Type, env.Data)

	case models.EventLeaveRoom:
		h.coordinator.LeaveRoom(connID)

	case models.EventRequestAgent:
		var req models.RequestAgentPayload
		if !h.decode(connID, env.Data, &req) {
			return
		}
		h.coordinator.RequestAgent(ctx, connID, req.RoomID)

	case models.EventSendToAI:
		var req models.SendToAIPayload
		if !h.decode(connID, env.Data, &req) {
			return
		}
		h.coordinator.SendToAgent(ctx, connID, req.RoomID, req.Message)

	default:
		h.coordinator.SendError(connID, "unknown event type: "+env.Type)
	}
}

func (h *Handlers) decode(connID string, data json.RawMessage, out any) bool {
	if len(data) == 0 {
		return true
	}
	if err := json.Unmarshal(data, out); err != nil {
		h.coordinator.SendError(connID, "invalid payload")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
