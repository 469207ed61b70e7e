package routers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"signaling/internal/config"
	"signaling/internal/handlers"
	"signaling/internal/managers"
	"signaling/internal/models"
	"signaling/internal/registry"
	"signaling/internal/utils"
)

type stubProvisioner struct{}

func (stubProvisioner) CreateConversation(_ context.Context, roomID string) (*models.AgentDescriptor, error) {
	return &models.AgentDescriptor{
		AgentID:        "tavus_agent_" + roomID,
		ConversationID: "conv-" + roomID,
		Status:         "active",
	}, nil
}
func (stubProvisioner) SendMessage(context.Context, string, string) (bool, error) { return true, nil }
func (stubProvisioner) EndConversation(context.Context, string) error             { return nil }
func (stubProvisioner) CleanupConversations(context.Context, []string) (int, error) {
	return 0, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Port:        "0",
		CORSOrigins: []string{"*"},
		STUNServers: []string{"stun:stun.l.google.com:19302"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, *registry.Registry) {
	t.Helper()
	reg := registry.NewRegistry()
	co := managers.NewCoordinator(reg, stubProvisioner{}, nil, zap.NewNop())
	t.Cleanup(co.Shutdown)

	h := handlers.NewHandlers(cfg, co, reg, zap.NewNop())
	srv := httptest.NewServer(NewRouter(cfg, h))
	t.Cleanup(srv.Close)
	return srv, reg
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env models.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("failed to read envelope: %v", err)
	}
	return env
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, eventType string, v any) {
	t.Helper()
	if err := conn.WriteJSON(models.NewEnvelope(eventType, v)); err != nil {
		t.Fatalf("failed to write %s: %v", eventType, err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestWebRTCConfigEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/api/v1/webrtc/config")
	if err != nil {
		t.Fatalf("config request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode config: %v", err)
	}
	if len(body.ICEServers) == 0 {
		t.Error("expected at least one ICE server")
	}
}

func TestRoomStatusNotFound(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/api/v1/room/missing")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSignalingFlowOverWebSocket(t *testing.T) {
	srv, reg := newTestServer(t, testConfig())

	x := dialWS(t, srv, "")
	if env := readEnvelope(t, x); env.Type != models.EventConnected {
		t.Fatalf("expected connected, got %s", env.Type)
	}
	sendEnvelope(t, x, models.EventJoinRoom, models.JoinRoomRequest{RoomID: "r1"})

	var xJoined models.RoomJoined
	env := readEnvelope(t, x)
	if env.Type != models.EventRoomJoined {
		t.Fatalf("expected room-joined, got %s", env.Type)
	}
	if err := json.Unmarshal(env.Data, &xJoined); err != nil {
		t.Fatalf("failed to decode room-joined: %v", err)
	}
	if len(xJoined.Participants) != 0 {
		t.Errorf("first joiner should see no participants, got %v", xJoined.Participants)
	}

	y := dialWS(t, srv, "")
	if env := readEnvelope(t, y); env.Type != models.EventConnected {
		t.Fatalf("expected connected, got %s", env.Type)
	}
	sendEnvelope(t, y, models.EventJoinRoom, models.JoinRoomRequest{RoomID: "r1"})

	// X learns Y's connection id from the join notification.
	env = readEnvelope(t, x)
	if env.Type != models.EventUserJoined {
		t.Fatalf("expected user-joined, got %s", env.Type)
	}
	var joined models.UserJoined
	if err := json.Unmarshal(env.Data, &joined); err != nil {
		t.Fatalf("failed to decode user-joined: %v", err)
	}

	if env := readEnvelope(t, y); env.Type != models.EventRoomJoined {
		t.Fatalf("expected room-joined, got %s", env.Type)
	}
	if env := readEnvelope(t, y); env.Type != models.EventInitiateCall {
		t.Fatalf("expected initiate-call, got %s", env.Type)
	}

	// Y's offer reaches X tagged with Y's id.
	sendEnvelope(t, y, models.EventOffer, map[string]any{"offer": map[string]string{"sdp": "v=0"}})
	env = readEnvelope(t, x)
	if env.Type != models.EventOffer {
		t.Fatalf("expected offer, got %s", env.Type)
	}
	var offer struct {
		From string `json:"from"`
	}
	if err := json.Unmarshal(env.Data, &offer); err != nil {
		t.Fatalf("failed to decode offer: %v", err)
	}
	if offer.From != joined.UserID {
		t.Errorf("offer from %s, expected %s", offer.From, joined.UserID)
	}

	// Disconnecting Y empties nothing (X remains) but notifies X.
	y.Close()
	env = readEnvelope(t, x)
	if env.Type != models.EventUserLeft {
		t.Fatalf("expected user-left, got %s", env.Type)
	}

	status, ok := reg.Snapshot("r1")
	if !ok || status.MemberCount != 1 {
		t.Errorf("room should have one remaining member, got %+v ok=%v", status, ok)
	}
}

func TestRelayWithoutJoinGetsError(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	x := dialWS(t, srv, "")
	readEnvelope(t, x) // connected

	sendEnvelope(t, x, models.EventOffer, map[string]string{"offer": "sdp"})
	env := readEnvelope(t, x)
	if env.Type != models.EventError {
		t.Fatalf("expected error, got %s", env.Type)
	}
}

func TestWebSocketTokenGate(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = "gate-secret"
	srv, _ := newTestServer(t, cfg)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("dial without token should fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake rejection, got %v", resp)
	}

	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &utils.RoomTokenClaims{
		RoomID: "r1",
		UserID: "u1",
	}).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	conn := dialWS(t, srv, "?token="+tokenStr)
	if env := readEnvelope(t, conn); env.Type != models.EventConnected {
		t.Fatalf("expected connected after valid token, got %s", env.Type)
	}
}
