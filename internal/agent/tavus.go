package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"signaling/internal/config"
	"signaling/internal/models"
)

// Provisioner creates and manages synthetic AI participants for rooms. The
// coordinator depends on this interface; tests substitute a fake.
type Provisioner interface {
	CreateConversation(ctx context.Context, roomID string) (*models.AgentDescriptor, error)
	SendMessage(ctx context.Context, conversationID, message string) (bool, error)
	EndConversation(ctx context.Context, conversationID string) error
	// CleanupConversations ends conversations still counted against the
	// account's concurrency limit, except the ids listed in keep.
	CleanupConversations(ctx context.Context, keep []string) (int, error)
}

// ErrNotConfigured is returned when no provisioner API key is present.
var ErrNotConfigured = errors.New("tavus API key not configured")

// TavusClient talks to the Tavus conversation API.
type TavusClient struct {
	cfg    config.TavusConfig
	client *http.Client
	log    *zap.Logger
}

func NewTavusClient(cfg config.TavusConfig, log *zap.Logger) *TavusClient {
	return &TavusClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

type replicaResponse struct {
	ReplicaID string `json:"replica_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}

type conversationResponse struct {
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
	Status          string `json:"status"`
}

type conversationListResponse struct {
	Data []conversationResponse `json:"data"`
}

// CreateConversation provisions one conversational replica session and
// returns its descriptor. Any failure leaves no partial state behind.
func (tc *TavusClient) CreateConversation(ctx context.Context, roomID string) (*models.AgentDescriptor, error) {
	if tc.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	replica, err := tc.getReplica(ctx)
	if err != nil {
		return nil, fmt.Errorf("replica %s is not ready: %w", tc.cfg.ReplicaID, err)
	}

	body := map[string]string{
		"replica_id":        tc.cfg.ReplicaID,
		"conversation_name": "Signaling Video Call",
	}
	if ctxStr := tc.conversationalContext(); ctxStr != "" {
		body["conversational_context"] = ctxStr
	}
	if tc.cfg.Greeting != "" {
		body["custom_greeting"] = tc.cfg.Greeting
	}
	if tc.cfg.CallbackURL != "" {
		body["callback_url"] = tc.cfg.CallbackURL + "/api/tavus/callback"
	}

	var conv conversationResponse
	if err := tc.do(ctx, http.MethodPost, "/v2/conversations", body, &conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	if conv.ConversationID == "" {
		return nil, errors.New("provisioner returned no conversation id")
	}

	url := conv.ConversationURL
	if url == "" {
		url = tc.getConversationURL(ctx, conv.ConversationID)
	}

	name := replica.Name
	if name == "" {
		name = "Your AI Assistant"
	}

	return &models.AgentDescriptor{
		AgentID:         "tavus_agent_" + roomID,
		ConversationID:  conv.ConversationID,
		ConversationURL: url,
		ReplicaID:       tc.cfg.ReplicaID,
		AgentName:       name,
		Status:          "active",
		Type:            "tavus_conversation",
	}, nil
}

// SendMessage acknowledges a text message for a conversation. Tavus does
// not support direct message injection; the real exchange happens in the
// conversation's own media channel, so this only confirms receipt.
func (tc *TavusClient) SendMessage(ctx context.Context, conversationID, message string) (bool, error) {
	if tc.cfg.APIKey == "" {
		return false, ErrNotConfigured
	}
	tc.log.Info("message noted for conversation",
		zap.String("conversationId", conversationID),
		zap.Int("length", len(message)))
	return true, nil
}

// EndConversation terminates an active conversation.
func (tc *TavusClient) EndConversation(ctx context.Context, conversationID string) error {
	if tc.cfg.APIKey == "" {
		return ErrNotConfigured
	}
	return tc.do(ctx, http.MethodDelete, "/v2/conversations/"+conversationID, nil, nil)
}

// CleanupConversations ends conversations still counted against the
// account's concurrency limit, sparing the ids in keep, and reports how
// many were ended.
func (tc *TavusClient) CleanupConversations(ctx context.Context, keep []string) (int, error) {
	if tc.cfg.APIKey == "" {
		return 0, ErrNotConfigured
	}

	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}

	var list conversationListResponse
	if err := tc.do(ctx, http.MethodGet, "/v2/conversations", nil, &list); err != nil {
		return 0, fmt.Errorf("failed to list conversations: %w", err)
	}

	ended := 0
	for _, conv := range list.Data {
		switch conv.Status {
		case "active", "processing", "connecting", "in_progress":
			if conv.ConversationID == "" {
				continue
			}
			if _, ok := kept[conv.ConversationID]; ok {
				continue
			}
			if err := tc.EndConversation(ctx, conv.ConversationID); err != nil {
				tc.log.Warn("failed to end conversation",
					zap.String("conversationId", conv.ConversationID), zap.Error(err))
				continue
			}
			ended++
		}
	}
	return ended, nil
}

func (tc *TavusClient) getReplica(ctx context.Context) (*replicaResponse, error) {
	var replica replicaResponse
	if err := tc.do(ctx, http.MethodGet, "/v2/replicas/"+tc.cfg.ReplicaID, nil, &replica); err != nil {
		return nil, err
	}
	return &replica, nil
}

func (tc *TavusClient) getConversationURL(ctx context.Context, conversationID string) string {
	var conv conversationResponse
	if err := tc.do(ctx, http.MethodGet, "/v2/conversations/"+conversationID, nil, &conv); err == nil && conv.ConversationURL != "" {
		return conv.ConversationURL
	}
	// Conversations are hosted on Daily rooms; this URL shape holds when
	// the details call is unavailable.
	return "https://tavus.daily.co/" + conversationID
}

func (tc *TavusClient) conversationalContext() string {
	var parts []string
	if tc.cfg.PersonaInstructions != "" {
		parts = append(parts, "PERSONA: "+tc.cfg.PersonaInstructions)
	}
	if tc.cfg.ConversationStyle != "" && tc.cfg.ConversationStyle != "friendly" {
		parts = append(parts, "STYLE: Be "+tc.cfg.ConversationStyle+" in your responses.")
	}
	if tc.cfg.Greeting != "" {
		parts = append(parts, "CONVERSATION_GUIDANCE: After your initial greeting, continue the conversation naturally based on the user's responses.")
	}
	return strings.Join(parts, " | ")
}

func (tc *TavusClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, tc.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", tc.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tavus API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
