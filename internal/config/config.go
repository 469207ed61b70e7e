package config

import (
	"errors"
	"os"
	"strings"
)

// TavusConfig holds credentials and defaults for the AI participant
// provisioner.
type TavusConfig struct {
	APIKey              string
	BaseURL             string
	ReplicaID           string
	CallbackURL         string
	PersonaInstructions string
	Greeting            string
	ConversationStyle   string
}

// Config is loaded from environment variables with development defaults.
type Config struct {
	Port        string
	RedisAddr   string // empty disables cross-instance presence
	CORSOrigins []string
	JWTSecret   string // empty disables the room-token gate on /ws

	STUNServers  []string
	TurnURL      string
	TurnUsername string
	TurnPassword string

	Tavus TavusConfig

	AgentReapEnabled  bool
	AgentReapSchedule string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8085"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		CORSOrigins: splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		STUNServers: splitList(getEnvOrDefault("STUN_SERVERS",
			"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302")),
		TurnURL:      os.Getenv("TURN_URL"),
		TurnUsername: os.Getenv("TURN_USERNAME"),
		TurnPassword: os.Getenv("TURN_PASSWORD"),
		Tavus: TavusConfig{
			APIKey:      os.Getenv("TAVUS_API_KEY"),
			BaseURL:     getEnvOrDefault("TAVUS_BASE_URL", "https://tavusapi.com"),
			ReplicaID:   getEnvOrDefault("TAVUS_REPLICA_ID", "r1a4e22fa0d9"),
			CallbackURL: os.Getenv("TAVUS_CALLBACK_URL"),
			PersonaInstructions: getEnvOrDefault("TAVUS_PERSONA",
				"Respond to the user in a helpful and insightful way. Steer irrelevant questions kindly back to the subject."),
			Greeting:          os.Getenv("TAVUS_GREETING"),
			ConversationStyle: getEnvOrDefault("TAVUS_STYLE", "polite, insightful, focused, and helpful"),
		},
		AgentReapEnabled:  getEnvOrDefault("AGENT_REAP_ENABLED", "false") == "true",
		AgentReapSchedule: getEnvOrDefault("AGENT_REAP_SCHEDULE", "*/10 * * * *"),
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.AgentReapEnabled && cfg.Tavus.APIKey == "" {
		return errors.New("AGENT_REAP_ENABLED requires TAVUS_API_KEY")
	}
	if cfg.TurnURL != "" && (cfg.TurnUsername == "" || cfg.TurnPassword == "") {
		return errors.New("TURN_URL requires TURN_USERNAME and TURN_PASSWORD")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
