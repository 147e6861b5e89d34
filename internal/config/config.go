package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port              int
	MasterSecret      string
	AdminPasswordHash string
	GinMode           string
	LogFormat         string
	DataDir           string
	TLSCertFile       string
	TLSKeyFile        string
	TokenExpiry       time.Duration

	DefaultRoom          string
	ChallengeQuestions   int
	ChallengeThreshold   int
	ChallengeTimeBudget  time.Duration
	ChatCooldown         time.Duration
	DuplicateWindow      int
	MaxConsecutive       int
	VoteQuorum           int
	VoteDuration         time.Duration
	VoteTargetCooldown   time.Duration
	KickBanDuration      time.Duration
	MaxMessageLength     int
	MaxRoomNameLength    int
	MaxDisplayNameLength int
	MaxReasonLength      int
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:        8787,
		GinMode:     "release",
		LogFormat:   "text",
		TokenExpiry: 24 * time.Hour,

		DefaultRoom:          "general",
		ChallengeQuestions:   100,
		ChallengeThreshold:   95,
		ChallengeTimeBudget:  10 * time.Second,
		ChatCooldown:         2 * time.Second,
		DuplicateWindow:      3,
		MaxConsecutive:       2,
		VoteQuorum:           3,
		VoteDuration:         60 * time.Second,
		VoteTargetCooldown:   10 * time.Minute,
		KickBanDuration:      10 * time.Minute,
		MaxMessageLength:     4000,
		MaxRoomNameLength:    50,
		MaxDisplayNameLength: 64,
		MaxReasonLength:      200,
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	cfg.MasterSecret = env.Getenv("MASTER_SECRET")
	if cfg.MasterSecret == "" {
		return Config{}, fmt.Errorf("MASTER_SECRET is required")
	}

	cfg.AdminPasswordHash = env.Getenv("ADMIN_PASSWORD_HASH")
	cfg.DataDir = env.Getenv("DATA_DIR")

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}
	if raw := env.Getenv("LOG_FORMAT"); raw != "" {
		if raw != "text" && raw != "json" {
			return Config{}, fmt.Errorf("invalid LOG_FORMAT")
		}
		cfg.LogFormat = raw
	}
	if raw := env.Getenv("DEFAULT_ROOM"); raw != "" {
		cfg.DefaultRoom = raw
	}

	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")

	if raw := env.Getenv("TOKEN_EXPIRY_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid TOKEN_EXPIRY_SECONDS")
		}
		cfg.TokenExpiry = time.Duration(seconds) * time.Second
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CHALLENGE_QUESTIONS", &cfg.ChallengeQuestions},
		{"CHALLENGE_PASS_THRESHOLD", &cfg.ChallengeThreshold},
		{"DUPLICATE_WINDOW", &cfg.DuplicateWindow},
		{"MAX_CONSECUTIVE", &cfg.MaxConsecutive},
		{"VOTE_QUORUM", &cfg.VoteQuorum},
		{"MAX_MESSAGE_LENGTH", &cfg.MaxMessageLength},
		{"MAX_ROOM_NAME_LENGTH", &cfg.MaxRoomNameLength},
		{"MAX_DISPLAY_NAME_LENGTH", &cfg.MaxDisplayNameLength},
		{"MAX_REASON_LENGTH", &cfg.MaxReasonLength},
	}
	for _, e := range ints {
		if raw := env.Getenv(e.key); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				return Config{}, fmt.Errorf("invalid %s", e.key)
			}
			*e.dst = v
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CHALLENGE_TIME_BUDGET_MS", &cfg.ChallengeTimeBudget},
		{"CHAT_COOLDOWN_MS", &cfg.ChatCooldown},
		{"VOTE_DURATION_MS", &cfg.VoteDuration},
		{"VOTE_TARGET_COOLDOWN_MS", &cfg.VoteTargetCooldown},
		{"KICK_BAN_MS", &cfg.KickBanDuration},
	}
	for _, e := range durations {
		if raw := env.Getenv(e.key); raw != "" {
			ms, err := strconv.Atoi(raw)
			if err != nil || ms <= 0 {
				return Config{}, fmt.Errorf("invalid %s", e.key)
			}
			*e.dst = time.Duration(ms) * time.Millisecond
		}
	}

	if cfg.ChallengeThreshold > cfg.ChallengeQuestions {
		return Config{}, fmt.Errorf("CHALLENGE_PASS_THRESHOLD exceeds CHALLENGE_QUESTIONS")
	}

	return cfg, nil
}
