package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rajeshbanoth/randomchat/internal/match"
)

// Config is the full server configuration, filled from the
// environment with sane defaults for local development.
type Config struct {
	Addr           string
	AllowedOrigins []string

	JWTSecret string
	TokenTTL  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StatsChannel  string

	LogLevel  string
	LogFormat string

	InactiveThreshold time.Duration
	CleanupInterval   time.Duration
	RematchInterval   time.Duration
	MaxWaitTime       time.Duration
	TypingTTL         time.Duration
	CallRequestTTL    time.Duration
	StatsInterval     time.Duration
	AutoStartVideo    bool

	StunServers    []string
	TurnURL        string
	TurnUsername   string
	TurnCredential string

	ShutdownTimeout time.Duration

	Scoring match.ScoringConfig
}

// Load reads configuration from the environment.
func Load() Config {
	return Config{
		Addr:           envOr("ADDR", ":8080"),
		AllowedOrigins: envList("ALLOWED_ORIGINS", nil),

		JWTSecret: envOr("JWT_SECRET", "dev-only-secret-change-me"),
		TokenTTL:  envDuration("TOKEN_TTL", 72*time.Hour),

		RedisAddr:     envOr("REDIS_ADDR", ""),
		RedisPassword: envOr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),
		StatsChannel:  envOr("STATS_CHANNEL", "randomchat:stats"),

		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "text"),

		InactiveThreshold: envDuration("INACTIVE_THRESHOLD", 5*time.Minute),
		CleanupInterval:   envDuration("CLEANUP_INTERVAL", 60*time.Second),
		RematchInterval:   envDuration("REMATCH_INTERVAL", 5*time.Second),
		MaxWaitTime:       envDuration("MAX_WAIT_TIME", 45*time.Second),
		TypingTTL:         envDuration("TYPING_TTL", 3*time.Second),
		CallRequestTTL:    envDuration("CALL_REQUEST_TTL", 30*time.Second),
		StatsInterval:     envDuration("STATS_INTERVAL", 10*time.Second),
		AutoStartVideo:    envBool("AUTO_START_VIDEO", true),

		StunServers: envList("STUN_SERVERS", []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		}),
		TurnURL:        envOr("TURN_URL", ""),
		TurnUsername:   envOr("TURN_USERNAME", ""),
		TurnCredential: envOr("TURN_CREDENTIAL", ""),

		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		Scoring: loadScoring(),
	}
}

// loadScoring overlays environment overrides on the default weights.
func loadScoring() match.ScoringConfig {
	sc := match.DefaultScoringConfig()
	sc.InterestWeight = envFloat("SCORE_INTEREST_WEIGHT", sc.InterestWeight)
	sc.DemographicWeight = envFloat("SCORE_DEMOGRAPHIC_WEIGHT", sc.DemographicWeight)
	sc.ModeWeight = envFloat("SCORE_MODE_WEIGHT", sc.ModeWeight)
	sc.BehaviorWeight = envFloat("SCORE_BEHAVIOR_WEIGHT", sc.BehaviorWeight)
	sc.OptimalAgeDiff = envInt("SCORE_OPTIMAL_AGE_DIFF", sc.OptimalAgeDiff)
	sc.MaxAgeDiff = envInt("SCORE_MAX_AGE_DIFF", sc.MaxAgeDiff)
	sc.SameGenderBonus = envFloat("SCORE_SAME_GENDER_BONUS", sc.SameGenderBonus)
	sc.PremiumBonus = envFloat("SCORE_PREMIUM_BONUS", sc.PremiumBonus)
	sc.VideoModeBonus = envFloat("SCORE_VIDEO_MODE_BONUS", sc.VideoModeBonus)
	sc.VideoTextPenalty = envFloat("SCORE_VIDEO_TEXT_PENALTY", sc.VideoTextPenalty)
	sc.AgeRangeBonus = envFloat("SCORE_AGE_RANGE_BONUS", sc.AgeRangeBonus)
	sc.VideoThreshold = envFloat("SCORE_VIDEO_THRESHOLD", sc.VideoThreshold)
	sc.TextThreshold = envFloat("SCORE_TEXT_THRESHOLD", sc.TextThreshold)
	return sc
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
