package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret    string
	JWTTTL       time.Duration
	WebhookToken string
	LogLevel     string

	// Location is where "today" and "3pm" are evaluated.
	Location *time.Location
	// ChannelPreference orders channels when a user has several verified bindings.
	ChannelPreference string

	Outbox    OutboxConfig
	Scheduler SchedulerConfig
	SMS       SMSConfig
	SMTP      SMTPConfig
	Flags     FlagsConfig
}

type OutboxConfig struct {
	BatchSize    int
	Concurrency  int
	PollInterval time.Duration
	StaleAfter   time.Duration
}

type SchedulerConfig struct {
	Interval    time.Duration
	Concurrency int
}

type SMSConfig struct {
	GatewayURL   string
	AccountSID   string
	AuthToken    string
	From         string
	WhatsAppFrom string
	Timeout      time.Duration
}

type SMTPConfig struct {
	Addr     string
	Username string
	Password string
	From     string
}

type FlagsConfig struct {
	Source      string // "db" or "redis"
	RedisAddr   string
	RedisPrefix string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:          mustGetenv("DATABASE_URL"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		JWTSecret:            getenv("JWT_SECRET", ""),
		WebhookToken:         getenv("WEBHOOK_TOKEN", ""),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		ChannelPreference:    getenv("CHANNEL_PREFERENCE", "sms,whatsapp,email,chat"),
		SMS: SMSConfig{
			GatewayURL:   getenv("SMS_GATEWAY_URL", "https://api.twilio.com/2010-04-01"),
			AccountSID:   getenv("SMS_ACCOUNT_SID", ""),
			AuthToken:    getenv("SMS_AUTH_TOKEN", ""),
			From:         getenv("SMS_FROM", ""),
			WhatsAppFrom: getenv("WHATSAPP_FROM", ""),
		},
		SMTP: SMTPConfig{
			Addr:     getenv("SMTP_ADDR", ""),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", ""),
		},
		Flags: FlagsConfig{
			Source:      strings.ToLower(getenv("FLAG_SOURCE", "db")),
			RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
			RedisPrefix: getenv("REDIS_FLAG_PREFIX", "flag:"),
		},
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	loc, err := time.LoadLocation(getenv("TIMEZONE", "UTC"))
	if err != nil {
		return cfg, fmt.Errorf("TIMEZONE: %w", err)
	}
	cfg.Location = loc

	var errs []error
	cfg.Outbox.BatchSize = getInt("OUTBOX_BATCH_SIZE", 50, &errs)
	cfg.Outbox.Concurrency = getInt("OUTBOX_CONCURRENCY", 4, &errs)
	cfg.Outbox.PollInterval = getDuration("OUTBOX_POLL_INTERVAL", 30*time.Second, &errs)
	cfg.Outbox.StaleAfter = getDuration("OUTBOX_STALE_AFTER", 15*time.Minute, &errs)
	cfg.Scheduler.Interval = getDuration("SCHEDULER_INTERVAL", time.Hour, &errs)
	cfg.Scheduler.Concurrency = getInt("SCHEDULER_CONCURRENCY", 4, &errs)
	cfg.SMS.Timeout = getDuration("GATEWAY_TIMEOUT", 10*time.Second, &errs)
	cfg.JWTTTL = getDuration("JWT_TTL", 7*24*time.Hour, &errs)
	if len(errs) > 0 {
		return cfg, errs[0]
	}

	if cfg.Flags.Source != "db" && cfg.Flags.Source != "redis" {
		return cfg, fmt.Errorf("FLAG_SOURCE: unknown source %q", cfg.Flags.Source)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}

func getInt(key string, def int, errs *[]error) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: want a positive integer, got %q", key, v))
		return def
	}
	return n
}

func getDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		*errs = append(*errs, fmt.Errorf("%s: want a duration, got %q", key, v))
		return def
	}
	return d
}
