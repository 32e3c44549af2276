package app

import (
	"fmt"
	"strings"
	"time"

	"frontdesk/cmd/internal/auth/session"
	"frontdesk/cmd/internal/notification"
	"frontdesk/cmd/internal/realtime"
)

// Credential backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	// AdminAddr is the local admin API listen address. Empty disables the API.
	AdminAddr string

	LogLevel  string
	LogFormat string
	// LogFile, when set, receives the logs instead of stderr.
	LogFile string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	CredentialBackend   string
	CredentialFile      string
	CredentialNamespace string

	// If true, FRONTDESK_CREDENTIAL_KEY MUST be set and every backend is sealed.
	RequireSealedCredentials bool

	RedisURL    string
	RedisPrefix string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	NotificationCap int
	NotifyDesktop   bool
	NotifyBell      bool

	Session  session.Config
	Realtime realtime.Config
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	sess, err := session.LoadConfigFromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("session config: %w", err)
	}
	rt, err := realtime.LoadConfigFromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("realtime config: %w", err)
	}

	cfg := Config{
		AdminAddr: EnvString("FRONTDESK_ADMIN_ADDR", "127.0.0.1:7070"),
		LogLevel:  EnvString("FRONTDESK_LOG_LEVEL", "info"),
		LogFormat: EnvString("FRONTDESK_LOG_FORMAT", "json"),
		LogFile:   EnvString("FRONTDESK_LOG_FILE", ""),

		ReadHeaderTimeout: EnvDuration("FRONTDESK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("FRONTDESK_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("FRONTDESK_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("FRONTDESK_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("FRONTDESK_HTTP_MAX_HEADER_BYTES", 1<<20),

		CORSAllowedOrigins:   EnvCSV("FRONTDESK_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("FRONTDESK_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("FRONTDESK_CORS_MAX_AGE", 600),

		CredentialBackend:   strings.ToLower(EnvString("FRONTDESK_CREDENTIAL_BACKEND", BackendFile)),
		CredentialFile:      EnvString("FRONTDESK_CREDENTIAL_FILE", ""),
		CredentialNamespace: EnvString("FRONTDESK_CREDENTIAL_NAMESPACE", "default"),

		RequireSealedCredentials: EnvBool("FRONTDESK_REQUIRE_SEALED_CREDENTIALS", false),

		RedisURL:    EnvString("FRONTDESK_REDIS_URL", ""),
		RedisPrefix: EnvString("FRONTDESK_REDIS_PREFIX", "frontdesk"),

		DatabaseURL: EnvString("FRONTDESK_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("FRONTDESK_DB_MAX_CONNS", 4),
		DBMinConns:  EnvInt32("FRONTDESK_DB_MIN_CONNS", 0),

		NotificationCap: EnvInt("FRONTDESK_NOTIFICATION_CAP", notification.DefaultCapacity),
		NotifyDesktop:   EnvBool("FRONTDESK_NOTIFY_DESKTOP", false),
		NotifyBell:      EnvBool("FRONTDESK_NOTIFY_BELL", false),

		Session:  sess,
		Realtime: rt,
	}

	switch cfg.CredentialBackend {
	case BackendFile, BackendMemory, BackendRedis, BackendPostgres:
	default:
		return Config{}, fmt.Errorf("%w: unknown credential backend %q", ErrConfig, cfg.CredentialBackend)
	}
	return cfg, nil
}
