package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

const (
	// GeminiKeyPlaceholder is the value shipped in example env files.
	GeminiKeyPlaceholder = "PASTE_YOUR_API_KEY_HERE"

	DocStoreFirestore = "firestore"
	DocStoreRedis     = "redis"
	DocStoreSQLite    = "sqlite"
	DocStoreNone      = "none"
)

// FirebaseConfig is the client configuration of the Firebase project.
type FirebaseConfig struct {
	APIKey            string `env:"FIREBASE_API_KEY" json:"apiKey"`
	AuthDomain        string `env:"FIREBASE_AUTH_DOMAIN" json:"authDomain"`
	ProjectID         string `env:"FIREBASE_PROJECT_ID" json:"projectId"`
	StorageBucket     string `env:"FIREBASE_STORAGE_BUCKET" json:"storageBucket"`
	MessagingSenderID string `env:"FIREBASE_MESSAGING_SENDER_ID" json:"messagingSenderId"`
	AppID             string `env:"FIREBASE_APP_ID" json:"appId"`

	// Server-side only.
	CredentialsFile       string `env:"FIREBASE_CREDENTIALS_FILE" json:"-"`
	AuthEmulatorHost      string `env:"FIREBASE_AUTH_EMULATOR_HOST" json:"-"`
	FirestoreEmulatorHost string `env:"FIRESTORE_EMULATOR_HOST" json:"-"`
}

// DemoFirebaseConfig is used when no Firebase API key is configured.
// Requests against it fail, which puts identity and storage into their
// local fallbacks.
func DemoFirebaseConfig() FirebaseConfig {
	return FirebaseConfig{
		APIKey:            "demo-api-key",
		AuthDomain:        "demo-project.firebaseapp.com",
		ProjectID:         "demo-project",
		StorageBucket:     "demo-project.appspot.com",
		MessagingSenderID: "123456789",
		AppID:             "demo-app-id",
	}
}

// IsDemo reports whether the configuration is the demo fallback.
func (f FirebaseConfig) IsDemo() bool {
	return f.APIKey == "" || f.APIKey == "demo-api-key"
}

// Config holds the configuration for the application.
type Config struct {
	Host      string `env:"HOST" envDefault:"0.0.0.0"`
	Port      int    `env:"PORT" envDefault:"4173"`
	StaticDir string `env:"STATIC_DIR" envDefault:"dist"`

	// Gemini
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	GeminiModel     string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash-exp"`
	GeminiEndpoint  string `env:"GEMINI_ENDPOINT" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiTransport string `env:"GEMINI_TRANSPORT" envDefault:"rest"`

	Firebase FirebaseConfig

	AppID      string `env:"APP_ID" envDefault:"smartchef-demo"`
	AppName    string `env:"APP_NAME" envDefault:"SmartChef"`
	AppVersion string `env:"APP_VERSION" envDefault:"1.0.0"`
	DevMode    bool   `env:"DEV_MODE"`
	DebugMode  bool   `env:"DEBUG_MODE"`

	InitialAuthToken string `env:"INITIAL_AUTH_TOKEN"`

	DocStoreBackend string `env:"DOCSTORE_BACKEND" envDefault:"firestore"`
	RedisURL        string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	DatabasePath    string `env:"DATABASE_PATH" envDefault:"data/smartchef.db"`

	SessionSecret  string        `env:"SESSION_SECRET"`
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Telegram Config
	TelegramBotToken       string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramWebhookURL     string  `env:"TELEGRAM_WEBHOOK_URL"`
	TelegramAllowedUserIDs []int64 `env:"TELEGRAM_ALLOWED_USER_IDS" envSeparator:","`
	AdminTelegramID        int64   `env:"ADMIN_TELEGRAM_ID"`
}

// NewFromEnv creates a new Config object from environment variables.
// Missing values fall back to defaults; only malformed values are errors.
func NewFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.Firebase.APIKey == "" {
		demo := DemoFirebaseConfig()
		demo.CredentialsFile = cfg.Firebase.CredentialsFile
		demo.AuthEmulatorHost = cfg.Firebase.AuthEmulatorHost
		demo.FirestoreEmulatorHost = cfg.Firebase.FirestoreEmulatorHost
		cfg.Firebase = demo
	}
	if cfg.DebugMode {
		cfg.LogLevel = "debug"
	}
	cfg.DocStoreBackend = strings.ToLower(strings.TrimSpace(cfg.DocStoreBackend))

	return cfg, nil
}

// HasGeminiKey reports whether a usable Gemini key is configured.
func (c *Config) HasGeminiKey() bool {
	return c.GeminiAPIKey != "" && c.GeminiAPIKey != GeminiKeyPlaceholder
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate returns human-readable warnings for incomplete configuration.
// It never fails: every missing value has a working fallback.
func (c *Config) Validate() []string {
	var warnings []string

	if !c.HasGeminiKey() {
		warnings = append(warnings, "GEMINI_API_KEY is not set, demo recipes will be served")
	}

	if !c.DevMode {
		var missing []string
		if c.Firebase.IsDemo() {
			missing = append(missing, "FIREBASE_API_KEY")
		}
		if c.Firebase.ProjectID == "" || c.Firebase.ProjectID == "demo-project" {
			missing = append(missing, "FIREBASE_PROJECT_ID")
		}
		if len(missing) > 0 {
			warnings = append(warnings, fmt.Sprintf("Firebase configuration incomplete (%s), meal plans stay local to this server", strings.Join(missing, ", ")))
		}
	}

	switch c.DocStoreBackend {
	case DocStoreFirestore, DocStoreRedis, DocStoreSQLite, DocStoreNone:
	default:
		warnings = append(warnings, fmt.Sprintf("unknown DOCSTORE_BACKEND %q, meal plans stay local to this server", c.DocStoreBackend))
	}

	if c.SessionSecret == "" {
		warnings = append(warnings, "SESSION_SECRET is not set, sessions will not survive a restart")
	}

	return warnings
}
