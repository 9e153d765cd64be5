package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Profile names select a group of defaults, similar to per-environment settings.
const (
	ProfileDevelopment = "development"
	ProfileTesting     = "testing"
	ProfileProduction  = "production"
	ProfileHosted      = "hosted"
)

// AppConfig holds environment driven configuration values.
// It is built once by Load and passed by pointer to every component; there is no package-level copy.
type AppConfig struct {
	Profile   string
	AppPort   string
	SecretKey string
	GinMode   string

	DatabaseURI        string
	DBSlowQuery        time.Duration
	SSLDisable         bool
	TrustProxy         bool
	AllowedOrigins     []string
	RateLimitPerMinute int
	PasswordCost       int

	// Mail
	MailServer        string
	MailPort          int
	MailUseTLS        bool
	MailUsername      string
	MailPassword      string
	MailSender        string
	MailSubjectPrefix string
	AdminEmail        string

	// Pagination
	PostsPerPage     int
	CommentsPerPage  int
	FollowersPerPage int
	PaginationStrict bool

	// Token lifetimes
	TokenTTL      time.Duration
	APITokenTTL   time.Duration
	SessionTTL    time.Duration
	RememberMeTTL time.Duration

	// Redis cache; disabled when RedisHost is empty
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	CacheTTL      time.Duration

	// Logging
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// IsProduction reports whether the profile runs behind real users.
func (c *AppConfig) IsProduction() bool {
	return c.Profile == ProfileProduction || c.Profile == ProfileHosted
}

// Load builds the configuration for the given profile. An empty profile falls back to APP_CONFIG
// and then to development.
// Precedence: config/config.json -> profile defaults -> environment variable overrides.
func Load(profile string) (*AppConfig, error) {
	// .env is optional; containers pass variables directly
	_ = godotenv.Load()

	if profile == "" {
		profile = getEnv("APP_CONFIG", ProfileDevelopment)
	}
	profile = strings.ToLower(strings.TrimSpace(profile))
	switch profile {
	case ProfileDevelopment, ProfileTesting, ProfileProduction, ProfileHosted:
	default:
		return nil, fmt.Errorf("unknown config profile %q", profile)
	}

	cfg := &AppConfig{Profile: profile}
	if err := loadJSONConfig(filepath.Join("config", "config.json"), cfg); err != nil {
		return nil, fmt.Errorf("read config.json: %w", err)
	}
	applyDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if cfg.SecretKey == "" {
		if cfg.IsProduction() {
			return nil, errors.New("SECRET_KEY must be set in environment variables")
		}
		cfg.SecretKey = "hard to guess string"
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads grouped sections from path into out. A missing file is not an error.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var raw struct {
		App struct {
			AppPort            string   `json:"AppPort"`
			SecretKey          string   `json:"SecretKey"`
			AdminEmail         string   `json:"AdminEmail"`
			AllowedOrigins     []string `json:"AllowedOrigins"`
			RateLimitPerMinute int      `json:"RateLimitPerMinute"`
			SSLDisable         *bool    `json:"SSLDisable"`
			PostsPerPage       int      `json:"PostsPerPage"`
			CommentsPerPage    int      `json:"CommentsPerPage"`
			FollowersPerPage   int      `json:"FollowersPerPage"`
			PaginationStrict   bool     `json:"PaginationStrict"`
		} `json:"app"`
		Database struct {
			DatabaseURI string `json:"DatabaseURI"`
			SlowQueryMS int    `json:"SlowQueryMS"`
		} `json:"database"`
		Mail struct {
			Server        string `json:"Server"`
			Port          int    `json:"Port"`
			UseTLS        bool   `json:"UseTLS"`
			Username      string `json:"Username"`
			Password      string `json:"Password"`
			Sender        string `json:"Sender"`
			SubjectPrefix string `json:"SubjectPrefix"`
		} `json:"mail"`
		Redis struct {
			Host     string `json:"Host"`
			Port     int    `json:"Port"`
			DB       int    `json:"DB"`
			Password string `json:"Password"`
		} `json:"redis"`
		Log struct {
			Level      string `json:"Level"`
			Path       string `json:"Path"`
			GinMode    string `json:"GinMode"`
			MaxSizeMB  int    `json:"MaxSizeMB"`
			MaxBackups int    `json:"MaxBackups"`
			MaxAgeDays int    `json:"MaxAgeDays"`
			Compress   bool   `json:"Compress"`
		} `json:"log"`
	}
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	out.AppPort = raw.App.AppPort
	out.SecretKey = raw.App.SecretKey
	out.AdminEmail = raw.App.AdminEmail
	out.AllowedOrigins = raw.App.AllowedOrigins
	out.RateLimitPerMinute = raw.App.RateLimitPerMinute
	if raw.App.SSLDisable != nil {
		out.SSLDisable = *raw.App.SSLDisable
	} else {
		out.SSLDisable = true
	}
	out.PostsPerPage = raw.App.PostsPerPage
	out.CommentsPerPage = raw.App.CommentsPerPage
	out.FollowersPerPage = raw.App.FollowersPerPage
	out.PaginationStrict = raw.App.PaginationStrict

	out.DatabaseURI = raw.Database.DatabaseURI
	out.DBSlowQuery = time.Duration(raw.Database.SlowQueryMS) * time.Millisecond

	out.MailServer = raw.Mail.Server
	out.MailPort = raw.Mail.Port
	out.MailUseTLS = raw.Mail.UseTLS
	out.MailUsername = raw.Mail.Username
	out.MailPassword = raw.Mail.Password
	out.MailSender = raw.Mail.Sender
	out.MailSubjectPrefix = raw.Mail.SubjectPrefix

	out.RedisHost = raw.Redis.Host
	out.RedisPort = raw.Redis.Port
	out.RedisDB = raw.Redis.DB
	out.RedisPassword = raw.Redis.Password

	out.LogLevel = raw.Log.Level
	out.LogPath = raw.Log.Path
	out.GinMode = raw.Log.GinMode
	out.LogMaxSizeMB = raw.Log.MaxSizeMB
	out.LogMaxBackups = raw.Log.MaxBackups
	out.LogMaxAgeDays = raw.Log.MaxAgeDays
	out.LogCompress = raw.Log.Compress
	return nil
}

// applyDefaults sets sane defaults for zero-value fields, then the profile specific ones.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "5000"
	}
	if c.MailServer == "" {
		c.MailServer = "smtp.gmail.com"
	}
	if c.MailPort == 0 {
		c.MailPort = 465
		c.MailUseTLS = true
	}
	if c.MailSender == "" {
		c.MailSender = "Bloghub Admin <bloghub@example.com>"
	}
	if c.MailSubjectPrefix == "" {
		c.MailSubjectPrefix = "[Bloghub]"
	}
	if c.PostsPerPage == 0 {
		c.PostsPerPage = 10
	}
	if c.CommentsPerPage == 0 {
		c.CommentsPerPage = 10
	}
	if c.FollowersPerPage == 0 {
		c.FollowersPerPage = 10
	}
	if c.DBSlowQuery == 0 {
		c.DBSlowQuery = 500 * time.Millisecond
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = time.Hour
	}
	if c.APITokenTTL == 0 {
		c.APITokenTTL = time.Hour
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.RememberMeTTL == 0 {
		c.RememberMeTTL = 30 * 24 * time.Hour
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if c.PasswordCost == 0 {
		c.PasswordCost = 10
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}

	switch c.Profile {
	case ProfileDevelopment:
		if c.DatabaseURI == "" {
			c.DatabaseURI = "sqlite://data-dev.sqlite"
		}
		if c.GinMode == "" {
			c.GinMode = "debug"
		}
		c.SSLDisable = true
	case ProfileTesting:
		if c.DatabaseURI == "" {
			c.DatabaseURI = "sqlite://file::memory:?cache=shared"
		}
		c.GinMode = "test"
		c.SSLDisable = true
		c.PasswordCost = 4
	case ProfileProduction:
		if c.GinMode == "" {
			c.GinMode = "release"
		}
		c.SSLDisable = true
	case ProfileHosted:
		if c.GinMode == "" {
			c.GinMode = "release"
		}
		if c.LogLevel == "info" {
			c.LogLevel = "warn"
		}
		// hosted sits behind a TLS terminating proxy, redirect unless told otherwise
		c.SSLDisable = false
		c.TrustProxy = true
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) error {
	var errs []error
	intVar := func(key string, dst *int) {
		if v := getEnv(key, ""); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid integer value %s=%s: %w", key, v, err))
				return
			}
			*dst = i
		}
	}
	boolVar := func(key string, dst *bool) {
		if v := getEnv(key, ""); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid boolean value %s=%s: %w", key, v, err))
				return
			}
			*dst = b
		}
	}
	durVar := func(key string, dst *time.Duration) {
		if v := getEnv(key, ""); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid duration value %s=%s: %w", key, v, err))
				return
			}
			*dst = d
		}
	}

	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("SECRET_KEY", ""); v != "" {
		c.SecretKey = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("DATABASE_URL", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("MAIL_SERVER", ""); v != "" {
		c.MailServer = v
	}
	intVar("MAIL_PORT", &c.MailPort)
	boolVar("MAIL_USE_TLS", &c.MailUseTLS)
	if v := getEnv("MAIL_USERNAME", ""); v != "" {
		c.MailUsername = v
	}
	if v := getEnv("MAIL_PASSWORD", ""); v != "" {
		c.MailPassword = v
	}
	if v := getEnv("MAIL_SENDER", ""); v != "" {
		c.MailSender = v
	}
	if v := getEnv("MAIL_SUBJECT_PREFIX", ""); v != "" {
		c.MailSubjectPrefix = v
	}
	if v := getEnv("BLOG_ADMIN", ""); v != "" {
		c.AdminEmail = strings.ToLower(v)
	}
	intVar("POSTS_PER_PAGE", &c.PostsPerPage)
	intVar("COMMENTS_PER_PAGE", &c.CommentsPerPage)
	intVar("FOLLOWERS_PER_PAGE", &c.FollowersPerPage)
	boolVar("PAGINATION_STRICT", &c.PaginationStrict)
	boolVar("SSL_DISABLE", &c.SSLDisable)
	boolVar("TRUST_PROXY", &c.TrustProxy)
	durVar("DB_SLOW_QUERY", &c.DBSlowQuery)
	durVar("TOKEN_TTL", &c.TokenTTL)
	durVar("API_TOKEN_TTL", &c.APITokenTTL)
	intVar("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	intVar("BCRYPT_COST", &c.PasswordCost)
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	intVar("REDIS_PORT", &c.RedisPort)
	intVar("REDIS_DB", &c.RedisDB)
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	durVar("CACHE_TTL", &c.CacheTTL)
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	intVar("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	intVar("LOG_MAX_BACKUPS", &c.LogMaxBackups)
	intVar("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays)
	boolVar("LOG_COMPRESS", &c.LogCompress)

	return errors.Join(errs...)
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
