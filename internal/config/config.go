package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/jrschumacher/linkdash/internal/logger"
	"github.com/spf13/viper"
)

const (
	EnvProd = "production"
	EnvDev  = "development"
	EnvTest = "test"
)

// defaultIssuerPrefix is the issuer prefix used by Firebase-style secure token services.
const defaultIssuerPrefix = "https://securetoken.google.com/"

// Route defaults are applied through viper rather than struct tags so that a
// configured list replaces the default instead of being merged into it.
var (
	DefaultPublicPaths = []string{
		"/", "/blog", "/pages", "/auth/register", "/auth/login", "/auth/recover",
		"/api/login", "/api/logout", "/api/public_links", "/api/public_pages",
		"/healthz", "/readyz", "/static", "/favicon.ico", "/robots.txt", "/sitemap.xml",
	}
	DefaultPrivatePaths   = []string{"/dashboard", "/profile", "/api"}
	DefaultGuestOnlyPaths = []string{"/auth/login", "/auth/register", "/auth/recover"}
)

// Config holds application configuration loaded from environment variables or config file.
type Config struct {
	AppEnv       string `mapstructure:"app_env" default:"development" validate:"required,oneof=development production test"`
	Port         string `mapstructure:"port" default:"3000" validate:"required"`
	AppName      string `mapstructure:"app_name" default:"linkdash" validate:"required"`
	PublicDomain string `mapstructure:"public_domain" default:"http://localhost:3000" validate:"required,url"`

	// Session cookie. Signature keys are ordered newest first.
	CookieName          string        `mapstructure:"cookie_name" default:"linkdash_session" validate:"required"`
	CookieSignatureKeys []string      `secret:"true" mapstructure:"cookie_signature_keys" validate:"required,min=1,dive,min=16"`
	CookieMaxAge        time.Duration `mapstructure:"cookie_max_age" default:"288h" validate:"gt=0"`
	UseSecureCookies    bool          `mapstructure:"use_secure_cookies" default:"true"`

	// Identity provider
	IdentityProjectID   string        `mapstructure:"identity_project_id" validate:"required"`
	IdentityIssuer      string        `mapstructure:"identity_issuer" validate:"omitempty,url"`
	IdentityAPIKey      string        `secret:"true" mapstructure:"identity_api_key" validate:"required"`
	JWKSURL             string        `mapstructure:"jwks_url" default:"https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com" validate:"required,url"`
	TokenURL            string        `mapstructure:"token_url" default:"https://securetoken.googleapis.com/v1/token" validate:"required,url"`
	JWKSRefreshInterval time.Duration `mapstructure:"jwks_refresh_interval" default:"1h" validate:"gt=0"`
	TokenClockSkew      time.Duration `mapstructure:"token_clock_skew" default:"30s" validate:"gte=0"`
	RefreshWindow       time.Duration `mapstructure:"refresh_window" default:"5m" validate:"gte=0"`
	HTTPTimeout         time.Duration `mapstructure:"http_timeout" default:"5s" validate:"gt=0"`
	RefreshTimeout      time.Duration `mapstructure:"refresh_timeout" default:"5s" validate:"gt=0"`
	RefreshBackoff      time.Duration `mapstructure:"refresh_backoff" default:"250ms" validate:"gte=0"`

	// Route visibility. Anything not listed is private.
	PublicPaths    []string `mapstructure:"public_paths" validate:"dive,startswith=/"`
	PrivatePaths   []string `mapstructure:"private_paths" validate:"dive,startswith=/"`
	GuestOnlyPaths []string `mapstructure:"guest_only_paths" validate:"dive,startswith=/"`

	// Backend REST API
	BackendAPIURL  string `mapstructure:"backend_api_url" default:"http://localhost:8080/api/v1/" validate:"required,url"`
	FrontendAPIKey string `secret:"true" mapstructure:"frontend_api_key"`

	// Optional revocation list; empty disables the check.
	RedisURL string `secret:"true" mapstructure:"redis_url"`

	// Logging
	LogLevel  string `mapstructure:"log_level" default:"INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	LogFormat string `mapstructure:"log_format" default:"text" validate:"oneof=text json"`
}

// Load loads configuration from config file and environment variables using viper.
func Load() *Config {
	cfg := Config{}

	// Initialize viper
	v := viper.New()
	v.AutomaticEnv()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__", "-", "__"))

	v.SetDefault("public_paths", DefaultPublicPaths)
	v.SetDefault("private_paths", DefaultPrivatePaths)
	v.SetDefault("guest_only_paths", DefaultGuestOnlyPaths)

	// Set defaults for the config struct
	if err := defaults.Set(&cfg); err != nil {
		panic("failed to set struct defaults: " + err.Error())
	}

	// Bind env vars for each field
	typeOfCfg := reflect.TypeOf(cfg)
	for i := 0; i < typeOfCfg.NumField(); i++ {
		field := typeOfCfg.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			key = toSnakeCase(field.Name)
		}
		_ = v.BindEnv(key)
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logger.Error("Error read config file", "error", err)
		}
		logger.Warn("No config file found, using environment variables")
	}

	if err := v.Unmarshal(&cfg); err != nil {
		logger.Warn("Could not unmarshal config", "error", err)
	}

	logger.Info("Loaded config", "config", cfg.String())

	return &cfg
}

func Validate(cfg *Config) error {
	validate := validator.New()
	return validate.Struct(cfg)
}

// IsDev reports whether the app runs outside production.
func (c *Config) IsDev() bool {
	return c.AppEnv != EnvProd
}

// Issuer returns the expected ID token issuer, derived from the project ID when unset.
func (c *Config) Issuer() string {
	if c.IdentityIssuer != "" {
		return c.IdentityIssuer
	}
	return defaultIssuerPrefix + c.IdentityProjectID
}

// String returns a string representation of the config with secret fields redacted.
func (c *Config) String() string {
	v := reflect.ValueOf(*c)
	t := reflect.TypeOf(*c)
	var sb strings.Builder
	sb.WriteString("Config{")
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Name
		value := v.Field(i).Interface()
		if field.Tag.Get("secret") == "true" {
			value = "***REDACTED***"
		}
		sb.WriteString(name + ": " + toString(value))
		if i < t.NumField()-1 {
			sb.WriteString(", ")
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// toString converts interface{} to string for String
func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// toSnakeCase converts CamelCase to snake_case
func toSnakeCase(str string) string {
	runes := []rune(str)
	var out []rune
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if !unicode.IsUpper(prev) || nextLower {
				out = append(out, '_')
			}
		}
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

// Defaults returns a Config populated with struct and route defaults only,
// without reading files or the environment.
func Defaults() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic("failed to set struct defaults: " + err.Error())
	}
	cfg.PublicPaths = append([]string(nil), DefaultPublicPaths...)
	cfg.PrivatePaths = append([]string(nil), DefaultPrivatePaths...)
	cfg.GuestOnlyPaths = append([]string(nil), DefaultGuestOnlyPaths...)
	return cfg
}
