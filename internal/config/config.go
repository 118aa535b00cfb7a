package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/sethvargo/go-envconfig"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Postgres PostgresConfig `env:",prefix=POSTGRES_"`
	Redis    RedisConfig    `env:",prefix=REDIS_"`
	JWT      JWTConfig      `env:",prefix=JWT_"`
	Session  SessionConfig  `env:",prefix=SESSION_"`
	Security SecurityConfig `env:",prefix=SECURITY_"`
	OAuth    OAuthConfig    `env:",prefix=OAUTH_"`
	App      AppConfig      `env:",prefix=APP_"`
	CORS     CORSConfig     `env:",prefix=CORS_"`
	Env      string         `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
}

type PostgresConfig struct {
	Host          string `env:"HOST,default=localhost"`
	Port          string `env:"PORT,default=5432"`
	User          string `env:"USER,default=auth_service"`
	Password      string `env:"PASSWORD,default=auth_service_password"`
	DBName        string `env:"DB,default=auth_service_db"`
	SSLMode       string `env:"SSLMODE,default=disable"`
	RunMigrations bool   `env:"RUN_MIGRATIONS,default=true"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

// JWTConfig holds the access token signing material. Either PrivateKey (PEM
// text) or PrivateKeyFile must be set.
type JWTConfig struct {
	PrivateKey     string `env:"PRIVATE_KEY"`
	PrivateKeyFile string `env:"PRIVATE_KEY_FILE"`
	Issuer         string `env:"ISSUER,default=auth-session-service"`
}

type SessionConfig struct {
	AccessTokenTTL       Duration `env:"ACCESS_TOKEN_TTL,default=300s"`
	RefreshTokenTTL      Duration `env:"REFRESH_TOKEN_TTL,default=12h"`
	RotationThreshold    Duration `env:"ROTATION_THRESHOLD,default=4h"`
	VerificationTokenTTL Duration `env:"VERIFICATION_TOKEN_TTL,default=15m"`
	ResetTokenTTL        Duration `env:"RESET_TOKEN_TTL,default=10m"`
	SecureCookies        bool     `env:"SECURE_COOKIES,default=true"`
}

type SecurityConfig struct {
	PasswordBCryptCost     int      `env:"PASSWORD_BCRYPT_COST,default=12"`
	RefreshTokenBCryptCost int      `env:"REFRESH_TOKEN_BCRYPT_COST,default=10"`
	RateLimitRequests      int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow        Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
	NotificationCooldown   Duration `env:"NOTIFICATION_COOLDOWN,default=60s"`
}

type OAuthConfig struct {
	GitHub          OAuthClientConfig `env:",prefix=GITHUB_"`
	Google          OAuthClientConfig `env:",prefix=GOOGLE_"`
	ProviderTimeout Duration          `env:"PROVIDER_TIMEOUT,default=10s"`
	FlowCookieTTL   Duration          `env:"FLOW_COOKIE_TTL,default=10m"`
}

type OAuthClientConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// Enabled reports whether the provider has client credentials configured.
func (c OAuthClientConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type AppConfig struct {
	BaseURL     string `env:"BASE_URL,default=http://localhost:8080"`
	FrontendURL string `env:"FRONTEND_URL,default=http://localhost:3000"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// URL returns the connection string in URL form, as golang-migrate expects it.
func (p PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%s", p.Host, p.Port),
		Path:     p.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// OAuthCallbackURL returns the redirect URI registered with the provider.
func (a AppConfig) OAuthCallbackURL(provider string) string {
	return fmt.Sprintf("%s/api/v1/oauth/%s/callback", a.BaseURL, provider)
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.PrivateKey == "" && c.JWT.PrivateKeyFile == "" {
		errs = append(errs, errors.New("JWT_PRIVATE_KEY or JWT_PRIVATE_KEY_FILE must be set"))
	}

	if c.Session.AccessTokenTTL.Duration <= 0 {
		errs = append(errs, errors.New("SESSION_ACCESS_TOKEN_TTL must be positive"))
	}

	if c.Session.RotationThreshold.Duration >= c.Session.RefreshTokenTTL.Duration {
		errs = append(errs, fmt.Errorf("SESSION_ROTATION_THRESHOLD (%s) must be shorter than SESSION_REFRESH_TOKEN_TTL (%s)",
			c.Session.RotationThreshold, c.Session.RefreshTokenTTL))
	}

	for name, cost := range map[string]int{
		"SECURITY_PASSWORD_BCRYPT_COST":      c.Security.PasswordBCryptCost,
		"SECURITY_REFRESH_TOKEN_BCRYPT_COST": c.Security.RefreshTokenBCryptCost,
	} {
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			errs = append(errs, fmt.Errorf("%s must be between %d and %d", name, bcrypt.MinCost, bcrypt.MaxCost))
		}
	}

	return errors.Join(errs...)
}
