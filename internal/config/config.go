// Package config reads service settings from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jun/gophgallery/internal/model"
)

// Config holds every setting the service reads at startup. Secrets are not stored
// here; only the parameter names used to resolve them.
type Config struct {
	DevMode bool

	AccountsTable string
	LocksTable    string
	KMSKeyID      string

	JWTSecretParam        string
	APIGatewaySecretParam string
	RedisPasswordParam    string
	ClientIDs             map[model.Provider]string
	ClientSecretParams    map[model.Provider]string

	PublicBaseURL string
	FrontendURL   string
	RedisAddr     string

	ProviderCallTimeout time.Duration
	RefreshMargin       time.Duration
	LockWait            time.Duration

	ServerPort string
	RateLimit  float64
	RateBurst  int
}

// Load reads the configuration, falling back to local-development defaults.
func Load() *Config {
	devMode := os.Getenv("DEV_MODE") == "true"

	publicBaseURL := getenv("PUBLIC_BASE_URL", "http://localhost:8080")

	return &Config{
		DevMode:       devMode,
		AccountsTable: getenv("CLOUD_ACCOUNTS_TABLE", "CloudAccounts"),
		LocksTable:    getenv("REFRESH_LOCKS_TABLE", "RefreshLocks"),
		KMSKeyID:      getenv("KMS_KEY_ID", "alias/gophgallery-token-key"),

		JWTSecretParam:        getenv("JWT_SECRET_PARAM", "/gophgallery/jwt-secret"),
		APIGatewaySecretParam: getenv("API_GATEWAY_SECRET_PARAM", "/gophgallery/api-gateway-secret"),
		RedisPasswordParam:    getenv("REDIS_PASSWORD_PARAM", "/gophgallery/redis-password"),
		ClientIDs: map[model.Provider]string{
			model.ProviderGoogle:    os.Getenv("GOOGLE_CLIENT_ID"),
			model.ProviderMicrosoft: os.Getenv("MICROSOFT_CLIENT_ID"),
			model.ProviderDropbox:   os.Getenv("DROPBOX_CLIENT_ID"),
		},
		ClientSecretParams: map[model.Provider]string{
			model.ProviderGoogle:    getenv("GOOGLE_CLIENT_SECRET_PARAM", "/gophgallery/google-client-secret"),
			model.ProviderMicrosoft: getenv("MICROSOFT_CLIENT_SECRET_PARAM", "/gophgallery/microsoft-client-secret"),
			model.ProviderDropbox:   getenv("DROPBOX_CLIENT_SECRET_PARAM", "/gophgallery/dropbox-client-secret"),
		},

		PublicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		FrontendURL:   strings.TrimRight(getenv("FRONTEND_URL", "http://localhost:3000"), "/"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),

		ProviderCallTimeout: getDuration("PROVIDER_CALL_TIMEOUT", 20*time.Second),
		RefreshMargin:       getDuration("REFRESH_MARGIN", 60*time.Second),
		LockWait:            getDuration("LOCK_WAIT", 10*time.Second),

		ServerPort: getenv("PORT", "8080"),
		RateLimit:  getFloat("RATE_LIMIT_RPS", 10),
		RateBurst:  getInt("RATE_LIMIT_BURST", 20),
	}
}

// RedirectURL is the OAuth callback registered with provider p.
func (c *Config) RedirectURL(p model.Provider) string {
	return c.PublicBaseURL + "/api/accounts/" + string(p) + "/callback"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[Config] invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[Config] invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("[Config] invalid %s=%q, using %g", key, v, def)
		return def
	}
	return f
}
