package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
)

// Prefix is prepended to every variable name.
const Prefix = "GOGUARD_"

// Backends accepted by StoreBackend and IdentityBackend.
const (
	BackendMemory    = "memory"
	BackendMiniredis = "miniredis"
	BackendRedis     = "redis"
	BackendMongo     = "mongo"
	BackendPostgres  = "postgres"
)

// Env is the flat environment view of the process configuration.
type Env struct {
	Mode string `env:"MODE" envDefault:"development"`

	SigningMethod  string            `env:"JWT_SIGNING_METHOD" envDefault:"hs256"`
	Secret         string            `env:"JWT_SECRET"`
	PrivateKeyFile string            `env:"JWT_PRIVATE_KEY_FILE"`
	PublicKeyFile  string            `env:"JWT_PUBLIC_KEY_FILE"`
	AccessTTL      time.Duration     `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL     time.Duration     `env:"JWT_REFRESH_TTL" envDefault:"168h"`
	Issuer         string            `env:"JWT_ISSUER"`
	Audience       string            `env:"JWT_AUDIENCE"`
	Leeway         time.Duration     `env:"JWT_LEEWAY"`
	KeyID          string            `env:"JWT_KEY_ID"`
	VerifyKeyFiles map[string]string `env:"JWT_VERIFY_KEY_FILES" envSeparator:"," envKeyValSeparator:"="`

	RequiredHeaders     []string `env:"TRANSPORT_REQUIRED_HEADERS" envSeparator:"," envDefault:"X-Content-Type-Options,X-Frame-Options"`
	TrustForwardedProto bool     `env:"TRANSPORT_TRUST_FORWARDED_PROTO"`

	RevocationPrefix string        `env:"REVOCATION_PREFIX" envDefault:"gg"`
	TombstoneTTL     time.Duration `env:"REVOCATION_TOMBSTONE_TTL" envDefault:"168h"`
	PruneInterval    time.Duration `env:"REVOCATION_PRUNE_INTERVAL" envDefault:"1m"`

	UpstreamTimeout       time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"2s"`
	SkipRefreshRevocation bool          `env:"REFRESH_SKIP_REVOCATION_CHECKS"`

	AccessCookie   string `env:"COOKIE_ACCESS_NAME" envDefault:"access_token"`
	RefreshCookie  string `env:"COOKIE_REFRESH_NAME" envDefault:"refresh_token"`
	CookiePath     string `env:"COOKIE_PATH" envDefault:"/"`
	CookieDomain   string `env:"COOKIE_DOMAIN"`
	CookieSecure   bool   `env:"COOKIE_SECURE"`
	CookieSameSite string `env:"COOKIE_SAMESITE" envDefault:"lax"`

	FingerprintHeader string `env:"FINGERPRINT_HEADER" envDefault:"X-Device-Fingerprint"`

	AuditEnabled    bool `env:"AUDIT_ENABLED"`
	AuditBufferSize int  `env:"AUDIT_BUFFER_SIZE" envDefault:"1024"`
	AuditDropIfFull bool `env:"AUDIT_DROP_IF_FULL" envDefault:"true"`

	MetricsEnabled   bool `env:"METRICS_ENABLED" envDefault:"true"`
	LatencyHistogram bool `env:"METRICS_LATENCY_HISTOGRAM" envDefault:"true"`

	Server Server
}

// Server holds the settings of the goguard serve command.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	StoreBackend    string        `env:"STORE_BACKEND" envDefault:"miniredis"`
	IdentityBackend string        `env:"IDENTITY_BACKEND" envDefault:"memory"`
	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB"`
	MongoURI        string        `env:"MONGO_URI" envDefault:"mongodb://127.0.0.1:27017"`
	MongoDatabase   string        `env:"MONGO_DATABASE" envDefault:"goguard"`
	MongoCollection string        `env:"MONGO_COLLECTION" envDefault:"tokens"`
	PostgresDSN     string        `env:"POSTGRES_DSN"`
	PostgresTable   string        `env:"POSTGRES_TABLE" envDefault:"users"`
	// Users seeds the memory identity backend as subject=role pairs.
	Users map[string]string `env:"USERS" envSeparator:"," envKeyValSeparator:"=" envDefault:"admin=admin,guest=guest"`
}

// Load reads .env files (missing files are ignored) and then the environment.
// Variables already set in the process take precedence over file contents.
func Load(files ...string) (Env, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Prefix: Prefix}); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}

// GuardConfig maps e onto a goGuard.Config. Key files are read here; the result still
// has to pass Config.Validate.
func (e Env) GuardConfig() (goGuard.Config, error) {
	cfg := goGuard.DefaultConfig()

	mode, err := goGuard.ParseMode(e.Mode)
	if err != nil {
		return cfg, err
	}
	cfg.Mode = mode

	cfg.JWT.SigningMethod = jwt.SigningMethod(strings.ToLower(strings.TrimSpace(e.SigningMethod)))
	cfg.JWT.AccessTTL = e.AccessTTL
	cfg.JWT.RefreshTTL = e.RefreshTTL
	cfg.JWT.Issuer = e.Issuer
	cfg.JWT.Audience = e.Audience
	cfg.JWT.Leeway = e.Leeway
	cfg.JWT.KeyID = e.KeyID

	switch cfg.JWT.SigningMethod {
	case jwt.MethodHS256:
		cfg.JWT.PrivateKey = []byte(e.Secret)
	default:
		if cfg.JWT.PrivateKey, err = readKey(e.PrivateKeyFile); err != nil {
			return cfg, err
		}
		if cfg.JWT.PublicKey, err = readKey(e.PublicKeyFile); err != nil {
			return cfg, err
		}
	}
	if len(e.VerifyKeyFiles) > 0 {
		cfg.JWT.VerifyKeys = make(map[string][]byte, len(e.VerifyKeyFiles))
		for kid, path := range e.VerifyKeyFiles {
			key, err := readKey(path)
			if err != nil {
				return cfg, err
			}
			cfg.JWT.VerifyKeys[kid] = key
		}
	}

	cfg.Transport.RequiredHeaders = e.RequiredHeaders
	cfg.Transport.TrustForwardedProto = e.TrustForwardedProto
	cfg.Revocation.Prefix = e.RevocationPrefix
	cfg.Revocation.TombstoneTTL = e.TombstoneTTL
	cfg.Revocation.PruneInterval = e.PruneInterval
	cfg.Upstream.Timeout = e.UpstreamTimeout
	cfg.Refresh.SkipRevocationChecks = e.SkipRefreshRevocation

	cfg.Cookies.AccessName = e.AccessCookie
	cfg.Cookies.RefreshName = e.RefreshCookie
	cfg.Cookies.Path = e.CookiePath
	cfg.Cookies.Domain = e.CookieDomain
	cfg.Cookies.Secure = e.CookieSecure
	if cfg.Cookies.SameSite, err = parseSameSite(e.CookieSameSite); err != nil {
		return cfg, err
	}

	cfg.FingerprintHeader = e.FingerprintHeader
	cfg.Audit.Enabled = e.AuditEnabled
	cfg.Audit.BufferSize = e.AuditBufferSize
	cfg.Audit.DropIfFull = e.AuditDropIfFull
	cfg.Metrics.Enabled = e.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = e.LatencyHistogram

	return cfg, nil
}

func readKey(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	return b, nil
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("unknown SameSite value %q", v)
	}
}
