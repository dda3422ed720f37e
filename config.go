package goGuard

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/fingerprint"
	"github.com/MrEthical07/goGuard/jwt"
)

// Mode selects the transport policy.
type Mode string

const (
	// ModeDevelopment skips the transport checks.
	ModeDevelopment Mode = "development"
	// ModeProduction requires a secure transport and the configured request headers.
	ModeProduction Mode = "production"
)

// MinSecretLength is the shortest HS256 secret Validate accepts.
const MinSecretLength = 32

// Config is the full engine configuration. Start from DefaultConfig and override.
type Config struct {
	JWT               JWTConfig
	Mode              Mode
	Transport         TransportConfig
	Revocation        RevocationConfig
	Upstream          UpstreamConfig
	Refresh           RefreshConfig
	Cookies           CookieConfig
	FingerprintHeader string
	Audit             AuditConfig
	Metrics           MetricsConfig
}

// JWTConfig configures token signing and lifetimes.
type JWTConfig struct {
	SigningMethod jwt.SigningMethod
	// PrivateKey is the HS256 secret or the Ed25519 private key.
	PrivateKey []byte
	PublicKey  []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
	KeyID      string
	VerifyKeys map[string][]byte
}

// TransportConfig is enforced in ModeProduction only.
type TransportConfig struct {
	RequiredHeaders []string
	// TrustForwardedProto lets RequestFromHTTP honour X-Forwarded-Proto.
	TrustForwardedProto bool
}

// RevocationConfig tunes the revocation store built by the engine's callers.
type RevocationConfig struct {
	Prefix        string
	TombstoneTTL  time.Duration
	PruneInterval time.Duration
}

// UpstreamConfig bounds every revocation store and identity lookup.
type UpstreamConfig struct {
	Timeout time.Duration
}

// RefreshConfig controls the refresh exchange.
type RefreshConfig struct {
	// SkipRevocationChecks disables the blacklist and password-change checks on
	// refresh tokens.
	SkipRevocationChecks bool
}

// CookieConfig names the credential cookies.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Path        string
	Domain      string
	// Secure forces the Secure attribute. It is always set in ModeProduction.
	Secure   bool
	SameSite http.SameSite
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a development configuration. JWT.PrivateKey must still be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: jwt.MethodHS256,
			AccessTTL:     jwt.DefaultAccessTTL,
			RefreshTTL:    jwt.DefaultRefreshTTL,
			Leeway:        0,
		},
		Mode: ModeDevelopment,
		Transport: TransportConfig{
			RequiredHeaders: []string{"X-Content-Type-Options", "X-Frame-Options"},
		},
		Revocation: RevocationConfig{
			Prefix:        "gg",
			TombstoneTTL:  jwt.DefaultRefreshTTL,
			PruneInterval: time.Minute,
		},
		Upstream: UpstreamConfig{
			Timeout: 2 * time.Second,
		},
		Cookies: CookieConfig{
			AccessName:  "access_token",
			RefreshName: "refresh_token",
			Path:        "/",
			SameSite:    http.SameSiteLaxMode,
		},
		FingerprintHeader: fingerprint.DefaultHeader,
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDevelopment, "":
		return ModeDevelopment, nil
	case ModeProduction:
		return ModeProduction, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.Transport.RequiredHeaders = append([]string(nil), cfg.Transport.RequiredHeaders...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < MinSecretLength {
			return fmt.Errorf("hs256 requires a secret of at least %d bytes", MinSecretLength)
		}
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey or VerifyKeys")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Mode
	if c.Mode != ModeDevelopment && c.Mode != ModeProduction {
		return errors.New("Mode must be 'development' or 'production'")
	}
	if c.Mode == ModeProduction {
		for _, h := range c.Transport.RequiredHeaders {
			if strings.TrimSpace(h) == "" {
				return errors.New("Transport RequiredHeaders contains an empty name")
			}
		}
	}

	// Revocation
	if c.Revocation.TombstoneTTL <= 0 {
		return errors.New("Revocation TombstoneTTL must be > 0")
	}
	if c.Revocation.PruneInterval < 0 {
		return errors.New("Revocation PruneInterval must be >= 0")
	}

	// Upstream
	if c.Upstream.Timeout <= 0 {
		return errors.New("Upstream Timeout must be > 0")
	}

	// Cookies
	if strings.TrimSpace(c.Cookies.AccessName) == "" || strings.TrimSpace(c.Cookies.RefreshName) == "" {
		return errors.New("Cookies AccessName and RefreshName must be set")
	}
	if c.Cookies.AccessName == c.Cookies.RefreshName {
		return errors.New("Cookies AccessName and RefreshName must differ")
	}
	if strings.TrimSpace(c.FingerprintHeader) == "" {
		return errors.New("FingerprintHeader must be set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
