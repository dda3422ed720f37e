package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/fingerprint"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs tokens with a single shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs tokens with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// Kind distinguishes short-lived access tokens from long-lived refresh tokens.
type Kind string

const (
	// KindAccess authorizes individual requests.
	KindAccess Kind = "access"
	// KindRefresh is only accepted by the refresh exchange.
	KindRefresh Kind = "refresh"
)

// Valid reports whether k is one of the known token kinds.
func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

const (
	// DefaultAccessTTL is used when Config.AccessTTL is zero.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is used when Config.RefreshTTL is zero.
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrMalformed covers every decode failure other than expiry: bad format, bad
	// signature, unexpected algorithm or key id, wrong issuer or audience, wrong kind.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired is returned for a correctly signed token whose exp has passed.
	ErrExpired = errors.New("token expired")
	// ErrInvalidInput is returned by Issue for an incomplete request.
	ErrInvalidInput = errors.New("invalid token input")
)

// Config configures a Manager. It is treated as immutable once passed to NewManager.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HS256 shared secret or the Ed25519 private key.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	KeyID      string
	VerifyKeys map[string][]byte
	// Now overrides the clock used for issuance and expiry checks.
	Now func() time.Time
}

// Manager issues and decodes session tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

// Claims is the decoded payload of a session token.
type Claims struct {
	Kind Kind   `json:"typ"`
	Role string `json:"role,omitempty"`
	// Fingerprint is the digest of the bound device fingerprint. Nil when the token is
	// not bound to a device.
	Fingerprint *string `json:"fp,omitempty"`
	// IssuedAtMillis is the issue instant in Unix milliseconds. iat only carries whole
	// seconds, which is too coarse for the password change cutoff.
	IssuedAtMillis int64 `json:"iat_ms,omitempty"`
	jwt.RegisteredClaims
}

// BoundFingerprint returns the fingerprint digest carried by the token, if any.
func (c *Claims) BoundFingerprint() (string, bool) {
	if c == nil || c.Fingerprint == nil {
		return "", false
	}
	return *c.Fingerprint, true
}

// IssuedAtTime returns the issue instant at millisecond precision. Tokens without
// iat_ms fall back to iat; the zero time means neither is present.
func (c *Claims) IssuedAtTime() time.Time {
	if c == nil {
		return time.Time{}
	}
	if c.IssuedAtMillis > 0 {
		return time.UnixMilli(c.IssuedAtMillis)
	}
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// IssueInput describes a token to mint.
type IssueInput struct {
	Kind    Kind
	Subject string
	Role    string
	// TTL overrides the configured default for Kind when positive.
	TTL         time.Duration
	Fingerprint fingerprint.Fingerprint
}

// Token is a freshly minted token and the metadata callers persist about it.
type Token struct {
	Value     string
	ID        string
	Kind      Kind
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires a signing secret")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

// TTL returns the configured lifetime for kind.
func (j *Manager) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return j.config.RefreshTTL
	}
	return j.config.AccessTTL
}

// Issue mints a signed token. Refresh tokens carry the subject only: role and
// fingerprint are dropped.
func (j *Manager) Issue(in IssueInput) (Token, error) {
	if !in.Kind.Valid() {
		return Token{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, in.Kind)
	}
	if strings.TrimSpace(in.Subject) == "" {
		return Token{}, fmt.Errorf("%w: empty subject", ErrInvalidInput)
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = j.TTL(in.Kind)
	}

	// exp and iat are serialized at jwt.TimePrecision; iat_ms keeps the milliseconds.
	issuedAt := j.now().Truncate(time.Millisecond)
	expiresAt := issuedAt.Add(ttl)
	id := uuid.NewString()

	claims := Claims{
		Kind:           in.Kind,
		IssuedAtMillis: issuedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   in.Subject,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	if in.Kind == KindAccess {
		claims.Role = in.Role
		if digest := in.Fingerprint.Digest(); digest != "" {
			claims.Fingerprint = &digest
		}
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return Token{}, err
	}
	value, err := token.SignedString(signKey)
	if err != nil {
		return Token{}, err
	}

	return Token{
		Value:     value,
		ID:        id,
		Kind:      in.Kind,
		Subject:   in.Subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Decode verifies the signature of tokenStr and then its claims. A token is only
// reported as expired once its signature has been verified; every other failure is
// ErrMalformed. The cause is wrapped for logging and must not reach clients.
func (j *Manager) Decode(tokenStr string, kind Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, j.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, jwt.ErrTokenInvalidClaims)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: unexpected token kind %q", ErrMalformed, claims.Kind)
	}
	if claims.Subject == "" || claims.ID == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing required claims", ErrMalformed)
	}
	if claims.IssuedAtMillis < 0 ||
		(claims.IssuedAtMillis > 0 && time.UnixMilli(claims.IssuedAtMillis).Unix() != claims.IssuedAt.Unix()) {
		return nil, fmt.Errorf("%w: iat_ms disagrees with iat", ErrMalformed)
	}
	if claims.Fingerprint != nil && (*claims.Fingerprint == "" || kind != KindAccess) {
		return nil, fmt.Errorf("%w: unexpected fingerprint claim", ErrMalformed)
	}
	if kind == KindRefresh && claims.Role != "" {
		return nil, fmt.Errorf("%w: refresh token carries a role", ErrMalformed)
	}

	return claims, nil
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.getMethod().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return j.keyBytesToVerifyKey(key)
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return j.getVerifyKey()
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		if len(j.config.PrivateKey) == 0 {
			return nil, errors.New("ed25519 private key not configured")
		}
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
