// ABOUTME: Trust delegation backed by HS256 assertion tokens in a request header
// ABOUTME: The external authority signs assertions; the delegate validates and anti-replays them

package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultHeader carries the assertion token on delegated requests.
	DefaultHeader = "X-Trust-Assertion"

	// DefaultReplayTTL is how long a used assertion ID is remembered. It
	// must cover the assertion validity window, since an expired assertion
	// fails validation regardless.
	DefaultReplayTTL = 10 * time.Minute

	// DefaultReplayMax bounds the replay cache size.
	DefaultReplayMax = 65536

	// MinSecretLength is the minimum signing secret length in bytes.
	MinSecretLength = 32
)

// ErrSecretTooShort is returned when the assertion secret is too short.
var ErrSecretTooShort = errors.New("trust secret too short")

// Config assembles a Delegate.
type Config struct {
	// Secret is the HS256 key shared with the external authority. Required.
	Secret []byte

	// Header overrides the assertion header name.
	Header string

	// Issuer, when set, must match the assertion's "iss" claim.
	Issuer string

	// ReplayTTL overrides how long used assertion IDs are remembered.
	ReplayTTL time.Duration

	Logger *slog.Logger
}

// Delegate answers the trust-delegation handshake using signed assertions.
// The handshake is considered done as soon as the authority attached an
// assertion header; whether that assertion names a user is a separate
// question answered by TrustedUser.
type Delegate struct {
	secret  []byte
	header  string
	issuer  string
	replays *replayCache
	logger  *slog.Logger
}

// New creates a Delegate with the given configuration.
func New(cfg Config) (*Delegate, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}

	header := cfg.Header
	if header == "" {
		header = DefaultHeader
	}
	ttl := cfg.ReplayTTL
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "trust")
	}

	return &Delegate{
		secret:  cfg.Secret,
		header:  header,
		issuer:  cfg.Issuer,
		replays: newReplayCache(ttl, DefaultReplayMax),
		logger:  logger,
	}, nil
}

// Close releases the replay cache's background goroutine.
func (d *Delegate) Close() {
	d.replays.close()
}

// TrustPhaseDone reports whether the authority attached an assertion.
func (d *Delegate) TrustPhaseDone(r *http.Request) (bool, error) {
	return r.Header.Get(d.header) != "", nil
}

// TrustedUser validates the assertion and returns the vouched username.
// An invalid, expired, mis-issued, or replayed assertion yields no user;
// none of these are errors, since the gate simply falls back to login.
func (d *Delegate) TrustedUser(r *http.Request) (string, error) {
	raw := r.Header.Get(d.header)
	if raw == "" {
		return "", nil
	}

	username, id, err := d.parseAssertion(raw)
	if err != nil {
		d.logger.Warn("rejected trust assertion", "error", err)
		return "", nil
	}

	if d.replays.checkAndMark(id) {
		d.logger.Warn("replayed trust assertion", "user", username)
		return "", nil
	}

	return username, nil
}

// OnDisconnected marks the request's assertion as used so it cannot
// re-establish the session the authority just tore down.
func (d *Delegate) OnDisconnected(ctx context.Context, r *http.Request) error {
	raw := r.Header.Get(d.header)
	if raw == "" {
		return nil
	}
	if _, id, err := d.parseAssertion(raw); err == nil {
		d.replays.mark(id)
	}
	return nil
}

// parseAssertion validates the raw token and extracts the subject and the
// assertion ID used for replay tracking.
func (d *Delegate) parseAssertion(raw string) (username, id string, err error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return d.secret, nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", errors.New("invalid assertion")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid assertion claims")
	}

	if d.issuer != "" {
		iss, _ := claims["iss"].(string)
		if iss != d.issuer {
			return "", "", fmt.Errorf("unexpected issuer %q", iss)
		}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", "", errors.New("missing sub claim")
	}

	id, _ = claims["jti"].(string)
	if id == "" {
		id = raw
	}

	return sub, id, nil
}

// Mint creates a signed assertion for the given username. Used by the CLI
// and by the authority side of the handshake in tests.
func (d *Delegate) Mint(username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"jti": uuid.New().String(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if d.issuer != "" {
		claims["iss"] = d.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(d.secret)
}

// Header returns the assertion header name.
func (d *Delegate) Header() string {
	return d.header
}
