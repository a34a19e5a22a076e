package auth

import (
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
)

func init() {
	gob.Register(time.Time{})
}

// SessionName is the cookie the authentication provider writes.
const SessionName = "tenancy_session"

const (
	keyUserID   = "user_id"
	keyEmail    = "email"
	keyName     = "name"
	keyIssuedAt = "authenticated_at"
)

// minSecretLen is the shortest signing key accepted.
const minSecretLen = 32

var (
	// ErrNoIdentity is returned when the cookie carries no user.
	ErrNoIdentity = errors.New("no identity in session")
	// ErrIdentityExpired is returned when the cookie outlived MaxAge.
	ErrIdentityExpired = errors.New("session identity expired")
)

// Identity is the authenticated caller as established upstream.
type Identity struct {
	ID              string
	Email           string
	Name            string
	AuthenticatedAt time.Time
}

// SessionConfig holds session cookie settings.
//
// PreviousSecrets are still accepted for reading so the signing key can be
// rotated without logging everyone out.
type SessionConfig struct {
	Secret          []byte
	PreviousSecrets [][]byte
	MaxAge          int // seconds
	Secure          bool
	SameSite        http.SameSite
	CookiePath      string
}

// DefaultSessionConfig returns a SessionConfig with a 24 hour lifetime.
func DefaultSessionConfig(secret []byte, secure bool) SessionConfig {
	return SessionConfig{
		Secret:     secret,
		MaxAge:     86400,
		Secure:     secure,
		SameSite:   http.SameSiteLaxMode,
		CookiePath: "/",
	}
}

// SessionStore reads the caller identity from a signed cookie.
type SessionStore struct {
	cookies *sessions.CookieStore
	maxAge  time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// NewSessionStore validates the signing keys and builds the cookie codec.
func NewSessionStore(cfg SessionConfig, logger zerolog.Logger) (*SessionStore, error) {
	// Keys are hash/block pairs; cookies are signed, not encrypted.
	keys := make([][]byte, 0, 2*(1+len(cfg.PreviousSecrets)))
	for i, secret := range append([][]byte{cfg.Secret}, cfg.PreviousSecrets...) {
		if len(secret) < minSecretLen {
			return nil, fmt.Errorf("session secret %d must be at least %d bytes", i, minSecretLen)
		}
		keys = append(keys, secret, nil)
	}

	cookies := sessions.NewCookieStore(keys...)
	cookies.Options = &sessions.Options{
		Path:     cfg.CookiePath,
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	}

	s := &SessionStore{
		cookies: cookies,
		maxAge:  time.Duration(cfg.MaxAge) * time.Second,
		now:     time.Now,
		logger:  logger.With().Str("component", "session").Logger(),
	}
	s.logger.Info().
		Bool("secure", cfg.Secure).
		Int("max_age", cfg.MaxAge).
		Int("rotated_keys", len(cfg.PreviousSecrets)).
		Msg("session store initialized")
	return s, nil
}

// Identity decodes the caller from the request cookie. The cookie's own
// expiry is client controlled, so the issue time is checked against MaxAge.
func (s *SessionStore) Identity(r *http.Request) (*Identity, error) {
	sess, err := s.cookies.Get(r, SessionName)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	id, _ := sess.Values[keyUserID].(string)
	if id == "" {
		return nil, ErrNoIdentity
	}
	issuedAt, _ := sess.Values[keyIssuedAt].(time.Time)
	if s.maxAge > 0 && !issuedAt.IsZero() && s.now().Sub(issuedAt) > s.maxAge {
		return nil, ErrIdentityExpired
	}

	email, _ := sess.Values[keyEmail].(string)
	name, _ := sess.Values[keyName].(string)
	return &Identity{
		ID:              id,
		Email:           strings.ToLower(strings.TrimSpace(email)),
		Name:            name,
		AuthenticatedAt: issuedAt,
	}, nil
}

// Issue writes a cookie for identity, signed with the current key.
func (s *SessionStore) Issue(w http.ResponseWriter, r *http.Request, identity *Identity) error {
	sess, err := s.cookies.New(r, SessionName)
	if err != nil && sess == nil {
		return fmt.Errorf("new session: %w", err)
	}
	issuedAt := identity.AuthenticatedAt
	if issuedAt.IsZero() {
		issuedAt = s.now()
	}
	sess.Values[keyUserID] = identity.ID
	sess.Values[keyEmail] = identity.Email
	sess.Values[keyName] = identity.Name
	sess.Values[keyIssuedAt] = issuedAt
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Revoke expires the cookie on the client.
func (s *SessionStore) Revoke(w http.ResponseWriter, r *http.Request) error {
	sess, _ := s.cookies.New(r, SessionName)
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
