package auth

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultSessionTTL is the validity window of a freshly minted session token.
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrExpired          = errors.New("token_expired")
	ErrMalformed        = errors.New("malformed_token")

	errMissingSecret  = errors.New("missing_session_secret")
	errInvalidSession = errors.New("invalid_session")
)

// Claims is the JWT payload carried by a session token.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens with a process-wide HS256 secret.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewCodec(secret, issuer string, ttl time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Codec{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock returns a copy of the codec that reads the current time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	clone := *c
	clone.now = now
	return &clone
}

func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode mints a token for session valid for the codec TTL.
func (c *Codec) Encode(session Session) (string, time.Time, error) {
	if session.UserID <= 0 || !session.Role.Valid() {
		return "", time.Time{}, errInvalidSession
	}
	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	claims := Claims{
		UserID: session.UserID,
		Role:   string(session.Role),
		Name:   session.Name,
		Email:  session.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(session.UserID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Decode verifies the signature and expiry of token and returns its session.
// The returned error is always one of ErrInvalidSignature, ErrExpired or ErrMalformed.
func (c *Codec) Decode(token string) (Session, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return Session{}, ErrMalformed
	}
	strict := base64.RawURLEncoding.Strict()
	for _, segment := range segments[:2] {
		if _, err := strict.DecodeString(segment); err != nil {
			return Session{}, ErrMalformed
		}
	}
	// Non-canonical trailing bits would otherwise decode to the same signature.
	if _, err := strict.DecodeString(segments[2]); err != nil {
		return Session{}, ErrInvalidSignature
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}
	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return Session{}, classify(err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Session{}, ErrMalformed
	}

	// Fields are only interpreted once the signature has been verified above.
	role, ok := ParseRole(claims.Role)
	if !ok || claims.UserID <= 0 {
		return Session{}, ErrMalformed
	}
	if claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return Session{}, ErrMalformed
	}
	return Session{
		UserID: claims.UserID,
		Role:   role,
		Name:   claims.Name,
		Email:  claims.Email,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
}
