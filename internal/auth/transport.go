package auth

import (
	"net/http"
	"time"
)

// Transport carries the session token of one request/response exchange.
type Transport interface {
	SessionToken() (string, bool)
	SetSessionToken(token string, expiresAt time.Time)
	ClearSessionToken()
}

type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
}

func DefaultCookieConfig() CookieConfig {
	return CookieConfig{Name: "session", Secure: true}
}

// CookieTransport stores the token in an HTTP-only, same-site cookie. Writes are
// visible to later reads on the same transport.
type CookieTransport struct {
	w   http.ResponseWriter
	r   *http.Request
	cfg CookieConfig

	replaced bool
	token    string
}

func NewCookieTransport(w http.ResponseWriter, r *http.Request, cfg CookieConfig) *CookieTransport {
	if cfg.Name == "" {
		cfg.Name = DefaultCookieConfig().Name
	}
	return &CookieTransport{w: w, r: r, cfg: cfg}
}

func (t *CookieTransport) SessionToken() (string, bool) {
	if t.replaced {
		return t.token, t.token != ""
	}
	if t.r == nil {
		return "", false
	}
	cookie, err := t.r.Cookie(t.cfg.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (t *CookieTransport) SetSessionToken(token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(t.w, t.cookie(token, maxAge, expiresAt))
	t.replaced = true
	t.token = token
}

func (t *CookieTransport) ClearSessionToken() {
	http.SetCookie(t.w, t.cookie("", -1, time.Unix(0, 0)))
	t.replaced = true
	t.token = ""
}

func (t *CookieTransport) cookie(value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     t.cfg.Name,
		Value:    value,
		Path:     "/",
		Domain:   t.cfg.Domain,
		HttpOnly: true,
		Secure:   t.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
		Expires:  expires,
	}
}

// MemoryTransport holds the token in memory. It serves non-HTTP callers.
type MemoryTransport struct {
	token     string
	expiresAt time.Time
}

func NewMemoryTransport(token string) *MemoryTransport {
	return &MemoryTransport{token: token}
}

func (t *MemoryTransport) SessionToken() (string, bool) {
	return t.token, t.token != ""
}

func (t *MemoryTransport) SetSessionToken(token string, expiresAt time.Time) {
	t.token = token
	t.expiresAt = expiresAt
}

func (t *MemoryTransport) ClearSessionToken() {
	t.token = ""
	t.expiresAt = time.Time{}
}

// ExpiresAt is the expiry recorded by the last SetSessionToken call.
func (t *MemoryTransport) ExpiresAt() time.Time {
	return t.expiresAt
}
