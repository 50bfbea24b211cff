package identity

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"

	"typingschool/identity/internal/auth"
	"typingschool/identity/internal/crypto"
	"typingschool/identity/internal/metrics"
	"typingschool/identity/internal/model"
	"typingschool/identity/internal/repository"
	"typingschool/identity/internal/throttle"
)

// UserStore is the persistence the session flows need.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
	FindUserByID(ctx context.Context, id int64, role *auth.Role) (model.User, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
}

type Options struct {
	Limiter throttle.Limiter
	Metrics *metrics.Metrics
	Logger  logr.Logger
	Now     func() time.Time
}

type Service struct {
	users    UserStore
	codec    *auth.Codec
	resolver *auth.Resolver
	limiter  throttle.Limiter
	metrics  *metrics.Metrics
	log      logr.Logger
	now      func() time.Time
}

// LoginResult describes the session that was written to the transport.
type LoginResult struct {
	User      model.User
	Session   auth.Session
	ExpiresAt time.Time
}

func NewService(users UserStore, codec *auth.Codec, opts Options) *Service {
	if opts.Limiter == nil {
		opts.Limiter = throttle.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		users:    users,
		codec:    codec,
		resolver: auth.NewResolver(codec, opts.Logger),
		limiter:  opts.Limiter,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		now:      opts.Now,
	}
}

// Resolve returns the session carried by t, or nil.
func (s *Service) Resolve(t auth.Transport) *auth.Session {
	return s.resolver.Resolve(t)
}

// Authorize is auth.Check with the decision recorded.
func (s *Service) Authorize(session *auth.Session, req auth.Requirement) error {
	err := auth.Check(session, req)
	s.metrics.ObserveDecision(err)
	return err
}

func (s *Service) Login(ctx context.Context, req LoginRequest, t auth.Transport) (LoginResult, error) {
	req, err := ParseLoginRequest(req)
	if err != nil {
		return LoginResult{}, err
	}

	allowed, err := s.limiter.Allow(ctx, req.Email)
	if err != nil {
		s.log.Error(err, "login throttle check failed")
	} else if !allowed {
		s.metrics.ObserveLogin(metrics.LoginThrottled)
		return LoginResult{}, ErrTooManyAttempts
	}

	user, err := s.users.FindUserByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return LoginResult{}, s.rejectLogin(ctx, req.Email)
	}
	if err != nil {
		s.metrics.ObserveLogin(metrics.LoginError)
		return LoginResult{}, internal("find user", err)
	}
	if !crypto.VerifyPassword(req.Password, user.PasswordHash) {
		return LoginResult{}, s.rejectLogin(ctx, req.Email)
	}

	token, result, err := s.mint(user)
	if err != nil {
		s.metrics.ObserveLogin(metrics.LoginError)
		return LoginResult{}, err
	}
	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.metrics.ObserveLogin(metrics.LoginError)
		return LoginResult{}, internal("update last login", err)
	}
	result.User.LastLoginAt = &now
	if err := s.limiter.Reset(ctx, req.Email); err != nil {
		s.log.Error(err, "login throttle reset failed")
	}

	t.SetSessionToken(token, result.ExpiresAt)
	s.metrics.ObserveLogin(metrics.LoginSuccess)
	return result, nil
}

func (s *Service) rejectLogin(ctx context.Context, email string) error {
	s.metrics.ObserveLogin(metrics.LoginRejected)
	if err := s.limiter.Fail(ctx, email); err != nil {
		s.log.Error(err, "login throttle update failed")
	}
	return ErrUnauthenticated
}

// Logout clears the session token. Clearing an empty transport is fine.
func (s *Service) Logout(t auth.Transport) {
	t.ClearSessionToken()
}

// LoginAs replaces the actor's session with one for the target user. The actor
// session is not kept anywhere.
func (s *Service) LoginAs(ctx context.Context, actor *auth.Session, rule ImpersonationRule, rawTargetID string, t auth.Transport) (LoginResult, error) {
	if err := s.Authorize(actor, rule.Actors); err != nil {
		return LoginResult{}, err
	}
	id, err := ParseUserID(rawTargetID)
	if err != nil {
		return LoginResult{}, err
	}

	target := rule.Target
	user, err := s.users.FindUserByID(ctx, id, &target)
	if errors.Is(err, repository.ErrNotFound) {
		return LoginResult{}, ErrNotFound
	}
	if err != nil {
		return LoginResult{}, internal("find user", err)
	}

	token, result, err := s.mint(user)
	if err != nil {
		return LoginResult{}, err
	}
	t.SetSessionToken(token, result.ExpiresAt)
	s.metrics.ObserveImpersonation(user.Role)
	s.log.Info("login-as", "actor_id", actor.UserID, "actor_role", actor.Role, "target_id", user.ID, "target_role", user.Role)
	return result, nil
}

// mint encodes a session token for user without touching any transport.
func (s *Service) mint(user model.User) (string, LoginResult, error) {
	session := user.Session()
	token, expiresAt, err := s.codec.Encode(session)
	if err != nil {
		return "", LoginResult{}, internal("encode session", err)
	}
	return token, LoginResult{User: user, Session: session, ExpiresAt: expiresAt}, nil
}
