package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"typingschool/identity/internal/auth"
	"typingschool/identity/internal/crypto"
	"typingschool/identity/internal/metrics"
	"typingschool/identity/internal/model"
	"typingschool/identity/internal/repository"
)

type fixture struct {
	store   *repository.MemoryStore
	service *Service
	dir     *Directory
	metrics *metrics.Metrics
	users   map[auth.Role]model.User
}

type fixedLimiter struct {
	blocked bool
	fails   int
	resets  int
}

func (l *fixedLimiter) Allow(context.Context, string) (bool, error) { return !l.blocked, nil }
func (l *fixedLimiter) Fail(context.Context, string) error          { l.fails++; return nil }
func (l *fixedLimiter) Reset(context.Context, string) error         { l.resets++; return nil }

func newFixture(t *testing.T, limiter *fixedLimiter) *fixture {
	t.Helper()
	codec, err := auth.NewCodec("test-secret", "typingschool-test", time.Hour)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	hasher, err := crypto.NewHasher(crypto.Params{MemoryKB: 8 * 1024, Time: 1, Parallelism: 1})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	store := repository.NewMemoryStore()
	m := metrics.New(prometheus.NewRegistry())
	opts := Options{Metrics: m, Logger: logr.Discard()}
	if limiter != nil {
		opts.Limiter = limiter
	}
	f := &fixture{
		store:   store,
		service: NewService(store, codec, opts),
		dir:     NewDirectory(store, hasher),
		metrics: m,
		users:   make(map[auth.Role]model.User),
	}
	for _, role := range auth.Roles() {
		user, err := f.dir.Create(context.Background(), NewUser{
			Email:    string(role) + "@school.test",
			Name:     "User " + string(role),
			Role:     role,
			Password: "correct horse",
		})
		if err != nil {
			t.Fatalf("create %s: %v", role, err)
		}
		f.users[role] = user
	}
	return f
}

func TestLoginIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, nil)
	transport := auth.NewMemoryTransport("")

	result, err := f.service.Login(context.Background(), LoginRequest{Email: "  Student@SCHOOL.test ", Password: "correct horse"}, transport)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Session.UserID != f.users[auth.RoleStudent].ID || result.Session.Role != auth.RoleStudent {
		t.Fatalf("unexpected session: %+v", result.Session)
	}
	stored, err := f.store.FindUserByID(context.Background(), result.User.ID, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.LastLoginAt == nil {
		t.Fatalf("expected last login to be recorded")
	}
	session := f.service.Resolve(transport)
	if session == nil || session.UserID != result.User.ID {
		t.Fatalf("expected transport to carry the new session, got %+v", session)
	}
	if got := testutil.ToFloat64(f.metrics.LoginAttempts.WithLabelValues(metrics.LoginSuccess)); got != 1 {
		t.Fatalf("expected 1 successful login, got %v", got)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	limiter := &fixedLimiter{}
	f := newFixture(t, limiter)
	transport := auth.NewMemoryTransport("")

	_, err := f.service.Login(context.Background(), LoginRequest{Email: "student@school.test", Password: "wrong password"}, transport)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	stored, _ := f.store.FindUserByID(context.Background(), f.users[auth.RoleStudent].ID, nil)
	if stored.LastLoginAt != nil {
		t.Fatalf("last login must not change on failure")
	}
	if _, ok := transport.SessionToken(); ok {
		t.Fatalf("no token expected after failed login")
	}
	if limiter.fails != 1 {
		t.Fatalf("expected one recorded failure, got %d", limiter.fails)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.service.Login(context.Background(), LoginRequest{Email: "nobody@school.test", Password: "correct horse"}, auth.NewMemoryTransport(""))
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestLoginMissingCredentials(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.service.Login(context.Background(), LoginRequest{Email: " "}, auth.NewMemoryTransport(""))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Code != "missing_credentials" {
		t.Fatalf("expected missing_credentials, got %v", err)
	}
}

func TestLoginThrottled(t *testing.T) {
	limiter := &fixedLimiter{blocked: true}
	f := newFixture(t, limiter)
	_, err := f.service.Login(context.Background(), LoginRequest{Email: "student@school.test", Password: "correct horse"}, auth.NewMemoryTransport(""))
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected too many attempts, got %v", err)
	}
}

func TestLoginResetsThrottle(t *testing.T) {
	limiter := &fixedLimiter{}
	f := newFixture(t, limiter)
	if _, err := f.service.Login(context.Background(), LoginRequest{Email: "admin@school.test", Password: "correct horse"}, auth.NewMemoryTransport("")); err != nil {
		t.Fatalf("login: %v", err)
	}
	if limiter.resets != 1 {
		t.Fatalf("expected throttle reset, got %d", limiter.resets)
	}
}

func TestLogoutTwice(t *testing.T) {
	f := newFixture(t, nil)
	transport := auth.NewMemoryTransport("")
	if _, err := f.service.Login(context.Background(), LoginRequest{Email: "admin@school.test", Password: "correct horse"}, transport); err != nil {
		t.Fatalf("login: %v", err)
	}
	for i := 0; i < 2; i++ {
		f.service.Logout(transport)
		if session := f.service.Resolve(transport); session != nil {
			t.Fatalf("expected no session after logout %d, got %+v", i+1, session)
		}
	}
}

func TestInstructorLoginAsStudent(t *testing.T) {
	f := newFixture(t, nil)
	instructor := f.users[auth.RoleInstructor].Session()
	student := f.users[auth.RoleStudent]
	transport := auth.NewMemoryTransport("")

	result, err := f.service.LoginAs(context.Background(), &instructor, InstructorAsStudent, "  "+itoa(student.ID), transport)
	if err != nil {
		t.Fatalf("login-as: %v", err)
	}
	if result.Session.UserID != student.ID {
		t.Fatalf("expected student session, got %+v", result.Session)
	}
	session := f.service.Resolve(transport)
	if session == nil || session.UserID != student.ID || session.Role != auth.RoleStudent {
		t.Fatalf("expected resolved target identity, got %+v", session)
	}
	if got := testutil.ToFloat64(f.metrics.Impersonations.WithLabelValues("student")); got != 1 {
		t.Fatalf("expected impersonation counted, got %v", got)
	}
}

func TestLoginAsWrongTargetRole(t *testing.T) {
	f := newFixture(t, nil)
	instructor := f.users[auth.RoleInstructor].Session()
	other := f.users[auth.RoleInstructor]
	transport := auth.NewMemoryTransport("original")

	_, err := f.service.LoginAs(context.Background(), &instructor, InstructorAsStudent, itoa(other.ID), transport)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if token, _ := transport.SessionToken(); token != "original" {
		t.Fatalf("transport must be untouched, got %q", token)
	}
}

func TestLoginAsDeniedActor(t *testing.T) {
	f := newFixture(t, nil)
	student := f.users[auth.RoleStudent].Session()
	admin := f.users[auth.RoleAdmin].Session()
	target := itoa(f.users[auth.RoleStudent].ID)

	if _, err := f.service.LoginAs(context.Background(), nil, StaffAsStudent, target, auth.NewMemoryTransport("")); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := f.service.LoginAs(context.Background(), &student, StaffAsStudent, target, auth.NewMemoryTransport("")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	// admin is not an instructor; no role implies another.
	if _, err := f.service.LoginAs(context.Background(), &admin, InstructorAsStudent, target, auth.NewMemoryTransport("")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLoginAsInvalidID(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.users[auth.RoleAdmin].Session()
	for _, raw := range []string{"", "abc", "0", "-4", "1.5"} {
		_, err := f.service.LoginAs(context.Background(), &admin, StaffAsStudent, raw, auth.NewMemoryTransport(""))
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Code != "invalid_user_id" {
			t.Fatalf("%q: expected invalid_user_id, got %v", raw, err)
		}
	}
}

func TestStaffLoginAs(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct {
		actor auth.Role
		rule  ImpersonationRule
	}{
		{auth.RoleAdmin, AdminAsSchoolAdmin},
		{auth.RoleAdmin, StaffAsInstructor},
		{auth.RoleSchoolAdmin, StaffAsInstructor},
		{auth.RoleAdmin, StaffAsStudent},
		{auth.RoleSchoolAdmin, StaffAsStudent},
	}
	for _, tc := range cases {
		actor := f.users[tc.actor].Session()
		target := f.users[tc.rule.Target]
		result, err := f.service.LoginAs(context.Background(), &actor, tc.rule, itoa(target.ID), auth.NewMemoryTransport(""))
		if err != nil {
			t.Fatalf("%s as %s: %v", tc.actor, tc.rule.Target, err)
		}
		if result.Session.Role != tc.rule.Target {
			t.Fatalf("%s as %s: got role %s", tc.actor, tc.rule.Target, result.Session.Role)
		}
	}
	schoolAdmin := f.users[auth.RoleSchoolAdmin].Session()
	if _, err := f.service.LoginAs(context.Background(), &schoolAdmin, AdminAsSchoolAdmin, itoa(f.users[auth.RoleSchoolAdmin].ID), auth.NewMemoryTransport("")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("school admin must not impersonate school admins, got %v", err)
	}
}

func TestLoginEncodeFailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t, nil)
	hash := f.users[auth.RoleStudent].PasswordHash
	// A role outside the enum cannot be encoded into a token.
	broken, err := f.store.CreateUser(context.Background(), model.User{
		Email:        "legacy@school.test",
		Name:         "Legacy",
		Role:         auth.Role("janitor"),
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	transport := auth.NewMemoryTransport("")

	_, err = f.service.Login(context.Background(), LoginRequest{Email: "legacy@school.test", Password: "correct horse"}, transport)
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	stored, err := f.store.FindUserByID(context.Background(), broken.ID, nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.LastLoginAt != nil {
		t.Fatalf("last login must not be recorded when no session was issued")
	}
	if _, ok := transport.SessionToken(); ok {
		t.Fatalf("no token expected after failed encode")
	}
}
