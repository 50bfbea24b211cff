package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"typingschool/identity/internal/auth"
)

const namespace = "typingschool"

// Login outcomes.
const (
	LoginSuccess   = "success"
	LoginRejected  = "rejected"
	LoginThrottled = "throttled"
	LoginError     = "error"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	LoginAttempts  *prometheus.CounterVec
	AuthzDecisions *prometheus.CounterVec
	Impersonations *prometheus.CounterVec
	Users          *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Password login attempts by outcome.",
		}, []string{"outcome"}),
		AuthzDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_decisions_total",
			Help:      "Authorization gate decisions.",
		}, []string{"decision", "reason"}),
		Impersonations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "impersonations_total",
			Help:      "Successful login-as operations by target role.",
		}, []string{"target_role"}),
		Users: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users",
			Help:      "Registered users by role.",
		}, []string{"role"}),
	}
}

func (m *Metrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// ObserveDecision records the result of auth.Check.
func (m *Metrics) ObserveDecision(err error) {
	if m == nil {
		return
	}
	switch {
	case err == nil:
		m.AuthzDecisions.WithLabelValues(auth.Allow.String(), "").Inc()
	case errors.Is(err, auth.ErrUnauthenticated):
		m.AuthzDecisions.WithLabelValues(auth.Deny.String(), "unauthenticated").Inc()
	default:
		m.AuthzDecisions.WithLabelValues(auth.Deny.String(), "role").Inc()
	}
}

func (m *Metrics) ObserveImpersonation(target auth.Role) {
	if m == nil {
		return
	}
	m.Impersonations.WithLabelValues(string(target)).Inc()
}

func (m *Metrics) SetUsers(counts map[auth.Role]int) {
	if m == nil {
		return
	}
	for role, count := range counts {
		m.Users.WithLabelValues(string(role)).Set(float64(count))
	}
}
