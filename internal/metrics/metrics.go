// Package metrics exposes authentication counters in prometheus format
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkiryanov/vidtube/internal/apperrors"
)

const namespace = "vidtube"

// Registry with go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Auth counts token lifecycle events
// Nil *Auth is valid and records nothing
type Auth struct {
	logins          *prometheus.CounterVec
	rotations       *prometheus.CounterVec
	authentications *prometheus.CounterVec
	revocations     prometheus.Counter
	purged          prometheus.Counter
}

func NewAuth(reg prometheus.Registerer) *Auth {
	f := promauto.With(reg)

	return &Auth{
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		rotations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "rotations_total",
			Help:      "Refresh token rotations by result.",
		}, []string{"result"}),
		authentications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "authentications_total",
			Help:      "Access token checks by result.",
		}, []string{"result"}),
		revocations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "revocations_total",
			Help:      "Refresh tokens revoked by logout or password change.",
		}),
		purged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "purged_refresh_tokens_total",
			Help:      "Expired refresh tokens removed by sweeper.",
		}),
	}
}

func (m *Auth) Login(err error) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(Result(err)).Inc()
}

func (m *Auth) Rotation(err error) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(Result(err)).Inc()
}

func (m *Auth) Authentication(err error) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(Result(err)).Inc()
}

func (m *Auth) Revocation() {
	if m == nil {
		return
	}
	m.revocations.Inc()
}

func (m *Auth) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}

// Result label for the outcome. Keeps label cardinality bounded
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrTokenExpired):
		return "expired"
	case errors.Is(err, apperrors.ErrTokenInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, apperrors.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, apperrors.ErrTokenMissing):
		return "missing"
	case errors.Is(err, apperrors.ErrTokenReused):
		return "reused"
	case errors.Is(err, apperrors.ErrAccountNotFound):
		return "not_found"
	case errors.Is(err, apperrors.ErrWrongPassword):
		return "wrong_password"
	case errors.Is(err, apperrors.ErrValidation):
		return "invalid"
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
