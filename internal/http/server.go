package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"typingschool/identity/internal/auth"
	"typingschool/identity/internal/config"
	"typingschool/identity/internal/identity"
	"typingschool/identity/internal/model"
)

const maxBodyBytes = 1 << 20

type Deps struct {
	Service   *identity.Service
	Directory *identity.Directory
	Gatherer  prometheus.Gatherer
	Logger    logr.Logger
}

type Server struct {
	cfg       config.Config
	cookies   auth.CookieConfig
	service   *identity.Service
	directory *identity.Directory
	gatherer  prometheus.Gatherer
	log       logr.Logger
}

func NewServer(cfg config.Config, deps Deps) *Server {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg: cfg,
		cookies: auth.CookieConfig{
			Name:   cfg.SessionCookieName,
			Domain: cfg.SessionCookieDomain,
			Secure: cfg.SessionCookieSecure,
		},
		service:   deps.Service,
		directory: deps.Directory,
		gatherer:  gatherer,
		log:       deps.Logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	if len(s.cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.With(s.requireRole(auth.RequireAnyRole(auth.Roles()...))).Get("/auth/me", s.handleGetMe)

		staff := s.requireRole(auth.RequireAnyRole(auth.RoleAdmin, auth.RoleSchoolAdmin))
		r.Route("/users", func(r chi.Router) {
			r.With(staff).Get("/", s.handleListUsers)
			r.With(s.requireRole(auth.RequireRole(auth.RoleAdmin))).Post("/", s.handleCreateUser)
			r.With(staff).Get("/{userId}", s.handleGetUser)
		})

		r.Post("/admin/school-admins/{userId}/login-as", s.handleLoginAs(identity.AdminAsSchoolAdmin))
		r.Post("/admin/instructors/{userId}/login-as", s.handleLoginAs(identity.StaffAsInstructor))
		r.Post("/admin/students/{userId}/login-as", s.handleLoginAs(identity.StaffAsStudent))
		r.Post("/instructor/students/{userId}/login-as", s.handleLoginAs(identity.InstructorAsStudent))
	})

	return r
}

type userResponse struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        auth.Role  `json:"role"`
	Grade       *int       `json:"grade,omitempty"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type sessionResponse struct {
	User      userResponse `json:"user"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

func toUserResponse(user model.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        user.Role,
		Grade:       user.Grade,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req identity.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	result, err := s.service.Login(r.Context(), req, transportFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: toUserResponse(result.User), ExpiresAt: result.ExpiresAt})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.service.Logout(transportFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auth.SessionFromContext(r.Context()))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = parsed
	}
	users, err := s.directory.List(r.Context(), r.URL.Query().Get("role"), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := make([]userResponse, 0, len(users))
	for _, user := range users {
		resp = append(resp, toUserResponse(user))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.directory.Get(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req identity.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	parsed, err := identity.ParseCreateUserRequest(req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	user, err := s.directory.Create(r.Context(), parsed)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleLoginAs(rule identity.ImpersonationRule) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		result, err := s.service.LoginAs(ctx, auth.SessionFromContext(ctx), rule, chi.URLParam(r, "userId"), transportFromContext(ctx))
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{User: toUserResponse(result.User), ExpiresAt: result.ExpiresAt})
	}
}

// sessionMiddleware attaches the cookie transport and the resolved session, if
// any, to the request context.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport := auth.NewCookieTransport(w, r, s.cookies)
		ctx := context.WithValue(r.Context(), transportKey{}, transport)
		ctx = auth.WithSession(ctx, s.service.Resolve(transport))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(req auth.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := s.service.Authorize(auth.SessionFromContext(r.Context()), req); err != nil {
				s.writeServiceError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.V(1).Info("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}

type transportKey struct{}

func transportFromContext(ctx context.Context) auth.Transport {
	transport, _ := ctx.Value(transportKey{}).(auth.Transport)
	return transport
}

// writeServiceError maps identity errors onto the error envelope. Wrong-role
// denials share the 401 of missing sessions.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var verr *identity.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Code)
	case errors.Is(err, identity.ErrUnauthenticated), errors.Is(err, identity.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, identity.ErrNotFound):
		writeError(w, http.StatusNotFound, "user_not_found")
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken")
	case errors.Is(err, identity.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "too_many_attempts")
	default:
		s.log.Error(err, "request failed")
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
