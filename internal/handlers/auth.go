package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sweetshop/apiserver/internal/auth"
	"github.com/sweetshop/apiserver/internal/services"
	"github.com/sweetshop/apiserver/internal/store"
	"github.com/sweetshop/apiserver/types"
	"go.uber.org/zap"
)

// AuthHandler provides registration, login and identity endpoints.
type AuthHandler struct {
	userService *services.UserService
	logger      *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		logger:      logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, userService *services.UserService, logger *zap.Logger) {
	handler := NewAuthHandler(userService, logger)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(Authenticate(userService, logger)).Get("/me", handler.Me)
}

// Authenticate is the first pipeline stage. It resolves the bearer token
// to an identity and stores it in the request context.
func Authenticate(userService *services.UserService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := authenticateRequest(r, userService)
			if !decision.Allowed() {
				rejectRequest(w, r, logger, decision.Err)
				return
			}

			ctx := auth.WithIdentity(r.Context(), decision.Identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole is the second pipeline stage. It admits only identities
// holding role.
func RequireRole(role types.Role, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ := auth.IdentityFromContext(r.Context())
			decision := auth.RequireRole(identity, role)
			if !decision.Allowed() {
				rejectRequest(w, r, logger, decision.Err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var errMissingToken = errors.New("missing bearer token")

func authenticateRequest(r *http.Request, userService *services.UserService) auth.Decision {
	token, err := bearerToken(r)
	if err != nil {
		return auth.Reject(errMissingToken)
	}

	identity, err := userService.Identify(r.Context(), token)
	if err != nil {
		return auth.Reject(err)
	}
	return auth.Proceed(identity)
}

func rejectRequest(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, errMissingToken):
		writeError(w, http.StatusUnauthorized, "No token provided, authorization denied")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Token is not valid")
	default:
		writeServiceError(w, r, logger, err)
	}
}

// Register creates a new user account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	user, token, err := h.userService.Register(r.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     types.Role(strings.TrimSpace(req.Role)),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{
		Message: "User registered successfully",
		Token:   token,
		User:    user,
	})
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	user, token, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Message: "Login successful",
		Token:   token,
		User:    user,
	})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, err := h.userService.GetByID(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = services.ErrUnauthenticated
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Message string     `json:"message"`
	Token   string     `json:"token"`
	User    types.User `json:"user"`
}

type UserResponse struct {
	User types.User `json:"user"`
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
