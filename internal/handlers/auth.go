package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/takaful/backoffice-api/internal/authz"
	"github.com/takaful/backoffice-api/internal/config"
	"github.com/takaful/backoffice-api/internal/models"
	"github.com/takaful/backoffice-api/internal/repository"
)

type AuthHandler struct {
	userRepository repository.UserRepository
	jwtSecret      string
	tokenTTL       time.Duration
	logger         zerolog.Logger
}

type signupRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8"`
	OfficerEmail string `json:"officer_email" validate:"omitempty,email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewAuthHandler(users repository.UserRepository, cfg *config.Config, logger zerolog.Logger) *AuthHandler {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthHandler{
		userRepository: users,
		jwtSecret:      cfg.JWTSecret,
		tokenTTL:       ttl,
		logger:         logger.With().Str("handler", "auth").Logger(),
	}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.OfficerEmail = strings.TrimSpace(req.OfficerEmail)

	if err := validate.Struct(req); err != nil {
		http.Error(w, "Invalid signup: "+validationMessage(err), http.StatusBadRequest)
		return
	}

	user, err := h.userRepository.CreateUser(r.Context(), repository.CreateUserParams{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		OfficerEmail: req.OfficerEmail,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			http.Error(w, "Email already registered", http.StatusConflict)
			return
		}
		h.logger.Error().Err(err).Msg("failed to create user")
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	h.logger.Info().Str("user_id", user.ID).Msg("user registered")
	writeJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userRepository.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidCredentials):
			http.Error(w, "Authentication failed: invalid credentials", http.StatusUnauthorized)
		case errors.Is(err, repository.ErrUserDisabled):
			http.Error(w, "Authentication failed: account disabled", http.StatusForbidden)
		default:
			h.logger.Error().Err(err).Msg("failed to authenticate user")
			http.Error(w, "Authentication failed", http.StatusInternalServerError)
		}
		return
	}

	tokenString, err := h.issueToken(user, time.Now())
	if err != nil {
		http.Error(w, "Failed to generate token: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}

func (h *AuthHandler) issueToken(user models.User, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    user.ID,
		"status": string(user.Status),
		"iat":    now.Unix(),
		"exp":    now.Add(h.tokenTTL).Unix(),
	})
	return token.SignedString([]byte(h.jwtSecret))
}

func (h *AuthHandler) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}
		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(h.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !claims.VerifyExpiresAt(time.Now().Unix(), true) {
			http.Error(w, "Token expired", http.StatusUnauthorized)
			return
		}
		userID, ok := claims["sub"].(string)
		if !ok || userID == "" {
			http.Error(w, "Missing token claim", http.StatusUnauthorized)
			return
		}
		status, _ := claims["status"].(string)

		ctx := authz.WithIdentity(r.Context(), userID, models.UserStatus(status))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
