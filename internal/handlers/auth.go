package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tasknest/apiserver/internal/services"
	"github.com/tasknest/apiserver/internal/store"
	"github.com/tasknest/apiserver/types"
)

const defaultTokenTTL = 30 * 24 * time.Hour

// AuthHandler provides registration, login, OTP, and profile endpoints.
type AuthHandler struct {
	users    *services.UserService
	otps     *services.OTPService
	secret   []byte
	tokenTTL time.Duration
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(users *services.UserService, otps *services.OTPService, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		users:    users,
		otps:     otps,
		secret:   []byte(jwtSecret),
		tokenTTL: defaultTokenTTL,
	}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, users *services.UserService, otps *services.OTPService, jwtSecret string) {
	handler := NewAuthHandler(users, otps, jwtSecret)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/verify-otp", handler.VerifyOTP)
	r.Post("/forgot-password", handler.ForgotPassword)
	r.Post("/resend-otp", handler.ResendOTP)
	r.With(handler.RequireAuth).Put("/update", handler.Update)
}

// RequireAuth enforces JWT authentication and injects the user into context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return requireAuth(h.users, h.secret)(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(users *services.UserService, jwtSecret string) func(http.Handler) http.Handler {
	return requireAuth(users, []byte(jwtSecret))
}

func requireAuth(users *services.UserService, secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticate(r, users, secret)
			if err != nil {
				writeErrors(w, http.StatusUnauthorized, toastError("You are not authorized"))
				return
			}
			ctx := context.WithValue(r.Context(), contextUserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, users *services.UserService, secret []byte) (types.User, error) {
	tokenString, err := bearerToken(r)
	if err != nil {
		return types.User{}, err
	}
	email, err := parseTokenEmail(tokenString, secret)
	if err != nil {
		return types.User{}, err
	}
	return users.GetByEmail(r.Context(), email)
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

// Register creates an unvalidated account and sends a registration OTP.
// Re-registering an unvalidated email after the cooldown discards the
// stale account and starts over.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, toastError("invalid request body"))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if errs := validateRegister(req); len(errs) > 0 {
		writeErrors(w, http.StatusUnprocessableEntity, errs...)
		return
	}

	ctx := r.Context()
	existing, err := h.users.GetByEmail(ctx, req.Email)
	switch {
	case err == nil && existing.Validated:
		writeErrors(w, http.StatusUnprocessableEntity, fieldError("email", "Email already registered"))
		return
	case err == nil:
		// Unvalidated leftover from an abandoned registration.
		outstanding, otpErr := h.otps.Outstanding(ctx, req.Email)
		if otpErr == nil {
			if cooldown := h.otps.CheckCooldown(outstanding); cooldown != nil {
				writeErrors(w, http.StatusUnprocessableEntity, toastError(cooldown.Error()))
				return
			}
			if err := h.otps.Supersede(ctx, outstanding); err != nil {
				writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
				return
			}
		} else if !errors.Is(otpErr, store.ErrNotFound) {
			writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
			return
		}
		if err := h.users.Delete(ctx, existing.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
			return
		}
	case !errors.Is(err, store.ErrNotFound):
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	created, err := h.users.Create(ctx, types.User{
		Name:   req.Name,
		Email:  req.Email,
		Avatar: req.Avatar,
	}, req.Password)
	if err != nil {
		log.Printf("user registration failed for %s: %v", req.Email, err)
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	if _, err := h.otps.Issue(ctx, created.Email, created.Name, types.OTPRegistration, false); err != nil {
		log.Printf("registration OTP issue failed for %s: %v", created.Email, err)
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	writeData(w, http.StatusCreated,
		map[string]string{"email": created.Email},
		toastMessage("registered successfully, please verify your email"),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and returns a 30-day bearer token. Only
// validated accounts may log in.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, toastError("invalid request body"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if !validEmail(req.Email) || req.Password == "" {
		writeErrors(w, http.StatusUnprocessableEntity, fieldError("email", "email and password are required"))
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrors(w, http.StatusBadRequest, fieldError("email", "Invalid credentials"))
			return
		}
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	if !user.Validated {
		writeErrors(w, http.StatusBadRequest, toastError("Email not validated"))
		return
	}

	if !h.users.CheckPassword(user, req.Password) {
		writeErrors(w, http.StatusBadRequest, fieldError("email", "Invalid credentials"))
		return
	}

	token, err := issueToken(user.Email, h.secret, h.tokenTTL)
	if err != nil {
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	writeData(w, http.StatusOK, map[string]string{
		"name":   user.Name,
		"email":  user.Email,
		"avatar": user.Avatar,
		"token":  token,
	}, toastMessage("logged in successfully"))
}

type VerifyOTPRequest struct {
	Email    string           `json:"email"`
	OTP      string           `json:"otp"`
	Type     types.OTPPurpose `json:"type"`
	Password string           `json:"password,omitempty"`
}

// VerifyOTP consumes the outstanding code for (email, type) and applies
// the purpose's effect: registration validates the account, forgot-password
// sets the new password, change-email moves the authenticated account to
// the verified address. A fresh token and profile snapshot are returned.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, toastError("invalid request body"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if errs := validateVerifyOTP(req); len(errs) > 0 {
		writeErrors(w, http.StatusUnprocessableEntity, errs...)
		return
	}

	ctx := r.Context()

	// Change-email verification acts on the authenticated account; the
	// other purposes must come from an unauthenticated client.
	var authedUser types.User
	if req.Type == types.OTPChangeEmail {
		user, err := authenticate(r, h.users, h.secret)
		if err != nil {
			writeErrors(w, http.StatusUnauthorized, toastError("You are not authorized"))
			return
		}
		authedUser = user
	} else if _, err := bearerToken(r); err == nil {
		writeErrors(w, http.StatusUnauthorized, toastError("You are already authorized"))
		return
	}

	if _, err := h.otps.Verify(ctx, req.Email, req.Type, req.OTP); err != nil {
		switch {
		case errors.Is(err, services.ErrOTPIncorrect):
			writeErrors(w, http.StatusUnprocessableEntity, fieldError("otp", "OTP is incorrect"))
		case errors.Is(err, services.ErrNoOutstandingOTP):
			writeErrors(w, http.StatusUnprocessableEntity, toastError(genericErrorMsg))
		default:
			writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		}
		return
	}

	var user types.User
	var err error
	if req.Type == types.OTPChangeEmail {
		user = authedUser
	} else {
		user, err = h.users.GetByEmail(ctx, req.Email)
		if err != nil {
			writeErrors(w, http.StatusUnprocessableEntity, toastError(genericErrorMsg))
			return
		}
	}

	var message string
	switch req.Type {
	case types.OTPRegistration:
		user.Validated = true
		user, err = h.users.Update(ctx, user)
		message = "Registration successful"
	case types.OTPForgotPassword:
		user, err = h.users.SetPassword(ctx, user, req.Password)
		message = "Password changed successfully"
	case types.OTPChangeEmail:
		user.Email = req.Email
		user, err = h.users.Update(ctx, user)
		message = "Email changed successfully"
	}
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeErrors(w, http.StatusUnprocessableEntity, fieldError("email", "Email already registered"))
			return
		}
		log.Printf("OTP effect failed for %s (%s): %v", req.Email, req.Type, err)
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	token, err := issueToken(user.Email, h.secret, h.tokenTTL)
	if err != nil {
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	writeData(w, http.StatusOK, map[string]string{
		"avatar": user.Avatar,
		"email":  user.Email,
		"name":   user.Name,
		"token":  token,
	}, toastMessage(message))
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword issues a password-reset OTP. The response is the same
// whether or not the email is registered; unknown addresses get a dummy
// record so later verification fails without revealing anything.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, toastError("invalid request body"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if !validEmail(req.Email) {
		writeErrors(w, http.StatusUnprocessableEntity, fieldError("email", "a valid email is required"))
		return
	}

	ctx := r.Context()

	dummy := false
	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
			return
		}
		dummy = true
	}

	outstanding, err := h.otps.Outstanding(ctx, req.Email)
	if err == nil {
		if cooldown := h.otps.CheckCooldown(outstanding); cooldown != nil {
			writeErrors(w, http.StatusUnprocessableEntity, toastError(cooldown.Error()))
			return
		}
		if err := h.otps.Supersede(ctx, outstanding); err != nil {
			writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
			return
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	if _, err := h.otps.Issue(ctx, req.Email, user.Name, types.OTPForgotPassword, dummy); err != nil {
		var cooldown *services.CooldownError
		if errors.As(err, &cooldown) {
			writeErrors(w, http.StatusUnprocessableEntity, toastError(cooldown.Error()))
			return
		}
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	writeData(w, http.StatusOK, nil,
		toastMessage("If the email is registered, an OTP has been sent to it"))
}

type ResendOTPRequest struct {
	Email string `json:"email"`
}

// ResendOTP supersedes the outstanding code for the email with a fresh
// one, subject to the cooldown.
func (h *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req ResendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, toastError("invalid request body"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if !validEmail(req.Email) {
		writeErrors(w, http.StatusUnprocessableEntity, fieldError("email", "a valid email is required"))
		return
	}

	if err := h.otps.Resend(r.Context(), req.Email); err != nil {
		var cooldown *services.CooldownError
		switch {
		case errors.As(err, &cooldown):
			writeErrors(w, http.StatusUnprocessableEntity, toastError(cooldown.Error()))
		case errors.Is(err, services.ErrNoOutstandingOTP):
			writeErrors(w, http.StatusUnprocessableEntity, toastError(genericErrorMsg))
		case errors.Is(err, services.ErrAlreadyValidated):
			writeErrors(w, http.StatusUnprocessableEntity, toastError("Email already validated"))
		default:
			writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		}
		return
	}

	writeData(w, http.StatusOK, nil, toastMessage("OTP sent successfully"))
}

type UpdateUserRequest struct {
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	OldPassword string `json:"oldPassword,omitempty"`
	Password    string `json:"password,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// Update mutates the authenticated user's profile. Password and email
// changes additionally require the current password; an email change
// only takes effect after the new address confirms a change-email OTP.
func (h *AuthHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeErrors(w, http.StatusUnauthorized, toastError("You are not authorized"))
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusUnprocessableEntity, toastError("invalid request body"))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if errs := validateUpdateUser(req); len(errs) > 0 {
		writeErrors(w, http.StatusUnprocessableEntity, errs...)
		return
	}

	ctx := r.Context()
	isEmailChanged := req.Email != "" && req.Email != user.Email

	if req.Password != "" || isEmailChanged {
		if req.OldPassword == "" {
			writeErrors(w, http.StatusBadRequest,
				fieldError("oldPassword", "current password is required for critical changes"))
			return
		}
		if !h.users.CheckPassword(user, req.OldPassword) {
			writeErrors(w, http.StatusBadRequest, fieldError("oldPassword", "invalid password"))
			return
		}
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Avatar != "" {
		user.Avatar = req.Avatar
	}

	if isEmailChanged {
		if _, err := h.users.GetByEmail(ctx, req.Email); err == nil {
			writeErrors(w, http.StatusUnprocessableEntity, fieldError("email", "Email already registered"))
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
			return
		}

		outstanding, otpErr := h.otps.Outstanding(ctx, req.Email)
		if otpErr == nil {
			if cooldown := h.otps.CheckCooldown(outstanding); cooldown != nil {
				writeErrors(w, http.StatusUnprocessableEntity, toastError(cooldown.Error()))
				return
			}
			if err := h.otps.Supersede(ctx, outstanding); err != nil {
				writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
				return
			}
		} else if !errors.Is(otpErr, store.ErrNotFound) {
			writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
			return
		}

		if _, err := h.otps.Issue(ctx, req.Email, user.Name, types.OTPChangeEmail, false); err != nil {
			writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
			return
		}
	}

	if req.Password != "" {
		user, err = h.users.SetPassword(ctx, user, req.Password)
	} else {
		user, err = h.users.Update(ctx, user)
	}
	if err != nil {
		log.Printf("user update failed for %s: %v", user.Email, err)
		writeErrors(w, http.StatusInternalServerError, toastError(genericErrorMsg))
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"name":           user.Name,
		"email":          user.Email,
		"avatar":         user.Avatar,
		"isEmailChanged": isEmailChanged,
	}, toastMessage("user updated successfully"))
}

func validateRegister(req RegisterRequest) []APIMessage {
	var errs []APIMessage
	if !lenBetween(req.Name, 1, 50) {
		errs = append(errs, fieldError("name", "name must be between 1 and 50 characters"))
	}
	if !validEmail(req.Email) {
		errs = append(errs, fieldError("email", "a valid email is required"))
	}
	if len(req.Password) < 8 {
		errs = append(errs, fieldError("password", "password must be at least 8 characters"))
	}
	if req.Avatar != "" && !validURL(req.Avatar) {
		errs = append(errs, fieldError("avatar", "avatar must be a valid URL"))
	}
	return errs
}

func validateVerifyOTP(req VerifyOTPRequest) []APIMessage {
	var errs []APIMessage
	if !validEmail(req.Email) {
		errs = append(errs, fieldError("email", "a valid email is required"))
	}
	if !validOTPCode(req.OTP) {
		errs = append(errs, fieldError("otp", "otp must be a 6 digit code"))
	}
	if !req.Type.Valid() {
		errs = append(errs, fieldError("type", "type is not a known OTP type"))
	}
	if req.Type == types.OTPForgotPassword && len(req.Password) < 8 {
		errs = append(errs, fieldError("password", "password must be at least 8 characters"))
	}
	return errs
}

func validateUpdateUser(req UpdateUserRequest) []APIMessage {
	var errs []APIMessage
	if req.Name != "" && !lenBetween(req.Name, 1, 50) {
		errs = append(errs, fieldError("name", "name must be between 1 and 50 characters"))
	}
	if req.Email != "" && !validEmail(req.Email) {
		errs = append(errs, fieldError("email", "a valid email is required"))
	}
	if req.Password != "" && len(req.Password) < 8 {
		errs = append(errs, fieldError("password", "password must be at least 8 characters"))
	}
	if req.Avatar != "" && !validURL(req.Avatar) {
		errs = append(errs, fieldError("avatar", "avatar must be a valid URL"))
	}
	return errs
}

func issueToken(email string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenEmail(tokenString string, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
