package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"

	"github.com/stepauth/stepauth/pkg/captcha"
	"github.com/stepauth/stepauth/pkg/login"
	"github.com/stepauth/stepauth/pkg/maildiag"
	"github.com/stepauth/stepauth/pkg/reset"
	"github.com/stepauth/stepauth/pkg/twofa"
	"github.com/stepauth/stepauth/pkg/user"
)

// Handle serves the authentication HTTP surface
type Handle struct {
	loginService *login.Service
	twofaService *twofa.TwoFaService
	resetService *reset.Service
	diagService  *maildiag.Service
	validator    *captcha.Validator
	users        user.Repository
}

// Option configures a Handle
type Option func(*Handle)

// NewHandle creates a new auth API handle
func NewHandle(opts ...Option) *Handle {
	h := &Handle{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func WithLoginService(s *login.Service) Option {
	return func(h *Handle) {
		h.loginService = s
	}
}

func WithTwoFaService(s *twofa.TwoFaService) Option {
	return func(h *Handle) {
		h.twofaService = s
	}
}

func WithResetService(s *reset.Service) Option {
	return func(h *Handle) {
		h.resetService = s
	}
}

func WithMailDiagService(s *maildiag.Service) Option {
	return func(h *Handle) {
		h.diagService = s
	}
}

func WithCaptchaValidator(v *captcha.Validator) Option {
	return func(h *Handle) {
		h.validator = v
	}
}

func WithUserRepository(r user.Repository) Option {
	return func(h *Handle) {
		h.users = r
	}
}

// checkCaptcha enforces the CAPTCHA on credential-bearing endpoints. A
// missing validator or empty secret disables the check.
func (h *Handle) checkCaptcha(r *http.Request, token string) bool {
	if h.validator == nil || !h.validator.Enabled() {
		return true
	}
	return h.validator.Verify(r.Context(), token)
}

// Signup handles POST /signup
func (h *Handle) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Username, email, and password are required"})
		return
	}

	if !h.checkCaptcha(r, req.CaptchaToken) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "CAPTCHA validation failed"})
		return
	}

	u, err := h.loginService.Register(r.Context(), user.CreateUserParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, user.ErrUsernameTaken):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: "Username is already taken"})
		case errors.Is(err, user.ErrEmailTaken):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: "Email is already in use"})
		default:
			slog.Error("Failed to register user", "error", err)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, ErrorResponse{Error: "Failed to register user"})
		}
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SignupResponse{
		ID:       u.ID.String(),
		Username: u.Username,
		Email:    u.Email,
	})
}

// Signin handles POST /signin
func (h *Handle) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	if !h.checkCaptcha(r, req.CaptchaToken) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "CAPTCHA validation failed"})
		return
	}

	result, err := h.loginService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, login.ErrInvalidCredentials) {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, ErrorResponse{Error: "invalid username or password"})
			return
		}
		slog.Error("Failed to sign in", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "An error occurred during sign in"})
		return
	}

	resp := SigninResponse{
		Token:             result.Token,
		RequiresTwoFactor: result.RequiresTwoFactor,
	}
	if result.RequiresTwoFactor {
		resp.TfaType = string(result.TFAType)
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// SetupTwoFactor handles POST /setup-2fa
func (h *Handle) SetupTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req SetupTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	tfaType, ok := twofa.ParseTFAType(req.TfaType)
	if !ok {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid 2FA type"})
		return
	}

	cfg, err := h.twofaService.Setup(r.Context(), req.Username, tfaType)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrUserNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{Error: "User not found"})
		case errors.Is(err, twofa.ErrDeliveryFailed):
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, ErrorResponse{Error: "Failed to send verification code"})
		default:
			slog.Error("Failed to set up 2FA", "error", err)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, ErrorResponse{Error: "Failed to set up 2FA"})
		}
		return
	}

	u, err := h.users.FindByUsernameOrEmail(r.Context(), req.Username)
	if err != nil {
		slog.Error("Failed to reload user after 2FA setup", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "Failed to set up 2FA"})
		return
	}

	resp := SetupTwoFactorResponse{
		TfaEnabled: u.TfaEnabled,
		TfaType:    string(cfg.Mode.TFAType()),
	}
	if _, ok := cfg.Mode.(twofa.AppMode); ok {
		uri, err := h.twofaService.QRCodeURI(r.Context(), req.Username, cfg)
		if err != nil {
			slog.Error("Failed to build provisioning URI", "error", err)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, ErrorResponse{Error: "Failed to set up 2FA"})
			return
		}
		resp.TfaSetupSecret = uri
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// VerifyTwoFactor handles POST /verify-2fa
func (h *Handle) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req VerifyTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	result, err := h.loginService.VerifyTwoFactor(r.Context(), req.Username, req.Code, req.FirstTimeSetup)
	if err != nil {
		switch {
		case errors.Is(err, login.ErrInvalidCode):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, VerifyTwoFactorResponse{Success: false})
		case errors.Is(err, login.ErrInvalidCredentials):
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, ErrorResponse{Error: "invalid username or password"})
		default:
			slog.Error("Failed to verify 2FA code", "error", err)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, ErrorResponse{Error: "An error occurred during verification"})
		}
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, VerifyTwoFactorResponse{
		Success:    true,
		Token:      result.Token,
		TfaEnabled: result.User.TfaEnabled,
	})
}

// CaptchaSiteKey handles GET /captcha-site-key
func (h *Handle) CaptchaSiteKey(w http.ResponseWriter, r *http.Request) {
	resp := CaptchaSiteKeyResponse{}
	if h.validator != nil {
		resp.SiteKey = h.validator.SiteKey()
		resp.Enabled = h.validator.Enabled()
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// InitiateReset handles POST /password-reset/initiate. The response is the
// same whether or not the identity exists.
func (h *Handle) InitiateReset(w http.ResponseWriter, r *http.Request) {
	var req InitiateResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	if err := h.resetService.InitiateReset(r.Context(), req.Username); err != nil {
		slog.Error("Failed to initiate password reset", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "An error occurred"})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "If the account exists, a reset link has been sent"})
}

// ValidateResetToken handles POST /password-reset/validate-token
func (h *Handle) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	var req ValidateResetTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	username, err := h.resetService.ValidateToken(req.Token)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid or expired reset token"})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ValidateResetTokenResponse{Username: username})
}

// ResetPassword handles POST /password-reset/reset
func (h *Handle) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	if req.NewPassword == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "New password is required"})
		return
	}

	if err := h.resetService.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, reset.ErrInvalidToken) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: "Invalid or expired reset token"})
			return
		}
		slog.Error("Failed to reset password", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "An error occurred"})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Password has been reset"})
}

// Profile handles GET /profile
func (h *Handle) Profile(w http.ResponseWriter, r *http.Request) {
	u, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	var resp ProfileResponse
	if err := copier.Copy(&resp, &u); err != nil {
		slog.Error("Failed to map profile response", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "An error occurred"})
		return
	}
	resp.ID = u.ID.String()

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// RequestReset handles POST /password/reset-request for a signed-in user.
// The identity comes from the session token, so there is nothing to
// enumerate and a delivery failure is surfaced honestly.
func (h *Handle) RequestReset(w http.ResponseWriter, r *http.Request) {
	u, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	if err := h.resetService.RequestReset(r.Context(), u.Username); err != nil {
		if errors.Is(err, reset.ErrDeliveryFailed) {
			slog.Error("Failed to send reset email", "username", u.Username, "error", err)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, ErrorResponse{Error: "Failed to send password reset email"})
			return
		}
		slog.Error("Failed to request password reset", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "An error occurred"})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "A reset link has been sent to your email"})
}

// TfaSettings handles GET /profile/tfa-settings
func (h *Handle) TfaSettings(w http.ResponseWriter, r *http.Request) {
	u, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	resp := TfaSettingsResponse{TfaEnabled: u.TfaEnabled}
	cfg, err := h.twofaService.Get(r.Context(), u.ID)
	switch {
	case err == nil:
		resp.TfaType = string(cfg.Mode.TFAType())
	case errors.Is(err, twofa.ErrConfigNotFound):
		// No enrollment yet; enabled stays false and type empty.
	default:
		slog.Error("Failed to load 2FA config", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "An error occurred"})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// UpdateTfaSettings handles PUT /profile/tfa-settings. Disabling keeps the
// stored configuration so re-enabling does not force a fresh enrollment.
func (h *Handle) UpdateTfaSettings(w http.ResponseWriter, r *http.Request) {
	u, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	var req UpdateTfaSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Invalid request body"})
		return
	}

	resp := TfaSettingsResponse{TfaEnabled: req.TfaEnabled}
	cfg, err := h.twofaService.Get(r.Context(), u.ID)
	switch {
	case err == nil:
		resp.TfaType = string(cfg.Mode.TFAType())
	case errors.Is(err, twofa.ErrConfigNotFound):
		if req.TfaEnabled {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Error: "2FA must be set up before it can be enabled"})
			return
		}
	default:
		slog.Error("Failed to load 2FA config", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "An error occurred"})
		return
	}

	if u.TfaEnabled != req.TfaEnabled {
		u.TfaEnabled = req.TfaEnabled
		if _, err := h.users.Save(r.Context(), u); err != nil {
			slog.Error("Failed to update 2FA settings", "error", err)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, ErrorResponse{Error: "Failed to update 2FA settings"})
			return
		}
		slog.Info("2FA settings updated", "username", u.Username, "enabled", req.TfaEnabled)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// DeleteAccount handles POST /delete-account
func (h *Handle) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	u, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), u.ID); err != nil {
		slog.Error("Failed to delete account", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "Failed to delete account"})
		return
	}

	slog.Info("Account deleted", "username", u.Username)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: "Account deleted"})
}

// TestEmail handles POST /test-email
func (h *Handle) TestEmail(w http.ResponseWriter, r *http.Request) {
	var req TestEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Error: "Recipient address is required"})
		return
	}

	ok := h.diagService.SendTestEmail(r.Context(), req.To)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, TestEmailResponse{Success: ok})
}

// authenticatedUser resolves the JWT subject set by the jwtauth middleware
// to a user record.
func (h *Handle) authenticatedUser(w http.ResponseWriter, r *http.Request) (user.User, bool) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "Unauthorized"})
		return user.User{}, false
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "Unauthorized"})
		return user.User{}, false
	}

	u, err := h.users.FindByUsernameOrEmail(r.Context(), subject)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{Error: "User not found"})
			return user.User{}, false
		}
		slog.Error("Failed to load user", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "An error occurred"})
		return user.User{}, false
	}
	return u, true
}
