package api

// SignupRequest represents the request to create an account
type SignupRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

// SignupResponse represents the response after account creation
type SignupResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SigninRequest represents the credential-check request
type SigninRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

// SigninResponse represents the credential-check outcome. Token is only
// present when the login is terminal; with 2FA enabled the client follows
// up on /verify-2fa.
type SigninResponse struct {
	Token             string `json:"token,omitempty"`
	RequiresTwoFactor bool   `json:"requiresTwoFactor"`
	TfaType           string `json:"tfaType,omitempty"`
}

// SetupTwoFactorRequest represents the request to enroll in 2FA
type SetupTwoFactorRequest struct {
	Username string `json:"username"`
	TfaType  string `json:"tfaType"`
}

// SetupTwoFactorResponse represents the enrollment state. TfaSetupSecret
// carries the otpauth provisioning URI and is only set for APP mode.
type SetupTwoFactorResponse struct {
	TfaEnabled     bool   `json:"tfaEnabled"`
	TfaType        string `json:"tfaType"`
	TfaSetupSecret string `json:"tfaSetupSecret,omitempty"`
}

// VerifyTwoFactorRequest represents the 2FA code submission
type VerifyTwoFactorRequest struct {
	Username       string `json:"username"`
	Code           string `json:"code"`
	FirstTimeSetup bool   `json:"firstTimeSetup,omitempty"`
}

// VerifyTwoFactorResponse represents the 2FA check outcome
type VerifyTwoFactorResponse struct {
	Success    bool   `json:"success"`
	Token      string `json:"token,omitempty"`
	TfaEnabled bool   `json:"tfaEnabled"`
}

// InitiateResetRequest represents the forgot-password request
type InitiateResetRequest struct {
	Username string `json:"username"`
}

// ValidateResetTokenRequest represents the reset-link pre-check
type ValidateResetTokenRequest struct {
	Token string `json:"token"`
}

// ValidateResetTokenResponse represents a live reset token's owner
type ValidateResetTokenResponse struct {
	Username string `json:"username"`
}

// ResetPasswordRequest represents the password replacement request
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ProfileResponse represents the authenticated user's account view
type ProfileResponse struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	TfaEnabled bool   `json:"tfaEnabled"`
}

// TfaSettingsResponse represents the user's current 2FA settings
type TfaSettingsResponse struct {
	TfaEnabled bool   `json:"tfaEnabled"`
	TfaType    string `json:"tfaType,omitempty"`
}

// UpdateTfaSettingsRequest represents the request to toggle 2FA
type UpdateTfaSettingsRequest struct {
	TfaEnabled bool `json:"tfaEnabled"`
}

// CaptchaSiteKeyResponse carries the public CAPTCHA site key
type CaptchaSiteKeyResponse struct {
	SiteKey string `json:"siteKey"`
	Enabled bool   `json:"enabled"`
}

// TestEmailRequest represents the mail diagnostic request
type TestEmailRequest struct {
	To string `json:"to"`
}

// TestEmailResponse represents the mail diagnostic outcome
type TestEmailResponse struct {
	Success bool `json:"success"`
}

// MessageResponse represents a plain informational response
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
