package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
)

// Routes mounts the public authentication endpoints
func (h *Handle) Routes(r chi.Router) {
	r.Post("/signup", h.Signup)
	r.Post("/signin", h.Signin)
	r.Post("/setup-2fa", h.SetupTwoFactor)
	r.Post("/verify-2fa", h.VerifyTwoFactor)
	r.Get("/captcha-site-key", h.CaptchaSiteKey)
}

// ResetRoutes mounts the password reset endpoints
func (h *Handle) ResetRoutes(r chi.Router) {
	r.Post("/initiate", h.InitiateReset)
	r.Post("/validate-token", h.ValidateResetToken)
	r.Post("/reset", h.ResetPassword)
}

// ProtectedRoutes mounts the endpoints that require a valid session token
func (h *Handle) ProtectedRoutes(r chi.Router, auth *jwtauth.JWTAuth) {
	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(auth))
		r.Use(jwtauth.Authenticator(auth))
		r.Get("/profile", h.Profile)
		r.Get("/profile/tfa-settings", h.TfaSettings)
		r.Put("/profile/tfa-settings", h.UpdateTfaSettings)
		r.Post("/password/reset-request", h.RequestReset)
		r.Post("/delete-account", h.DeleteAccount)
	})
}

// DiagRoutes mounts the mail diagnostic endpoint
func (h *Handle) DiagRoutes(r chi.Router) {
	r.Post("/test-email", h.TestEmail)
}
