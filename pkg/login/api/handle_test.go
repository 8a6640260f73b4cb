package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepauth/stepauth/pkg/captcha"
	"github.com/stepauth/stepauth/pkg/delivery"
	"github.com/stepauth/stepauth/pkg/login"
	"github.com/stepauth/stepauth/pkg/maildiag"
	"github.com/stepauth/stepauth/pkg/notification"
	"github.com/stepauth/stepauth/pkg/reset"
	"github.com/stepauth/stepauth/pkg/session"
	"github.com/stepauth/stepauth/pkg/totp"
	"github.com/stepauth/stepauth/pkg/twofa"
	"github.com/stepauth/stepauth/pkg/user"
)

type apiEnv struct {
	router  chi.Router
	users   *user.InMemoryRepository
	configs *twofa.InMemoryRepository
	mock    *notification.MockNotifier
	issuer  *session.Issuer
	tfa     *twofa.TwoFaService
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	users := user.NewInMemoryRepository()
	hasher := login.NewBcryptHasher(4)

	mock := &notification.MockNotifier{}
	nm, err := notification.NewNotificationManager(
		notification.WithNotifier(notification.EmailSystem, mock),
		notification.WithTwofaCodeTemplate(),
		notification.WithPasswordResetTemplate(),
		notification.WithTestEmailTemplate(),
	)
	require.NoError(t, err)

	configs := twofa.NewInMemoryRepository()
	fastRetrier := &delivery.Retrier{MaxAttempts: 3, InitialRetryDelay: time.Millisecond, BackoffMultiplier: 2.0}
	tfa := twofa.NewTwoFaService(users, configs, nm, twofa.WithRetrier(fastRetrier))

	issuer, err := session.NewIssuer()
	require.NoError(t, err)

	loginService := login.NewService(users, hasher, tfa, issuer)
	resetService := reset.NewService(users, nm, hasher)
	diagService := maildiag.NewService(nm, maildiag.WithRetrier(fastRetrier))

	handle := NewHandle(
		WithLoginService(loginService),
		WithTwoFaService(tfa),
		WithResetService(resetService),
		WithMailDiagService(diagService),
		WithUserRepository(users),
	)

	auth := jwtauth.New("HS512", issuer.Key(), nil)

	router := chi.NewRouter()
	router.Route("/auth", handle.Routes)
	router.Route("/password-reset", handle.ResetRoutes)
	router.Route("/account", func(r chi.Router) {
		handle.ProtectedRoutes(r, auth)
	})
	router.Route("/diag", handle.DiagRoutes)

	return &apiEnv{
		router:  router,
		users:   users,
		configs: configs,
		mock:    mock,
		issuer:  issuer,
		tfa:     tfa,
	}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func (e *apiEnv) signup(t *testing.T, username, email, password string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/signup", SignupRequest{
		Username: username,
		Email:    email,
		Password: password,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestSignupAndSignin(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "correct-horse")

	rec := env.do(t, http.MethodPost, "/auth/signin", SigninRequest{
		Username: "alice",
		Password: "correct-horse",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[SigninResponse](t, rec)
	assert.False(t, resp.RequiresTwoFactor)
	assert.NotEmpty(t, resp.Token)
}

func TestSignupDuplicateUsername(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "pw-one")

	rec := env.do(t, http.MethodPost, "/auth/signup", SignupRequest{
		Username: "alice",
		Email:    "other@example.com",
		Password: "pw-two",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSigninUniformUnauthorized(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "correct-horse")

	wrongPw := env.do(t, http.MethodPost, "/auth/signin", SigninRequest{Username: "alice", Password: "wrong"}, "")
	unknown := env.do(t, http.MethodPost, "/auth/signin", SigninRequest{Username: "mallory", Password: "wrong"}, "")

	assert.Equal(t, http.StatusUnauthorized, wrongPw.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrongPw.Body.String(), unknown.Body.String())
}

func TestSetupAppModeReturnsProvisioningURI(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "correct-horse")

	rec := env.do(t, http.MethodPost, "/auth/setup-2fa", SetupTwoFactorRequest{
		Username: "alice",
		TfaType:  "APP",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[SetupTwoFactorResponse](t, rec)
	assert.False(t, resp.TfaEnabled)
	assert.Equal(t, "APP", resp.TfaType)
	assert.True(t, strings.HasPrefix(resp.TfaSetupSecret, "otpauth://totp/"))
}

func TestSetupEmailModeDeliversCode(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "correct-horse")

	rec := env.do(t, http.MethodPost, "/auth/setup-2fa", SetupTwoFactorRequest{
		Username: "alice",
		TfaType:  "EMAIL",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[SetupTwoFactorResponse](t, rec)
	assert.Equal(t, "EMAIL", resp.TfaType)
	assert.Empty(t, resp.TfaSetupSecret)

	require.Len(t, env.mock.SentNotifications, 1)
	assert.Equal(t, "alice@example.com", env.mock.SentNotifications[0].To)
}

func TestSetupInvalidType(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "correct-horse")

	rec := env.do(t, http.MethodPost, "/auth/setup-2fa", SetupTwoFactorRequest{
		Username: "alice",
		TfaType:  "SMS",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyTwoFactorFirstTimeSetup(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "correct-horse")

	cfg, err := env.tfa.Setup(context.Background(), "alice", twofa.TFATypeApp)
	require.NoError(t, err)
	code, err := totp.GenerateCode(cfg.Mode.Secret(), time.Now())
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/auth/verify-2fa", VerifyTwoFactorRequest{
		Username:       "alice",
		Code:           code,
		FirstTimeSetup: true,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[VerifyTwoFactorResponse](t, rec)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Token)
	assert.True(t, resp.TfaEnabled)

	// A later signin must now withhold the token pending the second factor.
	signin := env.do(t, http.MethodPost, "/auth/signin", SigninRequest{Username: "alice", Password: "correct-horse"}, "")
	require.Equal(t, http.StatusOK, signin.Code)
	signinResp := decode[SigninResponse](t, signin)
	assert.True(t, signinResp.RequiresTwoFactor)
	assert.Empty(t, signinResp.Token)
	assert.Equal(t, "APP", signinResp.TfaType)
}

func TestVerifyTwoFactorWrongCode(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "correct-horse")

	_, err := env.tfa.Setup(context.Background(), "alice", twofa.TFATypeApp)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/auth/verify-2fa", VerifyTwoFactorRequest{
		Username: "alice",
		Code:     "000000",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[VerifyTwoFactorResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Token)
}

func TestCaptchaSiteKeyWithoutValidator(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/auth/captcha-site-key", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[CaptchaSiteKeyResponse](t, rec)
	assert.False(t, resp.Enabled)
	assert.Empty(t, resp.SiteKey)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "old-password")

	rec := env.do(t, http.MethodPost, "/password-reset/initiate", InitiateResetRequest{Username: "alice"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.mock.SentNotifications, 1)
	link := env.mock.SentNotifications[0].Data["Link"]
	i := strings.Index(link, "token=")
	require.GreaterOrEqual(t, i, 0)
	token := link[i+len("token="):]

	validate := env.do(t, http.MethodPost, "/password-reset/validate-token", ValidateResetTokenRequest{Token: token}, "")
	require.Equal(t, http.StatusOK, validate.Code)
	assert.Equal(t, "alice", decode[ValidateResetTokenResponse](t, validate).Username)

	resetRec := env.do(t, http.MethodPost, "/password-reset/reset", ResetPasswordRequest{Token: token, NewPassword: "new-password"}, "")
	require.Equal(t, http.StatusOK, resetRec.Code)

	signin := env.do(t, http.MethodPost, "/auth/signin", SigninRequest{Username: "alice", Password: "new-password"}, "")
	assert.Equal(t, http.StatusOK, signin.Code)

	oldSignin := env.do(t, http.MethodPost, "/auth/signin", SigninRequest{Username: "alice", Password: "old-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, oldSignin.Code)
}

func TestPasswordResetInitiateUnknownIdentityStill200(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/password-reset/initiate", InitiateResetRequest{Username: "mallory"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.mock.SentNotifications)
}

func TestProfileRequiresToken(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/account/profile", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileWithValidToken(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "correct-horse")

	token, _, err := env.issuer.Issue("alice")
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/account/profile", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ProfileResponse](t, rec)
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, "alice@example.com", resp.Email)
	assert.False(t, resp.TfaEnabled)
}

func TestDeleteAccount(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "correct-horse")

	token, _, err := env.issuer.Issue("alice")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/account/delete-account", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	signin := env.do(t, http.MethodPost, "/auth/signin", SigninRequest{Username: "alice", Password: "correct-horse"}, "")
	assert.Equal(t, http.StatusUnauthorized, signin.Code)
}

func TestSigninRejectedWhenCaptchaFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": false}`))
	}))
	defer srv.Close()

	validator := captcha.NewValidator("shared-secret", "site-key", captcha.WithVerifyURL(srv.URL))
	handle := NewHandle(WithCaptchaValidator(validator))
	router := chi.NewRouter()
	router.Route("/auth", handle.Routes)

	body, err := json.Marshal(SigninRequest{Username: "alice", Password: "pw", CaptchaToken: "bad"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	keyReq := httptest.NewRequest(http.MethodGet, "/auth/captcha-site-key", nil)
	keyRec := httptest.NewRecorder()
	router.ServeHTTP(keyRec, keyReq)
	require.Equal(t, http.StatusOK, keyRec.Code)
	resp := decode[CaptchaSiteKeyResponse](t, keyRec)
	assert.True(t, resp.Enabled)
	assert.Equal(t, "site-key", resp.SiteKey)
}

func TestTfaSettingsLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "correct-horse")

	token, _, err := env.issuer.Issue("alice")
	require.NoError(t, err)

	// No enrollment yet.
	rec := env.do(t, http.MethodGet, "/account/profile/tfa-settings", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settings := decode[TfaSettingsResponse](t, rec)
	assert.False(t, settings.TfaEnabled)
	assert.Empty(t, settings.TfaType)

	// Enabling before setup must be rejected.
	rec = env.do(t, http.MethodPut, "/account/profile/tfa-settings", UpdateTfaSettingsRequest{TfaEnabled: true}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err = env.tfa.Setup(context.Background(), "alice", twofa.TFATypeApp)
	require.NoError(t, err)

	rec = env.do(t, http.MethodPut, "/account/profile/tfa-settings", UpdateTfaSettingsRequest{TfaEnabled: true}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settings = decode[TfaSettingsResponse](t, rec)
	assert.True(t, settings.TfaEnabled)
	assert.Equal(t, "APP", settings.TfaType)

	signin := env.do(t, http.MethodPost, "/auth/signin", SigninRequest{Username: "alice", Password: "correct-horse"}, "")
	require.Equal(t, http.StatusOK, signin.Code)
	assert.True(t, decode[SigninResponse](t, signin).RequiresTwoFactor)

	// Disabling drops the second factor but keeps the enrollment around.
	rec = env.do(t, http.MethodPut, "/account/profile/tfa-settings", UpdateTfaSettingsRequest{TfaEnabled: false}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[TfaSettingsResponse](t, rec).TfaEnabled)

	signin = env.do(t, http.MethodPost, "/auth/signin", SigninRequest{Username: "alice", Password: "correct-horse"}, "")
	require.Equal(t, http.StatusOK, signin.Code)
	signinResp := decode[SigninResponse](t, signin)
	assert.False(t, signinResp.RequiresTwoFactor)
	assert.NotEmpty(t, signinResp.Token)

	rec = env.do(t, http.MethodGet, "/account/profile/tfa-settings", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	settings = decode[TfaSettingsResponse](t, rec)
	assert.False(t, settings.TfaEnabled)
	assert.Equal(t, "APP", settings.TfaType)
}

func TestTfaSettingsRequireToken(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/account/profile/tfa-settings", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticatedResetRequest(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "correct-horse")

	token, _, err := env.issuer.Issue("alice")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/account/password/reset-request", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, env.mock.SentNotifications, 1)
	assert.Equal(t, "alice@example.com", env.mock.SentNotifications[0].To)
}

func TestAuthenticatedResetRequestDeliveryFailure(t *testing.T) {
	env := newAPIEnv(t)
	env.signup(t, "alice", "alice@example.com", "correct-horse")

	token, _, err := env.issuer.Issue("alice")
	require.NoError(t, err)

	env.mock.FailuresRemaining = 1
	rec := env.do(t, http.MethodPost, "/account/password/reset-request", nil, token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTestEmailEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/diag/test-email", TestEmailRequest{To: "ops@example.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[TestEmailResponse](t, rec).Success)
	assert.Len(t, env.mock.SentNotifications, 1)
}
