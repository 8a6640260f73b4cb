package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"

	"github.com/stepauth/stepauth/pkg/captcha"
	"github.com/stepauth/stepauth/pkg/config"
	"github.com/stepauth/stepauth/pkg/login"
	"github.com/stepauth/stepauth/pkg/login/api"
	"github.com/stepauth/stepauth/pkg/maildiag"
	"github.com/stepauth/stepauth/pkg/notification"
	"github.com/stepauth/stepauth/pkg/reset"
	"github.com/stepauth/stepauth/pkg/session"
	"github.com/stepauth/stepauth/pkg/twofa"
	"github.com/stepauth/stepauth/pkg/user"
)

func main() {
	cfg := config.Config{}
	cleanenv.ReadEnv(&cfg)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	var pool *pgxpool.Pool
	if strings.HasPrefix(cfg.Persistence.Type, "postgres") {
		dbConfig := cfg.Database.ToDbConfig()
		var err error
		pool, err = dbutils.NewDbPool(context.Background(), dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
			os.Exit(-1)
		}
	}

	users, err := user.NewUserRepository(cfg.Persistence.Type, user.RepositoryConfig{Pool: pool})
	if err != nil {
		slog.Error("Failed creating user repository", "error", err)
		os.Exit(-1)
	}
	configs, err := twofa.NewTwoFARepository(cfg.Persistence.Type, twofa.RepositoryConfig{Pool: pool})
	if err != nil {
		slog.Error("Failed creating 2FA repository", "error", err)
		os.Exit(-1)
	}

	notificationManager, err := notification.NewNotificationManager(
		notification.WithSMTP(cfg.Email.ToSMTPConfig()),
		notification.WithTwofaCodeTemplate(),
		notification.WithPasswordResetTemplate(),
		notification.WithTestEmailTemplate(),
	)
	if err != nil {
		slog.Error("Failed creating notification manager", "error", err)
		os.Exit(-1)
	}

	issuerOpts := []session.IssuerOption{
		session.WithTTL(cfg.Session.TTL()),
		session.WithIssuerName(cfg.Session.Issuer),
	}
	if cfg.Session.Secret != "" {
		issuerOpts = append(issuerOpts, session.WithKey([]byte(cfg.Session.Secret)))
	}
	issuer, err := session.NewIssuer(issuerOpts...)
	if err != nil {
		slog.Error("Failed creating session issuer", "error", err)
		os.Exit(-1)
	}

	hasher := login.NewBcryptHasher(0)

	twofaService := twofa.NewTwoFaService(users, configs, notificationManager,
		twofa.WithIssuer(cfg.TwoFa.Issuer),
		twofa.WithCodeTTL(cfg.TwoFa.CodeTTL()),
	)
	loginService := login.NewService(users, hasher, twofaService, issuer)
	resetService := reset.NewService(users, notificationManager, hasher,
		reset.WithBaseURL(cfg.Reset.BaseURL),
		reset.WithTokenTTL(cfg.Reset.TokenTTL()),
	)
	diagService := maildiag.NewService(notificationManager)

	captchaOpts := []captcha.ValidatorOption{}
	if cfg.Captcha.VerifyURL != "" {
		captchaOpts = append(captchaOpts, captcha.WithVerifyURL(cfg.Captcha.VerifyURL))
	}
	validator := captcha.NewValidator(cfg.Captcha.Secret, cfg.Captcha.SiteKey, captchaOpts...)

	handle := api.NewHandle(
		api.WithLoginService(loginService),
		api.WithTwoFaService(twofaService),
		api.WithResetService(resetService),
		api.WithMailDiagService(diagService),
		api.WithCaptchaValidator(validator),
		api.WithUserRepository(users),
	)

	// Expired reset tokens are evicted lazily on access; the sweeper keeps
	// the store from growing on abandoned resets.
	resetService.Tokens().StartSweeper(context.Background(), cfg.Reset.TokenTTL())

	tokenAuth := jwtauth.New("HS512", issuer.Key(), nil)

	server.R.Route("/api/auth", handle.Routes)
	server.R.Route("/api/password-reset", handle.ResetRoutes)
	server.R.Route("/api/account", func(r chi.Router) {
		handle.ProtectedRoutes(r, tokenAuth)
	})
	server.R.Route("/api/diag", handle.DiagRoutes)

	server.Run()
}
