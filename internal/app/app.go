package app

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/auth-session-service/internal/config"
	"github.com/prperemyshlev/auth-session-service/internal/domain"
	"github.com/prperemyshlev/auth-session-service/internal/handler"
	"github.com/prperemyshlev/auth-session-service/internal/notify"
	"github.com/prperemyshlev/auth-session-service/internal/oauth"
	"github.com/prperemyshlev/auth-session-service/internal/repository"
	"github.com/prperemyshlev/auth-session-service/internal/service"
	"github.com/prperemyshlev/auth-session-service/internal/tokens"
	"github.com/prperemyshlev/auth-session-service/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 5 * time.Second
	serviceName     = "auth-session-service"
)

type App struct {
	infra    Infrastructure
	config   *config.Config
	router   *gin.Engine
	server   *http.Server
	sessions *service.SessionManager
}

type handlers struct {
	sessions *handler.SessionHandler
	accounts *handler.AccountHandler
	oauth    *handler.OAuthHandler
	jwks     gin.HandlerFunc
	health   *HealthChecker
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	logger := infra.Logger()

	key, err := loadSigningKey(cfg.JWT)
	if err != nil {
		return nil, err
	}

	codec, err := tokens.NewCodec(key,
		tokens.WithIssuer(cfg.JWT.Issuer),
		tokens.WithStorageCost(cfg.Security.RefreshTokenBCryptCost),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	metrics, err := observability.NewAuthMetrics(infra.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create auth metrics: %w", err)
	}

	store := repository.NewStore(infra.Postgres())
	opts := []service.Option{service.WithLogger(logger), service.WithMetrics(metrics)}
	links := notify.Links{BaseURL: cfg.App.BaseURL, FrontendURL: cfg.App.FrontendURL}
	notifier := notify.NewLogNotifier(logger)
	throttle := service.NewNotificationThrottle(infra.Redis(), cfg.Security.NotificationCooldown.Duration)

	sessions := service.NewSessionManager(store, codec, service.SessionPolicy{
		AccessTTL:         cfg.Session.AccessTokenTTL.Duration,
		RefreshTTL:        cfg.Session.RefreshTokenTTL.Duration,
		RotationThreshold: cfg.Session.RotationThreshold.Duration,
		DefaultRedirect:   cfg.App.FrontendURL + "/dashboard",
	}, opts...)
	linker := service.NewCredentialLinker(store, service.LinkerPolicy{
		PasswordCost:    cfg.Security.PasswordBCryptCost,
		VerificationTTL: cfg.Session.VerificationTokenTTL.Duration,
	}, opts...)
	authService := service.NewAuthService(store, linker, sessions, notifier, links, throttle, opts...)
	resetService := service.NewPasswordResetService(store, linker, sessions, notifier, links, throttle,
		cfg.Session.ResetTokenTTL.Duration, opts...)
	oauthLogin := service.NewOAuthLogin(newExchange(cfg), linker, sessions, cfg.App.FrontendURL, opts...)

	rateLimiter := service.NewRateLimiter(infra.Redis())
	cookies := handler.Cookies{
		Secure:  cfg.Session.SecureCookies,
		FlowTTL: cfg.OAuth.FlowCookieTTL.Duration,
	}

	h := handlers{
		sessions: handler.NewSessionHandler(authService, sessions, cookies, logger),
		accounts: handler.NewAccountHandler(authService, resetService, cookies, cfg.App.FrontendURL, logger),
		oauth:    handler.NewOAuthHandler(oauthLogin, cookies, logger),
		jwks:     handler.JWKSHandler(codec),
		health:   NewHealthChecker(infra),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(logger))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, cfg, h, sessions, rateLimiter, logger, infra.MetricsHandler())

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:    infra,
		config:   cfg,
		router:   router,
		server:   srv,
		sessions: sessions,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func loadSigningKey(cfg config.JWTConfig) (*rsa.PrivateKey, error) {
	if cfg.PrivateKey != "" {
		return tokens.LoadPrivateKey([]byte(cfg.PrivateKey))
	}
	return tokens.LoadPrivateKeyFile(cfg.PrivateKeyFile)
}

// newExchange registers the providers that have client credentials
func newExchange(cfg *config.Config) *oauth.Exchange {
	var providers []oauth.Provider
	if c := cfg.OAuth.GitHub; c.Enabled() {
		providers = append(providers, oauth.NewGitHub(c.ClientID, c.ClientSecret,
			cfg.App.OAuthCallbackURL(string(domain.ProviderGitHub))))
	}
	if c := cfg.OAuth.Google; c.Enabled() {
		providers = append(providers, oauth.NewGoogle(c.ClientID, c.ClientSecret,
			cfg.App.OAuthCallbackURL(string(domain.ProviderGoogle))))
	}
	return oauth.NewExchange(cfg.OAuth.ProviderTimeout.Duration, providers...)
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	h handlers,
	verifier handler.AccessVerifier,
	rateLimiter handler.Limiter,
	logger *zap.Logger,
	metricsHandler http.Handler,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", h.health.Handler)
	router.GET("/.well-known/jwks.json", h.jwks)

	limit := func(name string) gin.HandlerFunc {
		return handler.RateLimitMiddleware(rateLimiter, name,
			cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow.Duration, handler.IPBasedKey, logger)
	}
	requireAuth := handler.AuthMiddleware(verifier)

	api := router.Group("/api/v1")
	{
		sessions := api.Group("/sessions")
		{
			sessions.POST("", limit("signin"), h.sessions.SignIn)
			sessions.POST("/refresh", h.sessions.Refresh)
			sessions.DELETE("", h.sessions.SignOut)
		}

		api.POST("/accounts", limit("signup"), h.accounts.SignUp)
		api.GET("/verify-email", h.accounts.VerifyEmail)
		api.POST("/verification/resend", limit("resend"), h.accounts.ResendVerification)
		api.POST("/password-reset/request", limit("reset"), h.accounts.RequestPasswordReset)
		api.POST("/password-reset/confirm", limit("reset-confirm"), h.accounts.ConfirmPasswordReset)

		api.GET("/me", requireAuth, h.accounts.Me)
		api.POST("/account/password", requireAuth, h.accounts.ChangePassword)

		oauthRoutes := api.Group("/oauth/:provider")
		{
			oauthRoutes.GET("/start", h.oauth.Start)
			oauthRoutes.GET("/callback", h.oauth.Callback)
		}
	}
}

// Run purges dead refresh tokens, then serves until ctx is done
func (a *App) Run(ctx context.Context) error {
	if n, err := a.sessions.PurgeExpired(ctx); err != nil {
		a.infra.Logger().Warn("Failed to purge expired refresh tokens", zap.Error(err))
	} else {
		a.infra.Logger().Info("Purged expired refresh tokens", zap.Int64("count", n))
	}

	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- a.server.Shutdown(ctx)
	}()

	go func() {
		errs <- a.infra.Shutdown(ctx)
	}()

	err := errors.Join(<-errs, <-errs)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
