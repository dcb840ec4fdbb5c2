// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"accessgate-service/internal/audit"
	"accessgate-service/internal/authcache"
	"accessgate-service/internal/config"
	"accessgate-service/internal/db"
	healthHandler "accessgate-service/internal/handlers/health"
	lockoutHandler "accessgate-service/internal/handlers/lockout"
	sessionHandler "accessgate-service/internal/handlers/session"
	"accessgate-service/internal/lockout"
	"accessgate-service/internal/middleware"
	"accessgate-service/internal/repository/postgres"
	"accessgate-service/internal/routepolicy"
	"accessgate-service/internal/sessiontimeout"
	"accessgate-service/internal/verifier"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	cancelTasks context.CancelFunc
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisCfg := db.RedisConfig{
		ClusterMode: false,
		Addresses:   []string{s.cfg.RedisAddr},
		Password:    s.cfg.RedisPass,
		DB:          s.cfg.RedisDB,
		PoolSize:    10,
	}

	redisClient, err := db.NewRedisClient(redisCfg)
	if err != nil {
		log.Fatalf("[REDIS] Failed to connect to Redis: %v", err)
	}
	log.Println("[REDIS] Connected successfully")

	// ----- Audit -----
	recorder := audit.NewRecorder(logger)

	// ----- Repositories -----
	identityRepo := postgres.NewIdentityRepository(pool)

	// ----- Services -----
	verifierService := verifier.NewService(verifier.Config{
		JWKSURL:          s.cfg.JWKSURL,
		IntrospectionURL: s.cfg.IntrospectionURL,
		Issuer:           s.cfg.Issuer,
		Audience:         s.cfg.Audience,
		AuthorityTimeout: s.cfg.AuthorityTimeout,
		JWKSRefreshTTL:   s.cfg.JWKSRefreshTTL,
		ClockSkew:        s.cfg.ClockSkew,
		CacheSize:        s.cfg.TokenCacheSize,
		CacheTTL:         s.cfg.TokenCacheTTL,
	}, logger)

	authCache := authcache.New(
		authcache.NewRedisKV(redisClient),
		identityRepo,
		s.cfg.AuthDataTTL,
		logger,
	)

	classifier := routepolicy.NewClassifier(routepolicy.DefaultRuleGroups())
	policy := routepolicy.NewPolicy(classifier)

	timeoutTracker := sessiontimeout.NewTracker(
		s.cfg.InactivityWindow,
		s.cfg.ExpiryWarning,
		s.cfg.TimeoutMemoTTL,
	)

	lockoutManager := lockout.NewManager(
		lockout.NewRedisStore(redisClient),
		map[lockout.Context]lockout.Policy{
			lockout.ContextInteractive: {MaxAttempts: s.cfg.LoginMaxAttempts, Window: s.cfg.LoginWindow, BaseLockout: s.cfg.LoginBaseLockout},
			lockout.ContextAPI:         {MaxAttempts: s.cfg.APIMaxAttempts, Window: s.cfg.APIWindow, BaseLockout: s.cfg.APIBaseLockout},
			lockout.ContextAdminPanel:  {MaxAttempts: s.cfg.AdminMaxAttempts, Window: s.cfg.AdminWindow, BaseLockout: s.cfg.AdminBaseLockout},
		},
		s.cfg.AttemptIdleExpiry,
		recorder,
		logger,
	)

	// ----- Background tasks -----
	taskCtx, cancel := context.WithCancel(context.Background())
	s.cancelTasks = cancel
	go verifierService.Run(taskCtx, s.cfg.SweepInterval)
	go lockoutManager.Run(taskCtx, s.cfg.AnomalyScanInterval)
	go s.runPatternEviction(taskCtx, policy)

	// ----- Middlewares -----
	gateway := middleware.NewGateway(
		verifierService,
		authCache,
		policy,
		timeoutTracker,
		lockoutManager,
		recorder,
		logger,
		middleware.Config{
			BearerCookie:   s.cfg.BearerCookie,
			ActivityHeader: s.cfg.ActivityHeader,
			ActivityCookie: s.cfg.ActivityCookie,
			LoginPath:      s.cfg.LoginPath,
			AdminLoginPath: s.cfg.AdminLoginPath,
		},
	)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
		gateway.Handle(),
	)

	// ----- Handlers -----
	handlers := &Handlers{
		HealthHandler:  healthHandler.NewHealthHandler(authCache, verifierService),
		SessionHandler: sessionHandler.NewSessionHandler(authCache, verifierService, recorder, logger),
		LockoutHandler: lockoutHandler.NewLockoutHandler(lockoutManager),
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("Server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}

// Shutdown stops the periodic tasks. The HTTP listener stops with the
// process.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelTasks != nil {
		s.cancelTasks()
	}
	if s.logger != nil {
		_ = s.logger.Sync()
	}
	return ctx.Err()
}

// runPatternEviction drops compiled route patterns idle for over an
// hour.
func (s *Server) runPatternEviction(ctx context.Context, policy *routepolicy.Policy) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := policy.EvictIdlePatterns(time.Hour); removed > 0 {
				s.logger.Debug("evicted idle route patterns", zap.Int("removed", removed))
			}
		}
	}
}
