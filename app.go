package main

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/mehmetcc/zerodrop/docs"
	"github.com/mehmetcc/zerodrop/internal/account"
	"github.com/mehmetcc/zerodrop/internal/audit"
	"github.com/mehmetcc/zerodrop/internal/authentication"
	"github.com/mehmetcc/zerodrop/internal/denylist"
	"github.com/mehmetcc/zerodrop/internal/gateway"
	"github.com/mehmetcc/zerodrop/internal/utils"
)

type app struct {
	router  *gin.Engine
	sweeper *authentication.Sweeper
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&account.Account{},
		&authentication.RefreshTokenRecord{},
		&denylist.Entry{},
		&audit.Event{},
	)
}

// newApp wires every service onto one injected database handle and builds
// the HTTP router.
func newApp(cfg *utils.Config, db *gorm.DB, logger *zap.Logger) (*app, error) {
	if !cfg.Server.Development() {
		gin.SetMode(gin.ReleaseMode)
	}

	//
	// WIRE UP SERVICES
	//
	accountRepo := account.NewAccountRepository(db)
	accountService := account.NewAccountService(accountRepo, logger)

	recordRepo := authentication.NewRecordRepository(db)
	authService := authentication.NewAuthenticationService(accountService, recordRepo, logger, cfg.Token)

	entryRepo := denylist.NewEntryRepository(db)
	denylistService := denylist.NewDenylistService(entryRepo, accountService, logger)

	executor, err := gateway.NewQueryExecutor(db)
	if err != nil {
		return nil, err
	}
	gatewayService := gateway.NewGatewayService(
		denylistService,
		gateway.NewShellRunner(cfg.Exec.CommandTimeout, cfg.Exec.MaxOutputBytes),
		executor,
		audit.NewRecorder(db, logger),
		logger,
	)

	// init Gin router
	router := gin.New()
	router.Use(utils.RequestLogger(logger), gin.Recovery())
	if len(cfg.Server.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.Server.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{"Authorization", "Content-Type"},
			ExposeHeaders: []string{"X-Rate-Limit-Limit", "X-Rate-Limit-Duration"},
		}))
	}

	//
	// SWAGGER (protected by Basic Auth, not JWT)
	//
	if cfg.Admin.Username != "" && cfg.Admin.Password != "" {
		swaggerGroup := router.Group("/swagger", gin.BasicAuth(gin.Accounts{
			cfg.Admin.Username: cfg.Admin.Password,
		}))
		swaggerGroup.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := router.Group("/auth", utils.RateLimit(cfg.RateLimit.RequestsPerSecond))
	authentication.NewAuthHandler(authGroup, authService, logger)

	requireToken := authentication.AuthMiddleware(authService, logger)
	gateway.NewGatewayHandler(router.Group("/run", requireToken), gatewayService, logger)
	denylist.NewDenylistHandler(router.Group("/admin", requireToken), denylistService, logger)

	return &app{
		router:  router,
		sweeper: authentication.NewSweeper(authService, cfg.Token.SweepInterval, logger),
	}, nil
}
