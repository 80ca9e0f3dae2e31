package router

import (
	"net/http"

	capsvc "captable-backend/internal/application/captable"
	setsvc "captable-backend/internal/application/settlement"
	taxsvc "captable-backend/internal/application/taxtotals"
	tendersvc "captable-backend/internal/application/tender"
	wfsvc "captable-backend/internal/application/waterfall"
	authsvc "captable-backend/internal/auth"
	"captable-backend/internal/config"
	"captable-backend/internal/infrastructure/database"
	authhandler "captable-backend/internal/interfaces/handlers/auth"
	comphandler "captable-backend/internal/interfaces/handlers/computations"
	disthandler "captable-backend/internal/interfaces/handlers/distributions"
	healthhandler "captable-backend/internal/interfaces/handlers/health"
	taxhandler "captable-backend/internal/interfaces/handlers/taxtotals"
	tenderhandler "captable-backend/internal/interfaces/handlers/tenders"
	"captable-backend/internal/middleware"
	"captable-backend/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	sessionHandler, redisClient, err := middleware.Session(middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	})
	if err != nil {
		return nil, nil, nil, err
	}
	rdb := redisClient
	app.Use(sessionHandler)
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.ResponseFormatter())
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	app.Use(func(c *fiber.Ctx) error {
		user := c.Locals("user")
		if user == nil {
			c.Locals("user", nil)
		}
		return c.Next()
	})

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		DB:             nil,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/", hh.Dashboard)
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var errDB error
		db, errDB = database.Open(cfg.DatabaseURL)
		if errDB != nil {
			return nil, nil, nil, errDB
		}
		hh.DB = &gormDBPinger{db: db}
	}

	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}

	var userFinder authsvc.UserFinder
	if db != nil {
		userFinder = &authsvc.GormUserFinder{DB: db}
	}
	ah := &authhandler.Handlers{
		UserFinder: userFinder,
		Rdb:        rdb,
		Config:     sessionCfg,
	}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Post("/login", ah.Login)
	authGroup.Get("/me", ah.Me)
	authGroup.Delete("/logout", ah.Logout)

	if db != nil && rdb != nil {
		// Computations (dividend waterfall)
		ws := &wfsvc.Service{
			DB:                      db,
			Captable:                &capsvc.Service{DB: db},
			RetentionThresholdCents: cfg.RetentionThresholdCents,
		}
		ch := &comphandler.Handlers{Service: ws}
		cg := app.Group("/api/v1/computations", middleware.RequireAuth())
		cg.Post("/", middleware.AuthorizePermission(constants.CreateComputation), ch.Create)
		cg.Get("/", middleware.AuthorizePermission(constants.ViewData), ch.List)
		cg.Get("/:computation_id", middleware.AuthorizePermission(constants.ViewData), ch.Get)
		cg.Post("/:computation_id/compute", middleware.AuthorizePermission(constants.CreateComputation), ch.Compute)
		cg.Post("/:computation_id/finalize", middleware.AuthorizePermission(constants.FinalizeComputation), ch.Finalize)

		// Tender offers (buyback clearing)
		ts := &tendersvc.Service{DB: db, RetentionThresholdCents: cfg.RetentionThresholdCents}
		th := &tenderhandler.Handlers{Service: ts}
		tg := app.Group("/api/v1/tenders", middleware.RequireAuth())
		tg.Post("/", middleware.AuthorizePermission(constants.OpenTender), th.Open)
		tg.Post("/:tender_id/bids", middleware.AuthorizePermission(constants.ManageCapTable), th.PlaceBid)
		tg.Post("/:tender_id/preview", middleware.AuthorizePermission(constants.ViewData), th.Preview)
		tg.Post("/:tender_id/finalize", middleware.AuthorizePermission(constants.FinalizeTender), th.Finalize)

		// Distributions (settlement)
		ss := &setsvc.Service{
			DB: db,
			Provider: &setsvc.StripeProvider{
				SecretKey:           cfg.StripeSecretKey,
				DisbursementAccount: cfg.StripeDisbursementAcct,
			},
			MaxRetries:      cfg.SettlementMaxRetries,
			ProviderTimeout: cfg.ProviderTimeout,
		}
		dh := &disthandler.Handlers{Service: ss}
		dg := app.Group("/api/v1/distributions", middleware.RequireAuth())
		dg.Get("/", middleware.AuthorizePermission(constants.ViewData), dh.List)
		dg.Post("/submit-batch", middleware.AuthorizePermission(constants.SubmitBatch), dh.SubmitBatch)
		dg.Post("/:distribution_id/ready", middleware.AuthorizePermission(constants.ManageCapTable), dh.MarkReady)
		dg.Post("/:distribution_id/retry", middleware.AuthorizePermission(constants.RetryDistribution), dh.Retry)

		// Tax totals
		txs := &taxsvc.Service{DB: db}
		txh := &taxhandler.Handlers{Service: txs}
		txg := app.Group("/api/v1/tax-totals", middleware.RequireAuth())
		txg.Get("/", middleware.AuthorizePermission(constants.ExportTaxTotals), txh.Annual)
	}

	return app, db, rdb, nil
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
