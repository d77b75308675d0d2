package router

import (
	"context"
	"time"

	capsvc "bloodbank-ledger/internal/application/capacity"
	"bloodbank-ledger/internal/application/directory"
	donationsvc "bloodbank-ledger/internal/application/donations"
	ledgersvc "bloodbank-ledger/internal/application/ledger"
	subsvc "bloodbank-ledger/internal/application/subscriptions"
	"bloodbank-ledger/internal/config"
	"bloodbank-ledger/internal/infrastructure/database"
	"bloodbank-ledger/internal/infrastructure/locks"
	"bloodbank-ledger/internal/infrastructure/metrics"
	caphandler "bloodbank-ledger/internal/interfaces/handlers/capacity"
	donationhandler "bloodbank-ledger/internal/interfaces/handlers/donations"
	healthhandler "bloodbank-ledger/internal/interfaces/handlers/health"
	ledgerhandler "bloodbank-ledger/internal/interfaces/handlers/ledger"
	subhandler "bloodbank-ledger/internal/interfaces/handlers/subscriptions"
	"bloodbank-ledger/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// gormDBPinger pings the pool behind a *gorm.DB.
type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) PingContext(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateApp opens the database (and Redis when REDIS_URL is set), wires the
// services and registers every route. The returned Redis client may be nil.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, nil, nil, err
	}

	var rdb *redis.Client
	var locker locks.Locker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		rdb = redis.NewClient(opts)
		locker = locks.NewRedis(rdb, cfg.LockTimeout, cfg.LockTTL)
		log.Info().Msg("using redis locks")
	} else {
		locker = locks.NewLocal(cfg.LockTimeout)
		log.Warn().Msg("REDIS_URL not set; locks are process-local")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app := build(cfg, db, rdb, locker, reg)
	return app, db, rdb, nil
}

func build(cfg *config.Config, db *gorm.DB, rdb *redis.Client, locker locks.Locker, reg *prometheus.Registry) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
		ReadTimeout:             30 * time.Second,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{
		Rdb:            rdb,
		DB:             &gormDBPinger{db: db},
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	m := metrics.New(reg)
	dir := &directory.Service{DB: db}
	subs := &subsvc.Service{DB: db, Directory: dir, Locks: locker, Metrics: m}
	led := &ledgersvc.Service{DB: db, Directory: dir, Locks: locker, Metrics: m}
	caps := &capsvc.Service{DB: db, Directory: dir, Locks: locker, Metrics: m}
	workflow := &donationsvc.Service{
		DB:            db,
		Directory:     dir,
		Subscriptions: subs,
		Ledger:        led,
		Capacity:      caps,
		Locks:         locker,
		Metrics:       m,
	}

	api := app.Group("/api/v1")

	// Donations
	dh := &donationhandler.Handlers{Service: workflow}
	dg := api.Group("/donations")
	dg.Post("/donate", dh.Donate)
	dg.Get("/organisation-donations", dh.OrganisationDonations)
	dg.Get("/donor-donations", dh.DonorDonations)

	// Inventory (ledger)
	lh := &ledgerhandler.Handlers{Service: led, Workflow: workflow}
	ig := api.Group("/inventory")
	ig.Post("/dispense", lh.Dispense)
	ig.Get("/balance", lh.Balance)
	ig.Get("/balance-summary", lh.BalanceSummary)
	ig.Get("/entries", lh.Entries)
	ig.Get("/recent", lh.Recent)
	ig.Get("/donors", lh.Donors)
	ig.Get("/hospitals", lh.Hospitals)
	ig.Get("/organisations", lh.DonorOrganisations)
	ig.Get("/hospital-organisations", lh.HospitalOrganisations)

	// Subscriptions
	sh := &subhandler.Handlers{Service: subs}
	sg := api.Group("/subscriptions")
	sg.Post("/subscribe", sh.Subscribe)
	sg.Post("/unsubscribe", sh.Unsubscribe)
	sg.Post("/subscribe-hospital", sh.SubscribeHospital)
	sg.Post("/unsubscribe-hospital", sh.UnsubscribeHospital)
	sg.Get("/my-subscriptions", sh.MySubscriptions)
	sg.Get("/my-subscribers", sh.MySubscribers)
	sg.Get("/available-organisations", sh.AvailableOrganisations)
	sg.Get("/check-status", sh.CheckStatus)

	// Capacity
	ch := &caphandler.Handlers{Service: caps}
	cg := api.Group("/capacity")
	cg.Post("/set-capacity", ch.SetCapacity)
	cg.Post("/reset-capacity", ch.ResetCapacity)
	cg.Get("/my-capacity", ch.MyCapacity)
	cg.Get("/donors-with-capacity", ch.DonorsWithCapacity)
	cg.Get("/capacity-stats", ch.CapacityStats)

	return app
}
